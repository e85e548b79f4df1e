// Package requestlog implements the per-device bounded history of recently
// issued accounts that the rate limiter and scheduler consult to re-issue
// an account under throttling instead of handing out a fresh one.
package requestlog

import "context"

// Entry is one record of an account having been issued to a device.
type Entry struct {
	Timestamp int64
	Username  string
}

// Log is the device -> bounded FIFO history. Implemented by *FileLog;
// fakeable in tests via *MemLog.
type Log interface {
	// Append enqueues entry for device, dropping the oldest entry if the
	// device's history is already at capacity, then persists.
	Append(ctx context.Context, device string, entry Entry) error

	// Rotate moves the oldest entry of device's history to the tail,
	// preserving the relative order of the rest, then persists. A no-op
	// if device has no history.
	Rotate(ctx context.Context, device string) error

	// UsernamesOf returns device's history usernames in insertion order.
	UsernamesOf(device string) []string

	// Contains reports whether username appears anywhere in device's
	// history window.
	Contains(device string, username string) bool

	// Head returns the oldest entry of device's history, or (Entry{},
	// false) if device has no history.
	Head(device string) (Entry, bool)

	// CountSince counts device's history entries with Timestamp > cutoff.
	CountSince(device string, cutoff int64) int
}
