package requestlog

import (
	"context"
	"sync"
)

// core holds the device->history map and capacity, with no persistence.
// Both MemLog (tests) and FileLog (production) are built on it.
type core struct {
	mu       sync.Mutex
	capacity int
	data     map[string][]Entry
}

func newCore(capacity int) *core {
	return &core{capacity: capacity, data: make(map[string][]Entry)}
}

func (c *core) append(device string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.data[device]
	seq = append(seq, entry)
	if len(seq) > c.capacity {
		seq = seq[len(seq)-c.capacity:]
	}
	c.data[device] = seq
}

func (c *core) rotate(device string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq, ok := c.data[device]
	if !ok || len(seq) == 0 {
		return
	}
	rotated := make([]Entry, len(seq))
	copy(rotated, seq[1:])
	rotated[len(rotated)-1] = seq[0]
	c.data[device] = rotated
}

func (c *core) usernamesOf(device string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq, ok := c.data[device]
	if !ok {
		return nil
	}
	out := make([]string, len(seq))
	for i, e := range seq {
		out[i] = e.Username
	}
	return out
}

func (c *core) contains(device, username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.data[device] {
		if e.Username == username {
			return true
		}
	}
	return false
}

func (c *core) countSince(device string, cutoff int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.data[device] {
		if e.Timestamp > cutoff {
			n++
		}
	}
	return n
}

func (c *core) head(device string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq, ok := c.data[device]
	if !ok || len(seq) == 0 {
		return Entry{}, false
	}
	return seq[0], true
}

func (c *core) snapshot() map[string][]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]Entry, len(c.data))
	for k, v := range c.data {
		cp := make([]Entry, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func (c *core) restore(data map[string][]Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data == nil {
		data = make(map[string][]Entry)
	}
	for device, seq := range data {
		if len(seq) > c.capacity {
			seq = seq[len(seq)-c.capacity:]
		}
		data[device] = seq
	}
	c.data = data
}

// MemLog is a non-persisted Log, used by unit tests of the scheduler and
// rate limiter.
type MemLog struct {
	*core
}

// NewMemLog returns an empty in-memory log with the given per-device
// capacity.
func NewMemLog(capacity int) *MemLog {
	return &MemLog{core: newCore(capacity)}
}

func (m *MemLog) Append(_ context.Context, device string, entry Entry) error {
	m.append(device, entry)
	return nil
}

func (m *MemLog) Rotate(_ context.Context, device string) error {
	m.rotate(device)
	return nil
}

func (m *MemLog) UsernamesOf(device string) []string { return m.usernamesOf(device) }

func (m *MemLog) Contains(device, username string) bool { return m.contains(device, username) }

func (m *MemLog) Head(device string) (Entry, bool) { return m.head(device) }

func (m *MemLog) CountSince(device string, cutoff int64) int { return m.countSince(device, cutoff) }
