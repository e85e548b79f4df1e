// Package store implements the account-lease server's durable account
// table: the single source of truth for which device holds which account,
// and for the cooldown/burn timestamps the scheduler reasons about.
package store

import "context"

// Account is a row of the accounts table (spec section 3).
type Account struct {
	Username     string
	Password     string
	Level        int
	InUseBy      string // "" means unheld
	LastUse      int64  // 0 means never
	LastReturned int64  // 0 means never
	LastBurned   int64  // 0 means never
}

// Held reports whether the account is currently leased to a device.
func (a Account) Held() bool {
	return a.InUseBy != ""
}

// CredentialPair is a (username, password) pair as read from the bulk
// import file.
type CredentialPair struct {
	Username string
	Password string
}

// AccountStore is everything the scheduler, rate limiter and reclaimer
// need from the durable account table. Implemented by *PGStore against
// Postgres; fakeable in tests.
type AccountStore interface {
	// UpsertMany bulk-inserts username/password pairs, overwriting the
	// password on conflict.
	UpsertMany(ctx context.Context, pairs []CredentialPair) error

	// PickFree returns the oldest-unused leasable account at or above
	// minLevel whose cooldown has expired as of cooldownCutoff (a unix
	// timestamp), or (Account{}, false) if none qualify.
	PickFree(ctx context.Context, minLevel int, cooldownCutoff int64) (Account, bool, error)

	// FindByUsername returns the named account, or (Account{}, false) if
	// it doesn't exist.
	FindByUsername(ctx context.Context, username string) (Account, bool, error)

	// CurrentFor returns the account currently held by device, or
	// (Account{}, false) if it holds none.
	CurrentFor(ctx context.Context, device string) (Account, bool, error)

	// ReleaseAllFor clears in_use_by and stamps last_returned := now for
	// every row currently held by device.
	ReleaseAllFor(ctx context.Context, device string, now int64) error

	// Assign sets in_use_by := device for username, and, if
	// stampLastUse, also last_use := now.
	Assign(ctx context.Context, username, device string, now int64, stampLastUse bool) error

	// SetLevel sets the level of the named account.
	SetLevel(ctx context.Context, username string, level int) error

	// SetBurned sets last_burned := ts for the named account.
	SetBurned(ctx context.Context, username string, ts int64) error

	// LatestUseIn returns the maximum last_use over rows with
	// in_use_by = device OR username in extraUsernames; 0 if none match.
	LatestUseIn(ctx context.Context, device string, extraUsernames []string) (int64, error)

	// CountCooldown counts rows whose max(last_returned, last_burned) is
	// at or after cutoff.
	CountCooldown(ctx context.Context, cutoff int64) (int64, error)

	// CountInUse counts rows with in_use_by set.
	CountInUse(ctx context.Context) (int64, error)

	// CountAll counts every row.
	CountAll(ctx context.Context) (int64, error)

	// ForceRelease clears in_use_by and stamps last_returned := now for
	// every row held with last_returned < olderThan, returning the
	// released rows for logging.
	ForceRelease(ctx context.Context, olderThan int64, now int64) ([]Account, error)
}
