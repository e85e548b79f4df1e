package store

import "context"

// Fake is an in-memory AccountStore for unit tests of the scheduler, rate
// limiter and reclaimer, so those packages never need a live Postgres.
type Fake struct {
	rows map[string]Account
}

// NewFake returns an empty in-memory store.
func NewFake() *Fake {
	return &Fake{rows: make(map[string]Account)}
}

// Seed inserts or overwrites an account directly, bypassing UpsertMany's
// password-only-update semantics. Test helper only.
func (f *Fake) Seed(a Account) {
	f.rows[a.Username] = a
}

func (f *Fake) UpsertMany(_ context.Context, pairs []CredentialPair) error {
	for _, p := range pairs {
		if existing, ok := f.rows[p.Username]; ok {
			existing.Password = p.Password
			f.rows[p.Username] = existing
			continue
		}
		f.rows[p.Username] = Account{Username: p.Username, Password: p.Password}
	}
	return nil
}

func (f *Fake) PickFree(_ context.Context, minLevel int, cooldownCutoff int64) (Account, bool, error) {
	var best Account
	found := false
	for _, a := range f.rows {
		if a.Level < minLevel || a.Held() {
			continue
		}
		if a.LastReturned >= cooldownCutoff || a.LastBurned >= cooldownCutoff {
			continue
		}
		if !found || a.LastUse < best.LastUse || (a.LastUse == best.LastUse && a.Username < best.Username) {
			best = a
			found = true
		}
	}
	return best, found, nil
}

func (f *Fake) FindByUsername(_ context.Context, username string) (Account, bool, error) {
	a, ok := f.rows[username]
	return a, ok, nil
}

func (f *Fake) CurrentFor(_ context.Context, device string) (Account, bool, error) {
	for _, a := range f.rows {
		if a.InUseBy == device {
			return a, true, nil
		}
	}
	return Account{}, false, nil
}

func (f *Fake) ReleaseAllFor(_ context.Context, device string, now int64) error {
	for u, a := range f.rows {
		if a.InUseBy == device {
			a.InUseBy = ""
			a.LastReturned = now
			f.rows[u] = a
		}
	}
	return nil
}

func (f *Fake) Assign(_ context.Context, username, device string, now int64, stampLastUse bool) error {
	a, ok := f.rows[username]
	if !ok {
		return nil
	}
	a.InUseBy = device
	if stampLastUse {
		a.LastUse = now
	}
	f.rows[username] = a
	return nil
}

func (f *Fake) SetLevel(_ context.Context, username string, level int) error {
	a, ok := f.rows[username]
	if !ok {
		return nil
	}
	a.Level = level
	f.rows[username] = a
	return nil
}

func (f *Fake) SetBurned(_ context.Context, username string, ts int64) error {
	a, ok := f.rows[username]
	if !ok {
		return nil
	}
	a.LastBurned = ts
	f.rows[username] = a
	return nil
}

func (f *Fake) LatestUseIn(_ context.Context, device string, extraUsernames []string) (int64, error) {
	extra := make(map[string]bool, len(extraUsernames))
	for _, u := range extraUsernames {
		extra[u] = true
	}
	var latest int64
	for _, a := range f.rows {
		if a.InUseBy == device || extra[a.Username] {
			if a.LastUse > latest {
				latest = a.LastUse
			}
		}
	}
	return latest, nil
}

func (f *Fake) CountCooldown(_ context.Context, cutoff int64) (int64, error) {
	var n int64
	for _, a := range f.rows {
		if a.LastReturned >= cutoff || a.LastBurned >= cutoff {
			n++
		}
	}
	return n, nil
}

func (f *Fake) CountInUse(_ context.Context) (int64, error) {
	var n int64
	for _, a := range f.rows {
		if a.Held() {
			n++
		}
	}
	return n, nil
}

func (f *Fake) CountAll(_ context.Context) (int64, error) {
	return int64(len(f.rows)), nil
}

func (f *Fake) ForceRelease(_ context.Context, olderThan int64, now int64) ([]Account, error) {
	var released []Account
	for u, a := range f.rows {
		if a.Held() && a.LastReturned < olderThan {
			before := a
			a.InUseBy = ""
			a.LastReturned = now
			f.rows[u] = a
			released = append(released, before)
		}
	}
	return released, nil
}
