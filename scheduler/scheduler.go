// Package scheduler implements the lease scheduler: the single serializing
// authority that decides which account a device receives, commits that
// decision to the account store and request log in strict order, and
// exposes the administrative mutators and stats the HTTP surface needs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pogoaccountserver/backend/apperrors"
	"github.com/pogoaccountserver/backend/config"
	"github.com/pogoaccountserver/backend/logging"
	"github.com/pogoaccountserver/backend/metrics"
	"github.com/pogoaccountserver/backend/ratelimiter"
	"github.com/pogoaccountserver/backend/reclaimer"
	"github.com/pogoaccountserver/backend/requestlog"
	"github.com/pogoaccountserver/backend/store"
)

// Lease is what a successful get_account call returns.
type Lease struct {
	Username string
	Password string
}

// Stats is the snapshot returned by the /stats route.
type Stats struct {
	Total             int64
	InUse             int64
	Cooldown          int64
	Available         int64
	AccountsPerDevice float64
	RequiredPerDevice float64
	HoursPerAccount   float64
}

// Scheduler is the heart of the account-lease server. A single instance is
// shared by every HTTP handler; its per-device mutexes guarantee that
// concurrent requests from the same device serialize, per spec section 5.
type Scheduler struct {
	store     store.AccountStore
	log       requestlog.Log
	limiter   *ratelimiter.Limiter
	reclaimer *reclaimer.Reclaimer
	cfg       *config.Config
	logger    *logging.Logger

	deviceLocksMu sync.Mutex
	deviceLocks   map[string]*sync.Mutex

	now func() time.Time
}

// New builds a Scheduler. now defaults to time.Now and is only overridden
// in tests.
func New(s store.AccountStore, l requestlog.Log, lim *ratelimiter.Limiter, rc *reclaimer.Reclaimer, cfg *config.Config, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		store:       s,
		log:         l,
		limiter:     lim,
		reclaimer:   rc,
		cfg:         cfg,
		logger:      logger,
		deviceLocks: make(map[string]*sync.Mutex),
		now:         time.Now,
	}
}

func (s *Scheduler) lockFor(device string) *sync.Mutex {
	s.deviceLocksMu.Lock()
	defer s.deviceLocksMu.Unlock()
	l, ok := s.deviceLocks[device]
	if !ok {
		l = &sync.Mutex{}
		s.deviceLocks[device] = l
	}
	return l
}

func (s *Scheduler) nowUnix() int64 { return s.now().Unix() }

// SetClock overrides the scheduler's time source. Test helper only.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// GetAccount implements spec section 4.D's candidate-selection and commit
// algorithm. requestedLevel defaults to 30 at the HTTP layer when absent.
func (s *Scheduler) GetAccount(ctx context.Context, device string, requestedLevel int) (Lease, error) {
	if device == "" {
		return Lease{}, apperrors.Invalid("device is required")
	}

	lock := s.lockFor(device)
	lock.Lock()
	defer lock.Unlock()

	now := s.nowUnix()
	cooldownCutoff := now - s.cfg.General.CooldownSeconds

	// Opportunistic reclaim: no request should observe a lease older than
	// force_release_seconds, rather than waiting for the next /stats poll.
	if _, err := s.reclaimer.Run(ctx, now); err != nil {
		s.logger.Warn("opportunistic reclaim failed", logging.Device(device), logging.String("error", err.Error()))
	}

	class, err := s.limiter.Classify(ctx, device, now)
	if err != nil {
		return Lease{}, err
	}
	metrics.RateLimitClassified(class.String())

	candidate, fromHistory, err := s.selectCandidate(ctx, device, class, requestedLevel, now, cooldownCutoff)
	if err != nil {
		return Lease{}, err
	}
	if candidate == nil {
		return Lease{}, apperrors.Invalid("No accounts available")
	}

	if fromHistory {
		if err := s.log.Rotate(ctx, device); err != nil {
			s.logger.Warn("request log rotate failed", logging.Device(device), logging.String("error", err.Error()))
		}
	}

	if err := s.commit(ctx, device, *candidate, class, now); err != nil {
		return Lease{}, err
	}

	metrics.LeaseIssued(class.String())
	return Lease{Username: candidate.Username, Password: candidate.Password}, nil
}

// selectCandidate returns the chosen account and whether it came from the
// device's recent-history path (as opposed to a fresh pick_free pick).
func (s *Scheduler) selectCandidate(ctx context.Context, device string, class ratelimiter.Class, requestedLevel int, now, cooldownCutoff int64) (*store.Account, bool, error) {
	if class == ratelimiter.Unlimited {
		a, ok, err := s.store.PickFree(ctx, requestedLevel, cooldownCutoff)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		return &a, false, nil
	}

	if _, hasHistory := s.log.Head(device); !hasHistory {
		cur, ok, err := s.store.CurrentFor(ctx, device)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		return &cur, false, nil
	}

	usernames := s.log.UsernamesOf(device)
	limit := s.cfg.General.RateLimitNumber
	if limit > len(usernames) {
		limit = len(usernames)
	}

	for i := 0; i < limit; i++ {
		username := usernames[i]
		a, ok, err := s.store.FindByUsername(ctx, username)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if a.LastBurned < cooldownCutoff && a.Level >= requestedLevel {
			return &a, true, nil
		}
	}

	if !s.cfg.General.AllowRateLimitOverrideWhenBurned {
		return nil, false, nil
	}

	a, ok, err := s.store.PickFree(ctx, requestedLevel, cooldownCutoff)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &a, false, nil
}

// commit performs release-then-assign-then-append in the strict order
// spec section 5 requires, all before returning to the caller.
func (s *Scheduler) commit(ctx context.Context, device string, candidate store.Account, class ratelimiter.Class, now int64) error {
	if err := s.store.ReleaseAllFor(ctx, device, now); err != nil {
		return err
	}

	stampLastUse := class != ratelimiter.Burst
	if err := s.store.Assign(ctx, candidate.Username, device, now, stampLastUse); err != nil {
		return err
	}

	_, hasHistory := s.log.Head(device)
	inWindow := s.log.Contains(device, candidate.Username)
	if !hasHistory || !inWindow {
		if err := s.log.Append(ctx, device, requestlog.Entry{Timestamp: now, Username: candidate.Username}); err != nil {
			s.logger.Warn("request log append failed", logging.Device(device), logging.String("error", err.Error()))
		}
	}

	return nil
}

// CurrentFor returns the account presently leased to device.
func (s *Scheduler) CurrentFor(ctx context.Context, device string) (store.Account, bool, error) {
	return s.store.CurrentFor(ctx, device)
}

// SetLevelByAccount sets the named account's level directly.
func (s *Scheduler) SetLevelByAccount(ctx context.Context, username string, level int) error {
	return s.store.SetLevel(ctx, username, level)
}

// SetLevelByDevice resolves device's current account and sets its level.
func (s *Scheduler) SetLevelByDevice(ctx context.Context, device string, level int) error {
	a, ok, err := s.store.CurrentFor(ctx, device)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Invalid("device has no current account")
	}
	return s.store.SetLevel(ctx, a.Username, level)
}

// SetBurnedByAccount marks the named account burned at ts.
func (s *Scheduler) SetBurnedByAccount(ctx context.Context, username string, ts int64) error {
	return s.store.SetBurned(ctx, username, ts)
}

// SetBurnedByDevice resolves device's current account and marks it burned.
func (s *Scheduler) SetBurnedByDevice(ctx context.Context, device string, ts int64) error {
	a, ok, err := s.store.CurrentFor(ctx, device)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Invalid("device has no current account")
	}
	return s.store.SetBurned(ctx, a.Username, ts)
}

// Stats triggers the reclaimer and returns the current pool counters.
func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	now := s.nowUnix()
	if _, err := s.reclaimer.Run(ctx, now); err != nil {
		return Stats{}, err
	}

	cutoff := now - s.cfg.General.CooldownSeconds

	total, err := s.store.CountAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	inUse, err := s.store.CountInUse(ctx)
	if err != nil {
		return Stats{}, err
	}
	cooldown, err := s.store.CountCooldown(ctx, cutoff)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		Total:     total,
		InUse:     inUse,
		Cooldown:  cooldown,
		Available: total - inUse - cooldown,
	}

	if inUse > 0 {
		st.AccountsPerDevice = float64(total) / float64(inUse)
		st.RequiredPerDevice = float64(inUse+cooldown) / float64(inUse)
		if st.RequiredPerDevice > 0 {
			st.HoursPerAccount = 24 / st.RequiredPerDevice
		}
	}

	return st, nil
}
