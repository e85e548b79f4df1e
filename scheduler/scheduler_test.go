package scheduler

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pogoaccountserver/backend/config"
	"github.com/pogoaccountserver/backend/logging"
	"github.com/pogoaccountserver/backend/ratelimiter"
	"github.com/pogoaccountserver/backend/reclaimer"
	"github.com/pogoaccountserver/backend/requestlog"
	"github.com/pogoaccountserver/backend/store"
)

func defaultConfig() *config.Config {
	return &config.Config{
		General: config.General{
			CooldownSeconds:                  24 * 60 * 60,
			RateLimitMinutes:                 60,
			RateLimitNumber:                  3,
			StrictRateLimitMinutes:           5,
			AllowRateLimitOverrideWhenBurned: true,
			ForceReleaseSeconds:              30 * 24 * 60 * 60,
		},
	}
}

type harness struct {
	sched *Scheduler
	store *store.Fake
	log   *requestlog.MemLog
	clock int64
}

func newHarness(cfg *config.Config) *harness {
	s := store.NewFake()
	l := requestlog.NewMemLog(cfg.General.RateLimitNumber)
	lim := ratelimiter.New(s, l, cfg)
	logger := logging.NewLogger(logging.INFO, io.Discard)
	rc := reclaimer.New(s, cfg, logger)
	sched := New(s, l, lim, rc, cfg, logger)

	h := &harness{sched: sched, store: s, log: l, clock: 1_000_000}
	sched.SetClock(func() time.Time { return time.Unix(h.clock, 0) })
	return h
}

func seedFreeAccounts(s *store.Fake, names ...string) {
	for _, n := range names {
		s.Seed(store.Account{Username: n, Password: n + "-pw", Level: 30})
	}
}

func TestFreshLease(t *testing.T) {
	h := newHarness(defaultConfig())
	seedFreeAccounts(h.store, "A", "B", "C", "D", "E", "F")
	ctx := context.Background()

	lease, err := h.sched.GetAccount(ctx, "d1", 30)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if lease.Username == "" {
		t.Fatal("expected a username")
	}

	a, ok, err := h.store.FindByUsername(ctx, lease.Username)
	if err != nil || !ok {
		t.Fatalf("FindByUsername: ok=%v err=%v", ok, err)
	}
	if a.InUseBy != "d1" {
		t.Errorf("expected in_use_by=d1, got %q", a.InUseBy)
	}
	if a.LastUse != h.clock {
		t.Errorf("expected last_use=%d, got %d", h.clock, a.LastUse)
	}

	names := h.log.UsernamesOf("d1")
	if len(names) != 1 || names[0] != lease.Username {
		t.Errorf("expected RequestLog[d1] = [%s], got %v", lease.Username, names)
	}
}

func TestBurstLimitReissuesWithoutAdvancingLastUse(t *testing.T) {
	h := newHarness(defaultConfig())
	seedFreeAccounts(h.store, "A", "B", "C", "D", "E", "F")
	ctx := context.Background()

	first, err := h.sched.GetAccount(ctx, "d1", 30)
	if err != nil {
		t.Fatalf("first GetAccount failed: %v", err)
	}
	firstLastUse := h.clock

	h.clock += 60 // one minute later, within the 5-minute strict window

	second, err := h.sched.GetAccount(ctx, "d1", 30)
	if err != nil {
		t.Fatalf("second GetAccount failed: %v", err)
	}
	if second.Username != first.Username {
		t.Errorf("burst should re-issue the same account: first=%s second=%s", first.Username, second.Username)
	}

	a, _, _ := h.store.FindByUsername(ctx, first.Username)
	if a.LastUse != firstLastUse {
		t.Errorf("burst must not advance last_use: got %d, want %d", a.LastUse, firstLastUse)
	}

	names := h.log.UsernamesOf("d1")
	if len(names) != 1 {
		t.Errorf("expected no append on burst re-issue, got %v", names)
	}
}

func TestPeriodLimitReissuesOldestHistoryEntry(t *testing.T) {
	h := newHarness(defaultConfig())
	seedFreeAccounts(h.store, "X", "Y", "Z", "W")
	ctx := context.Background()

	var issued []string
	for i := 0; i < 3; i++ {
		lease, err := h.sched.GetAccount(ctx, "d2", 30)
		if err != nil {
			t.Fatalf("GetAccount #%d failed: %v", i, err)
		}
		issued = append(issued, lease.Username)
		h.clock += 6 * 60 // 6 minutes apart, outside the strict window
	}

	// 4th request, still within the 60-minute period window.
	lease, err := h.sched.GetAccount(ctx, "d2", 30)
	if err != nil {
		t.Fatalf("4th GetAccount failed: %v", err)
	}
	if lease.Username != issued[0] {
		t.Errorf("expected oldest history entry %s re-issued, got %s", issued[0], lease.Username)
	}

	names := h.log.UsernamesOf("d2")
	want := []string{issued[1], issued[2], issued[0]}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("RequestLog[d2] = %v, want %v", names, want)
			break
		}
	}
}

func TestAllBurnedOverridePromotesToUnlimited(t *testing.T) {
	h := newHarness(defaultConfig())
	seedFreeAccounts(h.store, "X", "Y", "Z", "W")
	ctx := context.Background()

	var issued []string
	for i := 0; i < 3; i++ {
		lease, err := h.sched.GetAccount(ctx, "d2", 30)
		if err != nil {
			t.Fatalf("GetAccount #%d failed: %v", i, err)
		}
		issued = append(issued, lease.Username)
		h.clock += 6 * 60
	}

	for _, u := range issued {
		if err := h.sched.SetBurnedByAccount(ctx, u, h.clock); err != nil {
			t.Fatalf("SetBurnedByAccount(%s) failed: %v", u, err)
		}
	}

	lease, err := h.sched.GetAccount(ctx, "d2", 30)
	if err != nil {
		t.Fatalf("4th GetAccount failed: %v", err)
	}

	remaining := map[string]bool{"X": true, "Y": true, "Z": true, "W": true}
	for _, u := range issued {
		delete(remaining, u)
	}
	if !remaining[lease.Username] {
		t.Errorf("expected a fresh, non-burned account leased after all-burned override, got %s", lease.Username)
	}
}

func TestForceReleaseFreesStaleLease(t *testing.T) {
	h := newHarness(defaultConfig())
	h.clock = 10_000_000 // comfortably past force_release_seconds so LastReturned=0 qualifies
	h.store.Seed(store.Account{Username: "stale", Level: 30, InUseBy: "d3", LastReturned: 0})
	ctx := context.Background()

	if _, err := h.sched.Stats(ctx); err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	a, ok, err := h.store.FindByUsername(ctx, "stale")
	if err != nil || !ok {
		t.Fatalf("FindByUsername: ok=%v err=%v", ok, err)
	}
	if a.Held() {
		t.Error("expected stale lease to be released by reclaimer")
	}
	if a.LastReturned != h.clock {
		t.Errorf("expected last_returned=%d, got %d", h.clock, a.LastReturned)
	}
}

func TestLevelGateExcludesLowerLevelAccounts(t *testing.T) {
	h := newHarness(defaultConfig())
	h.store.Seed(store.Account{Username: "A", Password: "A-pw", Level: 25})
	ctx := context.Background()

	lease, err := h.sched.GetAccount(ctx, "d4", 30)
	if err == nil {
		t.Fatalf("expected InvalidRequest (no qualifying candidate), got lease %+v", lease)
	}
}
