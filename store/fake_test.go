package store

import (
	"context"
	"testing"
)

func TestFakePickFreeRespectsLevelAndCooldown(t *testing.T) {
	s := NewFake()
	ctx := context.Background()

	s.Seed(Account{Username: "low", Level: 10})
	s.Seed(Account{Username: "high", Level: 30})
	s.Seed(Account{Username: "onCooldown", Level: 30, LastReturned: 900})
	s.Seed(Account{Username: "held", Level: 30, InUseBy: "device-1"})

	t.Run("FiltersByLevel", func(t *testing.T) {
		a, ok, err := s.PickFree(ctx, 30, 100)
		if err != nil {
			t.Fatalf("PickFree failed: %v", err)
		}
		if !ok {
			t.Fatal("expected a candidate")
		}
		if a.Username != "high" {
			t.Errorf("expected 'high', got %q", a.Username)
		}
	})

	t.Run("NoCandidateAboveEverySeededLevel", func(t *testing.T) {
		_, ok, _ := s.PickFree(ctx, 1000, 100)
		if ok {
			t.Fatal("expected no candidate above every seeded level")
		}
	})
}

func TestFakeAssignAndReleaseCycle(t *testing.T) {
	s := NewFake()
	ctx := context.Background()
	s.Seed(Account{Username: "acct1", Level: 30})

	if err := s.Assign(ctx, "acct1", "device-1", 100, true); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	cur, ok, err := s.CurrentFor(ctx, "device-1")
	if err != nil || !ok {
		t.Fatalf("CurrentFor failed: ok=%v err=%v", ok, err)
	}
	if cur.Username != "acct1" || cur.LastUse != 100 {
		t.Errorf("unexpected account state: %+v", cur)
	}

	if err := s.ReleaseAllFor(ctx, "device-1", 200); err != nil {
		t.Fatalf("ReleaseAllFor failed: %v", err)
	}

	if _, ok, _ := s.CurrentFor(ctx, "device-1"); ok {
		t.Error("expected no account held after release")
	}

	released, ok, err := s.FindByUsername(ctx, "acct1")
	if err != nil || !ok {
		t.Fatalf("FindByUsername failed: ok=%v err=%v", ok, err)
	}
	if released.Held() {
		t.Error("expected account to be unheld")
	}
	if released.LastReturned != 200 {
		t.Errorf("expected last_returned=200, got %d", released.LastReturned)
	}
}

func TestFakeForceRelease(t *testing.T) {
	s := NewFake()
	ctx := context.Background()
	s.Seed(Account{Username: "stale", Level: 30, InUseBy: "device-1", LastReturned: 10})
	s.Seed(Account{Username: "fresh", Level: 30, InUseBy: "device-2", LastReturned: 1000})

	released, err := s.ForceRelease(ctx, 500, 2000)
	if err != nil {
		t.Fatalf("ForceRelease failed: %v", err)
	}
	if len(released) != 1 || released[0].Username != "stale" {
		t.Fatalf("expected only 'stale' released, got %+v", released)
	}

	if _, ok, _ := s.CurrentFor(ctx, "device-2"); !ok {
		t.Error("fresh lease should not have been force-released")
	}
}
