package reclaimer

import (
	"context"
	"io"
	"testing"

	"github.com/pogoaccountserver/backend/config"
	"github.com/pogoaccountserver/backend/logging"
	"github.com/pogoaccountserver/backend/store"
)

func TestRunReleasesStaleLeasesOnly(t *testing.T) {
	s := store.NewFake()
	s.Seed(store.Account{Username: "stale", Level: 30, InUseBy: "d1", LastReturned: 0})
	s.Seed(store.Account{Username: "fresh", Level: 30, InUseBy: "d2", LastReturned: 9000})

	cfg := &config.Config{General: config.General{ForceReleaseSeconds: 1000}}
	logger := logging.NewLogger(logging.INFO, io.Discard)

	r := New(s, cfg, logger)
	released, err := r.Run(context.Background(), 10000)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(released) != 1 || released[0].Username != "stale" {
		t.Fatalf("expected only 'stale' released, got %+v", released)
	}

	if _, ok, _ := s.CurrentFor(context.Background(), "d2"); !ok {
		t.Error("fresh lease should not have been reclaimed")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	s := store.NewFake()
	s.Seed(store.Account{Username: "stale", Level: 30, InUseBy: "d1", LastReturned: 0})
	cfg := &config.Config{General: config.General{ForceReleaseSeconds: 1000}}
	logger := logging.NewLogger(logging.INFO, io.Discard)
	r := New(s, cfg, logger)

	ctx := context.Background()
	first, err := r.Run(ctx, 10000)
	if err != nil || len(first) != 1 {
		t.Fatalf("first run: released=%v err=%v", first, err)
	}

	second, err := r.Run(ctx, 10000)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected idempotent second run to release nothing, got %+v", second)
	}
}
