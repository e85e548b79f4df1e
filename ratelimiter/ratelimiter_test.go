package ratelimiter

import (
	"context"
	"testing"

	"github.com/pogoaccountserver/backend/config"
	"github.com/pogoaccountserver/backend/requestlog"
	"github.com/pogoaccountserver/backend/store"
)

func testConfig() *config.Config {
	return &config.Config{
		General: config.General{
			StrictRateLimitMinutes: 5,
			RateLimitMinutes:       60,
			RateLimitNumber:        3,
		},
	}
}

func TestClassifyEmptyDeviceIsUnknown(t *testing.T) {
	lim := New(store.NewFake(), requestlog.NewMemLog(3), testConfig())
	class, err := lim.Classify(context.Background(), "", 1000)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if class != Unknown {
		t.Errorf("expected Unknown, got %v", class)
	}
}

func TestClassifyBurstWithinStrictWindow(t *testing.T) {
	s := store.NewFake()
	s.Seed(store.Account{Username: "A", Level: 30, InUseBy: "d1", LastUse: 990})
	lim := New(s, requestlog.NewMemLog(3), testConfig())

	class, err := lim.Classify(context.Background(), "d1", 1000)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if class != Burst {
		t.Errorf("expected Burst, got %v", class)
	}
}

func TestClassifyPeriodAfterThreeRecentIssues(t *testing.T) {
	s := store.NewFake()
	s.Seed(store.Account{Username: "A", Level: 30, LastUse: 100})
	log := requestlog.NewMemLog(3)
	ctx := context.Background()
	log.Append(ctx, "d2", requestlog.Entry{Timestamp: 100, Username: "A"})
	log.Append(ctx, "d2", requestlog.Entry{Timestamp: 700, Username: "B"})
	log.Append(ctx, "d2", requestlog.Entry{Timestamp: 1300, Username: "C"})

	lim := New(s, log, testConfig())

	class, err := lim.Classify(ctx, "d2", 2000)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if class != Period {
		t.Errorf("expected Period, got %v", class)
	}
}

func TestClassifyUnlimitedWithNoRecentActivity(t *testing.T) {
	s := store.NewFake()
	lim := New(s, requestlog.NewMemLog(3), testConfig())

	class, err := lim.Classify(context.Background(), "d3", 100000)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if class != Unlimited {
		t.Errorf("expected Unlimited, got %v", class)
	}
}
