// Package ratelimiter classifies a device's lease request so the scheduler
// knows whether to hand out a fresh account or re-issue one from recent
// history. It is read-only: it never mutates the account store or the
// request log.
package ratelimiter

import (
	"context"

	"github.com/pogoaccountserver/backend/config"
	"github.com/pogoaccountserver/backend/requestlog"
	"github.com/pogoaccountserver/backend/store"
)

// Class is the outcome of classifying a device's request.
type Class int

const (
	Unlimited Class = iota
	Burst
	Period
	Unknown
)

func (c Class) String() string {
	switch c {
	case Unlimited:
		return "unlimited"
	case Burst:
		return "burst"
	case Period:
		return "period"
	default:
		return "unknown"
	}
}

// Limiter classifies device requests against the account store and
// request log.
type Limiter struct {
	store store.AccountStore
	log   requestlog.Log
	cfg   *config.Config
}

// New builds a Limiter over the given store, log and configuration.
func New(s store.AccountStore, l requestlog.Log, cfg *config.Config) *Limiter {
	return &Limiter{store: s, log: l, cfg: cfg}
}

// Classify implements spec section 4.C's algorithm exactly.
func (lim *Limiter) Classify(ctx context.Context, device string, now int64) (Class, error) {
	if device == "" {
		return Unknown, nil
	}

	usernames := lim.log.UsernamesOf(device)
	latest, err := lim.store.LatestUseIn(ctx, device, usernames)
	if err != nil {
		return Unknown, err
	}

	if now-latest < lim.cfg.General.StrictRateLimitSeconds() {
		return Burst, nil
	}

	cutoff := now - lim.cfg.General.RateLimitWindowSeconds()
	if lim.log.CountSince(device, cutoff) >= lim.cfg.General.RateLimitNumber {
		return Period, nil
	}

	return Unlimited, nil
}
