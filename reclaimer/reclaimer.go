// Package reclaimer force-releases leases a device never returned,
// protecting the pool against devices that crash or vanish mid-session.
package reclaimer

import (
	"context"

	"github.com/pogoaccountserver/backend/config"
	"github.com/pogoaccountserver/backend/logging"
	"github.com/pogoaccountserver/backend/metrics"
	"github.com/pogoaccountserver/backend/store"
)

// Reclaimer releases leases held past the configured force-release window.
type Reclaimer struct {
	store  store.AccountStore
	cfg    *config.Config
	logger *logging.Logger
}

// New builds a Reclaimer over store, using cfg's force_release_seconds.
func New(s store.AccountStore, cfg *config.Config, logger *logging.Logger) *Reclaimer {
	return &Reclaimer{store: s, cfg: cfg, logger: logger}
}

// Run clears in_use_by for every lease whose last_returned predates
// now - force_release_seconds, logging each released row. Idempotent:
// a row already released is never selected again.
func (r *Reclaimer) Run(ctx context.Context, now int64) ([]store.Account, error) {
	olderThan := now - r.cfg.General.ForceReleaseSeconds
	released, err := r.store.ForceRelease(ctx, olderThan, now)
	if err != nil {
		return nil, err
	}

	for _, a := range released {
		r.logger.Info("lease force-released",
			logging.Account(a.Username),
			logging.Device(a.InUseBy),
			logging.Component("reclaimer"),
		)
	}
	if len(released) > 0 {
		metrics.LeasesReclaimed(len(released))
	}

	return released, nil
}
