// Package metrics exposes Prometheus counters for the account-lease
// server: leases issued, rate-limit classifications, reclaimed leases and
// backing-store errors, registered as promauto package-level vars.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	leasesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogo_leases_issued_total",
			Help: "Total accounts leased, by rate-limit classification.",
		},
		[]string{"class"},
	)

	rateLimitClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogo_rate_limit_classifications_total",
			Help: "Total rate-limiter classifications, by outcome.",
		},
		[]string{"class"},
	)

	leasesReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pogo_leases_reclaimed_total",
			Help: "Total leases force-released by the reclaimer.",
		},
	)

	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogo_store_errors_total",
			Help: "Total account store errors, by operation.",
		},
		[]string{"op"},
	)
)

// LeaseIssued records a successful lease under the given rate-limit class.
func LeaseIssued(class string) {
	leasesIssued.WithLabelValues(class).Inc()
}

// RateLimitClassified records a classification outcome.
func RateLimitClassified(class string) {
	rateLimitClassifications.WithLabelValues(class).Inc()
}

// LeasesReclaimed records n leases force-released in one reclaimer pass.
func LeasesReclaimed(n int) {
	leasesReclaimed.Add(float64(n))
}

// StoreError records a failed store operation.
func StoreError(op string) {
	storeErrors.WithLabelValues(op).Inc()
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
