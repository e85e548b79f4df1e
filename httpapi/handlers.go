// Package httpapi is the account-lease server's HTTP surface: Basic Auth,
// the device-facing lease routes, the administrative mutators, and the
// /stats, /metrics and /stats/stream observability routes.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pogoaccountserver/backend/apperrors"
	"github.com/pogoaccountserver/backend/logging"
	"github.com/pogoaccountserver/backend/metrics"
	"github.com/pogoaccountserver/backend/scheduler"
	"github.com/pogoaccountserver/backend/statscache"
)

const (
	maxBodyBytes = 16 << 20
	serverHeader = "pogoAccountServer"
	defaultLevel = 30
)

// Server wires the Scheduler to the HTTP routes the spec's route table
// names, using net/http's ServeMux with manual path parsing rather than
// a router package.
type Server struct {
	sched  *scheduler.Scheduler
	logger *logging.Logger
	cache  *statscache.Cache
	mux    *http.ServeMux
}

// NewServer builds the route table. cache may be nil, in which case
// /stats always recomputes.
func NewServer(sched *scheduler.Scheduler, logger *logging.Logger, cache *statscache.Cache, hub *StatsHub) *Server {
	s := &Server{sched: sched, logger: logger, cache: cache, mux: http.NewServeMux()}

	s.mux.HandleFunc("/get/", s.handleGet)
	s.mux.HandleFunc("/get-current/", s.handleGetCurrent)
	s.mux.HandleFunc("/set/level/by-device/", s.handleSetLevelByDevice)
	s.mux.HandleFunc("/set/level/by-account/", s.handleSetLevelByAccount)
	s.mux.HandleFunc("/set/burned/by-device/", s.handleSetBurnedByDevice)
	s.mux.HandleFunc("/set/burned/by-account/", s.handleSetBurnedByAccount)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.Handler().ServeHTTP(w, r)
	})
	if hub != nil {
		s.mux.HandleFunc("/stats/stream", hub.ServeWS)
	}
	s.mux.HandleFunc("/", s.handleFallback)

	return s
}

// ServeHTTP applies the server header and body-size cap before
// dispatching to the route table.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Server", serverHeader)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	s.mux.ServeHTTP(w, r)
}

func segments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// writeErr maps an apperrors.Error (or any other error) to a response.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Kind {
		case apperrors.KindInvalidRequest:
			status = http.StatusBadRequest
		case apperrors.KindUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.KindStoreUnavailable:
			status = http.StatusInternalServerError
			s.logger.Error("store unavailable", err, logging.Component("httpapi"))
		}
		writeFail(w, status, appErr.Message)
		return
	}
	s.logger.Error("unhandled error", err, logging.Component("httpapi"))
	writeFail(w, http.StatusInternalServerError, "internal error")
}

// handleGet serves GET/POST /get/<device> and /get/<device>/<level>.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	parts := segments(r.URL.Path)
	// parts[0] == "get"
	if len(parts) < 2 {
		writeFail(w, http.StatusBadRequest, "device is required")
		return
	}
	device := parts[1]
	level := defaultLevel
	if len(parts) >= 3 {
		parsed, err := strconv.Atoi(parts[2])
		if err != nil {
			writeFail(w, http.StatusBadRequest, "level must be an integer")
			return
		}
		level = parsed
	}

	lease, err := s.sched.GetAccount(r.Context(), device, level)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"username": lease.Username, "password": lease.Password})
}

// handleGetCurrent serves GET/POST /get-current/<device>.
func (s *Server) handleGetCurrent(w http.ResponseWriter, r *http.Request) {
	parts := segments(r.URL.Path)
	if len(parts) < 2 {
		writeFail(w, http.StatusBadRequest, "device is required")
		return
	}
	a, ok, err := s.sched.CurrentFor(r.Context(), parts[1])
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if !ok {
		writeFail(w, http.StatusBadRequest, "device has no current account")
		return
	}
	writeOK(w, map[string]any{"username": a.Username})
}

// handleSetLevelByDevice serves /set/level/by-device/<device>/<level>.
func (s *Server) handleSetLevelByDevice(w http.ResponseWriter, r *http.Request) {
	parts := segments(r.URL.Path) // [set level by-device device level]
	if len(parts) < 5 {
		writeFail(w, http.StatusBadRequest, "device and level are required")
		return
	}
	level, err := strconv.Atoi(parts[4])
	if err != nil {
		writeFail(w, http.StatusBadRequest, "level must be an integer")
		return
	}
	if err := s.sched.SetLevelByDevice(r.Context(), parts[3], level); err != nil {
		s.writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

// handleSetLevelByAccount serves /set/level/by-account/<account>/<level>.
func (s *Server) handleSetLevelByAccount(w http.ResponseWriter, r *http.Request) {
	parts := segments(r.URL.Path)
	if len(parts) < 5 {
		writeFail(w, http.StatusBadRequest, "account and level are required")
		return
	}
	level, err := strconv.Atoi(parts[4])
	if err != nil {
		writeFail(w, http.StatusBadRequest, "level must be an integer")
		return
	}
	if err := s.sched.SetLevelByAccount(r.Context(), parts[3], level); err != nil {
		s.writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

// handleSetBurnedByDevice serves /set/burned/by-device/<device>[/<ts>].
func (s *Server) handleSetBurnedByDevice(w http.ResponseWriter, r *http.Request) {
	parts := segments(r.URL.Path) // [set burned by-device device ts?]
	if len(parts) < 4 {
		writeFail(w, http.StatusBadRequest, "device is required")
		return
	}
	ts, err := parseOptionalTimestamp(parts, 4)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "ts must be an integer")
		return
	}
	if err := s.sched.SetBurnedByDevice(r.Context(), parts[3], ts); err != nil {
		s.writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

// handleSetBurnedByAccount serves /set/burned/by-account/<account>[/<ts>].
func (s *Server) handleSetBurnedByAccount(w http.ResponseWriter, r *http.Request) {
	parts := segments(r.URL.Path)
	if len(parts) < 4 {
		writeFail(w, http.StatusBadRequest, "account is required")
		return
	}
	ts, err := parseOptionalTimestamp(parts, 4)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "ts must be an integer")
		return
	}
	if err := s.sched.SetBurnedByAccount(r.Context(), parts[3], ts); err != nil {
		s.writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func parseOptionalTimestamp(parts []string, idx int) (int64, error) {
	if len(parts) <= idx {
		return time.Now().Unix(), nil
	}
	return strconv.ParseInt(parts[idx], 10, 64)
}

func statsBody(st scheduler.Stats) map[string]any {
	return map[string]any{
		"total":               st.Total,
		"in_use":              st.InUse,
		"cooldown":            st.Cooldown,
		"available":           st.Available,
		"accounts_per_device": st.AccountsPerDevice,
		"required_per_device": st.RequiredPerDevice,
		"hours_per_account":   st.HoursPerAccount,
	}
}

// handleStats serves GET /stats, fronted by a short-TTL cache so a
// polling fleet can't force a reclaim pass on every request.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var cached map[string]any
	if s.cache != nil && s.cache.Get(r.Context(), &cached) {
		cached["status"] = "ok"
		writeJSON(w, http.StatusOK, cached)
		return
	}

	st, err := s.sched.Stats(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}

	body := statsBody(st)
	if s.cache != nil {
		s.cache.Set(r.Context(), body)
	}
	writeOK(w, body)
}

// handleFallback serves every unmatched route: 400 {"status":"fail"}.
func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	writeFail(w, http.StatusBadRequest, "unknown route")
}
