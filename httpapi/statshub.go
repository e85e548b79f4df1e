package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pogoaccountserver/backend/logging"
	"github.com/pogoaccountserver/backend/scheduler"
)

var statsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// statsClient is one connected /stats/stream subscriber.
type statsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// StatsHub periodically computes Stats and broadcasts it to every
// connected admin dashboard using a register/unregister/broadcast loop;
// clients only receive the read-only stats snapshot.
type StatsHub struct {
	sched    *scheduler.Scheduler
	logger   *logging.Logger
	interval time.Duration

	mu      sync.RWMutex
	clients map[*statsClient]bool

	register   chan *statsClient
	unregister chan *statsClient
}

// NewStatsHub builds a hub that recomputes stats every interval.
func NewStatsHub(sched *scheduler.Scheduler, logger *logging.Logger, interval time.Duration) *StatsHub {
	return &StatsHub{
		sched:      sched,
		logger:     logger,
		interval:   interval,
		clients:    make(map[*statsClient]bool),
		register:   make(chan *statsClient),
		unregister: make(chan *statsClient),
	}
}

// Run drives the hub's register/unregister/broadcast loop. Call it once
// in its own goroutine.
func (h *StatsHub) Run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case <-ticker.C:
			h.broadcastOnce()
		}
	}
}

func (h *StatsHub) broadcastOnce() {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	st, err := h.sched.Stats(context.Background())
	if err != nil {
		h.logger.Warn("stats broadcast skipped", logging.String("error", err.Error()))
		return
	}

	data, err := json.Marshal(statsBody(st))
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ServeWS upgrades the connection and pumps broadcast messages to it until
// it disconnects.
func (h *StatsHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := statsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &statsClient{conn: conn, send: make(chan []byte, 16)}
	h.register <- c

	go func() {
		defer func() {
			h.unregister <- c
			conn.Close()
		}()
		for data := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}()
}
