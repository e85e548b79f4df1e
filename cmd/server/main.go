package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pogoaccountserver/backend/config"
	"github.com/pogoaccountserver/backend/httpapi"
	"github.com/pogoaccountserver/backend/importer"
	"github.com/pogoaccountserver/backend/logging"
	"github.com/pogoaccountserver/backend/ratelimiter"
	"github.com/pogoaccountserver/backend/reclaimer"
	"github.com/pogoaccountserver/backend/requestlog"
	"github.com/pogoaccountserver/backend/scheduler"
	"github.com/pogoaccountserver/backend/statscache"
	"github.com/pogoaccountserver/backend/store"
)

const (
	requestLogPath       = ".request_log.json"
	accountsImportPath   = "accounts.txt"
	reclaimInterval      = 5 * time.Minute
	statsBroadcastPeriod = 10 * time.Second
)

func main() {
	verbose := flag.Bool("v", false, "debug logging")
	veryVerbose := flag.Bool("vv", false, "trace logging")
	configPath := flag.String("config", "config.ini", "path to the INI config file")
	flag.Parse()

	level := logging.INFO
	if *veryVerbose {
		level = logging.TRACE
	} else if *verbose {
		level = logging.DEBUG
	}
	logger := logging.NewLogger(level)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", err)
	}

	ctx := context.Background()

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Pass, cfg.Database.Name,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		logger.Fatal("failed to connect to database", err)
	}
	defer pool.Close()

	acctStore := store.NewPGStore(pool)

	if err := importer.Import(ctx, acctStore, accountsImportPath, logger); err != nil {
		logger.Warn("account import failed", logging.String("error", err.Error()))
	}

	log := requestlog.NewFileLog(requestLogPath, cfg.General.RateLimitNumber, logger)
	limiter := ratelimiter.New(acctStore, log, cfg)
	reclaim := reclaimer.New(acctStore, cfg, logger)
	sched := scheduler.New(acctStore, log, limiter, reclaim, cfg, logger)

	go func() {
		ticker := time.NewTicker(reclaimInterval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := reclaim.Run(ctx, time.Now().Unix()); err != nil {
				logger.Warn("periodic reclaim failed", logging.String("error", err.Error()))
			}
		}
	}()

	var cache *statscache.Cache
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cache = statscache.New(redisAddr, os.Getenv("REDIS_PASSWORD"), 0, 5*time.Second)
		defer cache.Close()
	}

	hub := httpapi.NewStatsHub(sched, logger, statsBroadcastPeriod)
	go hub.Run()

	server := httpapi.NewServer(sched, logger, cache, hub)
	auth := httpapi.BasicAuth{Username: cfg.General.AuthUsername, Password: cfg.General.AuthPassword}
	ipLimiter := httpapi.NewIPLimiter(20, 40)

	handler := logging.PanicRecoveryMiddleware(logger)(
		logging.HTTPLoggingMiddleware(logger)(
			ipLimiter.Middleware(
				auth.Middleware(server),
			),
		),
	)

	addr := fmt.Sprintf("%s:%d", cfg.General.ListenHost, cfg.General.ListenPort)
	logger.Info("pogoAccountServer listening", logging.String("addr", addr))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", err)
	}
}
