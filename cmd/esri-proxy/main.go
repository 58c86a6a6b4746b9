package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muimsd/esri-go/internal/config"
	"github.com/muimsd/esri-go/internal/httpclient"
	"github.com/muimsd/esri-go/internal/invalidation"
	"github.com/muimsd/esri-go/internal/logger"
	"github.com/muimsd/esri-go/internal/observability"
	"github.com/muimsd/esri-go/internal/proxy"
	"github.com/muimsd/esri-go/internal/proxycache"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	log := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "esri-proxy",
	}, os.Stdout)

	if cfg.ServiceURL == "" {
		log.Error().Msg("ESRI_SERVICE_URL is required")
		return 1
	}

	observability.ExposeBuildInfo(Version)
	log.Info().Str("addr", cfg.Addr).Str("service", cfg.ServiceURL).
		Str("version", Version).Msg("starting esri-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *proxycache.Store
	if cfg.RedisAddr != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		s, err := proxycache.New(connectCtx, cfg.RedisAddr)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("redis unavailable, running cacheless")
		} else {
			store = s
			defer func() { _ = store.Close() }()
		}
	}

	var runner *invalidation.Runner
	if store != nil {
		runner = invalidation.New(cfg.Invalidation, store, invalidation.Options{Logger: &log})
		if err := runner.Start(ctx); err != nil {
			log.Error().Err(err).Msg("invalidation runner start failed")
			return 1
		}
		defer runner.Stop()
	}

	checks := map[string]proxy.ReadinessChecker{}
	if store != nil {
		checks["redis"] = store.Ping
	}
	if runner != nil && cfg.Invalidation.Enabled {
		checks["kafka"] = func(context.Context) error {
			if ready, _ := runner.Readiness(); !ready {
				return errNotAssigned
			}
			return nil
		}
	}

	h := proxy.NewHandler(cfg, log, httpclient.New(), store)
	router := proxy.Router(h, log, proxy.Readiness(checks))

	if err := proxy.Run(ctx, cfg, log, router); err != nil {
		log.Error().Err(err).Msg("http server failed")
		return 1
	}
	return 0
}

var errNotAssigned = errors.New("no kafka partitions assigned")
