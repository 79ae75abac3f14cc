package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/connwatch/connwatch/internal/archive"
	"github.com/connwatch/connwatch/internal/config"
	"github.com/connwatch/connwatch/internal/httpapi"
	"github.com/connwatch/connwatch/internal/logging"
	"github.com/connwatch/connwatch/internal/notify"
	"github.com/connwatch/connwatch/internal/peerpoll"
	"github.com/connwatch/connwatch/internal/registry"
	"github.com/connwatch/connwatch/internal/scheduler"
	"github.com/connwatch/connwatch/internal/tracker"
)

func main() {
	cfgPath := flag.String("config", "connwatch.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, "connwatch.log")
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	targets, err := registry.Build(cfg)
	if err != nil {
		logger.Fatal("target_registry_failed", zap.Error(err))
	}
	logger.Info("targets_resolved", zap.Int("count", len(targets)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan tracker.Transition, 128)
	tr := tracker.New(logger, tracker.Config{
		DownThreshold: cfg.Tracker.DownThreshold,
		UpThreshold:   cfg.Tracker.UpThreshold,
		MaxHistory:    cfg.Tracker.MaxHistory,
		Source:        "bastion",
	}, targets, events)

	store := archive.Disabled
	if cfg.ArchiveDSN != "" {
		pg, err := archive.NewPostgres(ctx, cfg.ArchiveDSN)
		if err != nil {
			logger.Warn("archive_unavailable", zap.Error(err))
		} else {
			store = pg
			defer pg.Close()
		}
	}

	var notifier notify.Notifier
	if cfg.SlackWebhook != "" {
		notifier = notify.NewSlack(cfg.SlackWebhook)
	}
	alerter := scheduler.NewAlerter(logger, notifier, store, scheduler.AlerterConfig{
		AlertOnRecovery: true,
		Cooldown:        cfg.AlertCooldown,
	})
	go alerter.Run(ctx, events)

	var peers []peerpoll.Peer
	for i, raw := range cfg.Routes {
		url := strings.TrimRight(strings.TrimSpace(raw), "/")
		if url == "" {
			continue
		}
		peers = append(peers, peerpoll.Peer{Name: registry.RoutePeerName(i + 1), BaseURL: url})
	}
	remote := peerpoll.NewStore(cfg.Tracker.MaxHistory)
	if len(peers) > 0 {
		poller := peerpoll.NewPoller(logger, remote, peers, cfg.Probe.PollInterval(), cfg.Probe.HTTPTimeout())
		go poller.Run(ctx)
	}

	runner := scheduler.NewRunner(logger, tr, targets)
	go runner.Run(ctx)

	api := httpapi.NewServer(logger, tr, remote, peers, cfg.Tracker.MaxHistory)
	api.AdminKeys = cfg.AdminKeys
	api.RateLimitRPM = cfg.RateLimitRPM

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: api.Router()}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Info("api_listen", zap.String("addr", cfg.ListenAddr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api_serve_failed", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}
