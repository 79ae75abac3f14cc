package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/connwatch/connwatch/internal/config"
	"github.com/connwatch/connwatch/internal/logging"
	"github.com/connwatch/connwatch/internal/peer"
	"github.com/connwatch/connwatch/internal/registry"
	"github.com/connwatch/connwatch/internal/scheduler"
	"github.com/connwatch/connwatch/internal/tracker"
)

func main() {
	cfgPath := flag.String("config", "peer.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.LoadPeer(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, "peer.log")
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	targets, err := registry.BuildPeer(cfg)
	if err != nil {
		logger.Fatal("target_registry_failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr := tracker.New(logger, tracker.Config{
		DownThreshold: cfg.Tracker.DownThreshold,
		UpThreshold:   cfg.Tracker.UpThreshold,
		MaxHistory:    cfg.Tracker.MaxHistory,
		Source:        "peer",
		Reporter:      cfg.Name,
	}, targets, nil)

	responder := peer.NewResponder(logger, cfg.Name, tr)
	go func() {
		if err := responder.ServeWS(ctx, fmt.Sprintf(":%d", cfg.WSPort)); err != nil {
			logger.Error("ws_serve_failed", zap.Error(err))
		}
	}()
	go func() {
		if err := responder.ServeTCP(ctx, fmt.Sprintf(":%d", cfg.TCPPort)); err != nil {
			logger.Error("tcp_serve_failed", zap.Error(err))
		}
	}()

	runner := scheduler.NewRunner(logger, tr, targets)
	go runner.Run(ctx)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: responder.Routes()}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Info("peer_listen",
		zap.String("name", cfg.Name),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("ws_port", cfg.WSPort),
		zap.Int("tcp_port", cfg.TCPPort),
	)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http_serve_failed", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}
