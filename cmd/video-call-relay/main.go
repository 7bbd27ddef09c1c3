package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/galkyn/video-calling-app/internal/callstore"
	"github.com/galkyn/video-calling-app/internal/calltrack"
	"github.com/galkyn/video-calling-app/internal/config"
	"github.com/galkyn/video-calling-app/internal/httpserver"
	"github.com/galkyn/video-calling-app/internal/metrics"
	"github.com/galkyn/video-calling-app/internal/reporting"
	"github.com/galkyn/video-calling-app/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting video-call-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"call_log_path", cfg.CallLogPath,
		"call_log_limit", cfg.CallLogLimit,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
		"allowed_origins", cfg.AllowedOrigins,
	)
	if len(cfg.AllowedOrigins) == 0 {
		logger.Warn("no origin allowlist configured; accepting websocket upgrades from any origin")
	}

	store, err := callstore.Open(cfg.CallLogPath)
	if err != nil {
		logger.Error("failed to open call log", "path", cfg.CallLogPath, "err", err)
		os.Exit(2)
	}
	defer store.Close()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})

	m := metrics.New()
	tracker := calltrack.New(store, nil, logger, m)
	registry := signaling.NewRegistry()
	router := signaling.NewRouter(registry, tracker, logger, m)
	sig := signaling.NewServer(cfg, registry, router, logger, m)
	sig.RegisterRoutes(srv.Mux())

	reports := reporting.NewServer(store, cfg.CallLogLimit, cfg.AllowedOrigins, logger, m)
	reports.RegisterRoutes(srv.Mux())

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	sig.Close()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
