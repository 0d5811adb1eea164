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

	"github.com/joho/godotenv"

	"github.com/Muhammd-hafeef-th/Us/internal/config"
	"github.com/Muhammd-hafeef-th/Us/internal/httpserver"
	"github.com/Muhammd-hafeef-th/Us/internal/metrics"
	"github.com/Muhammd-hafeef-th/Us/internal/moderation"
	"github.com/Muhammd-hafeef-th/Us/internal/report"
	"github.com/Muhammd-hafeef-th/Us/internal/signaling"
	"github.com/Muhammd-hafeef-th/Us/internal/transport"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildVersion = ""
	buildCommit  = ""
	buildTime    = ""
)

func main() {
	// Dev convenience; absent .env files are fine.
	_ = godotenv.Load()

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

	logger.Info("starting us-server",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"ws_idle_timeout", cfg.WSIdleTimeout,
		"ws_ping_interval", cfg.WSPingInterval,
		"max_message_bytes", cfg.MaxMessageBytes,
		"max_messages_per_second", cfg.MaxMessagesPerSecond,
		"send_queue_bytes", cfg.SendQueueBytes,
		"chat_filter_enabled", len(cfg.ChatFilterWords) > 0,
		"reports_in_memory", cfg.ReportsDir == "",
		"ice_servers", len(cfg.ICEServers),
	)

	logStartupWarnings(logger, cfg)

	censor, err := moderation.New(cfg.ChatFilterWords, cfg.ChatFilterMask)
	if err != nil {
		logger.Error("failed to build chat filter", "err", err)
		os.Exit(2)
	}

	reports, err := report.Open(cfg.ReportsDir, logger)
	if err != nil {
		logger.Error("failed to open report store", "err", err)
		os.Exit(2)
	}
	defer reports.Close()

	mets := metrics.New()
	engine := signaling.NewEngine(signaling.Config{
		Log:     logger,
		Metrics: mets,
		Censor:  censor,
		Reports: reports,
	})

	ws := transport.NewServer(transport.Options{
		IdleTimeout:          cfg.WSIdleTimeout,
		PingInterval:         cfg.WSPingInterval,
		WriteTimeout:         cfg.WSWriteTimeout,
		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		SendQueueBytes:       cfg.SendQueueBytes,
	}, cfg.AllowedOrigins, engine, mets, logger)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	srv := httpserver.New(cfg, logger, resolveBuildInfo(buildVersion, buildCommit, buildTime))
	srv.Mux().Handle("GET /ws", ws)
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(mets))
	srv.Mux().HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		httpserver.WriteJSON(w, http.StatusOK, engine.Stats())
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
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

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(version, commit, buildTime string) httpserver.BuildInfo {
	// Prefer ldflags-injected values (production builds) but fall back to the
	// Go build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		if version == "" {
			version = bi.Main.Version
		}
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

	return httpserver.BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}
