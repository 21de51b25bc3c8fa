package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rich1707/Customer-Churn/agent/internal/compute"
	"github.com/rich1707/Customer-Churn/agent/internal/config"
	"github.com/rich1707/Customer-Churn/agent/internal/metrics"
	"github.com/rich1707/Customer-Churn/agent/internal/shipper"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with broker and source secrets")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read env file", "path", *envFile, "err", err)
		os.Exit(1)
	}

	slog.Info("churn-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.Agent.LogLevel))
	slog.Info("config loaded",
		"queue", cfg.Agent.Broker.Queue,
		"sources", len(cfg.Agent.Sources),
		"scan_interval", cfg.Agent.ScanInterval,
		"workers", cfg.Agent.Workers,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New(nil)
	ship := shipper.New(cfg.Agent, m)
	go ship.Run(ctx)

	r := newRunner(compute.NewEngine(cfg.Agent.Workers), ship.Ship, m)
	if r.apply(cfg.Agent) == 0 {
		slog.Warn("no sources configured, agent will idle")
	}

	metricsSrv := &http.Server{Addr: cfg.Agent.MetricsAddr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("metrics listening", "addr", cfg.Agent.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "err", err)
		}
	}()

	// Reloads rebuild the source set and cleaner; a new scan interval takes
	// effect from the next tick.
	intervals := make(chan time.Duration, 1)
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			level.Set(parseLevel(updated.Agent.LogLevel))
			n := r.apply(updated.Agent)
			slog.Info("config hot-reloaded", "sources", n)
			select {
			case <-intervals:
			default:
			}
			intervals <- updated.Agent.ScanInterval
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	go func() {
		r.scan(ctx, time.Now())

		ticker := time.NewTicker(cfg.Agent.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-intervals:
				ticker.Reset(d)
			case t := <-ticker.C:
				r.scan(ctx, t)
			}
		}
	}()

	<-ctx.Done()
	slog.Info("churn-agent shutting down", "pending_batches", ship.Pending())

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
