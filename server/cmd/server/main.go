package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rich1707/Customer-Churn/pkg/types"
	"github.com/rich1707/Customer-Churn/server/internal/alerts"
	"github.com/rich1707/Customer-Churn/server/internal/api"
	"github.com/rich1707/Customer-Churn/server/internal/auth"
	"github.com/rich1707/Customer-Churn/server/internal/config"
	"github.com/rich1707/Customer-Churn/server/internal/history"
	"github.com/rich1707/Customer-Churn/server/internal/receiver"
	"github.com/rich1707/Customer-Churn/server/internal/store"
	"github.com/rich1707/Customer-Churn/server/internal/ws"
)

const (
	broadcastInterval = 5 * time.Second
	dbConnectTimeout  = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with broker, database and API key secrets")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read env file", "path", *envFile, "err", err)
		os.Exit(1)
	}

	slog.Info("churn-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	sc := cfg.Server
	level.Set(parseLevel(sc.LogLevel))

	slog.Info("config loaded",
		"grpc_port", sc.GRPCPort,
		"http_port", sc.HTTPPort,
		"auth_mode", sc.Auth.Mode,
		"queue", sc.Broker.Queue,
		"storage", sc.Storage.Backend,
		"snapshot_ttl", sc.Snapshot.TTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(sc.Snapshot.TTL)

	repo, closeRepo, err := openHistory(ctx, sc.Storage)
	if err != nil {
		slog.Error("failed to open history storage", "err", err)
		os.Exit(1)
	}
	defer closeRepo()
	go history.RunRetention(ctx, repo, sc.Storage.Retention, sc.Storage.RetentionInterval)

	alertEngine := alerts.New(sc.Alerts)
	slog.Info("alert rules loaded", "rules", alertEngine.Rules())

	hub := ws.New(st, alertEngine, broadcastInterval)
	go hub.Run(ctx)

	// Push a fresh snapshot as soon as sources age out.
	st.OnEvict(func([]string) { hub.Notify() })
	go st.Run(ctx)

	// gRPC: the standard health service, guarded by the API key interceptor
	// (health checks themselves stay open).
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(receiver.HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(auth.APIKeyInterceptor(
		sc.Auth.Mode,
		sc.Auth.EffectiveHeader(),
		sc.Auth.Key(),
	)))
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	rcv := receiver.New(sc.Broker, st, repo, batchHook{alerts: alertEngine, hub: hub}, healthSrv)
	go rcv.Run(ctx)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", sc.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC health listening", "port", sc.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// REST API and WebSocket hub share the HTTP port.
	router := api.New(api.Options{
		Store:    st,
		History:  repo,
		Alerts:   alertEngine,
		Receiver: rcv,
		Auth:     sc.Auth,
	})
	router.With(auth.APIKeyMiddleware(sc.Auth.Mode, sc.Auth.EffectiveHeader(), sc.Auth.Key())).
		Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("churn-server shutting down")
	healthSrv.Shutdown()
	grpcSrv.GracefulStop()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// openHistory selects the history backend. The returned close func is never nil.
func openHistory(ctx context.Context, cfg config.StorageConfig) (history.Repository, func(), error) {
	if cfg.Backend != config.BackendPostgres {
		slog.Info("history storage disabled")
		return history.Nop{}, func() {}, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()
	pg, err := history.Open(dialCtx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	slog.Info("history storage ready", "backend", cfg.Backend, "retention", cfg.Retention)
	return pg, func() { pg.Close() }, nil
}

// batchHook runs after the receiver stores a batch: alert rules are
// evaluated and WebSocket clients are pushed the new state.
type batchHook struct {
	alerts *alerts.Engine
	hub    *ws.Hub
}

func (h batchHook) Evaluate(b *types.Batch) {
	h.alerts.Evaluate(b)
	h.hub.Notify()
}

func parseLevel(s string) slog.Level {
	switch s {
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
