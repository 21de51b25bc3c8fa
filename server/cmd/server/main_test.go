package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/rich1707/Customer-Churn/pkg/types"
	"github.com/rich1707/Customer-Churn/server/internal/alerts"
	"github.com/rich1707/Customer-Churn/server/internal/config"
	"github.com/rich1707/Customer-Churn/server/internal/history"
	"github.com/rich1707/Customer-Churn/server/internal/store"
	"github.com/rich1707/Customer-Churn/server/internal/ws"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOpenHistory_Disabled(t *testing.T) {
	repo, closeFn, err := openHistory(context.Background(), config.StorageConfig{Backend: config.BackendNone})
	if err != nil {
		t.Fatalf("openHistory: %v", err)
	}
	if _, ok := repo.(history.Nop); !ok {
		t.Errorf("repo = %T, want history.Nop", repo)
	}
	closeFn()
}

func TestOpenHistory_PostgresWithoutDSN(t *testing.T) {
	t.Setenv("TEST_EMPTY_DSN", "")
	_, _, err := openHistory(context.Background(), config.StorageConfig{
		Backend: config.BackendPostgres,
		DSNEnv:  "TEST_EMPTY_DSN",
	})
	if err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestBatchHook_EvaluatesAlerts(t *testing.T) {
	al := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "load-failed", Condition: "status == failed"},
	}})
	hub := ws.New(store.New(time.Minute), al, time.Hour)

	batchHook{alerts: al, hub: hub}.Evaluate(&types.Batch{
		SourceID: "crm",
		Status:   types.StatusFailed,
	})

	if al.Firing() != 1 {
		t.Errorf("Firing = %d, want 1", al.Firing())
	}
}
