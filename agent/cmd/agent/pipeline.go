package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rich1707/Customer-Churn/agent/internal/clean"
	"github.com/rich1707/Customer-Churn/agent/internal/compute"
	"github.com/rich1707/Customer-Churn/agent/internal/config"
	"github.com/rich1707/Customer-Churn/agent/internal/ingest"
	"github.com/rich1707/Customer-Churn/agent/internal/metrics"
	"github.com/rich1707/Customer-Churn/agent/internal/security"
)

// shipFunc hands a derived result to the shipper.
type shipFunc func(*compute.Result)

// pipeline is one configured source with its loader.
type pipeline struct {
	src    config.Source
	loader ingest.Loader
}

// runner owns the current source set. apply swaps it atomically on reload;
// scans in flight keep the set they started with.
type runner struct {
	engine *compute.Engine
	ship   shipFunc
	m      *metrics.Metrics

	mu        sync.Mutex
	pipelines []pipeline
	cleaner   *clean.Cleaner
}

func newRunner(engine *compute.Engine, ship shipFunc, m *metrics.Metrics) *runner {
	return &runner{engine: engine, ship: ship, m: m}
}

// apply rebuilds the pipelines from cfg. Sources whose loader cannot be built
// are skipped with an error log. Returns the number of active sources.
func (r *runner) apply(cfg config.AgentConfig) int {
	var pipelines []pipeline
	keep := make(map[string]bool, len(cfg.Sources))
	for _, src := range cfg.Sources {
		l, err := ingest.New(src)
		if err != nil {
			slog.Error("skipping source, could not build loader", "source", src.ID, "err", err)
			continue
		}
		pipelines = append(pipelines, pipeline{src: src, loader: l})
		keep[src.ID] = true
		slog.Info("registered source", "id", src.ID, "type", src.Type, "location", src.Location())
	}

	r.mu.Lock()
	r.pipelines = pipelines
	r.cleaner = clean.New(cfg.Clean)
	r.mu.Unlock()

	r.engine.Forget(keep)
	return len(pipelines)
}

// scan loads, cleans, derives and ships every source once.
func (r *runner) scan(ctx context.Context, now time.Time) {
	r.mu.Lock()
	pipelines, cleaner := r.pipelines, r.cleaner
	r.mu.Unlock()

	for _, p := range pipelines {
		if ctx.Err() != nil {
			return
		}
		res, err := r.scanSource(ctx, p, cleaner, now)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.m.LoadFailed(p.src.ID)
			res = r.engine.Fail(p.src.ID, p.src.Type, err, now)
			res.Cert = security.Check(ctx, p.src)
		} else {
			r.m.ObserveBatch(p.src.ID, res.Stats, res.Duration)
		}
		r.ship(res)
		slog.Debug("scan: batch queued",
			"source", p.src.ID,
			"status", res.Status,
			"rows", res.Stats.Rows,
			"churn_rate", res.Stats.ChurnRate)
	}
}

func (r *runner) scanSource(ctx context.Context, p pipeline, cleaner *clean.Cleaner, now time.Time) (*compute.Result, error) {
	table, err := p.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	customers, rep, err := cleaner.Apply(table)
	if err != nil {
		return nil, fmt.Errorf("clean %q: %w", p.src.ID, err)
	}
	return r.engine.Process(ctx, compute.Job{
		SourceID:      p.src.ID,
		SourceType:    p.src.Type,
		Customers:     customers,
		Rejected:      rep.Rejected,
		RejectReasons: rep.Reasons,
		Imputed:       rep.Imputed,
		Cert:          security.Check(ctx, p.src),
	}, now)
}
