package compute

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rich1707/Customer-Churn/pkg/derive"
	"github.com/rich1707/Customer-Churn/pkg/types"
)

// uptimeWindow is the number of recent load outcomes tracked for uptime %.
const uptimeWindow = 20

// minChunk keeps tiny batches on a single goroutine.
const minChunk = 256

// Job is one cleaned table ready for derivation.
type Job struct {
	SourceID   string
	SourceType string
	Customers  []types.Customer

	// Cleaning outcome, carried into the batch stats.
	Rejected      int
	RejectReasons map[string]int
	Imputed       int

	Cert *types.CertStatus
}

// Result is the derived batch for one source, ready to be handed to the shipper.
type Result struct {
	ID           string
	SourceID     string
	SourceType   string
	Timestamp    time.Time
	Status       string
	Records      []types.DerivedRecord
	Stats        types.BatchStats
	Duration     time.Duration
	ErrorMessage string // non-empty when the load failed
	Cert         *types.CertStatus
}

// Engine derives features for whole tables and keeps per-source run history.
//
// All exported methods are safe for concurrent use. Row derivation itself is
// lock-free: each worker writes to its own slice range.
type Engine struct {
	workers int

	mu     sync.Mutex
	states map[string]*sourceState
}

// NewEngine returns an Engine that derives each batch on up to workers
// goroutines. workers < 1 is treated as 1.
func NewEngine(workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{workers: workers, states: make(map[string]*sourceState)}
}

// Process derives every customer in job and returns the batch with its stats.
//
// now is passed explicitly so callers (and tests) control the clock.
// Records keep the order of job.Customers. The only error is ctx cancellation.
func (e *Engine) Process(ctx context.Context, job Job, now time.Time) (*Result, error) {
	start := time.Now()

	records, err := e.deriveAll(ctx, job.Customers)
	if err != nil {
		return nil, fmt.Errorf("compute %q: %w", job.SourceID, err)
	}

	out := &Result{
		ID:         uuid.NewString(),
		SourceID:   job.SourceID,
		SourceType: job.SourceType,
		Timestamp:  now,
		Status:     types.StatusOK,
		Records:    records,
		Stats:      derive.Summarize(records, job.Rejected, job.Imputed, job.RejectReasons),
		Duration:   time.Since(start),
		Cert:       job.Cert,
	}

	e.mu.Lock()
	st := e.stateFor(job.SourceID)
	st.record(true)
	out.Stats.UptimePct = st.uptimePct()
	e.mu.Unlock()

	slog.Debug("compute: batch derived",
		"source", job.SourceID,
		"rows", out.Stats.Rows,
		"rejected", out.Stats.Rejected,
		"duration", out.Duration)
	return out, nil
}

// Fail records a failed load for sourceID and returns a failed Result so the
// server still learns about the outage.
func (e *Engine) Fail(sourceID, sourceType string, loadErr error, now time.Time) *Result {
	e.mu.Lock()
	st := e.stateFor(sourceID)
	st.record(false)
	uptime := st.uptimePct()
	e.mu.Unlock()

	slog.Warn("compute: load failed, shipping failed batch",
		"source", sourceID, "err", loadErr)

	return &Result{
		ID:           uuid.NewString(),
		SourceID:     sourceID,
		SourceType:   sourceType,
		Timestamp:    now,
		Status:       types.StatusFailed,
		Stats:        types.BatchStats{UptimePct: uptime},
		ErrorMessage: loadErr.Error(),
	}
}

// Forget drops the run history of sources not in keep. Called after a
// config reload removes sources.
func (e *Engine) Forget(keep map[string]bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.states {
		if !keep[id] {
			delete(e.states, id)
		}
	}
}

// deriveAll fans customers out over the worker pool in contiguous chunks.
func (e *Engine) deriveAll(ctx context.Context, customers []types.Customer) ([]types.DerivedRecord, error) {
	out := make([]types.DerivedRecord, len(customers))
	if len(customers) == 0 {
		return out, nil
	}

	chunk := (len(customers) + e.workers - 1) / e.workers
	if chunk < minChunk {
		chunk = minChunk
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for lo := 0; lo < len(customers); lo += chunk {
		lo := lo
		hi := min(lo+chunk, len(customers))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				out[i] = derive.Record(customers[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// sourceState holds the recent load outcomes of one source.
type sourceState struct {
	history []bool // newest last
}

func (e *Engine) stateFor(id string) *sourceState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &sourceState{}
	e.states[id] = st
	return st
}

func (st *sourceState) record(success bool) {
	if len(st.history) >= uptimeWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *sourceState) uptimePct() float64 {
	if len(st.history) == 0 {
		return 100 // assume up before first observation
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}
