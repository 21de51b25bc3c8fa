package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Run is the persisted summary of one batch. Derived records are not stored.
type Run struct {
	ID         string           `json:"id"`
	SourceID   string           `json:"source_id"`
	SourceType string           `json:"source_type"`
	DerivedAt  time.Time        `json:"derived_at"`
	Status     string           `json:"status"`
	Error      string           `json:"error,omitempty"`
	Stats      types.BatchStats `json:"stats"`
}

// FromBatch builds the Run stored for b.
func FromBatch(b *types.Batch) Run {
	return Run{
		ID:         b.ID,
		SourceID:   b.SourceID,
		SourceType: b.SourceType,
		DerivedAt:  b.DerivedAt.UTC(),
		Status:     b.Status,
		Error:      b.Error,
		Stats:      b.Stats,
	}
}

// Repository stores and queries run history.
type Repository interface {
	// Save records b. Saving a batch ID that already exists is a no-op.
	Save(ctx context.Context, b *types.Batch) error

	// List returns up to limit runs for sourceID, newest first.
	List(ctx context.Context, sourceID string, limit int) ([]Run, error)

	// Purge deletes runs derived before the given time and reports how many
	// were removed.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Nop is a Repository that stores nothing.
type Nop struct{}

func (Nop) Save(context.Context, *types.Batch) error { return nil }

func (Nop) List(context.Context, string, int) ([]Run, error) { return []Run{}, nil }

func (Nop) Purge(context.Context, time.Time) (int64, error) { return 0, nil }

// RunRetention purges runs older than retention every interval until ctx is
// cancelled. A non-positive retention disables purging.
func RunRetention(ctx context.Context, repo Repository, retention, interval time.Duration) {
	if retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := repo.Purge(ctx, now.Add(-retention))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("history: purge failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("history: purged old runs", "count", n, "retention", retention)
			}
		}
	}
}
