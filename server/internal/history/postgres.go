package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/rich1707/Customer-Churn/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS churn_runs (
    id          TEXT PRIMARY KEY,
    source_id   TEXT NOT NULL,
    source_type TEXT NOT NULL DEFAULT '',
    derived_at  TIMESTAMPTZ NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    row_count   INTEGER NOT NULL DEFAULT 0,
    churn_rate  DOUBLE PRECISION NOT NULL DEFAULT 0,
    stats       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS churn_runs_source_derived_idx
    ON churn_runs (source_id, derived_at DESC);
`

// Postgres is a Repository backed by a PostgreSQL table.
type Postgres struct {
	db *sql.DB
}

// Open connects to dsn, verifies the connection and ensures the schema.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("history: empty postgres dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	p := NewPostgres(db)
	if err := p.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing database handle.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// EnsureSchema creates the runs table and index if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Save(ctx context.Context, b *types.Batch) error {
	r := FromBatch(b)
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("history: encode stats: %w", err)
	}

	const q = `
        INSERT INTO churn_runs (id, source_id, source_type, derived_at, status, error, row_count, churn_rate, stats)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO NOTHING`
	_, err = p.db.ExecContext(ctx, q,
		r.ID, r.SourceID, r.SourceType, r.DerivedAt, r.Status, r.Error,
		r.Stats.Rows, r.Stats.ChurnRate, stats)
	if err != nil {
		return fmt.Errorf("history: save %s: %w", r.ID, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, sourceID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	const q = `
        SELECT id, source_id, source_type, derived_at, status, error, stats
        FROM churn_runs
        WHERE source_id = $1
        ORDER BY derived_at DESC
        LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list %s: %w", sourceID, err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r     Run
			stats []byte
		)
		if err := rows.Scan(&r.ID, &r.SourceID, &r.SourceType, &r.DerivedAt, &r.Status, &r.Error, &stats); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if err := json.Unmarshal(stats, &r.Stats); err != nil {
			return nil, fmt.Errorf("history: decode stats of %s: %w", r.ID, err)
		}
		r.DerivedAt = r.DerivedAt.UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (p *Postgres) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM churn_runs WHERE derived_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("history: purge: %w", err)
	}
	return res.RowsAffected()
}
