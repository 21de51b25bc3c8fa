package api

import (
	"github.com/rich1707/Customer-Churn/pkg/explore"
	"github.com/rich1707/Customer-Churn/pkg/types"
	"github.com/rich1707/Customer-Churn/server/internal/alerts"
	"github.com/rich1707/Customer-Churn/server/internal/receiver"
)

// Overall health states.
const (
	StateOK       = "ok"
	StateDegraded = "degraded"
	StateFailing  = "failing"
	StateUnknown  = "unknown"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State          string           `json:"state"`
	SourceCount    int              `json:"source_count"`
	OKCount        int              `json:"ok_count"`
	FailedCount    int              `json:"failed_count"`
	Records        int              `json:"records"`
	Labelled       int              `json:"labelled"`
	Churned        int              `json:"churned"`
	ChurnRate      float64          `json:"churn_rate"`
	AbleToChurnPct float64          `json:"able_to_churn_pct"`
	AlertCount     int              `json:"alert_count"`
	Consuming      bool             `json:"consuming"`
	Messages       *receiver.Counts `json:"messages,omitempty"`
}

// SourceResponse is one source in GET /api/v1/sources or
// GET /api/v1/sources/{id}. Derived records are served separately.
type SourceResponse struct {
	SourceID    string            `json:"source_id"`
	SourceType  string            `json:"source_type"`
	Status      string            `json:"status"`
	BatchID     string            `json:"batch_id"`
	DerivedAt   string            `json:"derived_at"` // RFC3339
	LastSeen    string            `json:"last_seen"`  // RFC3339
	Received    int               `json:"batches_received"`
	Error       string            `json:"error,omitempty"`
	Stats       types.BatchStats  `json:"stats"`
	Cert        *types.CertStatus `json:"cert,omitempty"`
	Diagnostics []DiagnosticHint  `json:"diagnostics"`
}

// RecordsResponse is one page of GET /api/v1/sources/{id}/records.
type RecordsResponse struct {
	SourceID string                `json:"source_id"`
	Page     int                   `json:"page"`
	Limit    int                   `json:"limit"`
	Total    int                   `json:"total"`
	Records  []types.DerivedRecord `json:"records"`
}

// SummaryResponse is the payload for GET /api/v1/summary.
type SummaryResponse struct {
	By      string          `json:"by"`
	Sources []string        `json:"sources"`
	Totals  explore.Totals  `json:"totals"`
	Groups  []explore.Group `json:"groups"`
}

// DeriveResponse is the payload for POST /api/v1/derive.
type DeriveResponse struct {
	Records []types.DerivedRecord `json:"records"`
	Stats   types.BatchStats      `json:"stats"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Sources     []SourceResponse `json:"sources"`
	Alerts      []*alerts.Alert  `json:"alerts"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// ForSource returns the part of s that concerns one source. An empty id
// returns s unchanged.
func (s SnapshotResponse) ForSource(id string) SnapshotResponse {
	if id == "" {
		return s
	}
	out := SnapshotResponse{
		Sources:     []SourceResponse{},
		Alerts:      []*alerts.Alert{},
		GeneratedAt: s.GeneratedAt,
	}
	for _, src := range s.Sources {
		if src.SourceID == id {
			out.Sources = append(out.Sources, src)
		}
	}
	for _, a := range s.Alerts {
		if a.SourceID == id {
			out.Alerts = append(out.Alerts, a)
		}
	}
	return out
}
