package types

import (
	"errors"
	"time"
)

// Batch status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Batch is one derivation run for a single source, as shipped over the broker.
type Batch struct {
	ID         string          `json:"id"`
	SourceID   string          `json:"source_id"`
	SourceType string          `json:"source_type"`
	DerivedAt  time.Time       `json:"derived_at"`
	Status     string          `json:"status"`
	Records    []DerivedRecord `json:"records"`
	Stats      BatchStats      `json:"stats"`
	Error      string          `json:"error,omitempty"`
	Cert       *CertStatus     `json:"cert,omitempty"`
}

// BatchStats summarises a Batch. Percentages are in the range 0–100.
type BatchStats struct {
	Rows     int `json:"rows"`
	Rejected int `json:"rejected"`
	Imputed  int `json:"imputed"`

	// RejectReasons counts rejected rows per reason key.
	RejectReasons map[string]int `json:"reject_reasons,omitempty"`

	// UnknownContracts counts rows whose contract is not one of the three
	// known levels. Those rows still derive (able_to_churn falls to "No").
	UnknownContracts int `json:"unknown_contracts"`

	DiffCharge  map[string]int `json:"diff_charge"`
	AbleToChurn map[string]int `json:"able_to_churn"`

	Labelled int `json:"labelled"`
	Churned  int `json:"churned"`

	ChurnRate      float64 `json:"churn_rate"`
	AbleToChurnPct float64 `json:"able_to_churn_pct"`
	RejectedPct    float64 `json:"rejected_pct"`
	UptimePct      float64 `json:"uptime_pct"`
}

// CertStatus describes the TLS leaf certificate of an HTTPS source.
type CertStatus struct {
	Endpoint string `json:"endpoint"`
	AuthType string `json:"auth_type"`
	Status   string `json:"status"` // valid | expiring | expired | unreachable
	DaysLeft int    `json:"days_left"`
	Issuer   string `json:"issuer,omitempty"`
	NotAfter string `json:"not_after,omitempty"`
}

// ErrMissingSourceID is returned by Validate for batches without a source.
var ErrMissingSourceID = errors.New("source_id is required")

// Validate checks the structural fields a consumer relies on.
func (b *Batch) Validate() error {
	if b.SourceID == "" {
		return ErrMissingSourceID
	}
	return nil
}

// Pct returns part/whole*100, or 0 when whole is 0.
func Pct(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
