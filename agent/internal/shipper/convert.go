package shipper

import (
	"github.com/rich1707/Customer-Churn/agent/internal/compute"
	"github.com/rich1707/Customer-Churn/pkg/types"
)

// toBatch converts a compute.Result into the wire message consumed by the
// server. Records are shared, not copied; the Result is not used afterwards.
func toBatch(r *compute.Result) *types.Batch {
	return &types.Batch{
		ID:         r.ID,
		SourceID:   r.SourceID,
		SourceType: r.SourceType,
		DerivedAt:  r.Timestamp.UTC(),
		Status:     r.Status,
		Records:    r.Records,
		Stats:      r.Stats,
		Error:      r.ErrorMessage,
		Cert:       r.Cert,
	}
}
