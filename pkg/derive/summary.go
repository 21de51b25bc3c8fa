package derive

import "github.com/rich1707/Customer-Churn/pkg/types"

// Summarize computes the label distribution and rates of a derived batch.
func Summarize(records []types.DerivedRecord, rejected, imputed int, reasons map[string]int) types.BatchStats {
	s := types.BatchStats{
		Rows:          len(records),
		Rejected:      rejected,
		Imputed:       imputed,
		RejectReasons: reasons,
		DiffCharge:    make(map[string]int, len(types.DiffChargeLabels)),
		AbleToChurn:   make(map[string]int, len(types.AbleToChurnLabels)),
	}
	for _, l := range types.DiffChargeLabels {
		s.DiffCharge[l] = 0
	}
	for _, l := range types.AbleToChurnLabels {
		s.AbleToChurn[l] = 0
	}

	for _, r := range records {
		s.DiffCharge[r.DiffCharge]++
		s.AbleToChurn[r.AbleToChurn]++
		if !KnownContract(r.Contract) {
			s.UnknownContracts++
		}
		if r.HasLabel {
			s.Labelled++
			if r.Churn {
				s.Churned++
			}
		}
	}

	s.ChurnRate = types.Pct(s.Churned, s.Labelled)
	s.AbleToChurnPct = types.Pct(s.AbleToChurn[types.ChurnYes], s.Rows)
	s.RejectedPct = types.Pct(s.Rejected, s.Rows+s.Rejected)
	return s
}
