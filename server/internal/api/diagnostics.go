package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

// Hint levels, most severe first.
const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
	LevelOK       = "ok"
)

var levelRank = map[string]int{LevelCritical: 0, LevelWarning: 1, LevelInfo: 2, LevelOK: 3}

// Thresholds for the data-quality and churn-signal hints.
const (
	rejectedCriticalPct = 10.0
	rejectedWarningPct  = 1.0
	highChurnPct        = 30.0
	highEligibilityPct  = 50.0
)

// DiagnosticHint is one human-readable insight about a source's latest batch.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional number behind the hint (a percentage or count).
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from a batch, critical first.
func computeDiagnostics(b *types.Batch) []DiagnosticHint {
	var hints []DiagnosticHint
	s := b.Stats

	if b.Status == types.StatusFailed {
		hints = append(hints, DiagnosticHint{
			Key:   "load_failed",
			Level: LevelCritical,
			Title: "Can't load source",
			Detail: fmt.Sprintf(
				"The agent could not load this source on its last scan and got: %q. "+
					"Check that the file exists and still has the tenure, monthly charges, "+
					"total charges and contract columns, or that the endpoint is reachable "+
					"with the configured credentials. The figures shown are from no data.",
				b.Error,
			),
		})
		hints = append(hints, uptimeHint(s)...)
		hints = append(hints, certHints(b.Cert)...)
		sortHints(hints)
		return hints
	}

	if s.Rows == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "empty",
			Level: LevelWarning,
			Title: "No usable rows",
			Detail: "The last load produced no derivable customers. Either the sheet is empty " +
				"or every row was rejected during cleaning.",
		})
	}

	if s.Rejected > 0 {
		v := s.RejectedPct
		level := LevelInfo
		switch {
		case v >= rejectedCriticalPct:
			level = LevelCritical
		case v >= rejectedWarningPct:
			level = LevelWarning
		}
		hints = append(hints, DiagnosticHint{
			Key:   "rejected_rows",
			Level: level,
			Title: fmt.Sprintf("%d rows rejected", s.Rejected),
			Detail: fmt.Sprintf(
				"%.1f%% of rows were dropped during cleaning (%s). Rejected rows never "+
					"reach the derived features, so the churn figures only describe the rest.",
				v, formatReasons(s.RejectReasons),
			),
			Value: &v,
		})
	}

	if s.Imputed > 0 {
		v := float64(s.Imputed)
		hints = append(hints, DiagnosticHint{
			Key:   "imputed_totals",
			Level: LevelInfo,
			Title: fmt.Sprintf("%d totals imputed", s.Imputed),
			Detail: "Brand-new accounts (tenure 0) arrived with a blank total charges cell. " +
				"They were set to 0, which is what the customer has been billed so far.",
			Value: &v,
		})
	}

	if s.UnknownContracts > 0 {
		v := float64(s.UnknownContracts)
		hints = append(hints, DiagnosticHint{
			Key:   "unknown_contract",
			Level: LevelWarning,
			Title: "Unknown contract values",
			Detail: fmt.Sprintf(
				"%d rows have a contract that is not Month-to-month, One year or Two year. "+
					"They are derived as not able to churn. Check the export for renamed "+
					"or misspelled contract levels.",
				s.UnknownContracts,
			),
			Value: &v,
		})
	}

	if s.Labelled > 0 && s.ChurnRate >= highChurnPct {
		v := s.ChurnRate
		hints = append(hints, DiagnosticHint{
			Key:   "high_churn",
			Level: LevelWarning,
			Title: fmt.Sprintf("%.1f%% churn", v),
			Detail: fmt.Sprintf(
				"%d of %d labelled customers churned. Group the records by contract "+
					"or tenure band in the summary view to see where it concentrates.",
				s.Churned, s.Labelled,
			),
			Value: &v,
		})
	}

	if s.Rows > 0 && s.AbleToChurnPct >= highEligibilityPct {
		v := s.AbleToChurnPct
		hints = append(hints, DiagnosticHint{
			Key:   "high_eligibility",
			Level: LevelInfo,
			Title: fmt.Sprintf("%.0f%% able to churn", v),
			Detail: "Most customers can leave this month without breaking a contract, " +
				"either because they are month-to-month or because a fixed term renews now.",
			Value: &v,
		})
	}

	hints = append(hints, uptimeHint(s)...)
	hints = append(hints, certHints(b.Cert)...)

	if len(hints) == 0 {
		v := s.ChurnRate
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: LevelOK,
			Title: "All clear",
			Detail: fmt.Sprintf(
				"All %d rows cleaned and derived without rejections.", s.Rows,
			),
			Value: &v,
		})
	}

	sortHints(hints)
	return hints
}

func uptimeHint(s types.BatchStats) []DiagnosticHint {
	if s.UptimePct <= 0 || s.UptimePct >= 100 {
		return nil
	}
	v := s.UptimePct
	level := LevelInfo
	switch {
	case v < 70:
		level = LevelCritical
	case v < 90:
		level = LevelWarning
	}
	return []DiagnosticHint{{
		Key:   "uptime",
		Level: level,
		Title: fmt.Sprintf("%.0f%% load success", v),
		Detail: fmt.Sprintf(
			"The source loaded on %.0f%% of the last 20 scans. Intermittent failures "+
				"usually mean the file is being rewritten while the agent reads it, or "+
				"the endpoint is flaky.",
			v,
		),
		Value: &v,
	}}
}

func certHints(c *types.CertStatus) []DiagnosticHint {
	if c == nil {
		return nil
	}
	v := float64(c.DaysLeft)
	switch c.Status {
	case "expired":
		return []DiagnosticHint{{
			Key:    "cert_expired",
			Level:  LevelCritical,
			Title:  "Certificate expired",
			Detail: fmt.Sprintf("The TLS certificate of %s expired on %s.", c.Endpoint, c.NotAfter),
			Value:  &v,
		}}
	case "expiring":
		return []DiagnosticHint{{
			Key:    "cert_expiring",
			Level:  LevelWarning,
			Title:  fmt.Sprintf("Certificate expires in %d days", c.DaysLeft),
			Detail: fmt.Sprintf("Renew the certificate of %s (issuer %s) before %s.", c.Endpoint, c.Issuer, c.NotAfter),
			Value:  &v,
		}}
	case "unreachable":
		return []DiagnosticHint{{
			Key:    "cert_unreachable",
			Level:  LevelWarning,
			Title:  "TLS endpoint unreachable",
			Detail: fmt.Sprintf("The agent could not complete a TLS handshake with %s.", c.Endpoint),
		}}
	}
	return nil
}

// formatReasons renders reject reasons as "reason: n" pairs, most frequent first.
func formatReasons(reasons map[string]int) string {
	if len(reasons) == 0 {
		return "no reason recorded"
	}
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if reasons[keys[i]] != reasons[keys[j]] {
			return reasons[keys[i]] > reasons[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %d", k, reasons[k])
	}
	return strings.Join(parts, ", ")
}

func sortHints(h []DiagnosticHint) {
	sort.SliceStable(h, func(i, j int) bool { return levelRank[h[i].Level] < levelRank[h[j].Level] })
}
