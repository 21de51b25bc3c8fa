package clean

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/rich1707/Customer-Churn/agent/internal/config"
	"github.com/rich1707/Customer-Churn/agent/internal/ingest"
	"github.com/rich1707/Customer-Churn/pkg/types"
)

// Reject reasons reported in Report.Reasons.
const (
	ReasonTenureInvalid   = "tenure_invalid"
	ReasonTenureNegative  = "tenure_negative"
	ReasonMonthlyInvalid  = "monthly_invalid"
	ReasonMonthlyNegative = "monthly_negative"
	ReasonTotalInvalid    = "total_invalid"
	ReasonTotalNegative   = "total_negative"
	ReasonTotalMissing    = "total_missing"
)

var (
	// ErrMissingColumn is returned when a table lacks one of the four
	// columns the derivation reads.
	ErrMissingColumn = errors.New("clean: missing required column")

	// ErrRejected is returned in strict mode for the first invalid row.
	ErrRejected = errors.New("clean: row rejected")
)

// Report describes what cleaning did to one table.
type Report struct {
	Rows     int            // data rows in the input table
	Kept     int            // rows returned as customers
	Rejected int            // rows dropped as invalid
	Imputed  int            // zero-tenure rows whose total_charges was set to 0
	Reasons  map[string]int // rejected rows per reason
}

// Cleaner turns raw tables into typed customers.
type Cleaner struct {
	drop   map[string]bool
	impute bool
	strict bool
}

// New builds a Cleaner from the clean section of the agent config.
func New(cfg config.CleanConfig) *Cleaner {
	drop := make(map[string]bool, len(cfg.DropColumns))
	for _, c := range cfg.DropColumns {
		drop[normalize(c)] = true
	}
	return &Cleaner{drop: drop, impute: cfg.Impute(), strict: cfg.Strict}
}

// Apply types every row of t. Invalid rows are counted in the Report and
// skipped; in strict mode the first one aborts with ErrRejected.
func (c *Cleaner) Apply(t *ingest.Table) ([]types.Customer, Report, error) {
	rep := Report{Rows: len(t.Rows), Reasons: make(map[string]int)}

	l := newLayout(t.Header, c.drop)
	for _, col := range []string{colTenure, colMonthly, colTotal, colContract} {
		if !l.has(col) {
			return nil, rep, fmt.Errorf("%w %q in source %q", ErrMissingColumn, col, t.SourceID)
		}
	}

	out := make([]types.Customer, 0, len(t.Rows))
	for i, row := range t.Rows {
		cust, imputed, reason := c.row(l, t.Header, row)
		if reason != "" {
			if c.strict {
				return nil, rep, fmt.Errorf("%w: source %q row %d: %s", ErrRejected, t.SourceID, i+2, reason)
			}
			rep.Rejected++
			rep.Reasons[reason]++
			slog.Debug("clean: row rejected",
				"source", t.SourceID, "row", i+2, "reason", reason)
			continue
		}
		if imputed {
			rep.Imputed++
		}
		out = append(out, cust)
	}
	rep.Kept = len(out)

	if rep.Rejected > 0 {
		slog.Warn("clean: rejected rows",
			"source", t.SourceID, "rejected", rep.Rejected, "reasons", rep.Reasons)
	}
	return out, rep, nil
}

// row types one record. A non-empty reason means the row is rejected.
func (c *Cleaner) row(l layout, header, row []string) (types.Customer, bool, string) {
	var cust types.Customer

	tenure, ok := parseInt(l.cell(row, colTenure))
	switch {
	case !ok:
		return cust, false, ReasonTenureInvalid
	case tenure < 0:
		return cust, false, ReasonTenureNegative
	}

	monthly, ok := parseFloat(l.cell(row, colMonthly))
	switch {
	case !ok:
		return cust, false, ReasonMonthlyInvalid
	case monthly < 0:
		return cust, false, ReasonMonthlyNegative
	}

	var imputed bool
	var total float64
	if raw := l.cell(row, colTotal); raw == "" {
		if tenure != 0 || !c.impute {
			return cust, false, ReasonTotalMissing
		}
		imputed = true
	} else {
		total, ok = parseFloat(raw)
		switch {
		case !ok:
			return cust, false, ReasonTotalInvalid
		case total < 0:
			return cust, false, ReasonTotalNegative
		}
		if tenure == 0 && total != 0 && c.impute {
			total = 0
			imputed = true
		}
	}

	cust = types.Customer{
		ID:             l.cell(row, colID),
		TenureMonths:   tenure,
		MonthlyCharges: monthly,
		TotalCharges:   total,
		Contract:       l.cell(row, colContract),
	}
	cust.Churn, cust.HasLabel = churnLabel(l, row)

	if len(l.attrs) > 0 {
		cust.Attributes = make(map[string]string, len(l.attrs))
		for _, i := range l.attrs {
			if i < len(row) {
				cust.Attributes[header[i]] = strings.TrimSpace(row[i])
			}
		}
	}
	return cust, imputed, ""
}

// churnLabel reads the outcome from "Churn Value" (0/1) or, failing that,
// "Churn Label" / "Churn" (Yes/No).
func churnLabel(l layout, row []string) (churn, ok bool) {
	if v := l.cell(row, colChurnValue); v != "" {
		switch v {
		case "1", "1.0":
			return true, true
		case "0", "0.0":
			return false, true
		}
	}
	switch strings.ToLower(l.cell(row, colChurnLabel)) {
	case "yes", "true", "1":
		return true, true
	case "no", "false", "0":
		return false, true
	}
	return false, false
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseInt accepts integers and integral floats ("12", "12.0").
func parseInt(s string) (int, bool) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	f, ok := parseFloat(s)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
