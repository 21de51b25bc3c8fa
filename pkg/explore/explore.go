package explore

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

// Built-in group keys. Any other key is looked up in Customer.Attributes.
const (
	KeyContract    = "contract"
	KeyDiffCharge  = "diff_charge"
	KeyAbleToChurn = "able_to_churn"
	KeyTenureBand  = "tenure_band"
)

// Missing labels records that lack the requested attribute.
const Missing = "(missing)"

// ErrUnknownKey is returned by GroupBy when no record carries the attribute.
var ErrUnknownKey = errors.New("explore: unknown group key")

// Group is the summary of the records sharing one key value.
type Group struct {
	Key         string  `json:"key"`
	Count       int     `json:"count"`
	Labelled    int     `json:"labelled"`
	Churned     int     `json:"churned"`
	ChurnRate   float64 `json:"churn_rate"` // % of labelled rows
	MeanMonthly float64 `json:"mean_monthly_charges"`
	StdMonthly  float64 `json:"std_monthly_charges"`
	MeanTenure  float64 `json:"mean_tenure_months"`
}

// GroupBy partitions records by key and summarises each partition. Groups
// are sorted by key.
func GroupBy(records []types.DerivedRecord, key string) ([]Group, error) {
	if len(records) == 0 {
		return nil, nil
	}

	type acc struct {
		g       Group
		monthly []float64
		tenure  []float64
	}
	byKey := make(map[string]*acc)
	seen := false
	for _, r := range records {
		v, ok := valueOf(r, key)
		if ok {
			seen = true
		} else {
			v = Missing
		}
		a := byKey[v]
		if a == nil {
			a = &acc{g: Group{Key: v}}
			byKey[v] = a
		}
		a.g.Count++
		if r.HasLabel {
			a.g.Labelled++
			if r.Churn {
				a.g.Churned++
			}
		}
		a.monthly = append(a.monthly, r.MonthlyCharges)
		a.tenure = append(a.tenure, float64(r.TenureMonths))
	}
	if !seen {
		return nil, fmt.Errorf("%w %q", ErrUnknownKey, key)
	}

	out := make([]Group, 0, len(byKey))
	for _, a := range byKey {
		g := a.g
		g.ChurnRate = types.Pct(g.Churned, g.Labelled)
		g.MeanMonthly = stat.Mean(a.monthly, nil)
		if len(a.monthly) > 1 {
			g.StdMonthly = stat.StdDev(a.monthly, nil)
		}
		g.MeanTenure = stat.Mean(a.tenure, nil)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func valueOf(r types.DerivedRecord, key string) (string, bool) {
	switch key {
	case KeyContract:
		return r.Contract, true
	case KeyDiffCharge:
		return r.DiffCharge, true
	case KeyAbleToChurn:
		return r.AbleToChurn, true
	case KeyTenureBand:
		return TenureBand(r.TenureMonths), true
	}
	v, ok := r.Attributes[key]
	return v, ok
}

// TenureBand buckets a tenure into the bands used in churn reporting.
// Negative tenures fall in the first band.
func TenureBand(months int) string {
	switch {
	case months <= 12:
		return "0-12"
	case months <= 24:
		return "13-24"
	case months <= 48:
		return "25-48"
	case months <= 72:
		return "49-72"
	default:
		return "72+"
	}
}

// Totals summarises a whole record set.
type Totals struct {
	Records     int            `json:"records"`
	Labelled    int            `json:"labelled"`
	Churned     int            `json:"churned"`
	ChurnRate   float64        `json:"churn_rate"`
	MeanTenure  float64        `json:"mean_tenure_months"`
	MeanMonthly float64        `json:"mean_monthly_charges"`
	MeanTotal   float64        `json:"mean_total_charges"`
	Contracts   map[string]int `json:"contracts"`
	DiffCharge  map[string]int `json:"diff_charge"`
	AbleToChurn map[string]int `json:"able_to_churn"`
}

// Overview computes Totals over records.
func Overview(records []types.DerivedRecord) Totals {
	t := Totals{
		Records:     len(records),
		Contracts:   make(map[string]int),
		DiffCharge:  make(map[string]int),
		AbleToChurn: make(map[string]int),
	}
	if len(records) == 0 {
		return t
	}

	tenure := make([]float64, len(records))
	monthly := make([]float64, len(records))
	total := make([]float64, len(records))
	for i, r := range records {
		tenure[i] = float64(r.TenureMonths)
		monthly[i] = r.MonthlyCharges
		total[i] = r.TotalCharges
		t.Contracts[r.Contract]++
		t.DiffCharge[r.DiffCharge]++
		t.AbleToChurn[r.AbleToChurn]++
		if r.HasLabel {
			t.Labelled++
			if r.Churn {
				t.Churned++
			}
		}
	}
	t.ChurnRate = types.Pct(t.Churned, t.Labelled)
	t.MeanTenure = stat.Mean(tenure, nil)
	t.MeanMonthly = stat.Mean(monthly, nil)
	t.MeanTotal = stat.Mean(total, nil)
	return t
}
