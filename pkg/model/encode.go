package model

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

// Numeric column names of the design matrix.
const (
	ColTenure  = "tenure_months"
	ColMonthly = "monthly_charges"
	ColTotal   = "total_charges"
)

// Categorical features that are always one-hot encoded, with fixed levels.
const (
	FeatContract    = "contract"
	FeatDiffCharge  = "diff_charge"
	FeatAbleToChurn = "able_to_churn"
)

var (
	ErrNoRecords = errors.New("model: no records")
	ErrNotFitted = errors.New("model: encoder not fitted")
)

// OneHot returns the column name of one level of a categorical feature.
func OneHot(feature, level string) string { return feature + "=" + level }

// Encoder turns derived records into a numeric design matrix: the three
// numeric fields, then one indicator column per level of contract,
// diff_charge, able_to_churn and every configured attribute.
//
// Attribute levels are learned by Fit; a level unseen at fit time encodes as
// all zeros.
type Encoder struct {
	attrs  []string
	levels map[string][]string
	cols   []string
	index  map[string]int
}

// NewEncoder returns an Encoder that also one-hot encodes the given
// attribute columns.
func NewEncoder(attributes ...string) *Encoder {
	return &Encoder{attrs: attributes}
}

// Fit learns the attribute levels from records and fixes the column layout.
func (e *Encoder) Fit(records []types.DerivedRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	e.levels = map[string][]string{
		FeatContract:    {types.ContractMonthToMonth, types.ContractOneYear, types.ContractTwoYear},
		FeatDiffCharge:  types.DiffChargeLabels,
		FeatAbleToChurn: types.AbleToChurnLabels,
	}
	for _, a := range e.attrs {
		seen := make(map[string]bool)
		for _, r := range records {
			if v, ok := r.Attributes[a]; ok {
				seen[v] = true
			}
		}
		levels := make([]string, 0, len(seen))
		for v := range seen {
			levels = append(levels, v)
		}
		sort.Strings(levels)
		e.levels[a] = levels
	}

	e.cols = []string{ColTenure, ColMonthly, ColTotal}
	for _, f := range e.features() {
		for _, l := range e.levels[f] {
			e.cols = append(e.cols, OneHot(f, l))
		}
	}
	e.index = make(map[string]int, len(e.cols))
	for i, c := range e.cols {
		e.index[c] = i
	}
	return nil
}

func (e *Encoder) features() []string {
	return append([]string{FeatContract, FeatDiffCharge, FeatAbleToChurn}, e.attrs...)
}

// Columns returns the column names of the design matrix, in order.
func (e *Encoder) Columns() []string { return e.cols }

// Index returns the position of column name.
func (e *Encoder) Index(name string) (int, bool) {
	i, ok := e.index[name]
	return i, ok
}

// Matrix encodes records, one row each.
func (e *Encoder) Matrix(records []types.DerivedRecord) (*mat.Dense, error) {
	if e.cols == nil {
		return nil, ErrNotFitted
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	x := mat.NewDense(len(records), len(e.cols), nil)
	for i, r := range records {
		x.Set(i, 0, float64(r.TenureMonths))
		x.Set(i, 1, r.MonthlyCharges)
		x.Set(i, 2, r.TotalCharges)
		e.set(x, i, FeatContract, r.Contract)
		e.set(x, i, FeatDiffCharge, r.DiffCharge)
		e.set(x, i, FeatAbleToChurn, r.AbleToChurn)
		for _, a := range e.attrs {
			if v, ok := r.Attributes[a]; ok {
				e.set(x, i, a, v)
			}
		}
	}
	return x, nil
}

func (e *Encoder) set(x *mat.Dense, row int, feature, level string) {
	if j, ok := e.index[OneHot(feature, level)]; ok {
		x.Set(row, j, 1)
	}
}

// Labels returns 1 for churned records and 0 otherwise.
func Labels(records []types.DerivedRecord) []float64 {
	y := make([]float64, len(records))
	for i, r := range records {
		if r.Churn {
			y[i] = 1
		}
	}
	return y
}

// Labelled keeps the records that carry a churn label.
func Labelled(records []types.DerivedRecord) []types.DerivedRecord {
	out := make([]types.DerivedRecord, 0, len(records))
	for _, r := range records {
		if r.HasLabel {
			out = append(out, r)
		}
	}
	return out
}

func checkRows(x *mat.Dense, y []float64) error {
	if x == nil {
		return ErrNoRecords
	}
	if r, _ := x.Dims(); r != len(y) {
		return fmt.Errorf("model: %d rows but %d labels", r, len(y))
	}
	return nil
}
