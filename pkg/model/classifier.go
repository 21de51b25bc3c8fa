package model

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

// Classifier is a binary churn model over an encoded design matrix.
// Predictions are 1 (churn) or 0.
type Classifier interface {
	Fit(X *mat.Dense, y []float64) error
	Predict(X *mat.Dense) ([]float64, error)
}

// ErrNotTrained is returned by Predict before Fit.
var ErrNotTrained = errors.New("model: classifier not trained")

// EligibilityBaseline predicts churn for month-to-month customers who are
// able to churn this month and whose tenure is below a cutoff learned from
// the training data. It is a transparent reference point for real models.
type EligibilityBaseline struct {
	// Cutoff is the learned tenure bound: churn is predicted when
	// tenure < Cutoff. Zero predicts no churn at all.
	Cutoff int

	tenureCol int
	mtmCol    int
	ableCol   int
	trained   bool
}

var _ Classifier = (*EligibilityBaseline)(nil)

// NewEligibilityBaseline binds the baseline to the column layout of a
// fitted Encoder.
func NewEligibilityBaseline(enc *Encoder) (*EligibilityBaseline, error) {
	b := &EligibilityBaseline{}
	var ok [3]bool
	b.tenureCol, ok[0] = enc.Index(ColTenure)
	b.mtmCol, ok[1] = enc.Index(OneHot(FeatContract, types.ContractMonthToMonth))
	b.ableCol, ok[2] = enc.Index(OneHot(FeatAbleToChurn, types.ChurnYes))
	if !ok[0] || !ok[1] || !ok[2] {
		return nil, ErrNotFitted
	}
	return b, nil
}

// Fit picks the cutoff with the best F1 on the training rows. Ties go to the
// smaller cutoff.
func (b *EligibilityBaseline) Fit(X *mat.Dense, y []float64) error {
	if err := checkRows(X, y); err != nil {
		return err
	}

	candidates := map[int]bool{0: true}
	rows, _ := X.Dims()
	for i := 0; i < rows; i++ {
		if b.eligible(X, i) {
			candidates[int(X.At(i, b.tenureCol))+1] = true
		}
	}
	cutoffs := make([]int, 0, len(candidates))
	for c := range candidates {
		cutoffs = append(cutoffs, c)
	}
	sort.Ints(cutoffs)

	bestF1 := -1.0
	for _, c := range cutoffs {
		m, err := Evaluate(y, b.predict(X, c))
		if err != nil {
			return fmt.Errorf("model: fit baseline: %w", err)
		}
		if m.F1 > bestF1 {
			bestF1, b.Cutoff = m.F1, c
		}
	}
	b.trained = true
	return nil
}

// Predict applies the learned cutoff to every row of X.
func (b *EligibilityBaseline) Predict(X *mat.Dense) ([]float64, error) {
	if !b.trained {
		return nil, ErrNotTrained
	}
	if X == nil {
		return nil, ErrNoRecords
	}
	return b.predict(X, b.Cutoff), nil
}

func (b *EligibilityBaseline) predict(X *mat.Dense, cutoff int) []float64 {
	rows, _ := X.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		if b.eligible(X, i) && X.At(i, b.tenureCol) < float64(cutoff) {
			out[i] = 1
		}
	}
	return out
}

func (b *EligibilityBaseline) eligible(X *mat.Dense, i int) bool {
	return X.At(i, b.mtmCol) == 1 && X.At(i, b.ableCol) == 1
}
