package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

// Split divides records into train and test sets, stratified on the churn
// label so both sets keep the overall churn rate. The same seed always gives
// the same split. Each set keeps the input order.
func Split(records []types.DerivedRecord, testFrac float64, seed int64) (train, test []types.DerivedRecord, err error) {
	if !(testFrac > 0 && testFrac < 1) {
		return nil, nil, fmt.Errorf("model: test fraction %v outside (0, 1)", testFrac)
	}
	if len(records) == 0 {
		return nil, nil, ErrNoRecords
	}

	var churned, stayed []int
	for i, r := range records {
		if r.Churn {
			churned = append(churned, i)
		} else {
			stayed = append(stayed, i)
		}
	}

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible split, not crypto
	inTest := make(map[int]bool)
	for _, stratum := range [][]int{churned, stayed} {
		n := int(math.Round(testFrac * float64(len(stratum))))
		perm := rng.Perm(len(stratum))
		for _, p := range perm[:n] {
			inTest[stratum[p]] = true
		}
	}

	test = make([]types.DerivedRecord, 0, len(inTest))
	train = make([]types.DerivedRecord, 0, len(records)-len(inTest))
	for i, r := range records {
		if inTest[i] {
			test = append(test, r)
		} else {
			train = append(train, r)
		}
	}
	return train, test, nil
}
