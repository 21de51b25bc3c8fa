package derive

import "github.com/rich1707/Customer-Churn/pkg/types"

// Renewal periods, in months, of the fixed-term contracts.
const (
	oneYearTerm = 12
	twoYearTerm = 24
)

// DiffCharge compares the historical average monthly cost
// (totalCharges / tenureMonths) with the current monthly charge.
//
//	avg > monthly → "Less"
//	avg < monthly → "More"
//	otherwise     → "Same"
//
// The label polarity is kept exactly as the churn report defined it: a
// customer who used to pay more on average than they pay now is labelled
// "Less". It has not been confirmed by the product owner.
//
// A tenure of zero (or below) has no average. DiffCharge returns "Same" for
// it without dividing, so NaN and Inf never reach the comparison.
func DiffCharge(tenureMonths int, totalCharges, monthlyCharges float64) string {
	if tenureMonths <= 0 {
		return types.DiffSame
	}
	avg := totalCharges / float64(tenureMonths)
	switch {
	case avg > monthlyCharges:
		return types.DiffLess
	case avg < monthlyCharges:
		return types.DiffMore
	default:
		// Equal, or a NaN input on either side.
		return types.DiffSame
	}
}

// AbleToChurn reports whether the current month is a point at which the
// customer can leave without breaking a contract:
//
//	"Month-to-month"                 → "Yes"
//	"One year" and tenure % 12 == 0  → "Yes"
//	"Two year" and tenure % 24 == 0  → "Yes"
//	anything else                    → "No"
//
// Unknown contract values fall through to "No" rather than being rejected.
// A brand-new fixed-term account (tenure 0) lands on a boundary and is "Yes".
func AbleToChurn(contract string, tenureMonths int) string {
	switch {
	case contract == types.ContractMonthToMonth:
		return types.ChurnYes
	case contract == types.ContractOneYear && tenureMonths%oneYearTerm == 0:
		return types.ChurnYes
	case contract == types.ContractTwoYear && tenureMonths%twoYearTerm == 0:
		return types.ChurnYes
	default:
		return types.ChurnNo
	}
}

// Input holds the four fields the derivation reads from a customer record.
type Input struct {
	TenureMonths   int
	MonthlyCharges float64
	TotalCharges   float64
	Contract       string
}

// Output is the pair of derived labels.
type Output = types.Features

// Compute derives both features from in. It is pure: no I/O, no shared
// state, and the same Input always yields the same Output.
func Compute(in Input) Output {
	return Output{
		DiffCharge:  DiffCharge(in.TenureMonths, in.TotalCharges, in.MonthlyCharges),
		AbleToChurn: AbleToChurn(in.Contract, in.TenureMonths),
	}
}

// Record appends the computed features to c.
func Record(c types.Customer) types.DerivedRecord {
	return types.DerivedRecord{
		Customer: c,
		Features: Compute(Input{
			TenureMonths:   c.TenureMonths,
			MonthlyCharges: c.MonthlyCharges,
			TotalCharges:   c.TotalCharges,
			Contract:       c.Contract,
		}),
	}
}

// KnownContract reports whether contract is one of the three Telco levels.
func KnownContract(contract string) bool {
	switch contract {
	case types.ContractMonthToMonth, types.ContractOneYear, types.ContractTwoYear:
		return true
	}
	return false
}
