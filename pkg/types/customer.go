package types

// Contract levels as they appear in the Telco churn spreadsheet.
const (
	ContractMonthToMonth = "Month-to-month"
	ContractOneYear      = "One year"
	ContractTwoYear      = "Two year"
)

// diff_charge labels.
//
// The polarity is inherited from the source report and reads backwards:
// "Less" means the historical average monthly cost is ABOVE the current
// monthly charge. Confirm with the product owner before building on it.
const (
	DiffLess = "Less"
	DiffMore = "More"
	DiffSame = "Same"
)

// able_to_churn labels.
const (
	ChurnYes = "Yes"
	ChurnNo  = "No"
)

// DiffChargeLabels and AbleToChurnLabels are the fixed output sets, in
// display order.
var (
	DiffChargeLabels  = []string{DiffLess, DiffMore, DiffSame}
	AbleToChurnLabels = []string{ChurnYes, ChurnNo}
)

// Customer is one cleaned subscriber row.
type Customer struct {
	ID string `json:"id,omitempty"`

	// TenureMonths is the number of months since the account opened.
	// 0 denotes a brand-new account.
	TenureMonths int `json:"tenure_months"`

	MonthlyCharges float64 `json:"monthly_charges"`

	// TotalCharges is cumulative billing. The cleaner guarantees it is 0
	// whenever TenureMonths is 0.
	TotalCharges float64 `json:"total_charges"`

	Contract string `json:"contract"`

	// Churn is the observed outcome. Only meaningful when HasLabel is set.
	Churn    bool `json:"churn"`
	HasLabel bool `json:"has_label"`

	// Attributes holds the remaining categorical columns keyed by their
	// original header (e.g. "Payment Method", "Internet Service").
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Features are the two engineered signals derived from a Customer.
type Features struct {
	DiffCharge  string `json:"diff_charge"`
	AbleToChurn string `json:"able_to_churn"`
}

// DerivedRecord is a Customer with its Features appended.
type DerivedRecord struct {
	Customer
	Features
}
