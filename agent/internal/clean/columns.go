package clean

import "strings"

// Canonical column keys.
const (
	colID         = "customerid"
	colTenure     = "tenuremonths"
	colMonthly    = "monthlycharges"
	colTotal      = "totalcharges"
	colContract   = "contract"
	colChurnValue = "churnvalue"
	colChurnLabel = "churnlabel"
)

// aliases maps alternative normalised headers onto canonical keys.
var aliases = map[string]string{
	"tenure":   colTenure,
	"churn":    colChurnLabel,
	"customer": colID,
	"id":       colID,
}

// normalize lower-cases a header and strips spaces, underscores and dashes so
// "Tenure Months", "tenure_months" and "TenureMonths" compare equal.
func normalize(h string) string {
	var b strings.Builder
	b.Grow(len(h))
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		switch r {
		case ' ', '_', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func canonical(h string) string {
	n := normalize(h)
	if c, ok := aliases[n]; ok {
		return c
	}
	return n
}

// layout records where each canonical column sits in a table's header.
type layout struct {
	index map[string]int
	attrs []int // columns copied into Customer.Attributes
}

func (l layout) has(col string) bool {
	_, ok := l.index[col]
	return ok
}

// cell returns the trimmed value of col in row, or "" when the column is absent.
func (l layout) cell(row []string, col string) string {
	i, ok := l.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// core columns are consumed by the cleaner itself and never become attributes.
var core = map[string]bool{
	colID: true, colTenure: true, colMonthly: true, colTotal: true,
	colContract: true, colChurnValue: true, colChurnLabel: true,
}

func newLayout(header []string, drop map[string]bool) layout {
	l := layout{index: make(map[string]int, len(header))}
	for i, h := range header {
		c := canonical(h)
		if _, dup := l.index[c]; !dup {
			l.index[c] = i
		}
		if core[c] || drop[normalize(h)] || drop[c] {
			continue
		}
		l.attrs = append(l.attrs, i)
	}
	return l
}
