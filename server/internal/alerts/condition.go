package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

// condition is a parsed rule expression: field operator value.
//
// Supported expressions:
//
//	churn_rate > 30
//	able_to_churn_pct >= 60
//	rejected_pct > 5
//	uptime_pct < 95
//	rows < 100
//	rejected > 0
//	imputed > 20
//	unknown_contracts > 0
//	diff_less_pct > 50
//	diff_more_pct > 50
//	diff_same_pct > 80
//	cert_days_left < 14
//	status == failed
type condition struct {
	field     string
	op        string
	threshold float64
	text      string // rhs of a status comparison
}

var numericFields = map[string]bool{
	"churn_rate": true, "able_to_churn_pct": true, "rejected_pct": true, "uptime_pct": true,
	"rows": true, "rejected": true, "imputed": true, "unknown_contracts": true,
	"diff_less_pct": true, "diff_more_pct": true, "diff_same_pct": true,
	"cert_days_left": true,
}

func parseCondition(s string) (condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"field op value\"", s)
	}
	c := condition{field: parts[0], op: parts[1]}

	if c.field == "status" {
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("condition %q: status supports == and != only", s)
		}
		c.text = parts[2]
		return c, nil
	}
	if !numericFields[c.field] {
		return condition{}, fmt.Errorf("condition %q: unknown field %q", s, c.field)
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", s, c.op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: threshold: %w", s, err)
	}
	c.threshold = v
	return c, nil
}

// eval tests c against b. ok is false when the batch carries no value for
// the field (a failed load has no churn rate, an http source without TLS has
// no certificate); the rule's state is then left unchanged.
func (c condition) eval(b *types.Batch) (fires bool, value float64, ok bool) {
	if c.field == "status" {
		eq := b.Status == c.text
		if c.op == "!=" {
			eq = !eq
		}
		return eq, 0, true
	}

	value, ok = fieldValue(c.field, b)
	if !ok {
		return false, 0, false
	}
	return compareFloat(value, c.op, c.threshold), value, true
}

// fieldValue maps a field name to its value in the batch.
func fieldValue(field string, b *types.Batch) (float64, bool) {
	s := b.Stats
	switch field {
	case "uptime_pct":
		return s.UptimePct, true
	case "cert_days_left":
		if b.Cert == nil {
			return 0, false
		}
		return float64(b.Cert.DaysLeft), true
	}

	if b.Status == types.StatusFailed {
		return 0, false
	}
	switch field {
	case "churn_rate":
		return s.ChurnRate, s.Labelled > 0
	case "able_to_churn_pct":
		return s.AbleToChurnPct, s.Rows > 0
	case "rejected_pct":
		return s.RejectedPct, true
	case "rows":
		return float64(s.Rows), true
	case "rejected":
		return float64(s.Rejected), true
	case "imputed":
		return float64(s.Imputed), true
	case "unknown_contracts":
		return float64(s.UnknownContracts), true
	case "diff_less_pct":
		return types.Pct(s.DiffCharge[types.DiffLess], s.Rows), s.Rows > 0
	case "diff_more_pct":
		return types.Pct(s.DiffCharge[types.DiffMore], s.Rows), s.Rows > 0
	case "diff_same_pct":
		return types.Pct(s.DiffCharge[types.DiffSame], s.Rows), s.Rows > 0
	}
	return 0, false
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
