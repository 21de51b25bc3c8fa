package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rich1707/Customer-Churn/pkg/types"
	"github.com/rich1707/Customer-Churn/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	SourceID   string     `json:"source_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against incoming batches and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules   []rule
	targets []target
	client  *http.Client
	now     func() time.Time
	send    func(*Alert) // webhook delivery; runs on its own goroutine

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:sourceID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
}

// New creates an Engine from the server alert configuration. Rules whose
// condition does not parse are logged and skipped.
// An Engine with no rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		targets:  newTargets(cfg.Webhooks),
		client:   &http.Client{Timeout: deliveryTimeout},
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}
	e.send = e.deliver
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			slog.Error("alerts: skipping rule", "rule", r.Name, "err", err)
			continue
		}
		e.rules = append(e.rules, rule{AlertRule: r, cond: c})
	}
	return e
}

// Rules returns the number of active rules.
func (e *Engine) Rules() int { return len(e.rules) }

// Evaluate tests all configured rules against b.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(b *types.Batch) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	var notify []*Alert

	e.mu.Lock()
	for _, r := range e.rules {
		key := r.Name + ":" + b.SourceID
		fires, value, ok := r.cond.eval(b)
		if !ok {
			continue
		}

		if fires {
			cooldown := r.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if _, firing := e.active[key]; firing || now.Sub(e.lastFire[key]) <= cooldown {
				continue
			}
			sev := r.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:       uuid.NewString(),
				RuleName: r.Name,
				SourceID: b.SourceID,
				Severity: sev,
				Value:    value,
				Message:  message(sev, r.Name, b.SourceID, r.Condition, value),
				FiredAt:  now,
				State:    StateFiring,
			}
			e.active[key] = a
			e.lastFire[key] = now
			cp := *a
			notify = append(notify, &cp)

			slog.Warn("alert fired",
				"rule", r.Name,
				"source", b.SourceID,
				"value", value,
				"severity", sev,
			)
			continue
		}

		if a, ok := e.active[key]; ok {
			resolved := now
			a.State = StateResolved
			a.ResolvedAt = &resolved
			delete(e.active, key)

			e.history = append(e.history, a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}
			cp := *a
			notify = append(notify, &cp)

			slog.Info("alert resolved", "rule", r.Name, "source", b.SourceID)
		}
	}
	e.mu.Unlock()

	for _, a := range notify {
		go e.send(a)
	}
}

func message(sev, name, source, cond string, value float64) string {
	if cond == "" || value == 0 {
		return fmt.Sprintf("[%s] %s fired on %s: %s", sev, name, source, cond)
	}
	return fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)", sev, name, source, cond, value)
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Firing returns the number of currently firing alerts.
func (e *Engine) Firing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
