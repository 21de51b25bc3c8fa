package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

// Ship results recorded by Shipped.
const (
	ShipDelivered = "delivered"
	ShipEvicted   = "evicted"
	ShipDropped   = "dropped"
	ShipRequeued  = "requeued"
)

// Metrics holds the agent's Prometheus collectors, registered on one registry.
type Metrics struct {
	reg *prometheus.Registry

	derived      *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	imputed      *prometheus.CounterVec
	features     *prometheus.CounterVec
	churnRate    *prometheus.GaugeVec
	duration     *prometheus.HistogramVec
	loadFailures *prometheus.CounterVec
	shipped      *prometheus.CounterVec
}

// New registers the agent collectors on reg. A nil reg gets a fresh registry,
// which keeps tests isolated from each other.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		derived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_records_derived_total",
			Help: "Customer records that passed cleaning and were derived.",
		}, []string{"source"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_records_rejected_total",
			Help: "Customer records rejected by the cleaner, by reason.",
		}, []string{"source", "reason"}),
		imputed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_records_imputed_total",
			Help: "Zero-tenure records whose total charges were imputed to 0.",
		}, []string{"source"}),
		features: f.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_features_total",
			Help: "Derived feature labels, by feature and label.",
		}, []string{"source", "feature", "label"}),
		churnRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "churn_rate_percent",
			Help: "Observed churn rate of the latest batch, in percent.",
		}, []string{"source"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "churn_derive_duration_seconds",
			Help:    "Time spent deriving one batch.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"source"}),
		loadFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_load_failures_total",
			Help: "Source loads or cleaning passes that failed.",
		}, []string{"source"}),
		shipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_batches_shipped_total",
			Help: "Batches handled by the shipper, by result.",
		}, []string{"result"}),
	}
}

// ObserveBatch records the outcome of one derived batch.
func (m *Metrics) ObserveBatch(sourceID string, s types.BatchStats, d time.Duration) {
	m.derived.WithLabelValues(sourceID).Add(float64(s.Rows))
	m.imputed.WithLabelValues(sourceID).Add(float64(s.Imputed))
	for reason, n := range s.RejectReasons {
		m.rejected.WithLabelValues(sourceID, reason).Add(float64(n))
	}
	for label, n := range s.DiffCharge {
		m.features.WithLabelValues(sourceID, "diff_charge", label).Add(float64(n))
	}
	for label, n := range s.AbleToChurn {
		m.features.WithLabelValues(sourceID, "able_to_churn", label).Add(float64(n))
	}
	if s.Labelled > 0 {
		m.churnRate.WithLabelValues(sourceID).Set(s.ChurnRate)
	}
	m.duration.WithLabelValues(sourceID).Observe(d.Seconds())
}

// LoadFailed counts a failed load of sourceID.
func (m *Metrics) LoadFailed(sourceID string) {
	m.loadFailures.WithLabelValues(sourceID).Inc()
}

// Shipped counts one shipper outcome.
func (m *Metrics) Shipped(result string) {
	m.shipped.WithLabelValues(result).Inc()
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// WriteText gathers g and writes every family in the text exposition format,
// sorted by name.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Sum gathers g and adds up every sample of the named counter or gauge
// family whose labels include all of match. Returns 0 when absent.
func Sum(g prometheus.Gatherer, name string, match map[string]string) (float64, error) {
	mfs, err := g.Gather()
	if err != nil {
		return 0, fmt.Errorf("metrics: gather: %w", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m, match) {
				continue
			}
			switch {
			case m.Counter != nil:
				total += m.Counter.GetValue()
			case m.Gauge != nil:
				total += m.Gauge.GetValue()
			case m.Untyped != nil:
				total += m.Untyped.GetValue()
			}
		}
		return total, nil
	}
	return 0, nil
}

func labelsMatch(m *dto.Metric, match map[string]string) bool {
	if len(match) == 0 {
		return true
	}
	hits := 0
	for _, lp := range m.GetLabel() {
		if v, ok := match[lp.GetName()]; ok && v == lp.GetValue() {
			hits++
		}
	}
	return hits == len(match)
}
