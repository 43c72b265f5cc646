package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the dispatch collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	assignments   *prometheus.CounterVec
	unassignments *prometheus.CounterVec
	bulkItems     *prometheus.CounterVec
	regionLookups *prometheus.CounterVec
	rankSize      prometheus.Histogram
	drift         prometheus.Gauge
}

// NewMetrics registers the collectors on reg, reusing collectors that are
// already registered. A nil reg means prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_assignments_total",
			Help: "Assign operations by outcome",
		}, []string{"outcome"}),
		unassignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_unassignments_total",
			Help: "Unassign operations by outcome",
		}, []string{"outcome"}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_bulk_items_total",
			Help: "Bulk apply items by operation and outcome",
		}, []string{"operation", "outcome"}),
		regionLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_region_lookups_total",
			Help: "Region resolutions by outcome",
		}, []string{"outcome"}),
		rankSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_rank_candidates",
			Help:    "Number of candidates returned by a ranking",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_ledger_drift_issues",
			Help: "Issues whose status disagrees with the assignment ledger at the last audit",
		}),
	}
	var err error
	if m.assignments, err = registerCounterVec(reg, m.assignments); err != nil {
		return nil, err
	}
	if m.unassignments, err = registerCounterVec(reg, m.unassignments); err != nil {
		return nil, err
	}
	if m.bulkItems, err = registerCounterVec(reg, m.bulkItems); err != nil {
		return nil, err
	}
	if m.regionLookups, err = registerCounterVec(reg, m.regionLookups); err != nil {
		return nil, err
	}
	if err := reg.Register(m.rankSize); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.rankSize = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(m.drift); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.drift = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return Code(err)
}

func (m *Metrics) assign(err error) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcomeOf(err)).Inc()
}

func (m *Metrics) unassign(err error) {
	if m == nil {
		return
	}
	m.unassignments.WithLabelValues(outcomeOf(err)).Inc()
}

func (m *Metrics) bulkItem(op string, err error) {
	if m == nil {
		return
	}
	m.bulkItems.WithLabelValues(op, outcomeOf(err)).Inc()
}

func (m *Metrics) regionLookup(outcome string) {
	if m == nil {
		return
	}
	m.regionLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ranked(n int) {
	if m == nil {
		return
	}
	m.rankSize.Observe(float64(n))
}

func (m *Metrics) ledgerDrift(n int) {
	if m == nil {
		return
	}
	m.drift.Set(float64(n))
}
