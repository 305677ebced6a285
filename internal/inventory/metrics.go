package inventory

import (
	"errors"

	"github.com/frahmantamala/production-management/internal"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	operations *prometheus.CounterVec
	units      *prometheus.CounterVec
}

// NewMetrics registers the ledger collectors on reg. A nil reg leaves them
// unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "production",
			Subsystem: "inventory",
			Name:      "ledger_operations_total",
			Help:      "Ledger postings by transaction type and outcome.",
		}, []string{"type", "result"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "production",
			Subsystem: "inventory",
			Name:      "ledger_units_total",
			Help:      "Units moved by successful ledger postings.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.units)
	}
	return m
}

func (m *Metrics) observe(t TxType, n int64, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(t), outcome(err)).Inc()
	if err == nil {
		m.units.WithLabelValues(string(t)).Add(float64(n))
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, internal.ErrConcurrentModification) {
		return "conflict"
	}
	if appErr, ok := internal.IsAppError(err); ok && appErr.StatusCode < 500 {
		return "rejected"
	}
	return "error"
}
