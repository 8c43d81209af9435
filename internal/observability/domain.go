package observability

import "github.com/prometheus/client_golang/prometheus"

// DomainMetrics counts scheduling, work order and billing outcomes. A nil
// *DomainMetrics records nothing.
type DomainMetrics struct {
	conflicts *prometheus.CounterVec
	illegal   *prometheus.CounterVec
	invoices  *prometheus.CounterVec
	payments  *prometheus.CounterVec
}

// NewDomainMetrics registers the domain counters.
func NewDomainMetrics(registerer prometheus.Registerer) *DomainMetrics {
	m := &DomainMetrics{
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torque_schedule_conflicts_total",
			Help: "Appointment requests rejected because the technician was already booked.",
		}, []string{"scope"}),
		illegal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torque_illegal_transitions_total",
			Help: "Rejected state machine transitions by entity.",
		}, []string{"entity"}),
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torque_invoices_issued_total",
			Help: "Invoices created by source.",
		}, []string{"source"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torque_payments_applied_total",
			Help: "Payments applied by resulting invoice status.",
		}, []string{"status"}),
	}
	registerer.MustRegister(m.conflicts, m.illegal, m.invoices, m.payments)
	return m
}

// ConflictDetected implements scheduling.Metrics.
func (m *DomainMetrics) ConflictDetected(scope string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(scope).Inc()
}

// IllegalTransition implements the Metrics ports of scheduling, workorders
// and invoicing.
func (m *DomainMetrics) IllegalTransition(entity string) {
	if m == nil {
		return
	}
	m.illegal.WithLabelValues(entity).Inc()
}

// InvoiceIssued implements invoicing.Metrics.
func (m *DomainMetrics) InvoiceIssued(source string) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(source).Inc()
}

// PaymentApplied implements invoicing.Metrics.
func (m *DomainMetrics) PaymentApplied(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}
