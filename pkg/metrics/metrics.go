package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records metadata for scheduled jobs.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewCronJobMetrics registers the cron job metrics on the provided registerer.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of cron jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_success",
		Help: "Successful cron job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_failure",
		Help: "Failed cron job executions.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &CronJobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records the duration for the named job.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.success == nil {
		return
	}
	c.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// OrderFlowMetrics records counters for the order lifecycle.
type OrderFlowMetrics struct {
	placed           prometheus.Counter
	transitions      *prometheus.CounterVec
	checkoutFailures *prometheus.CounterVec
	refundFailures   prometheus.Counter
	adjustments      *prometheus.CounterVec
}

// NewOrderFlowMetrics registers the order flow metrics on the provided registerer.
func NewOrderFlowMetrics(reg prometheus.Registerer) *OrderFlowMetrics {
	if reg == nil {
		return &OrderFlowMetrics{}
	}
	placed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders created through checkout.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Committed order status transitions.",
	}, []string{"from", "to"})
	checkoutFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failures_total",
		Help: "Checkout attempts rejected before an order was created.",
	}, []string{"reason"})
	refundFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refund_failures_total",
		Help: "Refund attempts that failed after a cancellation committed.",
	})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_adjustments_total",
		Help: "Inventory ledger rows written, by reason.",
	}, []string{"reason"})
	reg.MustRegister(placed, transitions, checkoutFailures, refundFailures, adjustments)
	return &OrderFlowMetrics{
		placed:           placed,
		transitions:      transitions,
		checkoutFailures: checkoutFailures,
		refundFailures:   refundFailures,
		adjustments:      adjustments,
	}
}

// IncPlaced increments the orders placed counter.
func (o *OrderFlowMetrics) IncPlaced() {
	if o == nil || o.placed == nil {
		return
	}
	o.placed.Inc()
}

// IncTransition increments the transition counter for the committed from/to pair.
func (o *OrderFlowMetrics) IncTransition(from, to string) {
	if o == nil || o.transitions == nil {
		return
	}
	o.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncCheckoutFailure increments the checkout failure counter for the given reason.
func (o *OrderFlowMetrics) IncCheckoutFailure(reason string) {
	if o == nil || o.checkoutFailures == nil {
		return
	}
	o.checkoutFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncRefundFailure increments the refund failure counter.
func (o *OrderFlowMetrics) IncRefundFailure() {
	if o == nil || o.refundFailures == nil {
		return
	}
	o.refundFailures.Inc()
}

// IncInventoryAdjustment increments the ledger counter for the given reason.
func (o *OrderFlowMetrics) IncInventoryAdjustment(reason string) {
	if o == nil || o.adjustments == nil {
		return
	}
	o.adjustments.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
