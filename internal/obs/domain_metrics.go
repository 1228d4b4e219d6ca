package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// TotalizationTotal counts totalization pass outcomes.
	TotalizationTotal *prometheus.CounterVec
	// TotalizationDuration records full-pass latency in milliseconds.
	TotalizationDuration *prometheus.HistogramVec
	// RecurringGroups records the billing-schedule group count per pass.
	RecurringGroups prometheus.Histogram
	// CartMutationsTotal counts cart write operations by kind and outcome.
	CartMutationsTotal *prometheus.CounterVec
	// QueueTasksTotal counts background task processing outcomes.
	QueueTasksTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		TotalizationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "totalization_total",
			Help:      "Count of cart totalization passes by outcome.",
		}, []string{"result"})
		TotalizationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "totalization_duration_ms",
			Help:      "Latency of full totalization passes in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"result"})
		RecurringGroups = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recurring_groups_per_cart",
			Help:      "Distribution of billing-schedule group counts per totalized cart.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		})
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart write operations by kind and outcome.",
		}, []string{"op", "result"})
		QueueTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_tasks_total",
			Help:      "Count of processed background tasks by type and outcome.",
		}, []string{"type", "result"})

		mustRegisterCollector(reg, TotalizationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TotalizationTotal = v
			}
		})
		mustRegisterCollector(reg, TotalizationDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				TotalizationDuration = v
			}
		})
		mustRegisterCollector(reg, RecurringGroups, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				RecurringGroups = v
			}
		})
		mustRegisterCollector(reg, CartMutationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartMutationsTotal = v
			}
		})
		mustRegisterCollector(reg, QueueTasksTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QueueTasksTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
