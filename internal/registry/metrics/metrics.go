package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"registry/internal/registry/store"
)

// Metrics provides observability for the registry operations.
type Metrics struct {
	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec
	PersonsCreated    prometheus.Counter
	PersonsMerged     prometheus.Counter
	IdentitiesMoved   prometheus.Counter
	NotifyFailures    prometheus.Counter
}

// New registers the operation collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_operation_errors_total",
			Help: "Failed registry operations by operation and error code",
		}, []string{"operation", "code"}),
		PersonsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_persons_created_total",
			Help: "Total number of persons created",
		}),
		PersonsMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_persons_merged_total",
			Help: "Total number of person merges",
		}),
		IdentitiesMoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_identities_moved_total",
			Help: "Total number of identities moved between persons",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_notify_failures_total",
			Help: "Notifications that could not be delivered",
		}),
	}
}

// ObserveOperation records the duration of op. Call with time.Now() taken at the start.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// IncrementError counts a failed operation.
func (m *Metrics) IncrementError(op, code string) {
	m.OperationErrors.WithLabelValues(op, code).Inc()
}

// CountFunc reads the current row counts.
type CountFunc func(ctx context.Context) (store.Counts, error)

// CountsCollector exports the nb_persons, nb_identities and nb_biometricdata gauges,
// read from the store at scrape time.
type CountsCollector struct {
	count   CountFunc
	timeout time.Duration

	persons    *prometheus.Desc
	identities *prometheus.Desc
	biometrics *prometheus.Desc
	up         *prometheus.Desc
}

// NewCountsCollector returns a collector calling count on every scrape.
func NewCountsCollector(count CountFunc, timeout time.Duration) *CountsCollector {
	return &CountsCollector{
		count:      count,
		timeout:    timeout,
		persons:    prometheus.NewDesc("nb_persons", "Number of persons", nil, nil),
		identities: prometheus.NewDesc("nb_identities", "Number of identities", nil, nil),
		biometrics: prometheus.NewDesc("nb_biometricdata", "Number of biometric data", nil, nil),
		up:         prometheus.NewDesc("registry_store_up", "Whether the last count query succeeded", nil, nil),
	}
}

func (c *CountsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.persons
	ch <- c.identities
	ch <- c.biometrics
	ch <- c.up
}

func (c *CountsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.count(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.persons, prometheus.GaugeValue, float64(counts.Persons))
	ch <- prometheus.MustNewConstMetric(c.identities, prometheus.GaugeValue, float64(counts.Identities))
	ch <- prometheus.MustNewConstMetric(c.biometrics, prometheus.GaugeValue, float64(counts.BiometricData))
}
