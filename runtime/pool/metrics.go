package pool

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricAcquiredTotal = "acquired_total"
	MetricTimeoutsTotal = "acquire_timeouts_total"
	MetricOpenedTotal   = "opened_total"
	MetricSize          = "size"
	MetricOccupied      = "occupied"
)

const namespace = "seal_pool"

var metrics = struct {
	acquired *prometheus.CounterVec
	timeouts *prometheus.CounterVec
	opened   *prometheus.CounterVec
	size     *prometheus.GaugeVec
	occupied *prometheus.GaugeVec
}{
	acquired: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricAcquiredTotal,
			Help:      "Connections handed out to borrowers.",
		},
		[]string{"data_source"},
	),
	timeouts: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricTimeoutsTotal,
			Help:      "Acquire calls that failed with pool exhausted.",
		},
		[]string{"data_source"},
	),
	opened: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricOpenedTotal,
			Help:      "Physical connections opened, including reconnects.",
		},
		[]string{"data_source"},
	),
	size: prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricSize,
			Help:      "Connections currently owned by the pool.",
		},
		[]string{"data_source"},
	),
	occupied: prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricOccupied,
			Help:      "Connections currently borrowed.",
		},
		[]string{"data_source"},
	),
}

// Collectors returns the pool metric collectors.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		metrics.acquired,
		metrics.timeouts,
		metrics.opened,
		metrics.size,
		metrics.occupied,
	}
}

// RegisterMetrics registers the pool collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
