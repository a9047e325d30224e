package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/trena/core/metrics"
)

// PromSink records measurements and broker connection attempts in
// Prometheus metrics.
type PromSink struct {
	measurements *prometheus.CounterVec
	duration     prometheus.Histogram
	distance     prometheus.Gauge
	connects     *prometheus.CounterVec
	lost         prometheus.Counter
}

var (
	_ coremetrics.MetricsSink            = (*PromSink)(nil)
	_ coremetrics.ConnectionRecorder     = (*PromSink)(nil)
	_ coremetrics.ConnectionLossRecorder = (*PromSink)(nil)
)

// NewPromSink registers the metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	measurements, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trena_measurements_total",
		Help: "Measure commands handled, by outcome",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trena_measurement_duration_seconds",
		Help:    "Time spent reading the sensor for one command",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	}))
	if err != nil {
		return nil, err
	}
	distance, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trena_distance_mm",
		Help: "Last in-range distance in millimeters",
	}))
	if err != nil {
		return nil, err
	}
	connects, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trena_mqtt_connect_attempts_total",
		Help: "Broker connection attempts, by result",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	lost, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trena_mqtt_connection_lost_total",
		Help: "Established broker sessions that dropped",
	}))
	if err != nil {
		return nil, err
	}
	return &PromSink{
		measurements: measurements,
		duration:     duration,
		distance:     distance,
		connects:     connects,
		lost:         lost,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordMeasurement counts the outcome and tracks the last good distance.
func (s *PromSink) RecordMeasurement(ev coremetrics.MeasurementEvent) error {
	s.measurements.WithLabelValues(ev.Outcome).Inc()
	s.duration.Observe(ev.Duration.Seconds())
	if ev.Outcome == coremetrics.OutcomeOK {
		s.distance.Set(float64(ev.DistanceMM))
	}
	return nil
}

// RecordConnection counts a connection attempt.
func (s *PromSink) RecordConnection(ev coremetrics.ConnectionEvent) error {
	result := "failure"
	if ev.Connected {
		result = "success"
	}
	s.connects.WithLabelValues(result).Inc()
	return nil
}

// RecordConnectionLost counts a dropped session.
func (s *PromSink) RecordConnectionLost(time.Time) error {
	s.lost.Inc()
	return nil
}
