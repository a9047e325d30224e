package metrics

import "time"

// Measurement outcomes used as metric labels.
const (
	OutcomeOK         = "ok"
	OutcomeOutOfRange = "out_of_range"
	OutcomeError      = "error"
)

// MeasurementEvent describes one handled measure command.
type MeasurementEvent struct {
	CommandID  string
	DistanceMM uint16
	Status     uint8
	Outcome    string
	Payload    string
	Duration   time.Duration
	Error      string
	Time       time.Time
}

// MetricsSink records measurement events for observability purposes.
type MetricsSink interface {
	RecordMeasurement(ev MeasurementEvent) error
}

// ConnectionEvent describes one broker connection attempt.
type ConnectionEvent struct {
	ClientID  string
	Attempt   int
	Connected bool
	Error     string
	Time      time.Time
}

// ConnectionRecorder records broker connection attempts.
type ConnectionRecorder interface {
	RecordConnection(ev ConnectionEvent) error
}

// ConnectionLossRecorder records dropped broker connections.
type ConnectionLossRecorder interface {
	RecordConnectionLost(at time.Time) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordMeasurement(MeasurementEvent) error { return nil }
func (NopSink) RecordConnection(ConnectionEvent) error   { return nil }
func (NopSink) RecordConnectionLost(time.Time) error     { return nil }
