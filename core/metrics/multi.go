package metrics

import "time"

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordMeasurement forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordMeasurement(ev MeasurementEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordMeasurement(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordConnection forwards connection attempts to sinks that support them.
func (m *MultiSink) RecordConnection(ev ConnectionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ConnectionRecorder); ok {
			if err := rec.RecordConnection(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordConnectionLost forwards connection losses to sinks that support them.
func (m *MultiSink) RecordConnectionLost(at time.Time) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ConnectionLossRecorder); ok {
			if err := rec.RecordConnectionLost(at); err != nil {
				return err
			}
		}
	}
	return nil
}
