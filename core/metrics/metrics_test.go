package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/trena/core/factory"
)

type countingSink struct {
	measurements int
	connections  int
	losses       int
	err          error
}

func (c *countingSink) RecordMeasurement(MeasurementEvent) error {
	c.measurements++
	return c.err
}

func (c *countingSink) RecordConnection(ConnectionEvent) error {
	c.connections++
	return nil
}

func (c *countingSink) RecordConnectionLost(time.Time) error {
	c.losses++
	return nil
}

type measurementOnly struct{ n int }

func (m *measurementOnly) RecordMeasurement(MeasurementEvent) error { m.n++; return nil }

func TestMultiSinkFanOut(t *testing.T) {
	a := &countingSink{}
	b := &measurementOnly{}
	m := NewMultiSink(a, b)
	if err := m.RecordMeasurement(MeasurementEvent{Outcome: OutcomeOK}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := m.RecordConnection(ConnectionEvent{Attempt: 1}); err != nil {
		t.Fatalf("connection: %v", err)
	}
	if err := m.RecordConnectionLost(time.Now()); err != nil {
		t.Fatalf("loss: %v", err)
	}
	if a.measurements != 1 || b.n != 1 {
		t.Fatalf("measurement not forwarded: %d %d", a.measurements, b.n)
	}
	if a.connections != 1 || a.losses != 1 {
		t.Fatalf("connection events not forwarded: %+v", a)
	}
}

func TestMultiSinkStopsOnError(t *testing.T) {
	a := &countingSink{err: errors.New("down")}
	b := &countingSink{}
	if err := NewMultiSink(a, b).RecordMeasurement(MeasurementEvent{}); err == nil {
		t.Fatal("expected error")
	}
	if b.measurements != 0 {
		t.Fatalf("second sink should not be called")
	}
}

func TestNewMetricsSink(t *testing.T) {
	if err := RegisterMetricsSink("counting-test", func(map[string]any) (MetricsSink, error) {
		return &countingSink{}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	s, err := NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if _, ok := s.(NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}
	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "counting-test"}})
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	if _, ok := s.(*countingSink); !ok {
		t.Fatalf("expected countingSink, got %T", s)
	}
	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "counting-test"}, {Type: "counting-test"}})
	if err != nil {
		t.Fatalf("multi: %v", err)
	}
	if ms, ok := s.(*MultiSink); !ok || len(ms.Sinks) != 2 {
		t.Fatalf("expected MultiSink with 2 sinks, got %T", s)
	}
	if _, err := NewMetricsSink([]factory.ModuleConfig{{Type: "unknown"}}); err == nil {
		t.Fatal("expected unknown type error")
	}
}
