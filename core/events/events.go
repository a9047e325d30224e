// Package events defines the in-process events published on the event bus.
package events

import (
	"time"

	"github.com/kilianp07/trena/core/sensor"
)

// Event is any value published on the bus.
type Event interface {
	EventTime() time.Time
}

// MeasurementEvent is published once per handled measurement command.
type MeasurementEvent struct {
	CommandID string
	Reading   sensor.Reading
	// Payload is the text published on the result topic, empty on error.
	Payload  string
	Duration time.Duration
	Err      error
	Time     time.Time
}

func (e MeasurementEvent) EventTime() time.Time { return e.Time }

// ConnectionEvent is published for every broker connection attempt.
type ConnectionEvent struct {
	ClientID  string
	Attempt   int
	Connected bool
	Err       error
	Time      time.Time
}

func (e ConnectionEvent) EventTime() time.Time { return e.Time }

// ConnectionLostEvent is published when an established connection drops.
type ConnectionLostEvent struct {
	Err  error
	Time time.Time
}

func (e ConnectionLostEvent) EventTime() time.Time { return e.Time }
