// Package command maps inbound command payloads to sensor measurements and
// formats the textual result published back to the remote controller.
//
// The contract is deliberately tiny: the exact payload "MEDIR" triggers one
// measurement and exactly one reply; every other payload is ignored.
package command

import (
	"context"
	"strconv"

	"github.com/kilianp07/trena/core/sensor"
)

const (
	// Measure is the only recognized inbound payload.
	Measure = "MEDIR"
	// OutOfRange is published instead of a distance when the sensor reports
	// range status 4 or the measurement fails.
	OutOfRange = "Objeto fora de alcance"
)

// Publisher sends a payload on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// IsMeasure reports whether payload is exactly the measure command.
func IsMeasure(payload []byte) bool {
	return string(payload) == Measure
}

// Result formats a reading as the outbound payload: the decimal millimeter
// distance, or OutOfRange when the status says so regardless of the distance.
func Result(r sensor.Reading) string {
	if r.Status == sensor.StatusOutOfRange {
		return OutOfRange
	}
	return strconv.FormatUint(uint64(r.RangeMilliMeter), 10)
}
