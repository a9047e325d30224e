package sensor

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Status is the range status code reported with a measurement.
type Status uint8

// Range status codes as reported by time-of-flight ranging APIs.
const (
	StatusValid        Status = 0
	StatusSigmaFail    Status = 1
	StatusSignalFail   Status = 2
	StatusMinRangeFail Status = 3
	// StatusOutOfRange is the phase failure reported when no target is
	// detected within the measurable range.
	StatusOutOfRange   Status = 4
	StatusHardwareFail Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusSigmaFail:
		return "sigma_fail"
	case StatusSignalFail:
		return "signal_fail"
	case StatusMinRangeFail:
		return "min_range_fail"
	case StatusOutOfRange:
		return "out_of_range"
	case StatusHardwareFail:
		return "hardware_fail"
	default:
		return fmt.Sprintf("status_%d", uint8(s))
	}
}

// Reading is one distance measurement.
type Reading struct {
	RangeMilliMeter uint16
	Status          Status
	Time            time.Time
}

// InRange reports whether the distance can be trusted.
func (r Reading) InRange() bool {
	return r.Status != StatusOutOfRange
}

// Distance converts the raw millimeter value to a physic.Distance.
func (r Reading) Distance() physic.Distance {
	return physic.Distance(r.RangeMilliMeter) * physic.MilliMetre
}
