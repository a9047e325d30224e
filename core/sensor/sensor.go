package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/trena/core/factory"
)

var (
	// ErrNotInitialized is returned by every measurement of a sensor whose
	// initialization failed.
	ErrNotInitialized = errors.New("sensor not initialized")
	// ErrTimeout is returned when the device does not complete a measurement in time.
	ErrTimeout = errors.New("sensor measurement timeout")
)

// Ranger performs single blocking distance measurements.
type Ranger interface {
	Measure(ctx context.Context) (Reading, error)
	Close() error
}

// Unavailable stands in for a sensor that failed to initialize. The service
// keeps running and each measurement reports the original cause.
type Unavailable struct {
	Cause error
}

// Measure always fails with ErrNotInitialized.
func (u Unavailable) Measure(context.Context) (Reading, error) {
	if u.Cause != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrNotInitialized, u.Cause)
	}
	return Reading{}, ErrNotInitialized
}

func (Unavailable) Close() error { return nil }

var driverRegistry = factory.NewRegistry[Ranger]()

// RegisterDriver adds a sensor driver factory identified by name.
func RegisterDriver(name string, f factory.Factory[Ranger]) error {
	return driverRegistry.Register(name, f)
}

// Drivers lists the registered driver names.
func Drivers() []string { return driverRegistry.Names() }

// New creates the Ranger described by cfg.
func New(cfg factory.ModuleConfig) (Ranger, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("sensor type is required")
	}
	r, err := driverRegistry.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("sensor %s: %w", cfg.Type, err)
	}
	return r, nil
}
