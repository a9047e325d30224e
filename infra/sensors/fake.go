package sensors

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kilianp07/trena/core/factory"
	"github.com/kilianp07/trena/core/sensor"
)

const (
	defaultFakeDistanceMM = 500
	defaultFakeMaxMM      = 2000
	fakeNoTargetMM        = 8190
)

// FakeConfig drives the development sensor. With JitterMM set the distance
// follows a random walk; readings beyond MaxMM are reported out of range.
type FakeConfig struct {
	DistanceMM uint16        `json:"distance_mm"`
	JitterMM   uint16        `json:"jitter_mm"`
	MaxMM      uint16        `json:"max_mm"`
	OutOfRange bool          `json:"out_of_range"`
	Delay      time.Duration `json:"delay"`
	Seed       uint64        `json:"seed"`
}

func (c *FakeConfig) setDefaults() {
	if c.DistanceMM == 0 {
		c.DistanceMM = defaultFakeDistanceMM
	}
	if c.MaxMM == 0 {
		c.MaxMM = defaultFakeMaxMM
	}
}

// Fake is a sensor.Ranger without hardware.
type Fake struct {
	mu      sync.Mutex
	cfg     FakeConfig
	current int
	rnd     *rand.Rand
	now     func() time.Time
}

var _ sensor.Ranger = (*Fake)(nil)

func init() {
	_ = sensor.RegisterDriver("fake", func(conf map[string]any) (sensor.Ranger, error) {
		var c FakeConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewFake(c), nil
	})
}

// NewFake returns a Fake starting at cfg.DistanceMM.
func NewFake(cfg FakeConfig) *Fake {
	cfg.setDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Fake{
		cfg:     cfg,
		current: int(cfg.DistanceMM),
		rnd:     rand.New(rand.NewPCG(seed, seed>>1)),
		now:     time.Now,
	}
}

// Measure returns the next simulated reading after the configured delay.
func (f *Fake) Measure(ctx context.Context) (sensor.Reading, error) {
	if f.cfg.Delay > 0 {
		t := time.NewTimer(f.cfg.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return sensor.Reading{}, ctx.Err()
		case <-t.C:
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg.OutOfRange {
		return sensor.Reading{RangeMilliMeter: fakeNoTargetMM, Status: sensor.StatusOutOfRange, Time: f.now()}, nil
	}
	if j := int(f.cfg.JitterMM); j > 0 {
		f.current += f.rnd.IntN(2*j+1) - j
		f.current = max(0, min(f.current, int(f.cfg.MaxMM)+j))
	}
	r := sensor.Reading{RangeMilliMeter: uint16(f.current), Time: f.now()}
	if f.current > int(f.cfg.MaxMM) {
		r.Status = sensor.StatusOutOfRange
	}
	return r, nil
}

func (f *Fake) Close() error { return nil }
