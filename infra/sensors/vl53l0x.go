package sensors

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/kilianp07/trena/core/factory"
	"github.com/kilianp07/trena/core/sensor"
	"github.com/kilianp07/trena/infra/vl53l0x"
)

// VL53L0XConfig selects the I2C bus and device address.
type VL53L0XConfig struct {
	// Bus is a periph bus name such as "/dev/i2c-1" or "1". Empty selects
	// the first bus found.
	Bus     string        `json:"bus"`
	Address uint16        `json:"address"`
	Timeout time.Duration `json:"timeout"`
}

var (
	hostInit = func() error {
		_, err := host.Init()
		return err
	}
	openBus = i2creg.Open
)

func init() {
	_ = sensor.RegisterDriver("vl53l0x", func(conf map[string]any) (sensor.Ranger, error) {
		var c VL53L0XConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return OpenVL53L0X(context.Background(), c)
	})
}

// busRanger owns the bus the device was opened on.
type busRanger struct {
	*vl53l0x.Dev
	bus i2c.BusCloser
}

func (r busRanger) Close() error {
	err := r.Dev.Close()
	if cerr := r.bus.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenVL53L0X initializes the host drivers, opens the bus and the device.
func OpenVL53L0X(ctx context.Context, c VL53L0XConfig) (sensor.Ranger, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := openBus(c.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", c.Bus, err)
	}
	dev, err := vl53l0x.Open(ctx, bus, vl53l0x.Opts{Addr: c.Address, Timeout: c.Timeout})
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return busRanger{Dev: dev, bus: bus}, nil
}
