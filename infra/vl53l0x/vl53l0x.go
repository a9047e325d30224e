// Package vl53l0x drives the ST VL53L0X time-of-flight ranging sensor over
// I2C using periph.io.
//
// The driver performs the data initialization, the reference SPAD setup,
// ST's default tuning, the VHV and phase reference calibrations and
// single-shot ranging. The measurement timing budget is left at the device
// default of about 33 ms.
package vl53l0x

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/kilianp07/trena/core/sensor"
)

const (
	// DefaultAddr is the factory I2C address.
	DefaultAddr uint16 = 0x29
	// DefaultTimeout bounds each wait for the device.
	DefaultTimeout = 500 * time.Millisecond

	pollInterval = time.Millisecond
)

// ErrUnknownDevice is returned by Open when the model ID does not match.
var ErrUnknownDevice = errors.New("vl53l0x: unexpected model id")

// Opts configures a Dev.
type Opts struct {
	Addr    uint16
	Timeout time.Duration
}

func (o *Opts) setDefaults() {
	if o.Addr == 0 {
		o.Addr = DefaultAddr
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
}

// Dev is an initialized VL53L0X.
type Dev struct {
	mu           sync.Mutex
	d            i2c.Dev
	timeout      time.Duration
	stopVariable byte
	now          func() time.Time
}

var _ sensor.Ranger = (*Dev)(nil)

// Open checks the device identity on bus and initializes it for
// single-shot ranging.
func Open(ctx context.Context, bus i2c.Bus, opts Opts) (*Dev, error) {
	opts.setDefaults()
	d := &Dev{
		d:       i2c.Dev{Bus: bus, Addr: opts.Addr},
		timeout: opts.Timeout,
		now:     time.Now,
	}
	id, err := d.readReg(regIdentificationModelID)
	if err != nil {
		return nil, fmt.Errorf("vl53l0x: read model id: %w", err)
	}
	if id != modelID {
		return nil, fmt.Errorf("%w: got %#x", ErrUnknownDevice, id)
	}
	if err := d.init(ctx); err != nil {
		return nil, fmt.Errorf("vl53l0x: init: %w", err)
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("VL53L0X{%s}", &d.d)
}

func (d *Dev) init(ctx context.Context) error {
	// 2V8 I/O mode
	if err := d.updateReg(regVHVConfigPadSCLSDAExtsupHV, 0x01, 0); err != nil {
		return err
	}
	if err := d.writeReg(regI2CStandardMode, 0x00); err != nil {
		return err
	}
	if err := d.writeRegs([][2]byte{
		{regPowerManagement, 0x01},
		{regPageSelect, 0x01},
		{regSysrangeStart, 0x00},
	}); err != nil {
		return err
	}
	sv, err := d.readReg(regStopVariable)
	if err != nil {
		return err
	}
	d.stopVariable = sv
	if err := d.writeRegs([][2]byte{
		{regSysrangeStart, 0x01},
		{regPageSelect, 0x00},
		{regPowerManagement, 0x00},
	}); err != nil {
		return err
	}
	// disable SIGNAL_RATE_MSRC and SIGNAL_RATE_PRE_RANGE limit checks
	if err := d.updateReg(regMSRCConfigControl, 0x12, 0); err != nil {
		return err
	}
	if err := d.writeReg16(regFinalRangeMinCountRateRtnLimit, signalRateLimit); err != nil {
		return err
	}
	if err := d.writeReg(regSystemSequenceConfig, 0xFF); err != nil {
		return err
	}
	if err := d.setRefSPADs(ctx); err != nil {
		return fmt.Errorf("reference spads: %w", err)
	}
	if err := d.writeRegs(defaultTuning); err != nil {
		return fmt.Errorf("tuning: %w", err)
	}
	// new sample ready interrupt, active low
	if err := d.writeReg(regSystemInterruptConfigGPIO, 0x04); err != nil {
		return err
	}
	if err := d.updateReg(regGPIOHVMuxActiveHigh, 0, 0x10); err != nil {
		return err
	}
	if err := d.writeReg(regSystemInterruptClear, 0x01); err != nil {
		return err
	}
	if err := d.writeReg(regSystemSequenceConfig, 0x01); err != nil {
		return err
	}
	if err := d.refCalibration(ctx, vhvCalibration); err != nil {
		return fmt.Errorf("vhv calibration: %w", err)
	}
	if err := d.writeReg(regSystemSequenceConfig, 0x02); err != nil {
		return err
	}
	if err := d.refCalibration(ctx, 0x00); err != nil {
		return fmt.Errorf("phase calibration: %w", err)
	}
	// DSS, pre-range and final range only
	return d.writeReg(regSystemSequenceConfig, 0xE8)
}

// spadInfo reads the reference SPAD count and type from the device NVM.
func (d *Dev) spadInfo(ctx context.Context) (count byte, aperture bool, err error) {
	if err := d.writeRegs([][2]byte{
		{regPowerManagement, 0x01},
		{regPageSelect, 0x01},
		{regSysrangeStart, 0x00},
		{regPageSelect, 0x06},
	}); err != nil {
		return 0, false, err
	}
	if err := d.updateReg(regSPADInfoStrobe, 0x04, 0); err != nil {
		return 0, false, err
	}
	if err := d.writeRegs([][2]byte{
		{regPageSelect, 0x07},
		{0x81, 0x01},
		{regPowerManagement, 0x01},
		{0x94, 0x6B},
		{regSPADInfoStrobe, 0x00},
	}); err != nil {
		return 0, false, err
	}
	if err := d.poll(ctx, func() (bool, error) {
		v, err := d.readReg(regSPADInfoStrobe)
		return v != 0, err
	}); err != nil {
		return 0, false, err
	}
	if err := d.writeReg(regSPADInfoStrobe, 0x01); err != nil {
		return 0, false, err
	}
	info, err := d.readReg(regSPADInfo)
	if err != nil {
		return 0, false, err
	}
	if err := d.writeRegs([][2]byte{
		{0x81, 0x00},
		{regPageSelect, 0x06},
	}); err != nil {
		return 0, false, err
	}
	if err := d.updateReg(regSPADInfoStrobe, 0, 0x04); err != nil {
		return 0, false, err
	}
	if err := d.writeRegs([][2]byte{
		{regPageSelect, 0x01},
		{regSysrangeStart, 0x01},
		{regPageSelect, 0x00},
		{regPowerManagement, 0x00},
	}); err != nil {
		return 0, false, err
	}
	return info & 0x7F, info&0x80 != 0, nil
}

// setRefSPADs enables the number of reference SPADs reported by the NVM,
// skipping the aperture array start when the SPADs are of aperture type.
func (d *Dev) setRefSPADs(ctx context.Context) error {
	count, aperture, err := d.spadInfo(ctx)
	if err != nil {
		return err
	}
	var spadMap [spadMapSize]byte
	if err := d.d.Tx([]byte{regGlobalConfigSPADEnablesRef0}, spadMap[:]); err != nil {
		return err
	}
	if err := d.writeRegs([][2]byte{
		{regPageSelect, 0x01},
		{regDynamicSPADRefEnStartOffs, 0x00},
		{regDynamicSPADNumRequested, 0x2C},
		{regPageSelect, 0x00},
		{regGlobalConfigRefEnStartSelect, 0xB4},
	}); err != nil {
		return err
	}
	first := 0
	if aperture {
		first = spadApertureStart
	}
	var enabled byte
	for i := 0; i < spadMapSize*8; i++ {
		bit := byte(1) << (i % 8)
		if i < first || enabled == count {
			spadMap[i/8] &^= bit
		} else if spadMap[i/8]&bit != 0 {
			enabled++
		}
	}
	return d.d.Tx(append([]byte{regGlobalConfigSPADEnablesRef0}, spadMap[:]...), nil)
}

func (d *Dev) refCalibration(ctx context.Context, vhvInitByte byte) error {
	if err := d.writeReg(regSysrangeStart, sysrangeModeStart|vhvInitByte); err != nil {
		return err
	}
	if err := d.waitInterrupt(ctx); err != nil {
		return err
	}
	if err := d.writeReg(regSystemInterruptClear, 0x01); err != nil {
		return err
	}
	return d.writeReg(regSysrangeStart, 0x00)
}

// Measure performs one blocking single-shot range measurement.
func (d *Dev) Measure(ctx context.Context) (sensor.Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeRegs([][2]byte{
		{regPowerManagement, 0x01},
		{regPageSelect, 0x01},
		{regSysrangeStart, 0x00},
		{regStopVariable, d.stopVariable},
		{regSysrangeStart, 0x01},
		{regPageSelect, 0x00},
		{regPowerManagement, 0x00},
		{regSysrangeStart, sysrangeModeStart},
	}); err != nil {
		return sensor.Reading{}, err
	}
	// the start bit clears once ranging has begun
	if err := d.poll(ctx, func() (bool, error) {
		v, err := d.readReg(regSysrangeStart)
		return v&0x01 == 0, err
	}); err != nil {
		return sensor.Reading{}, err
	}
	if err := d.waitInterrupt(ctx); err != nil {
		return sensor.Reading{}, err
	}

	var buf [12]byte
	if err := d.d.Tx([]byte{regResultRangeStatus}, buf[:]); err != nil {
		return sensor.Reading{}, fmt.Errorf("vl53l0x: read result: %w", err)
	}
	if err := d.writeReg(regSystemInterruptClear, 0x01); err != nil {
		return sensor.Reading{}, err
	}

	r := sensor.Reading{
		RangeMilliMeter: binary.BigEndian.Uint16(buf[10:12]),
		Status:          sensor.Status(deviceStatus(buf[0])),
		Time:            d.now(),
	}
	if r.RangeMilliMeter >= rangeNoTarget {
		r.Status = sensor.StatusOutOfRange
	}
	return r, nil
}

// Halt stops any ranging in progress.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeReg(regSysrangeStart, 0x00)
}

// Close halts the device. The bus is owned by the caller.
func (d *Dev) Close() error {
	return d.Halt()
}

func (d *Dev) waitInterrupt(ctx context.Context) error {
	return d.poll(ctx, func() (bool, error) {
		v, err := d.readReg(regResultInterruptStatus)
		return v&0x07 != 0, err
	})
}

// poll calls done until it reports true, the timeout elapses or ctx ends.
func (d *Dev) poll(ctx context.Context, done func() (bool, error)) error {
	deadline := d.now().Add(d.timeout)
	for {
		ok, err := done()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if d.now().After(deadline) {
			return sensor.ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (d *Dev) readReg(reg byte) (byte, error) {
	var b [1]byte
	if err := d.d.Tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) writeReg(reg, v byte) error {
	return d.d.Tx([]byte{reg, v}, nil)
}

func (d *Dev) writeReg16(reg byte, v uint16) error {
	return d.d.Tx([]byte{reg, byte(v >> 8), byte(v)}, nil)
}

func (d *Dev) writeRegs(pairs [][2]byte) error {
	for _, p := range pairs {
		if err := d.writeReg(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

// updateReg sets the bits in set and clears the bits in unset.
func (d *Dev) updateReg(reg, set, unset byte) error {
	v, err := d.readReg(reg)
	if err != nil {
		return err
	}
	return d.writeReg(reg, (v|set)&^unset)
}
