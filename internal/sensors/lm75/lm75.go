// Package lm75 reads LM75-family I2C temperature sensors (LM75, LM75B,
// TMP75 and compatibles).
package lm75

import (
	"fmt"

	"fanctl/internal/i2c"
)

const (
	addrDefault = 0x48

	regTemp   = 0x00
	regConfig = 0x01

	configShutdown = 0x01
)

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadRegU16(reg byte) (uint16, error)
	WriteReg(reg, value byte) error
}

type Device struct {
	dev regIO
	bus *i2c.Bus
}

func DefaultAddress() uint16 { return addrDefault }

// Open opens the I2C adapter at busPath and wakes the sensor at addr.
// Close releases the adapter.
func Open(busPath string, addr uint16) (*Device, error) {
	if addr == 0 {
		addr = addrDefault
	}
	bus, err := i2c.Open(busPath)
	if err != nil {
		return nil, err
	}
	d, err := newWithIO(bus.Dev(addr))
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	d.bus = bus
	return d, nil
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("lm75: dev is nil")
	}
	cfg, err := dev.ReadRegU8(regConfig)
	if err != nil {
		return nil, fmt.Errorf("lm75: config read failed: %w", err)
	}
	// A sensor left in shutdown mode keeps returning its last conversion.
	if cfg&configShutdown != 0 {
		if err := dev.WriteReg(regConfig, cfg&^configShutdown); err != nil {
			return nil, fmt.Errorf("lm75: wake failed: %w", err)
		}
	}
	return &Device{dev: dev}, nil
}

// ReadTempC returns the last conversion in degrees C.
func (d *Device) ReadTempC() (float64, error) {
	raw, err := d.dev.ReadRegU16(regTemp)
	if err != nil {
		return 0, fmt.Errorf("lm75: read temp failed: %w", err)
	}
	// Two's complement, MSB-aligned; 9 to 12 significant bits depending on
	// the part, unused low bits read as zero.
	return float64(int16(raw)) / 256.0, nil
}

func (d *Device) Close() error {
	if d == nil || d.bus == nil {
		return nil
	}
	err := d.bus.Close()
	d.bus = nil
	return err
}
