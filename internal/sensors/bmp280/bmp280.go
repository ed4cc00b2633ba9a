// Package bmp280 reads the temperature channel of a Bosch BMP280 or BME280
// over I2C. Pressure and humidity are left disabled.
package bmp280

import (
	"encoding/binary"
	"fmt"
	"time"

	"fanctl/internal/i2c"
)

var sleep = time.Sleep

const (
	addrDefault = 0x77

	regID        = 0xD0
	chipIDBMP280 = 0x58
	chipIDBME280 = 0x60

	regReset = 0xE0
	resetCmd = 0xB6

	regCalibT = 0x88
	calibLen  = 6

	regCtrlMeas = 0xF4
	regConfig   = 0xF5
	regTempMsb  = 0xFA

	// osrs_t=x1, osrs_p=skipped, mode=normal.
	ctrlTempOnly = 0x01<<5 | 0x03
)

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

type Device struct {
	dev regIO
	bus *i2c.Bus

	digT1 uint16
	digT2 int16
	digT3 int16
}

func DefaultAddress() uint16 { return addrDefault }

// Open opens the adapter at busPath and configures the sensor at addr for
// continuous temperature conversion. Close releases the adapter.
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
		return nil, fmt.Errorf("bmp280: dev is nil")
	}
	d := &Device{dev: dev}

	id, err := d.dev.ReadRegU8(regID)
	if err != nil {
		return nil, fmt.Errorf("bmp280: id read failed: %w", err)
	}
	if id != chipIDBMP280 && id != chipIDBME280 {
		return nil, fmt.Errorf("bmp280: chip id=0x%02X want 0x%02X or 0x%02X", id, chipIDBMP280, chipIDBME280)
	}

	// NVM coefficients are copied after reset; reading too early returns zeros.
	_ = d.dev.WriteReg(regReset, resetCmd)
	sleep(5 * time.Millisecond)

	var calibErr error
	for i := 0; i < 3; i++ {
		calibErr = d.readCalibration()
		if calibErr == nil && d.digT1 != 0 {
			break
		}
		if calibErr == nil {
			calibErr = fmt.Errorf("bmp280: calibration invalid (digT1=0)")
		}
		sleep(5 * time.Millisecond)
	}
	if calibErr != nil {
		return nil, calibErr
	}

	// 0.5ms standby, IIR filter off.
	_ = d.dev.WriteReg(regConfig, 0x00)
	if err := d.dev.WriteReg(regCtrlMeas, ctrlTempOnly); err != nil {
		return nil, fmt.Errorf("bmp280: ctrl_meas write failed: %w", err)
	}
	return d, nil
}

func (d *Device) readCalibration() error {
	buf := make([]byte, calibLen)
	if err := d.dev.ReadReg(regCalibT, buf); err != nil {
		return fmt.Errorf("bmp280: read calib failed: %w", err)
	}
	d.digT1 = binary.LittleEndian.Uint16(buf[0:2])
	d.digT2 = int16(binary.LittleEndian.Uint16(buf[2:4]))
	d.digT3 = int16(binary.LittleEndian.Uint16(buf[4:6]))
	return nil
}

// ReadTempC returns the compensated temperature in degrees C.
func (d *Device) ReadTempC() (float64, error) {
	buf := make([]byte, 3)
	if err := d.dev.ReadReg(regTempMsb, buf); err != nil {
		return 0, fmt.Errorf("bmp280: read temp failed: %w", err)
	}
	adcT := int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4
	// 0x80000 is the reset value, reported until the first conversion ends.
	if adcT == 0x80000 {
		return 0, fmt.Errorf("bmp280: no conversion yet")
	}
	return d.compensateTemp(adcT), nil
}

func (d *Device) compensateTemp(adcT int32) float64 {
	var1 := (float64(adcT)/16384.0 - float64(d.digT1)/1024.0) * float64(d.digT2)
	var2 := float64(adcT)/131072.0 - float64(d.digT1)/8192.0
	var2 = var2 * var2 * float64(d.digT3)
	return (var1 + var2) / 5120.0
}

func (d *Device) Close() error {
	if d == nil || d.bus == nil {
		return nil
	}
	err := d.bus.Close()
	d.bus = nil
	return err
}
