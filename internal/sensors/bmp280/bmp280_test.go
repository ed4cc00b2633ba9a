package bmp280

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

type fakeI2C struct {
	regs map[byte][]byte

	calibReads int
	calibSeq   [][]byte

	writes []writeOp
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	b, ok := f.regs[reg]
	if !ok || len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if reg == regCalibT {
		f.calibReads++
		idx := f.calibReads - 1
		if idx < len(f.calibSeq) {
			copy(dst, f.calibSeq[idx])
			return nil
		}
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}

	b, ok := f.regs[reg]
	if !ok {
		return errors.New("no reg")
	}
	copy(dst, b)
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func noSleep(t *testing.T) {
	t.Helper()
	old := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = old })
}

// Datasheet section 8.2 sample values.
func datasheetCalib() []byte {
	b := make([]byte, calibLen)
	binary.LittleEndian.PutUint16(b[0:2], 27504)
	binary.LittleEndian.PutUint16(b[2:4], 26435)
	binary.LittleEndian.PutUint16(b[4:6], uint16(0xFC18)) // -1000
	return b
}

func TestReadTempC_DatasheetExample(t *testing.T) {
	noSleep(t)
	// adc_T = 519888 = 0x7EED0.
	f := &fakeI2C{
		regs: map[byte][]byte{
			regID:      {chipIDBMP280},
			regTempMsb: {0x7E, 0xED, 0x00},
		},
		calibSeq: [][]byte{datasheetCalib()},
	}
	d, err := newWithIO(f)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	v, err := d.ReadTempC()
	if err != nil {
		t.Fatalf("ReadTempC: %v", err)
	}
	if math.Abs(v-25.08) > 0.01 {
		t.Fatalf("temp=%v want ~25.08", v)
	}

	last := f.writes[len(f.writes)-1]
	if last.reg != regCtrlMeas || last.val != ctrlTempOnly {
		t.Fatalf("last write=%+v want ctrl_meas=0x%02X", last, ctrlTempOnly)
	}
}

func TestNew_AcceptsBME280(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{
		regs:     map[byte][]byte{regID: {chipIDBME280}},
		calibSeq: [][]byte{datasheetCalib()},
	}
	if _, err := newWithIO(f); err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
}

func TestNew_RejectsUnknownChip(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regID: {0x55}}}
	if _, err := newWithIO(f); err == nil {
		t.Fatalf("expected chip id error")
	}
}

func TestNew_RetriesCalibrationAfterReset(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{
		regs:     map[byte][]byte{regID: {chipIDBMP280}},
		calibSeq: [][]byte{make([]byte, calibLen), datasheetCalib()},
	}
	if _, err := newWithIO(f); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.calibReads != 2 {
		t.Fatalf("calib reads=%d want 2", f.calibReads)
	}
}

func TestNew_FailsOnInvalidCalibration(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regID: {chipIDBMP280}}}
	if _, err := newWithIO(f); err == nil {
		t.Fatalf("expected invalid calibration error")
	}
	if f.calibReads != 3 {
		t.Fatalf("calib reads=%d want 3", f.calibReads)
	}
}

func TestReadTempC_BeforeFirstConversion(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{
		regs: map[byte][]byte{
			regID:      {chipIDBMP280},
			regTempMsb: {0x80, 0x00, 0x00},
		},
		calibSeq: [][]byte{datasheetCalib()},
	}
	d, err := newWithIO(f)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	if _, err := d.ReadTempC(); err == nil {
		t.Fatalf("expected error for reset value")
	}
}
