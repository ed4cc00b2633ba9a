package fancontrol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	openPWMFn     = openPWM
	openGPIOFn    = openGPIO
	openOutputsFn = openOutputs
	openTachFn    = openTach
)

// Hardware owns every device the control loop drives. It is acquired once
// per run and released exactly once by Close.
type Hardware struct {
	fan      pwmDriver
	fanReady bool
	outputs  Outputs
	tach     io.Closer

	shutdownDuty float64

	closeOnce sync.Once
	closeErr  error
}

// OpenHardware acquires the fan backend, the six indicator lines and the
// tachometer input. onEdge receives the monotonic timestamp of every falling
// tach edge. Anything acquired before a failure is released again.
func OpenHardware(cfg Config, onEdge func(time.Duration)) (*Hardware, error) {
	hw := &Hardware{shutdownDuty: clamp(cfg.ShutdownDuty, 0, 100)}
	if err := hw.open(cfg, onEdge); err != nil {
		return nil, errors.Join(err, hw.Close())
	}
	return hw, nil
}

func (h *Hardware) open(cfg Config, onEdge func(time.Duration)) error {
	setGPIOChip(cfg.GPIOChip)

	openFan := openPWMFn
	if cfg.Backend == BackendGPIO {
		openFan = openGPIOFn
	}
	fan, err := openFan(cfg.PWMPin)
	if err != nil {
		return err
	}
	h.fan = fan
	if err := fan.SetFrequencyHz(cfg.PWMFrequency); err != nil {
		return fmt.Errorf("fancontrol: set pwm frequency failed: %w", err)
	}
	h.fanReady = true

	outputs, err := openOutputsFn(cfg.Indicators.pins())
	if err != nil {
		return err
	}
	h.outputs = outputs

	tach, err := openTachFn(cfg.TachPin, onEdge)
	if err != nil {
		return err
	}
	h.tach = tach
	return nil
}

// Close stops edge capture, turns the indicators off and leaves the fan at
// the shutdown duty. Later calls return the first result.
func (h *Hardware) Close() error {
	if h == nil {
		return nil
	}
	h.closeOnce.Do(func() {
		var errs []error
		if h.tach != nil {
			errs = append(errs, h.tach.Close())
		}
		if h.outputs != nil {
			errs = append(errs, h.outputs.Close())
		}
		if h.fan != nil {
			if h.fanReady {
				errs = append(errs, h.fan.SetDutyPercent(h.shutdownDuty))
			}
			errs = append(errs, h.fan.Close())
		}
		h.closeErr = errors.Join(errs...)
	})
	return h.closeErr
}

// driveBand switches on pins[active] and every other pin off.
func driveBand(out Outputs, pins [3]int, active int) error {
	for i, pin := range pins {
		if err := out.SetLevel(pin, i == active); err != nil {
			return err
		}
	}
	return nil
}
