//go:build linux && (arm || arm64)

package fancontrol

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const gpioConsumer = "fanctl"

// gpioChipOverride pins every line lookup to one chip (e.g. "gpiochip0").
var gpioChipOverride string

func chipCandidates() []string {
	if gpioChipOverride != "" {
		name := gpioChipOverride
		if !strings.HasPrefix(name, "/") {
			name = filepath.Join("/dev", name)
		}
		return []string{name}
	}
	// Early Pi 5 kernels expose the header on gpiochip4.
	candidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	if isRaspberryPi5() {
		candidates = []string{"/dev/gpiochip4", "/dev/gpiochip0"}
	}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := filepath.Join("/dev", e.Name())
		if strings.HasPrefix(e.Name(), "gpiochip") && !contains(candidates, name) {
			candidates = append(candidates, name)
		}
	}
	return candidates
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// requestPin finds the line named "GPIO<pin>" and requests it with opts.
func requestPin(pin int, opts ...gpiocdev.LineReqOption) (*gpiocdev.Chip, *gpiocdev.Line, error) {
	if pin <= 0 {
		return nil, nil, fmt.Errorf("fancontrol: invalid gpio pin %d", pin)
	}
	lineName := fmt.Sprintf("GPIO%d", pin)
	opts = append(opts, gpiocdev.WithConsumer(gpioConsumer))

	for _, chipPath := range chipCandidates() {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			_ = chip.Close()
			continue
		}
		return chip, line, nil
	}
	return nil, nil, fmt.Errorf("fancontrol: gpio line %q not found (or busy)", lineName)
}

// openGPIO drives a 2-wire fan behind a transistor as a digital output.
// Any duty > 0 maps to ON.
func openGPIO(pin int) (pwmDriver, error) {
	chip, line, err := requestPin(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, err
	}
	return &gpiodFan{chip: chip, line: line}, nil
}

type gpiodFan struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodFan) SetFrequencyHz(hz int) error {
	// Digital on/off backend ignores PWM frequency.
	return nil
}

func (g *gpiodFan) SetDutyPercent(p float64) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("fancontrol: gpio fan not initialized")
	}
	v := 0
	if p > 0 {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpiodFan) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		err = errors.Join(err, g.chip.Close())
		g.chip = nil
	}
	return err
}

// gpiodOutputs holds one output line per indicator pin.
type gpiodOutputs struct {
	chips []*gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

func openOutputs(pins []int) (Outputs, error) {
	o := &gpiodOutputs{lines: make(map[int]*gpiocdev.Line, len(pins))}
	for _, pin := range pins {
		if _, dup := o.lines[pin]; dup {
			continue
		}
		chip, line, err := requestPin(pin, gpiocdev.AsOutput(0))
		if err != nil {
			_ = o.Close()
			return nil, err
		}
		o.chips = append(o.chips, chip)
		o.lines[pin] = line
	}
	return o, nil
}

func (o *gpiodOutputs) SetLevel(pin int, on bool) error {
	line, ok := o.lines[pin]
	if !ok {
		return fmt.Errorf("fancontrol: gpio%d not requested as output", pin)
	}
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("fancontrol: set gpio%d: %w", pin, err)
	}
	return nil
}

func (o *gpiodOutputs) Close() error {
	var errs []error
	for pin, line := range o.lines {
		_ = line.SetValue(0)
		errs = append(errs, line.Close())
		delete(o.lines, pin)
	}
	for _, chip := range o.chips {
		errs = append(errs, chip.Close())
	}
	o.chips = nil
	return errors.Join(errs...)
}

// openTach requests pin as a pulled-up input and calls onEdge with the
// kernel's CLOCK_MONOTONIC timestamp of every falling edge.
func openTach(pin int, onEdge func(time.Duration)) (io.Closer, error) {
	chip, line, err := requestPin(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			onEdge(evt.Timestamp)
		}),
	)
	if err != nil {
		return nil, err
	}
	return &gpiodTach{chip: chip, line: line}, nil
}

type gpiodTach struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (t *gpiodTach) Close() error {
	return errors.Join(t.line.Close(), t.chip.Close())
}

func setGPIOChip(name string) { gpioChipOverride = name }
