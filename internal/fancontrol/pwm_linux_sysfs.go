//go:build linux && (arm || arm64)

package fancontrol

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// sysfsPWM drives a hardware PWM channel via /sys/class/pwm.
//
// On Raspberry Pi the header pins are routed to the PWM block by
// `dtoverlay=pwm-2chan` (or `pwm` for a single channel). GPIO12/18 map to
// channel 0 and GPIO13/19 to channel 1.
type sysfsPWM struct {
	chipPath string // /sys/class/pwm/pwmchipN
	pwmPath  string // /sys/class/pwm/pwmchipN/pwmM
	channel  int

	periodNS uint64
	enabled  bool
}

var pwmSysfsBase = "/sys/class/pwm"

var pwmChannelForPin = map[int]int{12: 0, 18: 0, 13: 1, 19: 1}

func openPWM(pin int) (pwmDriver, error) {
	channel, ok := pwmChannelForPin[pin]
	if !ok {
		return nil, fmt.Errorf("fancontrol: gpio%d has no hardware pwm channel", pin)
	}

	chipPath, err := findPWMChip(channel)
	if err != nil {
		return nil, err
	}

	d := &sysfsPWM{
		chipPath: chipPath,
		channel:  channel,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel)),
	}
	if err := d.ensureExported(); err != nil {
		return nil, err
	}
	// Period can only be changed while disabled on some kernels.
	if err := d.writeBool("enable", false); err == nil {
		d.enabled = false
	}
	return d, nil
}

// findPWMChip returns the first pwmchip exposing at least channel+1 channels.
func findPWMChip(channel int) (string, error) {
	base := pwmSysfsBase
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("fancontrol: read %s: %w", base, err)
	}

	// pwmchipN entries are commonly symlinks, not directories.
	var candidates []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pwmchip") {
			candidates = append(candidates, e.Name())
		}
	}
	slices.Sort(candidates)

	for _, name := range candidates {
		chip := filepath.Join(base, name)
		n, rerr := readInt(filepath.Join(chip, "npwm"))
		if rerr != nil || n <= channel {
			continue
		}
		return chip, nil
	}
	return "", fmt.Errorf("fancontrol: no sysfs pwmchip with channel %d (is the pwm overlay enabled?)", channel)
}

func (d *sysfsPWM) ensureExported() error {
	if _, err := os.Stat(d.pwmPath); err == nil {
		return nil
	}
	exportPath := filepath.Join(d.chipPath, "export")
	if err := writeSysfs(exportPath, strconv.Itoa(d.channel)); err != nil {
		// Exported by someone else in the meantime.
		if _, statErr := os.Stat(d.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("fancontrol: export pwm: %w", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(d.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(d.pwmPath); err != nil {
		return fmt.Errorf("fancontrol: pwm path not created after export: %w", err)
	}
	return nil
}

// Close leaves the channel running at its last duty; the hardware owner sets
// the shutdown duty before calling it.
func (d *sysfsPWM) Close() error {
	return nil
}

func (d *sysfsPWM) SetFrequencyHz(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("fancontrol: invalid frequency %d", hz)
	}
	periodNS := uint64(time.Second) / uint64(hz)
	if periodNS == 0 {
		periodNS = 1
	}

	_ = d.writeBool("enable", false)
	d.enabled = false

	// duty_cycle must never exceed period, so shrink it first.
	_ = d.writeUint("duty_cycle", 0)
	if err := d.writeUint("period", periodNS); err != nil {
		return fmt.Errorf("fancontrol: set pwm period: %w", err)
	}
	d.periodNS = periodNS

	if err := d.writeBool("enable", true); err != nil {
		return fmt.Errorf("fancontrol: enable pwm: %w", err)
	}
	d.enabled = true
	return nil
}

func (d *sysfsPWM) SetDutyPercent(p float64) error {
	if d.periodNS == 0 {
		return fmt.Errorf("fancontrol: pwm frequency not set")
	}
	p = clamp(p, 0, 100)

	duty := uint64(math.Round(float64(d.periodNS) * (p / 100.0)))
	if duty > d.periodNS {
		duty = d.periodNS
	}
	if err := d.writeUint("duty_cycle", duty); err != nil {
		return fmt.Errorf("fancontrol: set pwm duty: %w", err)
	}

	if !d.enabled {
		if err := d.writeBool("enable", true); err != nil {
			return fmt.Errorf("fancontrol: enable pwm: %w", err)
		}
		d.enabled = true
	}
	return nil
}

func (d *sysfsPWM) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(d.pwmPath, name), strconv.FormatUint(v, 10))
}

func (d *sysfsPWM) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(d.pwmPath, name), val)
}

// writeSysfs writes value to an existing sysfs attribute.
//
// It opens with O_WRONLY only: some attributes reject O_TRUNC/O_CREATE.
// Right after an export, udev may still be fixing permissions, so EACCES and
// ENOENT are retried for a short while.
func writeSysfs(path string, value string) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return err
		}
		_, werr := f.WriteString(value)
		cerr := f.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		lastErr := werr
		if lastErr == nil {
			lastErr = cerr
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(lastErr) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return errors.Join(werr, cerr)
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("%s: empty", path)
	}
	return strconv.Atoi(s)
}
