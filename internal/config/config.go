package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fanctl/internal/sensors/bmp280"
	"fanctl/internal/sensors/lm75"
)

const (
	SensorThermalZone = "thermal_zone"
	SensorLM75        = "lm75"
	SensorBMP280      = "bmp280"
	SensorHost        = "host"
)

type Config struct {
	Fan        FanConfig        `yaml:"fan"`
	Tach       TachConfig       `yaml:"tach"`
	Curve      CurveConfig      `yaml:"curve"`
	Indicators IndicatorsConfig `yaml:"indicators"`
	Sensor     SensorConfig     `yaml:"sensor"`

	SampleInterval time.Duration `yaml:"sample_interval"`
	// GPIOChip pins line lookups to one chip, e.g. "gpiochip4". Empty probes.
	GPIOChip string `yaml:"gpio_chip"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
}

type FanConfig struct {
	// Backend is "pwm" (sysfs hardware PWM) or "gpio" (on/off line).
	Backend      string        `yaml:"backend"`
	PWMPin       int           `yaml:"pwm_pin"`
	FrequencyHz  int           `yaml:"frequency_hz"`
	Kickstart    time.Duration `yaml:"kickstart"`
	ShutdownDuty float64       `yaml:"shutdown_duty"`
}

type TachConfig struct {
	Pin          int     `yaml:"pin"`
	PulsesPerRev int     `yaml:"pulses_per_rev"`
	RPMLow       float64 `yaml:"rpm_low"`
	RPMHigh      float64 `yaml:"rpm_high"`
}

type CurveConfig struct {
	OffC     float64 `yaml:"off_c"`
	MinC     float64 `yaml:"min_c"`
	MaxC     float64 `yaml:"max_c"`
	DutyOff  float64 `yaml:"duty_off"`
	DutyLow  float64 `yaml:"duty_low"`
	DutyHigh float64 `yaml:"duty_high"`
}

type IndicatorsConfig struct {
	TempGreen  int `yaml:"temp_green"`
	TempYellow int `yaml:"temp_yellow"`
	TempRed    int `yaml:"temp_red"`
	RPMLow     int `yaml:"rpm_low"`
	RPMMed     int `yaml:"rpm_med"`
	RPMHigh    int `yaml:"rpm_high"`
}

type SensorConfig struct {
	Type string `yaml:"type"`
	// Path is the thermal zone temp file.
	Path string `yaml:"path"`
	// I2CBus and Address locate an LM75 or BMP280.
	I2CBus  string `yaml:"i2c_bus"`
	Address uint16 `yaml:"address"`
	// HostKey selects a gopsutil sensor key, e.g. "cpu_thermal".
	HostKey string `yaml:"host_key"`
}

type TelemetryConfig struct {
	// UDPDest additionally sends each cycle's telemetry lines as one
	// datagram to host:port. Empty disables it.
	UDPDest string `yaml:"udp_dest"`
}

type WebConfig struct {
	// Listen enables the status endpoint, e.g. ":8080". Empty disables it.
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File adds a rotated JSON log file next to stderr output.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default is the wiring of the reference board.
func Default() Config {
	return Config{
		Fan: FanConfig{
			Backend:      "pwm",
			PWMPin:       18,
			FrequencyHz:  25,
			ShutdownDuty: 100,
		},
		Tach: TachConfig{
			Pin:          24,
			PulsesPerRev: 2,
			RPMLow:       300,
			RPMHigh:      700,
		},
		Curve: CurveConfig{
			OffC:     40,
			MinC:     45,
			MaxC:     70,
			DutyOff:  25,
			DutyLow:  40,
			DutyHigh: 100,
		},
		Indicators: IndicatorsConfig{
			TempGreen:  22,
			TempYellow: 27,
			TempRed:    17,
			RPMLow:     16,
			RPMMed:     20,
			RPMHigh:    21,
		},
		Sensor: SensorConfig{
			Type: SensorThermalZone,
			Path: "/sys/class/thermal/thermal_zone0/temp",
		},
		SampleInterval: 1 * time.Second,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path on top of Default. Keys missing from the file keep their
// default; unknown keys are an error.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	cfg.Fan.Backend = strings.ToLower(strings.TrimSpace(cfg.Fan.Backend))
	switch cfg.Fan.Backend {
	case "":
		cfg.Fan.Backend = "pwm"
	case "pwm", "gpio":
	default:
		return fmt.Errorf("fan.backend must be 'pwm' or 'gpio'")
	}
	if cfg.Fan.PWMPin <= 0 {
		return fmt.Errorf("fan.pwm_pin must be > 0")
	}
	if cfg.Fan.FrequencyHz <= 0 {
		return fmt.Errorf("fan.frequency_hz must be > 0")
	}
	if cfg.Fan.Kickstart < 0 {
		return fmt.Errorf("fan.kickstart must be >= 0")
	}
	if cfg.Fan.ShutdownDuty < 0 || cfg.Fan.ShutdownDuty > 100 {
		return fmt.Errorf("fan.shutdown_duty must be within 0..100")
	}

	if cfg.Tach.Pin <= 0 {
		return fmt.Errorf("tach.pin must be > 0")
	}
	if cfg.Tach.PulsesPerRev < 1 {
		return fmt.Errorf("tach.pulses_per_rev must be >= 1")
	}
	if cfg.Tach.RPMLow < 0 {
		return fmt.Errorf("tach.rpm_low must be >= 0")
	}
	if cfg.Tach.RPMLow > cfg.Tach.RPMHigh {
		return fmt.Errorf("tach.rpm_high must be >= tach.rpm_low")
	}

	c := cfg.Curve
	if c.MinC <= c.OffC {
		return fmt.Errorf("curve.min_c must be greater than curve.off_c")
	}
	if c.MaxC <= c.MinC {
		return fmt.Errorf("curve.max_c must be greater than curve.min_c")
	}
	if c.DutyOff < 0 || c.DutyOff > 100 {
		return fmt.Errorf("curve.duty_off must be within 0..100")
	}
	if c.DutyLow < 0 || c.DutyHigh > 100 || c.DutyLow > c.DutyHigh {
		return fmt.Errorf("curve.duty_low and curve.duty_high must satisfy 0 <= duty_low <= duty_high <= 100")
	}

	if err := cfg.checkPins(); err != nil {
		return err
	}

	cfg.Sensor.Type = strings.ToLower(strings.TrimSpace(cfg.Sensor.Type))
	switch cfg.Sensor.Type {
	case "", SensorThermalZone:
		cfg.Sensor.Type = SensorThermalZone
		if cfg.Sensor.Path == "" {
			cfg.Sensor.Path = "/sys/class/thermal/thermal_zone0/temp"
		}
	case SensorLM75, SensorBMP280:
		if cfg.Sensor.I2CBus == "" {
			cfg.Sensor.I2CBus = "/dev/i2c-1"
		}
		if cfg.Sensor.Address == 0 {
			cfg.Sensor.Address = lm75.DefaultAddress()
			if cfg.Sensor.Type == SensorBMP280 {
				cfg.Sensor.Address = bmp280.DefaultAddress()
			}
		}
		if cfg.Sensor.Address > 0x7f {
			return fmt.Errorf("sensor.address must be a 7-bit i2c address")
		}
	case SensorHost:
		if strings.TrimSpace(cfg.Sensor.HostKey) == "" {
			return fmt.Errorf("sensor.host_key is required when sensor.type is 'host'")
		}
	default:
		return fmt.Errorf("sensor.type must be one of 'thermal_zone', 'lm75', 'bmp280', 'host'")
	}

	if cfg.SampleInterval <= 0 {
		return fmt.Errorf("sample_interval must be > 0")
	}

	cfg.Telemetry.UDPDest = strings.TrimSpace(cfg.Telemetry.UDPDest)
	if cfg.Telemetry.UDPDest != "" {
		if _, _, err := net.SplitHostPort(cfg.Telemetry.UDPDest); err != nil {
			return fmt.Errorf("telemetry.udp_dest must be host:port")
		}
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of 'debug', 'info', 'warn', 'error'")
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must be >= 0")
	}
	return nil
}

// checkPins rejects a BCM pin claimed by two functions.
func (cfg *Config) checkPins() error {
	ind := cfg.Indicators
	pins := []struct {
		key string
		pin int
	}{
		{"fan.pwm_pin", cfg.Fan.PWMPin},
		{"tach.pin", cfg.Tach.Pin},
		{"indicators.temp_green", ind.TempGreen},
		{"indicators.temp_yellow", ind.TempYellow},
		{"indicators.temp_red", ind.TempRed},
		{"indicators.rpm_low", ind.RPMLow},
		{"indicators.rpm_med", ind.RPMMed},
		{"indicators.rpm_high", ind.RPMHigh},
	}
	seen := make(map[int]string, len(pins))
	for _, p := range pins {
		if p.pin <= 0 {
			return fmt.Errorf("%s must be > 0", p.key)
		}
		if other, ok := seen[p.pin]; ok {
			return fmt.Errorf("%s and %s both use gpio%d", other, p.key, p.pin)
		}
		seen[p.pin] = p.key
	}
	return nil
}
