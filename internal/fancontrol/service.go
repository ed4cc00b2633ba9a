package fancontrol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

var afterFn = time.After
var openHardwareFn = OpenHardware
var monotonicNowFn = monotonicNow

const (
	BackendPWM  = "pwm"
	BackendGPIO = "gpio"
)

// IndicatorPins are the BCM pins of the six indicator LEDs.
type IndicatorPins struct {
	TempGreen  int
	TempYellow int
	TempRed    int

	RPMLow  int
	RPMMed  int
	RPMHigh int
}

func (p IndicatorPins) temp() [3]int { return [3]int{p.TempGreen, p.TempYellow, p.TempRed} }
func (p IndicatorPins) rpm() [3]int  { return [3]int{p.RPMLow, p.RPMMed, p.RPMHigh} }

func (p IndicatorPins) pins() []int {
	t, r := p.temp(), p.rpm()
	return append(t[:], r[:]...)
}

type Config struct {
	// Backend selects hardware PWM ("pwm") or an on/off GPIO ("gpio").
	Backend string
	// PWMPin is BCM GPIO numbering.
	PWMPin int
	// PWMFrequency is the fan PWM frequency in Hz.
	PWMFrequency int
	// Kickstart runs the fan at full duty for this long before the first
	// cycle. Zero disables it.
	Kickstart time.Duration
	// ShutdownDuty is left on the fan when the hardware is released.
	ShutdownDuty float64
	// GPIOChip restricts line lookups to one chip; empty probes all.
	GPIOChip string

	TachPin      int
	PulsesPerRev int
	// RPMLow and RPMHigh split measured speed into the three RPM bands.
	RPMLow  float64
	RPMHigh float64

	Curve      CurveConfig
	Indicators IndicatorPins

	// SampleInterval is the wait between driving the fan and reading RPM.
	SampleInterval time.Duration
}

type Snapshot struct {
	Running bool `json:"running"`

	TempC    float64  `json:"temp_c"`
	TempBand TempBand `json:"temp_band"`

	DutyPercent float64 `json:"duty_percent"`

	RPM     float64 `json:"rpm"`
	RPMBand RPMBand `json:"rpm_band"`

	Cycles       uint64    `json:"cycles"`
	LastUpdateAt time.Time `json:"last_update_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Service is the fan control loop. Run it once; Snapshot may be called
// from any goroutine.
type Service struct {
	cfg       Config
	curve     Curve
	sensor    TempSensor
	telemetry io.Writer
	log       *zap.SugaredLogger

	// Owned by Run.
	tach *PulseTimer
	duty float64

	mu   sync.RWMutex
	snap Snapshot
}

func New(cfg Config, sensor TempSensor, telemetry io.Writer, log *zap.SugaredLogger) (*Service, error) {
	if sensor == nil {
		return nil, fmt.Errorf("fancontrol: temperature sensor is nil")
	}
	if telemetry == nil {
		telemetry = io.Discard
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendPWM
	}
	if cfg.Backend != BackendPWM && cfg.Backend != BackendGPIO {
		return nil, fmt.Errorf("fancontrol: unknown backend %q", cfg.Backend)
	}
	if cfg.PWMPin == 0 {
		cfg.PWMPin = 18
	}
	if cfg.PWMFrequency == 0 {
		cfg.PWMFrequency = 25
	}
	if cfg.PWMFrequency < 0 {
		return nil, fmt.Errorf("fancontrol: pwm frequency must be positive")
	}
	if cfg.PulsesPerRev == 0 {
		cfg.PulsesPerRev = 2
	}
	if cfg.PulsesPerRev < 0 {
		return nil, fmt.Errorf("fancontrol: pulses per revolution must be positive")
	}
	if cfg.RPMLow > cfg.RPMHigh {
		return nil, fmt.Errorf("fancontrol: rpm low=%v exceeds high=%v", cfg.RPMLow, cfg.RPMHigh)
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1 * time.Second
	}

	curve, err := NewCurve(cfg.Curve)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		curve:     curve,
		sensor:    sensor,
		telemetry: telemetry,
		log:       log,
		duty:      cfg.Curve.DutyOff,
	}
	s.snap.DutyPercent = s.duty
	return s, nil
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.LastUpdateAt = time.Now().UTC()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Run acquires the hardware, runs control cycles until ctx is canceled and
// releases the hardware on every exit path. A canceled context is a clean
// stop and returns nil; sensor or hardware failures end the run with an error.
func (s *Service) Run(ctx context.Context) (err error) {
	s.tach = NewPulseTimer(s.cfg.PulsesPerRev, monotonicNowFn())

	hw, err := openHardwareFn(s.cfg, s.tach.OnEdge)
	if err != nil {
		s.setState(func(sn *Snapshot) { sn.LastError = err.Error() })
		return err
	}
	defer func() {
		if cerr := hw.Close(); cerr != nil {
			s.log.Warnw("hardware release incomplete", "error", cerr)
			err = errors.Join(err, cerr)
		}
		s.setState(func(sn *Snapshot) {
			sn.Running = false
			if err != nil {
				sn.LastError = err.Error()
			}
		})
	}()

	s.log.Infow("fan control started",
		"backend", s.cfg.Backend,
		"pwm_pin", s.cfg.PWMPin,
		"pwm_hz", s.cfg.PWMFrequency,
		"tach_pin", s.cfg.TachPin,
		"interval", s.cfg.SampleInterval,
		"gain", s.curve.Gain(),
		"board", boardModel(),
	)
	s.setState(func(sn *Snapshot) { sn.Running = true })

	if s.cfg.Kickstart > 0 {
		if err := hw.fan.SetDutyPercent(100); err != nil {
			return fmt.Errorf("fancontrol: kickstart: %w", err)
		}
		s.duty = 100
		s.setState(func(sn *Snapshot) { sn.DutyPercent = 100 })
		s.log.Infow("kickstart", "duration", s.cfg.Kickstart)
		select {
		case <-ctx.Done():
			return nil
		case <-afterFn(s.cfg.Kickstart):
		}
	}

	for ctx.Err() == nil {
		if err := s.cycle(ctx, hw); err != nil {
			return err
		}
	}
	s.log.Infow("fan control stopping")
	return nil
}

// cycle runs one sample: temperature, duty, wait, RPM, telemetry.
// Cancellation during the wait abandons the cycle without telemetry.
func (s *Service) cycle(ctx context.Context, hw *Hardware) error {
	tempC, err := s.sensor.ReadTempC()
	if err != nil {
		return fmt.Errorf("fancontrol: read temperature: %w", err)
	}

	tempBand := ClassifyTemp(tempC, s.cfg.Curve.MinC, s.cfg.Curve.MaxC)
	if err := driveBand(hw.outputs, s.cfg.Indicators.temp(), int(tempBand)); err != nil {
		return fmt.Errorf("fancontrol: temperature indicator: %w", err)
	}

	if duty, ok := s.curve.Command(tempC); ok {
		if err := hw.fan.SetDutyPercent(duty); err != nil {
			return fmt.Errorf("fancontrol: set pwm duty failed: %w", err)
		}
		if duty != s.duty {
			s.log.Infow("duty changed", "from", s.duty, "to", duty, "temp_c", tempC)
		}
		s.duty = duty
	}

	select {
	case <-ctx.Done():
		return nil
	case <-afterFn(s.cfg.SampleInterval):
	}

	rpm := s.tach.ReadAndReset()
	rpmBand := ClassifyRPM(rpm, s.cfg.RPMLow, s.cfg.RPMHigh)
	if err := driveBand(hw.outputs, s.cfg.Indicators.rpm(), int(rpmBand)); err != nil {
		return fmt.Errorf("fancontrol: rpm indicator: %w", err)
	}

	if _, err := fmt.Fprintf(s.telemetry, "%.f rpm\n%.f c\n", rpm, tempC); err != nil {
		return fmt.Errorf("fancontrol: write telemetry: %w", err)
	}
	s.log.Debugw("cycle", "temp_c", tempC, "temp_band", tempBand, "duty", s.duty, "rpm", rpm, "rpm_band", rpmBand)

	duty := s.duty
	s.setState(func(sn *Snapshot) {
		sn.TempC = tempC
		sn.TempBand = tempBand
		sn.DutyPercent = duty
		sn.RPM = rpm
		sn.RPMBand = rpmBand
		sn.Cycles++
		sn.LastError = ""
	})
	return nil
}
