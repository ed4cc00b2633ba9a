package fancontrol

import "fmt"

// CurveConfig describes the temperature to duty mapping.
//
// Temperatures are degrees C, duties are percent (0..100).
type CurveConfig struct {
	// OffC is the temperature under which the fan drops to DutyOff.
	OffC float64
	// MinC is the temperature above which the fan runs on the linear ramp.
	MinC float64
	// MaxC is the temperature above which the fan runs at DutyHigh.
	MaxC float64

	DutyOff  float64
	DutyLow  float64
	DutyHigh float64
}

// Curve is a piecewise-linear fan curve with a dead-band between OffC and MinC.
//
// Curve is immutable and safe for concurrent use.
type Curve struct {
	cfg  CurveConfig
	gain float64
}

func NewCurve(cfg CurveConfig) (Curve, error) {
	if !(cfg.OffC < cfg.MinC) {
		return Curve{}, fmt.Errorf("fancontrol: curve off=%v must be below min=%v", cfg.OffC, cfg.MinC)
	}
	if !(cfg.MinC < cfg.MaxC) {
		return Curve{}, fmt.Errorf("fancontrol: curve min=%v must be below max=%v", cfg.MinC, cfg.MaxC)
	}
	if cfg.DutyLow > cfg.DutyHigh {
		return Curve{}, fmt.Errorf("fancontrol: curve duty low=%v exceeds high=%v", cfg.DutyLow, cfg.DutyHigh)
	}
	for _, d := range []float64{cfg.DutyOff, cfg.DutyLow, cfg.DutyHigh} {
		if d < 0 || d > 100 {
			return Curve{}, fmt.Errorf("fancontrol: curve duty %v out of range 0..100", d)
		}
	}
	return Curve{
		cfg:  cfg,
		gain: (cfg.DutyHigh - cfg.DutyLow) / (cfg.MaxC - cfg.MinC),
	}, nil
}

// Gain is the duty increase per degree between MinC and MaxC.
func (c Curve) Gain() float64 { return c.gain }

// Command returns the duty the curve asks for at tempC.
// ok is false inside the dead-band (OffC <= tempC <= MinC), where no command
// is issued and the previous duty stays in effect.
func (c Curve) Command(tempC float64) (duty float64, ok bool) {
	if tempC > c.cfg.MinC {
		delta := min(tempC, c.cfg.MaxC) - c.cfg.MinC
		return c.cfg.DutyLow + delta*c.gain, true
	}
	if tempC < c.cfg.OffC {
		return c.cfg.DutyOff, true
	}
	return 0, false
}

// Duty maps tempC to a duty, falling back to prior inside the dead-band.
func (c Curve) Duty(tempC, prior float64) float64 {
	if d, ok := c.Command(tempC); ok {
		return d
	}
	return prior
}
