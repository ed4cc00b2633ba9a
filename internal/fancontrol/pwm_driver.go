package fancontrol

// pwmDriver is the minimal interface fancontrol needs from a fan backend.
//
// Duty is expressed in percent (0..100), frequency in Hz.
// Close should be best-effort and leave the fan in a safe state.
//
//nolint:revive // internal interface name matches domain.
type pwmDriver interface {
	SetFrequencyHz(hz int) error
	SetDutyPercent(p float64) error
	Close() error
}

// Outputs drives discrete indicator lines by BCM pin number.
type Outputs interface {
	SetLevel(pin int, on bool) error
	Close() error
}

// TempSensor reports a temperature in degrees C.
type TempSensor interface {
	ReadTempC() (float64, error)
}
