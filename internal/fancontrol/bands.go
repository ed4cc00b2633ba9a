package fancontrol

import "fmt"

// TempBand is the temperature indicator state.
type TempBand int

const (
	TempGreen TempBand = iota
	TempYellow
	TempRed
)

var tempBandNames = [...]string{"green", "yellow", "red"}

func (b TempBand) String() string {
	if b < 0 || int(b) >= len(tempBandNames) {
		return fmt.Sprintf("TempBand(%d)", int(b))
	}
	return tempBandNames[b]
}

func (b TempBand) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// RPMBand is the fan speed indicator state.
type RPMBand int

const (
	RPMLow RPMBand = iota
	RPMMed
	RPMHigh
)

var rpmBandNames = [...]string{"low", "med", "high"}

func (b RPMBand) String() string {
	if b < 0 || int(b) >= len(rpmBandNames) {
		return fmt.Sprintf("RPMBand(%d)", int(b))
	}
	return rpmBandNames[b]
}

func (b RPMBand) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// ClassifyTemp picks the temperature band. A value equal to a threshold
// falls in the lower band.
func ClassifyTemp(tempC, minC, maxC float64) TempBand {
	if tempC > maxC {
		return TempRed
	}
	if tempC > minC {
		return TempYellow
	}
	return TempGreen
}

// ClassifyRPM picks the speed band. A value equal to a threshold falls in
// the lower band.
func ClassifyRPM(rpm, low, high float64) RPMBand {
	if rpm > high {
		return RPMHigh
	}
	if rpm > low {
		return RPMMed
	}
	return RPMLow
}
