package fancontrol

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

const DefaultThermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

func parseCPUTempC(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("cpu temp empty")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cpu temp %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("parse cpu temp %q: not a number", s)
	}
	// Thermal zones report milli-degrees Celsius.
	return v / 1000, nil
}

// ThermalZone reads a Linux thermal zone temperature file.
type ThermalZone struct {
	Path string
}

func (z ThermalZone) ReadTempC() (float64, error) {
	path := z.Path
	if path == "" {
		path = DefaultThermalZonePath
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read cpu temp: %w", err)
	}
	return parseCPUTempC(string(b))
}
