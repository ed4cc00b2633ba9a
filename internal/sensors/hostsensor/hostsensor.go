// Package hostsensor reads a temperature from the host's hwmon/thermal
// sensors through gopsutil.
package hostsensor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

var sensorsFn = host.SensorsTemperatures

// Sensor reports the temperature of one sensor key, e.g. "cpu_thermal" or
// "coretemp_package_id_0".
type Sensor struct {
	Key string
}

func New(key string) (*Sensor, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("hostsensor: sensor key is required")
	}
	return &Sensor{Key: key}, nil
}

func (s *Sensor) ReadTempC() (float64, error) {
	stats, err := sensorsFn()
	// gopsutil returns partial results together with warnings when some
	// hwmon nodes are unreadable.
	if err != nil && len(stats) == 0 {
		return 0, fmt.Errorf("hostsensor: read sensors: %w", err)
	}
	for _, st := range stats {
		if st.SensorKey == s.Key {
			return st.Temperature, nil
		}
	}
	return 0, fmt.Errorf("hostsensor: sensor %q not found (have %s)", s.Key, strings.Join(keys(stats), ", "))
}

func keys(stats []host.TemperatureStat) []string {
	out := make([]string, 0, len(stats))
	for _, st := range stats {
		out = append(out, st.SensorKey)
	}
	sort.Strings(out)
	return out
}
