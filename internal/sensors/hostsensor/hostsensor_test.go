package hostsensor

import (
	"errors"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
)

func withSensors(t *testing.T, stats []host.TemperatureStat, err error) {
	t.Helper()
	old := sensorsFn
	sensorsFn = func() ([]host.TemperatureStat, error) { return stats, err }
	t.Cleanup(func() { sensorsFn = old })
}

func TestReadTempC_MatchesKey(t *testing.T) {
	withSensors(t, []host.TemperatureStat{
		{SensorKey: "nvme_composite", Temperature: 38},
		{SensorKey: "cpu_thermal", Temperature: 51.5},
	}, nil)

	s, err := New("cpu_thermal")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, err := s.ReadTempC()
	if err != nil {
		t.Fatalf("ReadTempC: %v", err)
	}
	if v != 51.5 {
		t.Fatalf("temp=%v want 51.5", v)
	}
}

func TestReadTempC_PartialResultsWithWarnings(t *testing.T) {
	withSensors(t, []host.TemperatureStat{{SensorKey: "cpu_thermal", Temperature: 47}}, errors.New("hwmon3: permission denied"))

	s, _ := New("cpu_thermal")
	v, err := s.ReadTempC()
	if err != nil {
		t.Fatalf("ReadTempC: %v", err)
	}
	if v != 47 {
		t.Fatalf("temp=%v want 47", v)
	}
}

func TestReadTempC_MissingKeyListsAvailable(t *testing.T) {
	withSensors(t, []host.TemperatureStat{{SensorKey: "b"}, {SensorKey: "a"}}, nil)

	s, _ := New("cpu_thermal")
	_, err := s.ReadTempC()
	if err == nil || !strings.Contains(err.Error(), "have a, b") {
		t.Fatalf("err=%v want list of available keys", err)
	}
}

func TestReadTempC_NoSensors(t *testing.T) {
	readErr := errors.New("no hwmon")
	withSensors(t, nil, readErr)

	s, _ := New("cpu_thermal")
	if _, err := s.ReadTempC(); !errors.Is(err, readErr) {
		t.Fatalf("err=%v want %v", err, readErr)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error")
	}
}
