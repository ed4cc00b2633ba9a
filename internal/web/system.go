package web

import (
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemSnapshot is best-effort host health. Fields that could not be read
// are left zero and the first failure is reported in LastError.
type SystemSnapshot struct {
	HostUptimeSec   uint64  `json:"host_uptime_sec"`
	Load1           float64 `json:"load1"`
	MemUsedPercent  float64 `json:"mem_used_percent"`
	RootUsedPercent float64 `json:"root_used_percent"`
	RootFreeBytes   uint64  `json:"root_free_bytes"`
	LastError       string  `json:"last_error,omitempty"`
}

func snapshotSystem() *SystemSnapshot {
	out := &SystemSnapshot{}
	fail := func(err error) {
		if err != nil && out.LastError == "" {
			out.LastError = err.Error()
		}
	}

	up, err := host.Uptime()
	fail(err)
	out.HostUptimeSec = up

	if avg, err := load.Avg(); err != nil {
		fail(err)
	} else {
		out.Load1 = avg.Load1
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		fail(err)
	} else {
		out.MemUsedPercent = vm.UsedPercent
	}

	if du, err := disk.Usage("/"); err != nil {
		fail(err)
	} else {
		out.RootUsedPercent = du.UsedPercent
		out.RootFreeBytes = du.Free
	}
	return out
}
