package web

import (
	"runtime/debug"
	"time"

	"fanctl/internal/fancontrol"
)

// StatusSource is read on every /api/status request.
type StatusSource interface {
	Snapshot() fancontrol.Snapshot
}

type StatusSnapshot struct {
	Service   string `json:"service"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	NowUTC    string `json:"now_utc"`
	UptimeSec int64  `json:"uptime_sec"`

	Fan    fancontrol.Snapshot `json:"fan"`
	System *SystemSnapshot     `json:"system,omitempty"`
}

type Status struct {
	start  time.Time
	src    StatusSource
	system func() *SystemSnapshot

	version string
	commit  string
}

func NewStatus(src StatusSource) *Status {
	s := &Status{start: time.Now().UTC(), src: src, system: snapshotSystem}
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		s.version = bi.Main.Version
		for _, kv := range bi.Settings {
			if kv.Key == "vcs.revision" {
				s.commit = kv.Value
			}
		}
	}
	return s
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	snap := StatusSnapshot{
		Service:   "fanctl",
		Version:   s.version,
		Commit:    s.commit,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start).Seconds()),
	}
	if s.src != nil {
		snap.Fan = s.src.Snapshot()
	}
	if s.system != nil {
		snap.System = s.system()
	}
	return snap
}
