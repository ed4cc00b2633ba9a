package fancontrol

import (
	"math"
	"sync/atomic"
	"time"
)

// Edges closer together than this are contact bounce or electrical noise.
const minPulseInterval = 5 * time.Millisecond

// PulseTimer turns tachometer edge timestamps into an instantaneous RPM.
//
// OnEdge must only be called from one goroutine at a time (the GPIO event
// handler). ReadAndReset may be called concurrently with OnEdge.
type PulseTimer struct {
	pulsesPerRev float64

	// Owned by the edge handler.
	lastPulse time.Duration

	rpmBits atomic.Uint64
}

// NewPulseTimer returns a timer for a fan emitting pulsesPerRev edges per
// revolution. origin is the monotonic timestamp the first interval is
// measured from.
func NewPulseTimer(pulsesPerRev int, origin time.Duration) *PulseTimer {
	if pulsesPerRev < 1 {
		pulsesPerRev = 1
	}
	return &PulseTimer{pulsesPerRev: float64(pulsesPerRev), lastPulse: origin}
}

// OnEdge records a falling edge at monotonic time ts.
func (p *PulseTimer) OnEdge(ts time.Duration) {
	dt := ts - p.lastPulse
	if dt < minPulseInterval {
		return
	}
	// (1/dt) / pulsesPerRev * 60, kept in nanoseconds to stay exact.
	rpm := float64(time.Minute) / float64(dt) / p.pulsesPerRev
	p.rpmBits.Store(math.Float64bits(rpm))
	p.lastPulse = ts
}

// ReadAndReset returns the latest RPM and clears it to 0.
//
// The value is the last interval measured since the previous read, so a fan
// that stalls right after an edge is still reported at that speed once; the
// following read returns 0.
func (p *PulseTimer) ReadAndReset() float64 {
	return math.Float64frombits(p.rpmBits.Swap(0))
}
