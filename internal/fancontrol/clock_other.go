//go:build !linux

package fancontrol

import "time"

var processStart = time.Now()

func monotonicNow() time.Duration {
	return time.Since(processStart)
}
