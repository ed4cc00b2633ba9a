//go:build !linux || (!arm && !arm64)

package fancontrol

import (
	"fmt"
	"io"
	"time"
)

// Stub implementation for non-Linux and/or non-ARM platforms.
func openGPIO(pin int) (pwmDriver, error) {
	return nil, fmt.Errorf("fancontrol: gpio unsupported on this platform")
}

func openOutputs(pins []int) (Outputs, error) {
	return nil, fmt.Errorf("fancontrol: gpio unsupported on this platform")
}

func openTach(pin int, onEdge func(time.Duration)) (io.Closer, error) {
	return nil, fmt.Errorf("fancontrol: gpio unsupported on this platform")
}

func setGPIOChip(name string) {}
