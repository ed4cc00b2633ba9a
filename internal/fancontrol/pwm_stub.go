//go:build !linux || (!arm && !arm64)

package fancontrol

import "fmt"

func openPWM(pin int) (pwmDriver, error) {
	return nil, fmt.Errorf("fancontrol: pwm unsupported on this platform")
}
