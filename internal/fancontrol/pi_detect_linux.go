//go:build linux

package fancontrol

import (
	"os"
	"strings"
)

var modelPaths = []string{
	"/sys/firmware/devicetree/base/model",
	"/proc/device-tree/model",
}

// boardModel returns the device-tree model string, or "" when unknown.
func boardModel() string {
	for _, p := range modelPaths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		return strings.Trim(strings.TrimSpace(string(b)), "\x00")
	}
	return ""
}

func isRaspberryPi5() bool {
	return strings.Contains(boardModel(), "Raspberry Pi 5")
}
