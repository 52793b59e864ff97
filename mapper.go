package adbvol

import (
	"fmt"
	"math"
)

// ToDevice maps a normalized host level onto the device range [0, deviceMax].
// Halves round up: 0.5 of 15 is 8.
func ToDevice(hostLevel float64, deviceMax int) (int, error) {
	if deviceMax <= 0 {
		return 0, fmt.Errorf("%w: device max %d", ErrRangeMap, deviceMax)
	}

	if math.IsNaN(hostLevel) {
		hostLevel = 0
	}

	level := math.Floor(hostLevel*float64(deviceMax) + 0.5)

	switch {
	case level < 0:
		return 0, nil
	case level > float64(deviceMax):
		return deviceMax, nil
	}

	return int(level), nil
}

// ToHost maps a device level onto the normalized host range [0, 1].
func ToHost(deviceLevel, deviceMax int) (float64, error) {
	if deviceMax <= 0 {
		return 0, fmt.Errorf("%w: device max %d", ErrRangeMap, deviceMax)
	}

	level := float64(deviceLevel) / float64(deviceMax)

	return min(max(level, 0), 1), nil
}

// Percent returns level as a whole percentage, clamped to [0, 100].
func Percent(level float64) int {
	if math.IsNaN(level) {
		return 0
	}

	return int(math.Floor(min(max(level, 0), 1)*100 + 0.5))
}
