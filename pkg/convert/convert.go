package convert

import (
	"errors"
	"fmt"
	"math"

	"github.com/nergy-se/venstar-bridge/pkg/api/v1/types"
)

var ErrUnsupportedMode = errors.New("unsupported mode")

// Ranges accepted by the HomeKit threshold characteristics.
const (
	CoolThresholdMin = 10.0
	CoolThresholdMax = 35.0
	HeatThresholdMin = 0.0
	HeatThresholdMax = 25.0
)

// FahrenheitToCelsius rounds to 2 decimals, same precision as CelsiusToFahrenheit.
func FahrenheitToCelsius(f float64) float64 {
	return round2((f - 32) * 5.0 / 9.0)
}

func CelsiusToFahrenheit(c float64) float64 {
	return round2(c*9.0/5.0 + 32)
}

// ToCelsius converts a device native value to celsius.
func ToCelsius(usesFahrenheit bool, v float64) float64 {
	if usesFahrenheit {
		return FahrenheitToCelsius(v)
	}
	return v
}

// FromCelsius converts a celsius value to the device native unit.
func FromCelsius(usesFahrenheit bool, v float64) float64 {
	if usesFahrenheit {
		return CelsiusToFahrenheit(v)
	}
	return v
}

// DeriveTarget computes the single target temperature HomeKit wants from the device mode and setpoints.
func DeriveTarget(mode types.Mode, heat, cool, ambient float64) (float64, error) {
	switch mode {
	case types.ModeOff:
		return ambient, nil
	case types.ModeHeat:
		return heat, nil
	case types.ModeCool:
		return cool, nil
	case types.ModeAuto:
		return roundHalfUp(cool + (heat-cool)/2), nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedMode, int(mode))
}

func Clamp(v, min, max float64) float64 {
	if v <= min {
		return min
	}
	if v >= max {
		return max
	}
	return v
}

func CoolThreshold(cool float64) float64 {
	return Clamp(cool, CoolThresholdMin, CoolThresholdMax)
}

func HeatThreshold(heat float64) float64 {
	return Clamp(heat, HeatThresholdMin, HeatThresholdMax)
}

func round2(v float64) float64 {
	return roundHalfUp(v*100) / 100
}

// roundHalfUp rounds .5 towards positive infinity.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
