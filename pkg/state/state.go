package state

import (
	"time"

	"github.com/nergy-se/venstar-bridge/pkg/api/v1/types"
	"github.com/nergy-se/venstar-bridge/pkg/convert"
)

// Snapshot is the celsius normalized view of the thermostat produced by one fetch.
// It is only authoritative at FetchedAt.
type Snapshot struct {
	Mode               types.Mode     `json:"mode"`
	UsesFahrenheit     bool           `json:"usesFahrenheit"`
	CurrentTemperature float64        `json:"currentTemperature"`
	HeatSetpoint       float64        `json:"heatSetpoint"`
	CoolSetpoint       float64        `json:"coolSetpoint"`
	TargetTemperature  float64        `json:"targetTemperature"`
	FanRequested       types.FanMode  `json:"fanRequested"`
	FanRunning         types.FanState `json:"fanRunning"`
	CoolThreshold      float64        `json:"coolThreshold"`
	HeatThreshold      float64        `json:"heatThreshold"`

	FetchedAt time.Time `json:"fetchedAt"`
}

// Overrides replace values read from the device before they are normalized.
// Setpoints are in the device native unit.
type Overrides struct {
	Mode         *types.Mode
	FanRequested *types.FanMode
	HeatSetpoint *float64
	CoolSetpoint *float64
}

func (s Snapshot) DisplayUnits() types.DisplayUnits {
	return types.DisplayUnitsFor(s.UsesFahrenheit)
}

func (s Snapshot) Map() map[string]interface{} {
	return map[string]interface{}{
		"mode":                s.Mode.String(),
		"usesFahrenheit":      s.UsesFahrenheit,
		"displayUnits":        int(s.DisplayUnits()),
		"currentTemperature":  s.CurrentTemperature,
		"currentTemperatureF": convert.CelsiusToFahrenheit(s.CurrentTemperature),
		"heatSetpoint":        s.HeatSetpoint,
		"heatSetpointF":       convert.CelsiusToFahrenheit(s.HeatSetpoint),
		"coolSetpoint":        s.CoolSetpoint,
		"coolSetpointF":       convert.CelsiusToFahrenheit(s.CoolSetpoint),
		"targetTemperature":   s.TargetTemperature,
		"targetTemperatureF":  convert.CelsiusToFahrenheit(s.TargetTemperature),
		"fanRequested":        s.FanRequested.String(),
		"fanRunning":          s.FanRunning.String(),
		"coolThreshold":       s.CoolThreshold,
		"heatThreshold":       s.HeatThreshold,
	}
}

func Pointer[K any](val K) *K {
	return &val
}
