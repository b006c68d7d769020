package types

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMode = errors.New("invalid mode")
	ErrInvalidFan  = errors.New("invalid fan value")
)

// ControllerType selects which device backend the bridge talks to.
type ControllerType string

var ControllerTypeVenstar = ControllerType("venstar")
var ControllerTypeDummy = ControllerType("dummy")

// Mode is the thermostat operating mode. The numbering is shared by the device and HomeKit.
type Mode int

const (
	ModeOff  Mode = 0
	ModeHeat Mode = 1
	ModeCool Mode = 2
	ModeAuto Mode = 3
)

func ParseMode(i int) (Mode, error) {
	m := Mode(i)
	if !m.Valid() {
		return ModeOff, fmt.Errorf("%w: %d", ErrInvalidMode, i)
	}
	return m, nil
}

func (m Mode) Valid() bool {
	return m >= ModeOff && m <= ModeAuto
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeHeat:
		return "heat"
	case ModeCool:
		return "cool"
	case ModeAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// FanMode is the commanded fan state.
type FanMode int

const (
	FanModeAuto FanMode = 0
	FanModeOn   FanMode = 1
)

func ParseFanMode(i int) (FanMode, error) {
	f := FanMode(i)
	if f != FanModeAuto && f != FanModeOn {
		return FanModeAuto, fmt.Errorf("%w: fan %d", ErrInvalidFan, i)
	}
	return f, nil
}

func (f FanMode) String() string {
	switch f {
	case FanModeAuto:
		return "auto"
	case FanModeOn:
		return "on"
	default:
		return "unknown"
	}
}

// FanState is the observed fan state, as opposed to the commanded FanMode.
type FanState int

const (
	FanStateOff     FanState = 0
	FanStateRunning FanState = 1
)

func ParseFanState(i int) (FanState, error) {
	f := FanState(i)
	if f != FanStateOff && f != FanStateRunning {
		return FanStateOff, fmt.Errorf("%w: fanstate %d", ErrInvalidFan, i)
	}
	return f, nil
}

func (f FanState) String() string {
	switch f {
	case FanStateOff:
		return "off"
	case FanStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// DisplayUnits uses the HomeKit encoding: 0 == C, 1 == F. The Venstar tempunits flag is the opposite.
type DisplayUnits int

const (
	DisplayUnitsCelsius    DisplayUnits = 0
	DisplayUnitsFahrenheit DisplayUnits = 1
)

func DisplayUnitsFor(usesFahrenheit bool) DisplayUnits {
	if usesFahrenheit {
		return DisplayUnitsFahrenheit
	}
	return DisplayUnitsCelsius
}

func (d DisplayUnits) String() string {
	if d == DisplayUnitsFahrenheit {
		return "fahrenheit"
	}
	return "celsius"
}
