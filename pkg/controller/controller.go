package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/nergy-se/venstar-bridge/pkg/api/v1/types"
	"github.com/nergy-se/venstar-bridge/pkg/state"
)

var (
	ErrReadOnly              = errors.New("characteristic is read only")
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
	ErrInvalidTemperature    = errors.New("invalid temperature")
)

// Characteristic names the outward values a host framework binds to.
type Characteristic string

const (
	TemperatureDisplayUnits     Characteristic = "temperatureDisplayUnits"
	CurrentHeatingCoolingState  Characteristic = "currentHeatingCoolingState"
	TargetHeatingCoolingState   Characteristic = "targetHeatingCoolingState"
	TargetTemperature           Characteristic = "targetTemperature"
	CoolingThresholdTemperature Characteristic = "coolingThresholdTemperature"
	HeatingThresholdTemperature Characteristic = "heatingThresholdTemperature"
	CurrentTemperature          Characteristic = "currentTemperature"
	FanActive                   Characteristic = "fanActive"
)

// Characteristics lists every characteristic in the order a fetch pushes them.
var Characteristics = []Characteristic{
	CurrentHeatingCoolingState,
	TargetHeatingCoolingState,
	TemperatureDisplayUnits,
	TargetTemperature,
	CoolingThresholdTemperature,
	HeatingThresholdTemperature,
	CurrentTemperature,
	FanActive,
}

func ParseCharacteristic(s string) (Characteristic, error) {
	for _, c := range Characteristics {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCharacteristic, s)
}

func (c Characteristic) Writable() bool {
	switch c {
	case TargetHeatingCoolingState, TargetTemperature, CoolingThresholdTemperature, HeatingThresholdTemperature, FanActive:
		return true
	}
	return false
}

// Value returns the outward value of c in s.
func (c Characteristic) Value(s state.Snapshot) (float64, error) {
	switch c {
	case TemperatureDisplayUnits:
		return float64(s.DisplayUnits()), nil
	case CurrentHeatingCoolingState, TargetHeatingCoolingState:
		return float64(s.Mode), nil
	case TargetTemperature:
		return s.TargetTemperature, nil
	case CoolingThresholdTemperature:
		return s.CoolThreshold, nil
	case HeatingThresholdTemperature:
		return s.HeatThreshold, nil
	case CurrentTemperature:
		return s.CurrentTemperature, nil
	case FanActive:
		return float64(s.FanRequested), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, c)
}

// Sink receives pushed characteristic values so observers converge without polling.
type Sink interface {
	UpdateValue(c Characteristic, value float64)
}

// MultiSink fans updates out to every registered sink.
type MultiSink struct {
	sinks []Sink
	sync.RWMutex
}

func (m *MultiSink) Add(s Sink) {
	m.Lock()
	m.sinks = append(m.sinks, s)
	m.Unlock()
}

func (m *MultiSink) UpdateValue(c Characteristic, value float64) {
	m.RLock()
	defer m.RUnlock()
	for _, s := range m.sinks {
		s.UpdateValue(c, value)
	}
}

// ChangeRequest is a partial write. A nil field is absent, zero values are legal.
// Temperatures are celsius.
type ChangeRequest struct {
	Mode              *types.Mode    `json:"mode,omitempty"`
	FanRequested      *types.FanMode `json:"fanRequested,omitempty"`
	HeatSetpoint      *float64       `json:"heatSetpoint,omitempty"`
	CoolSetpoint      *float64       `json:"coolSetpoint,omitempty"`
	TargetTemperature *float64       `json:"targetTemperature,omitempty"`

	// Base is used as merge base instead of fetching one.
	Base *state.Snapshot `json:"-"`
}

// Validate rejects out of range enumerations and temperatures that are not finite.
func (cr ChangeRequest) Validate() error {
	if cr.Mode != nil {
		if _, err := types.ParseMode(int(*cr.Mode)); err != nil {
			return err
		}
	}
	if cr.FanRequested != nil {
		if _, err := types.ParseFanMode(int(*cr.FanRequested)); err != nil {
			return err
		}
	}
	for _, t := range []*float64{cr.HeatSetpoint, cr.CoolSetpoint, cr.TargetTemperature} {
		if t != nil {
			if err := checkTemperature(*t); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkTemperature(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTemperature, v)
	}
	return nil
}

// ChangeFor maps a write of a single characteristic to a ChangeRequest.
func ChangeFor(c Characteristic, value float64) (ChangeRequest, error) {
	switch c {
	case TargetHeatingCoolingState:
		if value != math.Trunc(value) || math.IsInf(value, 0) {
			return ChangeRequest{}, fmt.Errorf("%w: %v", types.ErrInvalidMode, value)
		}
		m, err := types.ParseMode(int(value))
		if err != nil {
			return ChangeRequest{}, err
		}
		return ChangeRequest{Mode: &m}, nil
	case FanActive:
		if value != math.Trunc(value) || math.IsInf(value, 0) {
			return ChangeRequest{}, fmt.Errorf("%w: %v", types.ErrInvalidFan, value)
		}
		f, err := types.ParseFanMode(int(value))
		if err != nil {
			return ChangeRequest{}, err
		}
		return ChangeRequest{FanRequested: &f}, nil
	case TargetTemperature:
		if err := checkTemperature(value); err != nil {
			return ChangeRequest{}, err
		}
		return ChangeRequest{TargetTemperature: &value}, nil
	case CoolingThresholdTemperature:
		if err := checkTemperature(value); err != nil {
			return ChangeRequest{}, err
		}
		return ChangeRequest{CoolSetpoint: &value}, nil
	case HeatingThresholdTemperature:
		if err := checkTemperature(value); err != nil {
			return ChangeRequest{}, err
		}
		return ChangeRequest{HeatSetpoint: &value}, nil
	case TemperatureDisplayUnits, CurrentHeatingCoolingState, CurrentTemperature:
		return ChangeRequest{}, fmt.Errorf("%w: %s", ErrReadOnly, c)
	}
	return ChangeRequest{}, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, c)
}

type Controller interface {
	// Fetch reads the device, pushes the result to the sinks and returns it.
	Fetch(ctx context.Context, overrides *state.Overrides) (*state.Snapshot, error)
	// Apply merges a partial change against the current state and writes it to the device.
	Apply(ctx context.Context, change ChangeRequest) error

	Get(ctx context.Context, c Characteristic) (float64, error)
	Set(ctx context.Context, c Characteristic, value float64) error

	Close() error
}
