package homekit

import (
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
)

// thermostatService is the HomeKit thermostat service with both threshold characteristics.
type thermostatService struct {
	*service.S

	CurrentHeatingCoolingState  *characteristic.CurrentHeatingCoolingState
	TargetHeatingCoolingState   *characteristic.TargetHeatingCoolingState
	CurrentTemperature          *characteristic.CurrentTemperature
	TargetTemperature           *characteristic.TargetTemperature
	TemperatureDisplayUnits     *characteristic.TemperatureDisplayUnits
	CoolingThresholdTemperature *characteristic.CoolingThresholdTemperature
	HeatingThresholdTemperature *characteristic.HeatingThresholdTemperature
}

func newThermostatService() *thermostatService {
	s := thermostatService{}
	s.S = service.New(service.TypeThermostat)

	s.CurrentHeatingCoolingState = characteristic.NewCurrentHeatingCoolingState()
	s.AddC(s.CurrentHeatingCoolingState.C)

	s.TargetHeatingCoolingState = characteristic.NewTargetHeatingCoolingState()
	s.AddC(s.TargetHeatingCoolingState.C)

	s.CurrentTemperature = characteristic.NewCurrentTemperature()
	s.CurrentTemperature.SetMinValue(-50)
	s.CurrentTemperature.SetMaxValue(100)
	s.AddC(s.CurrentTemperature.C)

	// in off mode the target follows the ambient temperature
	s.TargetTemperature = characteristic.NewTargetTemperature()
	s.TargetTemperature.SetMinValue(0)
	s.TargetTemperature.SetMaxValue(38)
	s.AddC(s.TargetTemperature.C)

	// units follow the device and can not be changed from HomeKit
	s.TemperatureDisplayUnits = characteristic.NewTemperatureDisplayUnits()
	s.TemperatureDisplayUnits.Permissions = []string{characteristic.PermissionRead, characteristic.PermissionEvents}
	s.AddC(s.TemperatureDisplayUnits.C)

	s.CoolingThresholdTemperature = characteristic.NewCoolingThresholdTemperature()
	s.CoolingThresholdTemperature.SetMinValue(10)
	s.CoolingThresholdTemperature.SetMaxValue(35)
	s.AddC(s.CoolingThresholdTemperature.C)

	s.HeatingThresholdTemperature = characteristic.NewHeatingThresholdTemperature()
	s.HeatingThresholdTemperature.SetMinValue(0)
	s.HeatingThresholdTemperature.SetMaxValue(25)
	s.AddC(s.HeatingThresholdTemperature.C)

	return &s
}
