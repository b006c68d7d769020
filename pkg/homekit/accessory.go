package homekit

import (
	"context"
	"net/http"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"github.com/nergy-se/venstar-bridge/pkg/api/v1/types"
	"github.com/nergy-se/venstar-bridge/pkg/controller"
	"github.com/sirupsen/logrus"
)

// HAP status codes returned from value requests.
const (
	statusSuccess              = 0
	statusCommunicationFailure = -70402
)

type Info struct {
	Name         string
	Model        string
	SerialNumber string
	Firmware     string
}

// Accessory exposes a thermostat controller as a HomeKit thermostat with a fan.
// Reads fetch from the device, remote writes are applied through the controller and
// pushed values from the controller are forwarded with UpdateValue.
type Accessory struct {
	*accessory.A

	Thermostat *thermostatService
	Fan        *service.FanV2

	ctrl controller.Controller
}

func New(info Info, ctrl controller.Controller) *Accessory {
	if info.Model == "" {
		info.Model = "?"
	}
	if info.SerialNumber == "" {
		info.SerialNumber = "?"
	}

	a := &Accessory{
		A: accessory.New(accessory.Info{
			Name:         info.Name,
			Manufacturer: "Venstar",
			Model:        info.Model,
			SerialNumber: info.SerialNumber,
			Firmware:     info.Firmware,
		}, accessory.TypeThermostat),
		Thermostat: newThermostatService(),
		Fan:        service.NewFanV2(),
		ctrl:       ctrl,
	}
	a.AddS(a.Thermostat.S)
	a.AddS(a.Fan.S)

	a.bind()
	return a
}

func (a *Accessory) bind() {
	t := a.Thermostat
	a.bindRead(t.CurrentHeatingCoolingState.C, controller.CurrentHeatingCoolingState)
	a.bindRead(t.TargetHeatingCoolingState.C, controller.TargetHeatingCoolingState)
	a.bindRead(t.TemperatureDisplayUnits.C, controller.TemperatureDisplayUnits)
	a.bindRead(t.TargetTemperature.C, controller.TargetTemperature)
	a.bindRead(t.CoolingThresholdTemperature.C, controller.CoolingThresholdTemperature)
	a.bindRead(t.HeatingThresholdTemperature.C, controller.HeatingThresholdTemperature)
	a.bindRead(t.CurrentTemperature.C, controller.CurrentTemperature)
	a.bindRead(a.Fan.Active.C, controller.FanActive)

	t.TargetHeatingCoolingState.OnValueRemoteUpdate(func(v int) {
		a.write(controller.TargetHeatingCoolingState, float64(v))
	})
	t.TargetTemperature.OnValueRemoteUpdate(func(v float64) {
		a.write(controller.TargetTemperature, v)
	})
	t.CoolingThresholdTemperature.OnValueRemoteUpdate(func(v float64) {
		a.write(controller.CoolingThresholdTemperature, v)
	})
	t.HeatingThresholdTemperature.OnValueRemoteUpdate(func(v float64) {
		a.write(controller.HeatingThresholdTemperature, v)
	})
	a.Fan.Active.OnValueRemoteUpdate(func(v int) {
		a.write(controller.FanActive, float64(v))
	})
}

func (a *Accessory) bindRead(c *characteristic.C, ch controller.Characteristic) {
	c.ValueRequestFunc = func(req *http.Request) (interface{}, int) {
		return a.read(req, ch)
	}
}

func (a *Accessory) read(req *http.Request, c controller.Characteristic) (interface{}, int) {
	ctx := context.Background()
	if req != nil {
		ctx = req.Context()
	}
	v, err := a.ctrl.Get(ctx, c)
	if err != nil {
		logrus.WithField("characteristic", c).Errorf("homekit: error reading value: %s", err)
		return nil, statusCommunicationFailure
	}
	return outward(c, v), statusSuccess
}

func (a *Accessory) write(c controller.Characteristic, v float64) {
	logrus.WithFields(logrus.Fields{
		"characteristic": c,
		"value":          v,
	}).Debug("homekit: remote update")
	err := a.ctrl.Set(context.Background(), c, v)
	if err != nil {
		logrus.WithField("characteristic", c).Errorf("homekit: error writing value: %s", err)
	}
}

// UpdateValue implements controller.Sink.
func (a *Accessory) UpdateValue(c controller.Characteristic, value float64) {
	t := a.Thermostat
	switch v := outward(c, value).(type) {
	case int:
		switch c {
		case controller.CurrentHeatingCoolingState:
			t.CurrentHeatingCoolingState.SetValue(v)
		case controller.TargetHeatingCoolingState:
			t.TargetHeatingCoolingState.SetValue(v)
		case controller.TemperatureDisplayUnits:
			t.TemperatureDisplayUnits.SetValue(v)
		case controller.FanActive:
			a.Fan.Active.SetValue(v)
		}
	case float64:
		switch c {
		case controller.TargetTemperature:
			t.TargetTemperature.SetValue(v)
		case controller.CoolingThresholdTemperature:
			t.CoolingThresholdTemperature.SetValue(v)
		case controller.HeatingThresholdTemperature:
			t.HeatingThresholdTemperature.SetValue(v)
		case controller.CurrentTemperature:
			t.CurrentTemperature.SetValue(v)
		}
	}
}

// outward converts a controller value to the HomeKit representation of c.
func outward(c controller.Characteristic, v float64) interface{} {
	switch c {
	case controller.CurrentHeatingCoolingState:
		// HomeKit has no current state for auto.
		if types.Mode(v) == types.ModeAuto {
			return characteristic.CurrentHeatingCoolingStateOff
		}
		return int(v)
	case controller.TargetHeatingCoolingState, controller.TemperatureDisplayUnits, controller.FanActive:
		return int(v)
	}
	return v
}
