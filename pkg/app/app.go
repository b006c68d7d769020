package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nergy-se/venstar-bridge/pkg/api/v1/config"
	"github.com/nergy-se/venstar-bridge/pkg/api/v1/types"
	"github.com/nergy-se/venstar-bridge/pkg/controller"
	"github.com/nergy-se/venstar-bridge/pkg/controller/thermostat"
	"github.com/nergy-se/venstar-bridge/pkg/homekit"
	"github.com/nergy-se/venstar-bridge/pkg/mqtt"
	"github.com/nergy-se/venstar-bridge/pkg/venstar"
	"github.com/nergy-se/venstar-bridge/pkg/venstar/dummy"
	"github.com/nergy-se/venstar-bridge/pkg/version"
	"github.com/nergy-se/venstar-bridge/pkg/webserver"
	"github.com/sirupsen/logrus"
)

type App struct {
	wg         *sync.WaitGroup
	config     *config.CliConfig
	sink       *controller.MultiSink
	thermostat *thermostat.Thermostat
}

func New(config *config.CliConfig) *App {
	return &App{
		wg:     &sync.WaitGroup{},
		config: config,
		sink:   &controller.MultiSink{},
	}
}

func (a *App) Start(ctx context.Context) error {
	address := a.config.Address
	if a.config.Type() == types.ControllerTypeDummy {
		var err error
		address, err = dummy.New().Start(ctx)
		if err != nil {
			return fmt.Errorf("error starting dummy device: %w", err)
		}
	}

	client := venstar.NewClient(address, a.config.HTTPTimeout)
	a.thermostat = thermostat.New(client, a.sink, a.config.SettleDelay)

	if a.config.HomekitEnabled {
		acc := homekit.New(homekit.Info{
			Name:         a.config.Name,
			Model:        a.config.Model,
			SerialNumber: a.config.SerialNumber,
			Firmware:     version.Short(),
		}, a.thermostat)
		a.sink.Add(acc)
		err := homekit.Start(ctx, a.wg, acc, homekit.ServerConfig{
			Pin:     a.config.HomekitPin,
			Storage: a.config.HomekitStorage,
			Addr:    a.config.HomekitAddr,
		})
		if err != nil {
			return err
		}
	}

	err := a.startMqtt(ctx)
	if err != nil {
		return err
	}

	if a.config.HTTPListen != "" {
		webserver.New(a.thermostat, a.thermostat.Cache(), a.thermostat.Alarms()).Start(ctx, a.wg, a.config.HTTPListen)
	}

	a.wg.Add(1)
	go a.controllerLoop(ctx)
	return nil
}

func (a *App) startMqtt(ctx context.Context) error {
	var broker mqtt.Broker
	switch a.config.Mqtt() {
	case config.MqttModeNone:
		return nil
	case config.MqttModeEmbedded:
		b, err := mqtt.StartEmbedded(ctx, a.wg, a.config.MqttListen)
		if err != nil {
			return fmt.Errorf("error starting mqtt broker: %w", err)
		}
		broker = b
	case config.MqttModeExternal:
		b, err := mqtt.ConnectExternal(mqtt.ExternalConfig{
			Broker:   a.config.MqttBroker,
			Username: a.config.MqttUsername,
			Password: a.config.MqttPassword,
		})
		if err != nil {
			return err
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			<-ctx.Done()
			b.Close()
		}()
		broker = b
	default:
		return fmt.Errorf("unknown mqttmode: %q", a.config.MqttMode)
	}

	bridge := mqtt.NewBridge(broker, a.config.MqttTopic, a.thermostat)
	err := bridge.Start(ctx)
	if err != nil {
		return err
	}
	a.sink.Add(bridge)
	return nil
}

func (a *App) Wait() {
	a.wg.Wait()
}

func (a *App) Thermostat() *thermostat.Thermostat {
	return a.thermostat
}

// controllerLoop polls the device so observers converge without asking.
func (a *App) controllerLoop(ctx context.Context) {
	defer a.wg.Done()
	defer a.thermostat.Close()

	a.fetch(ctx)
	if a.config.PollInterval == 0 {
		<-ctx.Done()
		return
	}

	delay := nextDelay(a.config.PollInterval)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	logrus.Debug("scheduling first poll in ", delay)
	for {
		select {
		case <-timer.C:
			timer.Reset(nextDelay(a.config.PollInterval))
			a.fetch(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) fetch(ctx context.Context) {
	s, err := a.thermostat.Fetch(ctx, nil)
	if err != nil {
		if ctx.Err() == nil {
			logrus.Errorf("error fetching thermostat state: %s", err)
		}
		return
	}
	logrus.WithFields(logrus.Fields{
		"mode":               s.Mode,
		"currentTemperature": s.CurrentTemperature,
		"targetTemperature":  s.TargetTemperature,
	}).Debug("thermostat state fetched")
}
