package config

import (
	"fmt"
	"time"

	"github.com/nergy-se/venstar-bridge/pkg/api/v1/types"
)

type MqttMode string

var (
	MqttModeNone     = MqttMode("none")
	MqttModeEmbedded = MqttMode("embedded")
	MqttModeExternal = MqttMode("external")
)

type CliConfig struct {
	// Address of the thermostat local api, host[:port] or a http:// url.
	Address        string
	ControllerType string `default:"venstar"`

	HTTPTimeout  time.Duration `default:"10s"`
	SettleDelay  time.Duration `default:"100ms"`
	PollInterval time.Duration `default:"60s"`

	LogLevel string `default:"info"`

	Name         string `default:"Thermostat"`
	Model        string `default:"?"`
	SerialNumber string `default:"?"`

	HomekitEnabled bool   `default:"true"`
	HomekitPin     string `default:"00102003"`
	HomekitStorage string `default:"./homekit"`
	HomekitAddr    string

	MqttMode     string `default:"none"`
	MqttListen   string `default:":1883"`
	MqttBroker   string
	MqttUsername string
	MqttPassword string
	MqttTopic    string `default:"venstar"`

	// HTTPListen enables the rest api when set.
	HTTPListen string `default:":8080"`
}

func (c *CliConfig) Type() types.ControllerType {
	return types.ControllerType(c.ControllerType)
}

func (c *CliConfig) Mqtt() MqttMode {
	return MqttMode(c.MqttMode)
}

func (c *CliConfig) Validate() error {
	switch c.Type() {
	case types.ControllerTypeVenstar:
		if c.Address == "" {
			return fmt.Errorf("address is required for controllertype %s", c.ControllerType)
		}
	case types.ControllerTypeDummy:
	default:
		return fmt.Errorf("unknown controllertype: %q", c.ControllerType)
	}

	switch c.Mqtt() {
	case MqttModeNone, MqttModeEmbedded:
	case MqttModeExternal:
		if c.MqttBroker == "" {
			return fmt.Errorf("mqttbroker is required for mqttmode %s", c.MqttMode)
		}
	default:
		return fmt.Errorf("unknown mqttmode: %q", c.MqttMode)
	}

	if c.HomekitEnabled && len(c.HomekitPin) != 8 {
		return fmt.Errorf("homekitpin must be 8 digits")
	}
	if c.PollInterval < 0 || c.SettleDelay < 0 || c.HTTPTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
