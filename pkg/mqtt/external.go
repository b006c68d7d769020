package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const externalTimeout = 10 * time.Second

type ExternalConfig struct {
	Broker   string
	Username string
	Password string
}

// External is a client connection to a broker run elsewhere.
type External struct {
	client paho.Client
}

func ConnectExternal(cfg ExternalConfig) (*External, error) {
	co := paho.NewClientOptions()
	co.AddBroker(cfg.Broker)
	co.SetUsername(cfg.Username)
	co.SetPassword(cfg.Password)
	co.SetClientID("venstarbridge-" + uuid.NewString())
	co.SetAutoReconnect(true)
	co.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logrus.Errorf("mqtt: connection lost: %s", err)
	})

	cl := paho.NewClient(co)
	t := cl.Connect()
	if !t.WaitTimeout(externalTimeout) {
		return nil, fmt.Errorf("timeout connecting to mqtt broker %s", cfg.Broker)
	}
	if t.Error() != nil {
		return nil, fmt.Errorf("error connecting to mqtt broker: %w", t.Error())
	}
	logrus.Infof("mqtt: connected to %s", cfg.Broker)
	return &External{client: cl}, nil
}

func (e *External) Publish(topic string, payload []byte, retain bool) error {
	t := e.client.Publish(topic, 0, retain, payload)
	if !t.WaitTimeout(externalTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	return t.Error()
}

func (e *External) Subscribe(filter string, handler Handler) error {
	t := e.client.Subscribe(filter, 0, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !t.WaitTimeout(externalTimeout) {
		return fmt.Errorf("timeout subscribing to %s", filter)
	}
	return t.Error()
}

func (e *External) Close() error {
	e.client.Disconnect(250)
	return nil
}
