package mqtt

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/nergy-se/venstar-bridge/pkg/controller"
	"github.com/sirupsen/logrus"
)

// Bridge publishes characteristic updates as retained messages on <topic>/<characteristic>
// and applies writes received on <topic>/<characteristic>/set.
type Bridge struct {
	broker Broker
	topic  string
	ctrl   controller.Controller

	ctx context.Context
	sync.Mutex

	// publishMu guards last and is held across Publish so the retained value matches last.
	publishMu sync.Mutex
	last      map[controller.Characteristic]float64
}

func NewBridge(broker Broker, topic string, ctrl controller.Controller) *Bridge {
	return &Bridge{
		broker: broker,
		topic:  strings.TrimSuffix(topic, "/"),
		ctrl:   ctrl,
		ctx:    context.Background(),
		last:   make(map[controller.Characteristic]float64),
	}
}

// Start subscribes to the set topics. Writes use ctx.
func (b *Bridge) Start(ctx context.Context) error {
	b.Lock()
	b.ctx = ctx
	b.Unlock()
	filter := b.topic + "/+/set"
	err := b.broker.Subscribe(filter, b.handleSet)
	if err != nil {
		return fmt.Errorf("error subscribing to %s: %w", filter, err)
	}
	logrus.Infof("mqtt: subscribed to %s", filter)
	return nil
}

// UpdateValue implements controller.Sink. Only changed values are published.
func (b *Bridge) UpdateValue(c controller.Characteristic, value float64) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()
	last, ok := b.last[c]
	if ok && last == value {
		return
	}

	topic := b.topic + "/" + string(c)
	err := b.broker.Publish(topic, []byte(strconv.FormatFloat(value, 'f', -1, 64)), true)
	if err != nil {
		logrus.Errorf("mqtt: error publishing %s: %s", topic, err)
		return
	}
	b.last[c] = value
}

func (b *Bridge) handleSet(topic string, payload []byte) {
	logrus.Debugf("mqtt: received %s from %s", payload, topic)

	name := strings.TrimSuffix(strings.TrimPrefix(topic, b.topic+"/"), "/set")
	if strings.Contains(name, "/") {
		logrus.Errorf("mqtt: unexpected topic '%s'", topic)
		return
	}
	c, err := controller.ParseCharacteristic(name)
	if err != nil {
		logrus.Errorf("mqtt: %s", err)
		return
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		logrus.Errorf("mqtt: invalid payload '%s' on %s", payload, topic)
		return
	}

	b.Lock()
	ctx := b.ctx
	b.Unlock()
	err = b.ctrl.Set(ctx, c, value)
	if err != nil {
		logrus.WithField("characteristic", c).Errorf("mqtt: error writing value: %s", err)
	}
}
