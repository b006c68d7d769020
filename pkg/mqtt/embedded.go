package mqtt

import (
	"context"
	"sync"

	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/sirupsen/logrus"
)

// Embedded is an in process broker. The bridge talks to it through the inline client.
type Embedded struct {
	server *mqttv2.Server

	mu    sync.Mutex
	subID int
}

// StartEmbedded starts a broker listening on address and closes it when ctx is done.
func StartEmbedded(ctx context.Context, wg *sync.WaitGroup, address string) (*Embedded, error) {
	server := mqttv2.New(&mqttv2.Options{
		InlineClient: true,
	})

	// Allow all connections.
	_ = server.AddHook(new(auth.AllowHook), nil)

	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: address})
	err := server.AddListener(tcp)
	if err != nil {
		return nil, err
	}

	err = server.Serve()
	if err != nil {
		return nil, err
	}
	logrus.Infof("mqtt: embedded broker listening on %s", tcp.Address())

	wg.Add(1)
	go func() {
		<-ctx.Done()
		server.Close()
		wg.Done()
	}()
	return &Embedded{server: server}, nil
}

func (e *Embedded) Publish(topic string, payload []byte, retain bool) error {
	return e.server.Publish(topic, payload, retain, 0)
}

func (e *Embedded) Subscribe(filter string, handler Handler) error {
	e.mu.Lock()
	e.subID++
	id := e.subID
	e.mu.Unlock()
	return e.server.Subscribe(filter, id, func(cl *mqttv2.Client, sub packets.Subscription, pk packets.Packet) {
		handler(pk.TopicName, pk.Payload)
	})
}

func (e *Embedded) Close() error {
	return e.server.Close()
}
