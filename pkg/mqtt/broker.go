package mqtt

// Handler receives messages for a subscription.
type Handler func(topic string, payload []byte)

// Broker is the part of an MQTT connection the bridge needs. It is served by the
// embedded broker or by a client connected to an external one.
type Broker interface {
	Publish(topic string, payload []byte, retain bool) error
	Subscribe(filter string, handler Handler) error
	Close() error
}
