package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscription is a live topic subscription returned by Subscribe.
// It stays registered across reconnects until Cancel is called.
type Subscription struct {
	c     *Client
	topic string

	once sync.Once
	err  error
}

// Topic returns the subscribed topic filter.
func (s *Subscription) Topic() string {
	return s.topic
}

// Cancel stops redelivery after reconnects and unsubscribes at the broker
// when the connection is up. Only the first call does any work; later
// calls return the first result.
//
// Returns:
//   - error: nil once unsubscribed or when offline, ErrSubscribeFailed
//     wrapping the broker error otherwise
func (s *Subscription) Cancel() error {
	s.once.Do(func() {
		s.err = s.c.unsubscribe(s.topic)
	})
	return s.err
}

// Subscribe registers handler for messages matching topic, which may
// contain the + and # wildcards.
//
// Parameters:
//   - topic: Topic filter, for example Topics.CommandStop()
//   - qos: Quality of Service level (0, 1, or 2)
//   - handler: Called once per message; errors and panics are logged
//
// Returns:
//   - *Subscription: Handle used to cancel the subscription
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) (*Subscription, error) {
	switch {
	case topic == "":
		return nil, ErrInvalidTopic
	case qos > maxQoS:
		return nil, ErrInvalidQoS
	case handler == nil:
		return nil, fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	case !c.IsConnected():
		return nil, ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		c.forget(topic)
		return nil, err
	}
	return &Subscription{c: c, topic: topic}, nil
}

// unsubscribe drops topic from the reconnect set and tells the broker.
// A disconnected client has nothing to tell: the clean session discards
// the subscription on the broker side anyway.
func (c *Client) unsubscribe(topic string) error {
	c.forget(topic)
	if !c.IsConnected() {
		return nil
	}
	return await(c.client.Unsubscribe(topic), ErrSubscribeFailed)
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// await waits for a paho token and wraps any failure in sentinel.
func await(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
