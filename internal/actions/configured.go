package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
)

// Publisher sends a message to an MQTT topic.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// RegisterConfigured adds every action declared in cfgs to r. pub may be
// nil when no mqtt actions are declared.
func RegisterConfigured(r *Registry, cfgs []config.ActionConfig, pub Publisher, qos byte) error {
	for _, c := range cfgs {
		fn, err := configuredFunc(c, pub, qos)
		if err != nil {
			return fmt.Errorf("action %q: %w", c.Name, err)
		}
		if err := r.Register(c.Name, fn); err != nil {
			return err
		}
	}
	return nil
}

func configuredFunc(c config.ActionConfig, pub Publisher, qos byte) (Func, error) {
	switch c.Type {
	case config.ActionTypeMQTT:
		if pub == nil {
			return nil, fmt.Errorf("%w: mqtt action needs mqtt enabled", ErrInvalidAction)
		}
		if c.Topic == "" {
			return nil, fmt.Errorf("%w: mqtt action needs a topic", ErrInvalidAction)
		}
		topic, payload, retained := c.Topic, []byte(c.Payload), c.Retained
		return func(context.Context) error {
			if err := pub.Publish(topic, payload, qos, retained); err != nil {
				return fmt.Errorf("publishing to %q: %w", topic, err)
			}
			return nil
		}, nil

	case config.ActionTypePause:
		d := c.Duration
		return func(ctx context.Context) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, c.Type)
	}
}
