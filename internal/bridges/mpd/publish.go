package mpd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/mqtt"
)

// Fanout publishes every update to each of its publishers.
// A failing publisher does not stop the others.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, u Update) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// statePublisher publishes retained item state to MQTT.
type statePublisher struct {
	client MQTTClient
	qos    byte
	topics mqtt.Topics
}

// Publish implements Publisher.
func (p *statePublisher) Publish(_ context.Context, u Update) error {
	payload, err := json.Marshal(NewStateMessage(u))
	if err != nil {
		return fmt.Errorf("marshalling state for %s: %w", u.Item, err)
	}
	return p.client.Publish(p.topics.BridgeState(Protocol, u.Item), payload, p.qos, true)
}
