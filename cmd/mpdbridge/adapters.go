package main

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-mpd/internal/bridges/mpd"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/mqtt"
)

// mqttAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
//   - Infrastructure mqtt: func(topic, payload []byte) error
//   - MPD bridge expects: func(topic, payload []byte)
type mqttAdapter struct {
	client *mqtt.Client
}

func (a *mqttAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

func (a *mqttAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// pointWriter is the subset of the InfluxDB client the sink writes through.
type pointWriter interface {
	WriteItemUpdate(item, playerID, action, kind, value string, at time.Time)
	WriteVolume(playerID string, percent int)
	WritePlayState(playerID string, playing bool)
}

// influxSink records published updates as InfluxDB points.
//
// One change reaches the sink once per bound item, all with the same
// timestamp. Per-player measurements are written for the first of those
// updates only.
type influxSink struct {
	client pointWriter

	mu   sync.Mutex
	last map[string]time.Time
}

func newInfluxSink(client pointWriter) *influxSink {
	return &influxSink{client: client, last: make(map[string]time.Time)}
}

var _ pointWriter = (*influxdb.Client)(nil)

// Publish implements mpd.Publisher. Writes are batched by the client and
// never fail synchronously.
func (s *influxSink) Publish(_ context.Context, u mpd.Update) error {
	s.client.WriteItemUpdate(u.Item, u.PlayerID, u.Action.String(), string(u.Value.Kind), u.Value.String(), u.Timestamp)

	switch {
	case u.Action == mpd.ActionVolume && u.Value.Kind == mpd.KindPercent:
		if s.first(u, influxdb.MeasurementVolume) {
			s.client.WriteVolume(u.PlayerID, u.Value.Number)
		}
	case (u.Action == mpd.ActionPlay || u.Action == mpd.ActionStop) && u.Value.Kind == mpd.KindOnOff:
		// PLAY items carry ON when playback starts, STOP items carry OFF
		// when it pauses or stops.
		if s.first(u, influxdb.MeasurementPlayState) {
			s.client.WritePlayState(u.PlayerID, u.Value.On)
		}
	}
	return nil
}

// first reports whether u is the first update of its change for the
// player's measurement. Updates without a timestamp are always written.
func (s *influxSink) first(u mpd.Update, measurement string) bool {
	if u.Timestamp.IsZero() {
		return true
	}
	key := u.PlayerID + "/" + measurement

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last[key].Equal(u.Timestamp) {
		return false
	}
	s.last[key] = u.Timestamp
	return true
}
