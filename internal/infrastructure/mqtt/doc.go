// Package mqtt provides the bus connection for the MPD bridge.
//
// The Gray Logic bus is an MQTT broker. The bridge subscribes to command
// topics, publishes retained item state and announces its own liveness
// through a status topic guarded by a Last Will and Testament.
//
//	Gray Logic Core ↔ MQTT Broker ↔ MPD bridge ↔ MPD daemons
//
// This package manages:
//   - Connection with auto-reconnect and subscription restoration
//   - Publishing with QoS and payload size validation
//   - Subscriptions with panic-safe handlers
//   - Topic builders for the flat graylogic/{category}/{protocol}/{address} scheme
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{}.BridgeHealth("mpd"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("mpd"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
