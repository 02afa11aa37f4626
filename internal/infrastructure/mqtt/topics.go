package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Gray Logic topic.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{address}.
const TopicPrefix = "graylogic"

// Topics provides builders for Gray Logic MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.BridgeState("mpd", "kitchen_volume")
//	// "graylogic/state/mpd/kitchen_volume"
type Topics struct{}

// BridgeState returns the topic carrying retained item state from a bridge.
//
// Example: graylogic/state/mpd/kitchen_volume
func (Topics) BridgeState(protocol, item string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, item)
}

// BridgeCommand returns the topic for commands addressed to one item.
//
// Example: graylogic/command/mpd/kitchen_volume
func (Topics) BridgeCommand(protocol, item string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, item)
}

// BridgeCommands returns the wildcard matching every command for a protocol.
//
// Pattern: graylogic/command/mpd/+
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocol)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graylogic/health/mpd
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// BridgeConfig returns the topic for runtime configuration pushed to a bridge.
//
// Example: graylogic/config/mpd
func (Topics) BridgeConfig(protocol string) string {
	return fmt.Sprintf("%s/config/%s", TopicPrefix, protocol)
}

// ItemFromTopic extracts the trailing address segment of a flat bridge topic.
// It returns false when the topic does not belong to the given category and protocol.
//
//	ItemFromTopic("graylogic/command/mpd/kitchen_volume", "command", "mpd")
//	// "kitchen_volume", true
func (Topics) ItemFromTopic(topic, category, protocol string) (string, bool) {
	prefix := fmt.Sprintf("%s/%s/%s/", TopicPrefix, category, protocol)
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	item := strings.TrimPrefix(topic, prefix)
	if item == "" || strings.Contains(item, "/") {
		return "", false
	}
	return item, true
}
