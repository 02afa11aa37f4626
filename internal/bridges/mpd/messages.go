package mpd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Protocol is the protocol segment of every MPD bridge topic.
const Protocol = "mpd"

// MQTT message types exchanged between Gray Logic Core and the MPD bridge.

// CommandType is the type of value carried by a command.
type CommandType string

const (
	// CommandPercent carries a 0..100 value and resolves through the PERCENT key.
	CommandPercent CommandType = "percent"

	// CommandDecimal carries a number and resolves through the NUMBER key.
	CommandDecimal CommandType = "decimal"

	// CommandString carries a text token (ON, OFF, INCREASE, ...) that is
	// resolved through the binding of the same name.
	CommandString CommandType = "string"
)

// CommandMessage is sent from Core to the bridge for one item.
// Topic: graylogic/command/mpd/{item}
//
// A payload that is not a JSON object is treated as a string command.
type CommandMessage struct {
	// ID correlates the command in logs. Generated when absent.
	ID string `json:"id,omitempty"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp,omitzero"`

	// Item is the target item. The topic is authoritative.
	Item string `json:"item,omitempty"`

	// Command is the command value: a number for percent and decimal
	// commands, otherwise a token.
	Command string `json:"command"`

	// Type selects how Command is interpreted. Default: string.
	Type CommandType `json:"type,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// ParseCommandMessage decodes a command payload received for item.
func ParseCommandMessage(item string, payload []byte) (CommandMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return CommandMessage{}, fmt.Errorf("%w: empty command", ErrInvalidMessage)
	}

	var msg CommandMessage
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return CommandMessage{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
	} else {
		msg.Command = string(trimmed)
	}

	if msg.Item != "" && msg.Item != item {
		return CommandMessage{}, fmt.Errorf("%w: item %q does not match topic item %q", ErrInvalidMessage, msg.Item, item)
	}
	msg.Item = item
	msg.Command = strings.TrimSpace(msg.Command)
	if msg.Command == "" {
		return CommandMessage{}, fmt.Errorf("%w: missing command", ErrInvalidMessage)
	}

	switch msg.Type {
	case "":
		msg.Type = CommandString
	case CommandPercent, CommandDecimal, CommandString:
	default:
		return CommandMessage{}, fmt.Errorf("%w: unknown command type %q", ErrInvalidMessage, msg.Type)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg, nil
}

// RawCommand returns the binding key for the command and the parameter
// its value supplies. Percent values must lie in 0..100.
func (m CommandMessage) RawCommand() (raw, param string, err error) {
	switch m.Type {
	case CommandPercent:
		n, err := parseNumber(m.Command)
		if err != nil || n < 0 || n > 100 {
			return "", "", fmt.Errorf("%w: percent %q", ErrInvalidParameter, m.Command)
		}
		return RawPercent, strconv.Itoa(n), nil
	case CommandDecimal:
		n, err := parseNumber(m.Command)
		if err != nil {
			return "", "", fmt.Errorf("%w: number %q", ErrInvalidParameter, m.Command)
		}
		return RawNumber, strconv.Itoa(n), nil
	default:
		return m.Command, "", nil
	}
}

// parseNumber accepts integers and integral decimals such as "40.0"
// within the int32 range.
func parseNumber(s string) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	return int(f), nil
}

// StateMessage is sent from the bridge to Core when an item changes.
// Topic: graylogic/state/mpd/{item}
// QoS: 1, Retained: Yes
type StateMessage struct {
	Item      string    `json:"item"`
	PlayerID  string    `json:"player_id"`
	Action    Action    `json:"action"`
	Kind      ValueKind `json:"kind"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`
}

// NewStateMessage builds the state message for an update.
func NewStateMessage(u Update) StateMessage {
	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return StateMessage{
		Item:      u.Item,
		PlayerID:  u.PlayerID,
		Action:    u.Action,
		Kind:      u.Value.Kind,
		Value:     u.Value.JSONValue(),
		Timestamp: ts,
		Protocol:  Protocol,
	}
}

// ParseConfigMessage decodes a flat player configuration pushed on
// graylogic/config/mpd. Numeric values are accepted for ports.
func ParseConfigMessage(payload []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	flat := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			flat[k] = val
		case json.Number:
			flat[k] = val.String()
		default:
			return nil, fmt.Errorf("%w: key %q must be a string or number", ErrInvalidMessage, k)
		}
	}
	return flat, nil
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates every configured player is connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates MQTT or at least one player is disconnected.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is initialising.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published periodically by the bridge.
// Topic: graylogic/health/mpd
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Players       PlayerCounts `json:"players"`
}

// PlayerCounts summarises player connectivity.
type PlayerCounts struct {
	Total     int `json:"total"`
	Connected int `json:"connected"`
}

// NewHealthMessage creates a health message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, counts PlayerCounts, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Players:       counts,
	}
}
