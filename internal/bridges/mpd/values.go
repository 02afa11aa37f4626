package mpd

import (
	"strconv"
	"time"
)

// ValueKind identifies which field of a Value is meaningful.
type ValueKind string

// Value kinds published to the bus.
const (
	KindOnOff   ValueKind = "onoff"
	KindPercent ValueKind = "percent"
	KindText    ValueKind = "text"
	KindDecimal ValueKind = "decimal"
)

// Value is a typed item state: OnOff, Percent, Text or Decimal.
type Value struct {
	Kind   ValueKind
	On     bool
	Number int
	Text   string
}

// OnOff returns an on/off value.
func OnOff(on bool) Value { return Value{Kind: KindOnOff, On: on} }

// Percent returns a 0..100 value.
func Percent(p int) Value { return Value{Kind: KindPercent, Number: p} }

// Text returns a free text value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Decimal returns a numeric value.
func Decimal(n int) Value { return Value{Kind: KindDecimal, Number: n} }

// String renders the value the way it is published on the bus.
func (v Value) String() string {
	switch v.Kind {
	case KindOnOff:
		if v.On {
			return "ON"
		}
		return "OFF"
	case KindPercent, KindDecimal:
		return strconv.Itoa(v.Number)
	default:
		return v.Text
	}
}

// JSONValue returns the value as it appears in a state message.
func (v Value) JSONValue() any {
	switch v.Kind {
	case KindOnOff:
		return v.String()
	case KindPercent, KindDecimal:
		return v.Number
	default:
		return v.Text
	}
}

// Update is one item state change produced by the event translator.
type Update struct {
	Item      string
	PlayerID  string
	Action    Action
	Value     Value
	Timestamp time.Time
}
