package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementVolume     = "mpd_volume"
	MeasurementPlayState  = "mpd_play_state"
	MeasurementItemUpdate = "mpd_item_update"
)

// WriteVolume records a player's volume percentage.
func (c *Client) WriteVolume(playerID string, percent int) {
	c.WritePointWithTime(MeasurementVolume,
		map[string]string{"player_id": playerID},
		map[string]any{"percent": percent},
		time.Now(),
	)
}

// WritePlayState records whether a player is playing.
func (c *Client) WritePlayState(playerID string, playing bool) {
	c.WritePointWithTime(MeasurementPlayState,
		map[string]string{"player_id": playerID},
		map[string]any{"playing": playing},
		time.Now(),
	)
}

// WriteItemUpdate records one published bus update.
//
// Parameters:
//   - item, playerID, action: indexed tags
//   - kind: value type ("onoff", "percent", "text", "decimal")
//   - value: the rendered value
func (c *Client) WriteItemUpdate(item, playerID, action, kind, value string, at time.Time) {
	c.WritePointWithTime(MeasurementItemUpdate,
		map[string]string{
			"item":      item,
			"player_id": playerID,
			"action":    action,
		},
		map[string]any{
			"value_kind": kind,
			"value":      value,
		},
		at,
	)
}

// WritePointWithTime writes an arbitrary point. Dropped when not connected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
