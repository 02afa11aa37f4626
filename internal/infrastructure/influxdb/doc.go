// Package influxdb records MPD player telemetry in InfluxDB v2.
//
// Writes are non-blocking and batched by the official client; failures
// arrive asynchronously through the SetOnError callback. Measurements:
//
//	mpd_volume       tags: player_id            fields: percent
//	mpd_play_state   tags: player_id            fields: playing
//	mpd_item_update  tags: item, player_id, action   fields: value_kind, value
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//	client.WriteVolume("kitchen", 40)
package influxdb
