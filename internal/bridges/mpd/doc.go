// Package mpd implements the Music Player Daemon bridge for Gray Logic.
//
// The bridge connects Gray Logic items to one or more MPD servers. Bus
// commands are resolved through item bindings to a player and an action,
// then executed against that player's daemon session. Daemon idle
// notifications are translated back into item state updates.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Gray Logic    │   MQTT   │   MPD Bridge    │   TCP
//	│      Core       │◄────────►│   (this pkg)    │◄────────► mpd (n)
//	└─────────────────┘          └─────────────────┘
//
// # Components
//
//   - Registry: player configuration, live sessions, dedup caches
//   - Supervisor: connect, disconnect, reconnect and the periodic sweep
//   - Dispatcher: maps an action and parameter onto a daemon operation
//   - Translator: turns daemon notifications into deduplicated updates
//   - Bindings: item name to player/action resolution, loaded from YAML
//
// # Bindings
//
// Each item maps raw bus commands to a target of the form
// playerId:action[:param]. Output bindings carry the 1-based output index:
//
//	items:
//	  kitchen_volume:
//	    PERCENT: "kitchen:VOLUME"
//	    INCREASE: "kitchen:VOLUME_INCREASE"
//	  kitchen_title:
//	    "-": "kitchen:TRACKINFO"
//	  kitchen_speakers:
//	    ON: "kitchen:ENABLE:1"
//	    OFF: "kitchen:DISABLE:1"
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
// Each connected player has a single notification worker, so updates for one
// player are published in order.
//
// # References
//
//   - MPD protocol: https://mpd.readthedocs.io/en/latest/protocol.html
package mpd
