package mpd

import (
	"context"
	"time"
)

// Bindings resolves which items receive updates for a player action.
type Bindings interface {
	ItemsFor(playerID string, action Action) []string

	// ItemsForOutput matches output bindings by their 1-based index.
	ItemsForOutput(playerID string, action Action, output int) []string
}

// Publisher delivers item updates to the bus.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Translator turns daemon notifications into item updates, dropping
// play-state and song notifications that repeat the cached value.
//
// It never reconnects players; it only talks to the session that
// delivered the event.
type Translator struct {
	loggable

	registry  *Registry
	bindings  Bindings
	publisher Publisher
	now       func() time.Time
}

// NewTranslator creates a translator.
func NewTranslator(registry *Registry, bindings Bindings, publisher Publisher) *Translator {
	return &Translator{
		registry:  registry,
		bindings:  bindings,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleEvent implements EventSink.
func (t *Translator) HandleEvent(ctx context.Context, s Session, ev Event) {
	switch ev.Kind {
	case EventPlayState:
		t.checkSong(ctx, s, ev.PlayerID)
		t.handlePlayState(ctx, ev)
	case EventTrackPosition:
		t.checkSong(ctx, s, ev.PlayerID)
	case EventVolume:
		t.handleVolume(ctx, ev)
	case EventOutput:
		t.handleOutputs(ctx, s, ev.PlayerID)
	default:
		t.logWarn("unknown event kind", "player_id", ev.PlayerID, "kind", ev.Kind)
	}
}

func (t *Translator) handlePlayState(ctx context.Context, ev Event) {
	playing := ev.Status.Playing()
	if !t.registry.SwapPlayState(ev.PlayerID, playing) {
		return
	}

	t.logDebug("play state changed", "player_id", ev.PlayerID, "status", ev.Status)
	if playing {
		t.broadcast(ctx, ev.PlayerID, ActionPlay, t.bindings.ItemsFor(ev.PlayerID, ActionPlay), OnOff(true))
		return
	}
	t.broadcast(ctx, ev.PlayerID, ActionStop, t.bindings.ItemsFor(ev.PlayerID, ActionStop), OnOff(false))
}

// checkSong publishes title, artist and song id when the current song
// differs from the cached one.
func (t *Translator) checkSong(ctx context.Context, s Session, playerID string) {
	song, err := s.CurrentSong(ctx)
	if err != nil {
		t.logWarn("failed to read current song", "player_id", playerID, "error", err)
		return
	}

	var title, artist string
	if song != nil {
		title, artist = song.Title, song.Artist
	}
	if !t.registry.SwapSong(playerID, title, artist) {
		return
	}

	t.broadcast(ctx, playerID, ActionTrackInfo, t.bindings.ItemsFor(playerID, ActionTrackInfo), Text(title))
	t.broadcast(ctx, playerID, ActionTrackArtist, t.bindings.ItemsFor(playerID, ActionTrackArtist), Text(artist))
	if song != nil {
		t.broadcast(ctx, playerID, ActionPlaySongID, t.bindings.ItemsFor(playerID, ActionPlaySongID), Decimal(song.ID))
	}
}

func (t *Translator) handleVolume(ctx context.Context, ev Event) {
	if ev.Volume < minVolume || ev.Volume > maxVolume {
		t.logWarn("volume out of range, ignoring", "player_id", ev.PlayerID, "volume", ev.Volume)
		return
	}
	t.broadcast(ctx, ev.PlayerID, ActionVolume, t.bindings.ItemsFor(ev.PlayerID, ActionVolume), Percent(ev.Volume))
}

// handleOutputs republishes the state of every output. Outputs are not
// deduplicated.
func (t *Translator) handleOutputs(ctx context.Context, s Session, playerID string) {
	outputs, err := s.Outputs(ctx)
	if err != nil {
		t.logWarn("failed to list outputs", "player_id", playerID, "error", err)
		return
	}

	for _, o := range outputs {
		action := ActionDisable
		if o.Enabled {
			action = ActionEnable
		}
		items := t.bindings.ItemsForOutput(playerID, action, o.ID+1)
		t.broadcast(ctx, playerID, action, items, OnOff(o.Enabled))
	}
}

// broadcast publishes value to every item. All updates of one broadcast
// share a timestamp.
func (t *Translator) broadcast(ctx context.Context, playerID string, action Action, items []string, value Value) {
	at := t.now()
	for _, item := range items {
		if item == "" {
			continue
		}
		u := Update{
			Item:      item,
			PlayerID:  playerID,
			Action:    action,
			Value:     value,
			Timestamp: at,
		}
		if err := t.publisher.Publish(ctx, u); err != nil {
			t.logWarn("failed to publish update",
				"item", item,
				"player_id", playerID,
				"action", action,
				"error", err)
		}
	}
}
