package mpd

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

const (
	commandPattern = "graylogic/command/mpd/+"
	configTopic    = "graylogic/config/mpd"
)

type testBridge struct {
	*Bridge
	mqtt   *MockMQTTClient
	dialer *fakeDialer
	sched  *fakeScheduler
	sink   *recordingPublisher
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	tb := &testBridge{
		mqtt:   NewMockMQTTClient(),
		dialer: newFakeDialer(),
		sched:  newFakeScheduler(),
		sink:   &recordingPublisher{},
	}
	tb.dialer.prepare = func(_ string, s *fakeSession) {
		s.volume = 40
		s.library = []Song{{Title: "Yesterday", Artist: "The Beatles", File: "beatles/yesterday.flac"}}
	}

	b, err := NewBridge(BridgeOptions{
		Config: Config{
			BridgeID:       "mpd-bridge-test",
			Version:        "test",
			HealthInterval: time.Hour,
		},
		MQTTClient: tb.mqtt,
		Dialer:     tb.dialer,
		Scheduler:  tb.sched,
		Bindings:   mustBindings(t, testBindings),
		Players: map[string]string{
			"kitchen.host": "10.0.0.5",
			"lounge.host":  "10.0.0.6",
		},
		Sinks: []Publisher{tb.sink},
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	tb.Bridge = b

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return tb
}

func (tb *testBridge) command(item, payload string) {
	tb.mqtt.SimulateMessage(commandPattern, "graylogic/command/mpd/"+item, []byte(payload))
}

func TestNewBridge_RequiresDependencies(t *testing.T) {
	full := BridgeOptions{
		MQTTClient: NewMockMQTTClient(),
		Dialer:     newFakeDialer(),
		Scheduler:  newFakeScheduler(),
	}

	tests := []struct {
		name   string
		mutate func(*BridgeOptions)
	}{
		{"mqtt", func(o *BridgeOptions) { o.MQTTClient = nil }},
		{"dialer", func(o *BridgeOptions) { o.Dialer = nil }},
		{"scheduler", func(o *BridgeOptions) { o.Scheduler = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := full
			tt.mutate(&opts)
			if _, err := NewBridge(opts); err == nil {
				t.Errorf("NewBridge() without %s succeeded", tt.name)
			}
		})
	}
}

func TestBridge_Start(t *testing.T) {
	tb := newTestBridge(t)

	for _, topic := range []string{commandPattern, configTopic} {
		if !tb.mqtt.HasSubscription(topic) {
			t.Errorf("not subscribed to %s", topic)
		}
	}

	players := tb.Players()
	if len(players) != 2 || !players[0].Connected || !players[1].Connected {
		t.Errorf("Players() = %+v, want kitchen and lounge connected", players)
	}

	active := tb.sched.active()
	if len(active) != 1 {
		t.Fatalf("scheduled jobs = %v, want one sweep", active)
	}
	for _, expr := range active {
		if expr != DefaultSweepSchedule {
			t.Errorf("sweep expr = %q, want %q", expr, DefaultSweepSchedule)
		}
	}

	health := tb.mqtt.PublishedTo("graylogic/health/mpd")
	if len(health) == 0 || decodeHealth(t, health[0].Payload).Status != HealthStarting {
		t.Error("starting health not published first")
	}
}

func TestBridge_CommandFromMQTT(t *testing.T) {
	tests := []struct {
		name     string
		item     string
		payload  string
		wantCall string
	}{
		{"percent volume", "kitchen_volume", `{"command":"25","type":"percent"}`, "SetVolume 25"},
		{"text increase", "kitchen_volume", "INCREASE", "SetVolume 45"},
		{"text decrease", "kitchen_volume", "decrease", "SetVolume 35"},
		{"play", "kitchen_play", "ON", "Play"},
		{"stop", "kitchen_play", "OFF", "Stop"},
		{"pause", "kitchen_pause", "ON", "Pause"},
		{"song id", "kitchen_song", `{"command":"12","type":"decimal"}`, "PlayID 12"},
		{"enable output 2", "kitchen_speakers", "ON", "EnableOutput 1"},
		{"disable output 1", "kitchen_headphones", "OFF", "DisableOutput 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBridge(t)
			tb.command(tt.item, tt.payload)

			s := tb.dialer.last("kitchen")
			eventually(t, func() bool { return slices.Contains(s.Calls(), tt.wantCall) }, tt.wantCall)
		})
	}
}

func TestBridge_PlaySongScenario(t *testing.T) {
	tb := newTestBridge(t)

	tb.command("kitchen_song", "Yesterday")

	s := tb.dialer.last("kitchen")
	want := []string{"SearchTitle Yesterday", "ClearQueue", "Enqueue beatles/yesterday.flac", "Play"}
	eventually(t, func() bool { return slices.Equal(s.Calls(), want) }, "search, clear, enqueue, play")
}

func TestBridge_HandleCommandErrors(t *testing.T) {
	tb := newTestBridge(t)
	ctx := context.Background()

	err := tb.HandleCommand(ctx, CommandMessage{Item: "kitchen_play", Command: "TOGGLE", Type: CommandString})
	if !errors.Is(err, ErrNoBinding) {
		t.Errorf("unbound command error = %v, want ErrNoBinding", err)
	}

	err = tb.HandleCommand(ctx, CommandMessage{Item: "kitchen_volume", Command: "150", Type: CommandPercent})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("percent 150 error = %v, want ErrInvalidParameter", err)
	}

	// Malformed payloads are logged and dropped without reaching a player.
	tb.command("kitchen_volume", `{"command":`)
	if calls := tb.dialer.last("kitchen").Calls(); len(calls) != 0 {
		t.Errorf("malformed command reached the daemon: %v", calls)
	}
}

func TestBridge_PublishesState(t *testing.T) {
	tb := newTestBridge(t)
	s := tb.dialer.last("kitchen")

	s.events <- Event{Kind: EventVolume, Volume: 55}

	eventually(t, func() bool {
		return len(tb.mqtt.PublishedTo("graylogic/state/mpd/kitchen_volume")) == 1
	}, "volume state published")

	msg := tb.mqtt.PublishedTo("graylogic/state/mpd/kitchen_volume")[0]
	if !msg.Retained {
		t.Error("state message not retained")
	}
	var state StateMessage
	if err := json.Unmarshal(msg.Payload, &state); err != nil {
		t.Fatal(err)
	}
	if state.PlayerID != "kitchen" || state.Action != ActionVolume || state.Value != float64(55) {
		t.Errorf("state = %+v", state)
	}

	eventually(t, func() bool { return len(tb.sink.forItem("kitchen_volume")) == 1 }, "sink received update")
}

func TestBridge_ConfigUpdateFromMQTT(t *testing.T) {
	tb := newTestBridge(t)
	oldKitchen := tb.dialer.last("kitchen")
	oldLounge := tb.dialer.last("lounge")

	tb.mqtt.SimulateMessage(configTopic, configTopic, []byte(`{"kitchen.host":"10.0.0.50","kitchen.port":6601,"service.pid":"mpd"}`))

	if !oldKitchen.isClosed() || !oldLounge.isClosed() {
		t.Error("players not disconnected before applying the update")
	}

	players := tb.Players()
	if len(players) != 1 || players[0].ID != "kitchen" || players[0].Port != 6601 || !players[0].Connected {
		t.Errorf("Players() = %+v, want only kitchen on 6601 connected", players)
	}
	if len(tb.sched.active()) != 1 {
		t.Errorf("scheduled jobs = %v, want the sweep rescheduled once", tb.sched.active())
	}
}

func TestBridge_UpdatedHoldsOffSelfHeal(t *testing.T) {
	tb := newTestBridge(t)
	ctx := context.Background()

	// A command arriving mid-update finds kitchen disconnected and tries to
	// self-heal. It must wait and connect with the new host.
	done := make(chan error, 1)
	var once sync.Once
	tb.sched.setOnCancel(func() {
		once.Do(func() {
			go func() {
				done <- tb.HandleCommand(ctx, CommandMessage{Item: "kitchen_play", Command: "ON", Type: CommandString})
			}()
			select {
			case <-done:
				t.Error("command completed while the configuration was being applied")
			case <-time.After(100 * time.Millisecond):
			}
		})
	})

	if err := tb.Updated(ctx, map[string]string{
		"kitchen.host": "10.0.0.99",
		"lounge.host":  "10.0.0.6",
	}); err != nil {
		t.Fatalf("Updated() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("HandleCommand() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never completed after the update")
	}

	hosts := tb.dialer.dialedHosts("kitchen")
	if want := []string{"10.0.0.5", "10.0.0.99"}; !slices.Equal(hosts, want) {
		t.Errorf("kitchen dialed hosts = %v, want %v", hosts, want)
	}
	live := tb.dialer.last("kitchen")
	if !slices.Contains(live.Calls(), "Play") {
		t.Errorf("live session calls = %v, want Play", live.Calls())
	}
	if p, _ := tb.Player("kitchen"); !p.Connected || p.Host != "10.0.0.99" {
		t.Errorf("Player(kitchen) = %+v, want connected to 10.0.0.99", p)
	}
}

func TestBridge_UpdatedReportsBadKeys(t *testing.T) {
	tb := newTestBridge(t)

	err := tb.Updated(context.Background(), map[string]string{
		"kitchen.host":   "10.0.0.5",
		"kitchen.volume": "50",
	})

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || !errors.Is(err, ErrUnknownConfigKey) || cfgErr.Key != "kitchen.volume" {
		t.Errorf("Updated() error = %v, want ConfigError for kitchen.volume", err)
	}
	if st, ok := tb.Player("kitchen"); !ok || !st.Connected {
		t.Error("valid keys not applied")
	}
	if _, ok := tb.Player("lounge"); ok {
		t.Error("lounge survived an update that no longer names it")
	}
}

func TestBridge_ReconnectAndReloadBindings(t *testing.T) {
	tb := newTestBridge(t)
	first := tb.dialer.last("lounge")

	if err := tb.Reconnect(context.Background(), "lounge"); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if tb.dialer.last("lounge") == first || !first.isClosed() {
		t.Error("Reconnect did not replace the session")
	}

	tb.ReloadBindings(mustBindings(t, `
items:
  lounge_volume:
    PERCENT: "lounge:VOLUME"
`))
	if err := tb.HandleCommand(context.Background(), CommandMessage{Item: "lounge_volume", Command: "30", Type: CommandPercent}); err != nil {
		t.Fatalf("HandleCommand() after reload error = %v", err)
	}
	if !slices.Contains(tb.dialer.last("lounge").Calls(), "SetVolume 30") {
		t.Error("reloaded binding not used")
	}
}

func TestBridge_Stop(t *testing.T) {
	tb := newTestBridge(t)
	kitchen := tb.dialer.last("kitchen")

	tb.Stop()
	tb.Stop()

	if !kitchen.isClosed() {
		t.Error("kitchen session not closed on Stop")
	}
	if len(tb.sched.active()) != 0 {
		t.Error("sweep still scheduled after Stop")
	}
	for _, topic := range []string{commandPattern, configTopic} {
		if tb.mqtt.HasSubscription(topic) {
			t.Errorf("still subscribed to %s after Stop", topic)
		}
	}

	health := tb.mqtt.PublishedTo("graylogic/health/mpd")
	if last := decodeHealth(t, health[len(health)-1].Payload); last.Status != HealthStopping {
		t.Errorf("last health = %s, want stopping", last.Status)
	}

	// Commands after Stop are ignored.
	tb.command("kitchen_play", "ON")
	if slices.Contains(kitchen.Calls(), "Play") {
		t.Error("command executed after Stop")
	}
}
