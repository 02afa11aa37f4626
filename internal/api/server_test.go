package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-mpd/internal/bridges/mpd"
	"github.com/nerrad567/gray-logic-mpd/internal/history"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/logging"
	_ "github.com/nerrad567/gray-logic-mpd/migrations" // registers the schema
)

// fakeBridge serves canned player status and records reconnects.
type fakeBridge struct {
	mu           sync.Mutex
	players      []mpd.PlayerStatus
	reconnectErr error
	reconnects   []string
}

func (b *fakeBridge) Players() []mpd.PlayerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]mpd.PlayerStatus(nil), b.players...)
}

func (b *fakeBridge) Player(id string) (mpd.PlayerStatus, bool) {
	for _, p := range b.Players() {
		if p.ID == id {
			return p, true
		}
	}
	return mpd.PlayerStatus{}, false
}

func (b *fakeBridge) Reconnect(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnects = append(b.reconnects, id)
	if b.reconnectErr != nil {
		return b.reconnectErr
	}
	for _, p := range b.players {
		if p.ID == id {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", mpd.ErrUnknownPlayer, id)
}

type failingHistory struct{}

func (failingHistory) ListByItem(context.Context, string, int) ([]history.Entry, error) {
	return nil, errors.New("disk on fire")
}

func (failingHistory) ListByPlayer(context.Context, string, int) ([]history.Entry, error) {
	return nil, errors.New("disk on fire")
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func newTestBridge() *fakeBridge {
	return &fakeBridge{players: []mpd.PlayerStatus{
		{ID: "kitchen", Host: "10.0.0.5", Port: 6600, Connected: true},
		{ID: "lounge", Host: "10.0.0.6", Port: 6600},
	}}
}

func testServer(t *testing.T, mutate func(*Deps)) (*Server, http.Handler) {
	t.Helper()
	deps := Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:  testLogger(),
		Bridge:  newTestBridge(),
		Version: "test",
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Bridge: newTestBridge()}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without bridge succeeded")
	}
}

func TestHealth(t *testing.T) {
	_, h := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthCheck{
			"mqtt": func(context.Context) error { return nil },
		}
	})

	rec := do(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Players.Total != 2 || resp.Players.Connected != 1 {
		t.Errorf("players = %+v, want 1 of 2", resp.Players)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded while lounge is down", resp.Status)
	}
	if resp.Components["mqtt"] != "ok" {
		t.Errorf("components = %v", resp.Components)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q", resp.Version)
	}
}

func TestHealth_FailingComponent(t *testing.T) {
	_, h := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthCheck{
			"database": func(context.Context) error { return errors.New("locked") },
		}
	})

	rec := do(t, h, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Components["database"] != "locked" {
		t.Errorf("components = %v", resp.Components)
	}
}

func TestRequestID(t *testing.T) {
	_, h := testServer(t, nil)

	rec := do(t, h, http.MethodGet, "/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("no request ID generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want the client's", got)
	}
}

func TestPlayers(t *testing.T) {
	_, h := testServer(t, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/players")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decode[struct {
		Players []mpd.PlayerStatus `json:"players"`
		Count   int                `json:"count"`
	}](t, rec)
	if list.Count != 2 || list.Players[0].ID != "kitchen" {
		t.Errorf("players = %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/players/kitchen")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET kitchen status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("player status exposes a password field")
	}

	rec = do(t, h, http.MethodGet, "/api/v1/players/garage")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET garage status = %d, want 404", rec.Code)
	}
}

func TestReconnectPlayer(t *testing.T) {
	tests := []struct {
		name       string
		player     string
		err        error
		wantStatus int
	}{
		{"success", "kitchen", nil, http.StatusOK},
		{"unknown player", "garage", nil, http.StatusNotFound},
		{"daemon down", "kitchen", fmt.Errorf("%w: 10.0.0.5:6600", mpd.ErrConnectionFailed), http.StatusBadGateway},
		{"unexpected", "kitchen", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := newTestBridge()
			bridge.reconnectErr = tt.err
			_, h := testServer(t, func(d *Deps) { d.Bridge = bridge })

			rec := do(t, h, http.MethodPost, "/api/v1/players/"+tt.player+"/reconnect")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if len(bridge.reconnects) != 1 || bridge.reconnects[0] != tt.player {
				t.Errorf("reconnects = %v", bridge.reconnects)
			}
		})
	}
}

func TestItemHistory(t *testing.T) {
	db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	repo := history.NewRepository(db.DB)

	ctx := context.Background()
	base := time.Now().Add(-time.Minute)
	for i, v := range []int{30, 40, 50} {
		err := repo.Record(ctx, mpd.Update{
			Item: "kitchen_volume", PlayerID: "kitchen", Action: mpd.ActionVolume,
			Value: mpd.Percent(v), Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	_, h := testServer(t, func(d *Deps) { d.History = repo })

	rec := do(t, h, http.MethodGet, "/api/v1/items/kitchen_volume/history?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Item    string          `json:"item"`
		Entries []history.Entry `json:"entries"`
		Count   int             `json:"count"`
	}](t, rec)
	if body.Count != 2 || body.Entries[0].Value != "50" || body.Entries[1].Value != "40" {
		t.Errorf("history = %+v", body)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/items/unknown_item/history")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"entries":[]`) {
		t.Errorf("empty history = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/items/kitchen_volume/history?limit=zero")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestPlayerHistory(t *testing.T) {
	db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	repo := history.NewRepository(db.DB)

	ctx := context.Background()
	base := time.Now().Add(-time.Minute)
	updates := []mpd.Update{
		{Item: "kitchen_volume", PlayerID: "kitchen", Action: mpd.ActionVolume, Value: mpd.Percent(30)},
		{Item: "kitchen_play", PlayerID: "kitchen", Action: mpd.ActionPlay, Value: mpd.OnOff(true)},
		{Item: "lounge_play", PlayerID: "lounge", Action: mpd.ActionPlay, Value: mpd.OnOff(true)},
	}
	for i, u := range updates {
		u.Timestamp = base.Add(time.Duration(i) * time.Second)
		if err := repo.Record(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	_, h := testServer(t, func(d *Deps) { d.History = repo })

	rec := do(t, h, http.MethodGet, "/api/v1/players/kitchen/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		PlayerID string          `json:"player_id"`
		Entries  []history.Entry `json:"entries"`
		Count    int             `json:"count"`
	}](t, rec)
	if body.PlayerID != "kitchen" || body.Count != 2 || body.Entries[0].Item != "kitchen_play" {
		t.Errorf("history = %+v, want kitchen's two updates newest first", body)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/players/garage/history"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown player status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/players/kitchen/history?limit=-3"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	_, h = testServer(t, func(d *Deps) { d.History = failingHistory{} })
	if rec := do(t, h, http.MethodGet, "/api/v1/players/kitchen/history"); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing history status = %d, want 500", rec.Code)
	}
}

func TestItemHistory_Unavailable(t *testing.T) {
	_, h := testServer(t, nil)
	if rec := do(t, h, http.MethodGet, "/api/v1/items/kitchen_volume/history"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled history status = %d, want 503", rec.Code)
	}

	_, h = testServer(t, func(d *Deps) { d.History = failingHistory{} })
	if rec := do(t, h, http.MethodGet, "/api/v1/items/kitchen_volume/history"); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing history status = %d, want 500", rec.Code)
	}
}

func dialWS(t *testing.T, h http.Handler) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("reading websocket message: %v", err)
	}
	return msg
}

func TestWebSocket_StreamsUpdates(t *testing.T) {
	srv, h := testServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Hub().Run(ctx)

	ws := dialWS(t, h)

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelItemUpdated + ":kitchen_volume"}},
	}); err != nil {
		t.Fatal(err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	// Not subscribed to this item; must not arrive.
	//nolint:errcheck // hub publish never fails
	srv.Hub().Publish(ctx, mpd.Update{Item: "kitchen_title", PlayerID: "kitchen", Action: mpd.ActionTrackInfo, Value: mpd.Text("Help!")})
	//nolint:errcheck // hub publish never fails
	srv.Hub().Publish(ctx, mpd.Update{Item: "kitchen_volume", PlayerID: "kitchen", Action: mpd.ActionVolume, Value: mpd.Percent(55)})

	msg := readWS(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelItemUpdated {
		t.Fatalf("event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["item"] != "kitchen_volume" || payload["value"] != float64(55) {
		t.Errorf("payload = %v", msg.Payload)
	}

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	if pong := readWS(t, ws); pong.Type != WSTypePong || pong.ID != "p1" {
		t.Errorf("pong = %+v", pong)
	}

	if err := ws.WriteJSON(WSMessage{Type: "shout"}); err != nil {
		t.Fatal(err)
	}
	if e := readWS(t, ws); e.Type != WSTypeError {
		t.Errorf("unknown type response = %+v", e)
	}
}

func TestServer_StartClose(t *testing.T) {
	srv, _ := testServer(t, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
