package mpd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default daemon connection settings.
const (
	DefaultHost = "localhost"
	DefaultPort = 6600
)

const redacted = "[REDACTED]"

// PlayerConfig identifies one daemon.
//
// Password is a plaintext secret. String, LogValue and MarshalJSON redact it.
type PlayerConfig struct {
	ID       string
	Host     string
	Port     int
	Password string
}

// Address returns host:port suitable for net.Dial.
func (c PlayerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c PlayerConfig) String() string {
	if c.Password == "" {
		return fmt.Sprintf("%s@%s", c.ID, c.Address())
	}
	return fmt.Sprintf("%s@%s (password %s)", c.ID, c.Address(), redacted)
}

// LogValue implements slog.LogValuer.
func (c PlayerConfig) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", c.ID),
		slog.String("address", c.Address()),
	}
	if c.Password != "" {
		attrs = append(attrs, slog.String("password", redacted))
	}
	return slog.GroupValue(attrs...)
}

// MarshalJSON implements json.Marshaler.
func (c PlayerConfig) MarshalJSON() ([]byte, error) {
	out := struct {
		ID       string `json:"id"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Password string `json:"password,omitempty"`
	}{ID: c.ID, Host: c.Host, Port: c.Port}
	if c.Password != "" {
		out.Password = redacted
	}
	return json.Marshal(out)
}

type songKey struct {
	title  string
	artist string
}

// playerEntry holds everything the bridge knows about one player.
type playerEntry struct {
	// lifecycle serialises connect, disconnect and reconnect.
	lifecycle sync.Mutex

	// mu guards the fields below.
	mu          sync.RWMutex
	cfg         PlayerConfig
	session     Session
	sessionID   string
	connectedAt time.Time

	hasPlayState bool
	playing      bool
	song         *songKey
}

// PlayerStatus is a point-in-time view of a player, safe to expose.
type PlayerStatus struct {
	ID          string    `json:"id"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Connected   bool      `json:"connected"`
	SessionID   string    `json:"session_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitzero"`
	Playing     *bool     `json:"playing,omitempty"`
	Title       string    `json:"title,omitempty"`
	Artist      string    `json:"artist,omitempty"`
}

// Registry holds player configuration, live sessions and dedup caches.
//
// Thread Safety: All methods are safe for concurrent use. Locking is per
// player; the registry lock only guards the set of players.
type Registry struct {
	mu      sync.RWMutex
	players map[string]*playerEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*playerEntry)}
}

func (r *Registry) entry(playerID string) (*playerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.players[playerID]
	return e, ok
}

// Upsert creates or replaces a player's configuration.
// A live session is left untouched.
func (r *Registry) Upsert(cfg PlayerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.players[cfg.ID]; ok {
		e.mu.Lock()
		e.cfg = cfg
		e.mu.Unlock()
		return
	}
	r.players[cfg.ID] = &playerEntry{cfg: cfg}
}

// Get returns a player's configuration.
func (r *Registry) Get(playerID string) (PlayerConfig, bool) {
	e, ok := r.entry(playerID)
	if !ok {
		return PlayerConfig{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, true
}

// Session returns the player's live session, if any.
func (r *Registry) Session(playerID string) (Session, bool) {
	e, ok := r.entry(playerID)
	if !ok {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session, e.session != nil
}

// SetSession installs or clears (nil) the player's session.
// Installing over an existing session returns ErrSessionExists.
func (r *Registry) SetSession(playerID string, s Session) error {
	e, ok := r.entry(playerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if s == nil {
		e.session = nil
		e.sessionID = ""
		e.connectedAt = time.Time{}
		return nil
	}
	if e.session != nil {
		return fmt.Errorf("%w: %s", ErrSessionExists, playerID)
	}
	e.session = s
	e.sessionID = uuid.NewString()
	e.connectedAt = time.Now().UTC()
	return nil
}

// PlayerIDs returns all configured player IDs in sorted order.
func (r *Registry) PlayerIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of configured players.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Replace applies a full configuration. Players missing from cfgs are
// removed unless they still hold a session; those are kept and reported
// with ErrSessionExists.
func (r *Registry) Replace(cfgs map[string]PlayerConfig) error {
	var errs []error

	r.mu.Lock()
	for id, e := range r.players {
		if _, keep := cfgs[id]; keep {
			continue
		}
		e.mu.RLock()
		live := e.session != nil
		e.mu.RUnlock()
		if live {
			errs = append(errs, fmt.Errorf("removing player: %w: %s", ErrSessionExists, id))
			continue
		}
		delete(r.players, id)
	}
	r.mu.Unlock()

	for _, cfg := range cfgs {
		r.Upsert(cfg)
	}

	return errors.Join(errs...)
}

// SwapPlayState records the player's play state and reports whether it
// differs from the cached value. A player with no cached state always
// reports a change.
func (r *Registry) SwapPlayState(playerID string, playing bool) bool {
	e, ok := r.entry(playerID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasPlayState && e.playing == playing {
		return false
	}
	e.hasPlayState = true
	e.playing = playing
	return true
}

// SwapSong records the current song and reports whether it differs from
// the cached one. A missing cache entry compares as an empty title and artist.
func (r *Registry) SwapSong(playerID, title, artist string) bool {
	e, ok := r.entry(playerID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	current := songKey{}
	if e.song != nil {
		current = *e.song
	}
	next := songKey{title: title, artist: artist}
	if current == next {
		return false
	}
	e.song = &next
	return true
}

// ResetCaches forgets the player's cached play state and song.
func (r *Registry) ResetCaches(playerID string) {
	e, ok := r.entry(playerID)
	if !ok {
		return
	}
	e.mu.Lock()
	e.hasPlayState = false
	e.playing = false
	e.song = nil
	e.mu.Unlock()
}

// Snapshot returns the status of every player, sorted by ID.
func (r *Registry) Snapshot() []PlayerStatus {
	ids := r.PlayerIDs()
	out := make([]PlayerStatus, 0, len(ids))
	for _, id := range ids {
		if st, ok := r.Status(id); ok {
			out = append(out, st)
		}
	}
	return out
}

// Status returns a single player's status.
func (r *Registry) Status(playerID string) (PlayerStatus, bool) {
	e, ok := r.entry(playerID)
	if !ok {
		return PlayerStatus{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := PlayerStatus{
		ID:          e.cfg.ID,
		Host:        e.cfg.Host,
		Port:        e.cfg.Port,
		Connected:   e.session != nil,
		SessionID:   e.sessionID,
		ConnectedAt: e.connectedAt,
	}
	if e.hasPlayState {
		playing := e.playing
		st.Playing = &playing
	}
	if e.song != nil {
		st.Title = e.song.title
		st.Artist = e.song.artist
	}
	return st, true
}

// ConnectedCount returns how many players hold a live session.
func (r *Registry) ConnectedCount() int {
	n := 0
	for _, id := range r.PlayerIDs() {
		if _, ok := r.Session(id); ok {
			n++
		}
	}
	return n
}
