package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-mpd/internal/bridges/mpd"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ErrItemRequired is returned when a query or record has no item name.
var ErrItemRequired = errors.New("history: item is required")

// Entry is one recorded item update.
type Entry struct {
	ID        int64     `json:"id"`
	Item      string    `json:"item"`
	PlayerID  string    `json:"player_id"`
	Action    string    `json:"action"`
	Kind      string    `json:"kind"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository stores item updates in SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository on an open, migrated database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Publish implements mpd.Publisher by recording the update.
func (r *Repository) Publish(ctx context.Context, u mpd.Update) error {
	return r.Record(ctx, u)
}

// Record inserts one update. A zero timestamp is recorded as now.
func (r *Repository) Record(ctx context.Context, u mpd.Update) error {
	if u.Item == "" {
		return ErrItemRequired
	}
	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO update_history (item, player_id, action, value_kind, value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Item,
		u.PlayerID,
		u.Action.String(),
		string(u.Value.Kind),
		u.Value.String(),
		ts.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting update history: %w", err)
	}
	return nil
}

// ListByItem returns the most recent updates of an item, newest first.
// limit defaults to 50 and is capped at 500.
func (r *Repository) ListByItem(ctx context.Context, item string, limit int) ([]Entry, error) {
	if item == "" {
		return nil, ErrItemRequired
	}
	return r.list(ctx, "item", item, limit)
}

// ListByPlayer returns the most recent updates produced by a player,
// newest first.
func (r *Repository) ListByPlayer(ctx context.Context, playerID string, limit int) ([]Entry, error) {
	if playerID == "" {
		return nil, fmt.Errorf("history: player id is required")
	}
	return r.list(ctx, "player_id", playerID, limit)
}

func (r *Repository) list(ctx context.Context, column, value string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	// column is one of two constants chosen by the callers above.
	query := `SELECT id, item, player_id, action, value_kind, value, created_at
		 FROM update_history
		 WHERE ` + column + ` = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, value, limit)
	if err != nil {
		return nil, fmt.Errorf("querying update history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Item, &e.PlayerID, &e.Action, &e.Kind, &e.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning update history: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating update history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and returns how many were removed.
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().Add(-olderThan).UTC().UnixMilli()
	result, err := r.db.ExecContext(ctx, "DELETE FROM update_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting update history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
