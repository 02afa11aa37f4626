package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-mpd/internal/bridges/mpd"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-mpd/migrations" // registers the schema
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	require.NoError(t, db.Migrate(context.Background()))
	return NewRepository(db.DB)
}

func update(item string, v mpd.Value, at time.Time) mpd.Update {
	return mpd.Update{Item: item, PlayerID: "kitchen", Action: mpd.ActionVolume, Value: v, Timestamp: at}
}

func TestRepository_RecordAndList(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Publish(ctx, update("kitchen_volume", mpd.Percent(40), base)))
	require.NoError(t, repo.Publish(ctx, update("kitchen_volume", mpd.Percent(55), base.Add(time.Second))))
	require.NoError(t, repo.Record(ctx, mpd.Update{
		Item:      "kitchen_title",
		PlayerID:  "kitchen",
		Action:    mpd.ActionTrackInfo,
		Value:     mpd.Text("Yesterday"),
		Timestamp: base,
	}))

	entries, err := repo.ListByItem(ctx, "kitchen_volume", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "55", entries[0].Value, "newest first")
	assert.Equal(t, "40", entries[1].Value)
	assert.Equal(t, "percent", entries[0].Kind)
	assert.Equal(t, "VOLUME", entries[0].Action)
	assert.Equal(t, "kitchen", entries[0].PlayerID)
	assert.True(t, entries[0].CreatedAt.Equal(base.Add(time.Second)))

	titles, err := repo.ListByItem(ctx, "kitchen_title", 10)
	require.NoError(t, err)
	require.Len(t, titles, 1)
	assert.Equal(t, "Yesterday", titles[0].Value)
	assert.Equal(t, "text", titles[0].Kind)

	byPlayer, err := repo.ListByPlayer(ctx, "kitchen", 0)
	require.NoError(t, err)
	assert.Len(t, byPlayer, 3)
}

func TestRepository_ListLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := range 5 {
		require.NoError(t, repo.Record(ctx, update("kitchen_volume", mpd.Percent(i), base.Add(time.Duration(i)*time.Second))))
	}

	entries, err := repo.ListByItem(ctx, "kitchen_volume", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "4", entries[0].Value)
	assert.Equal(t, "3", entries[1].Value)
}

func TestRepository_Validation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.Record(ctx, mpd.Update{PlayerID: "kitchen"}), ErrItemRequired)

	_, err := repo.ListByItem(ctx, "", 10)
	assert.ErrorIs(t, err, ErrItemRequired)

	_, err = repo.ListByPlayer(ctx, "", 10)
	assert.Error(t, err)

	_, err = repo.Prune(ctx, 0)
	assert.Error(t, err)
}

func TestRepository_ZeroTimestampRecordedAsNow(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	require.NoError(t, repo.Record(ctx, update("kitchen_play", mpd.OnOff(true), time.Time{})))

	entries, err := repo.ListByItem(ctx, "kitchen_play", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ON", entries[0].Value)
	assert.True(t, entries[0].CreatedAt.After(before))
}

func TestRepository_Prune(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, update("kitchen_volume", mpd.Percent(10), time.Now().Add(-48*time.Hour))))
	require.NoError(t, repo.Record(ctx, update("kitchen_volume", mpd.Percent(20), time.Now())))

	n, err := repo.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := repo.ListByItem(ctx, "kitchen_volume", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "20", entries[0].Value)
}
