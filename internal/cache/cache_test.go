package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "matchbot/pkg/logx"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "sub", "matchbot.db"), time.Second, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndGet(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()
	kick := time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, Event{ID: "E1", Kickoff: kick, Home: "A", Away: "B", Status: "notstarted"}))
	require.NoError(t, s.Upsert(ctx, Event{ID: "E1", Kickoff: kick, Home: "A", Away: "B", Status: "inprogress"}))

	got, ok, err := s.Get(ctx, "E1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "inprogress", got.Status)
	assert.True(t, kick.Equal(got.Kickoff))

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpcomingOrdersByKickoff(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"late", "early", "outside"} {
		kick := base.Add(time.Duration(3-i) * time.Hour)
		if id == "outside" {
			kick = base.Add(48 * time.Hour)
		}
		require.NoError(t, s.Upsert(ctx, Event{ID: id, Kickoff: kick}))
	}

	got, err := s.Upcoming(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].ID)
	assert.Equal(t, "late", got[1].ID)

	n, err := s.Prune(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestNilStoreIsDisabled(t *testing.T) {
	t.Parallel()
	var s *Store
	assert.ErrorIs(t, s.Upsert(context.Background(), Event{ID: "x"}), ErrDisabled)
	assert.NoError(t, s.Close())
}
