package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

func rec(id, winner, loser string, ws, ls int, at time.Time) MatchRecord {
	return MatchRecord{ID: id, RoomCode: "ABC123", Winner: winner, Loser: loser, WinnerScore: ws, LoserScore: ls, BestOf: 3, FinishedAt: at}
}

func TestMemoryStore_RivalryIsOrderIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Save(ctx, rec("m1", "Zed", "Ahri", 3, 1, base)))
	require.NoError(t, s.Save(ctx, rec("m2", "Ahri", "Zed", 2, 0, base.Add(time.Hour))))
	require.NoError(t, s.Save(ctx, rec("m3", "Ahri", "Lux", 2, 0, base)))

	st, err := s.Rivalry(ctx, "Zed", "Ahri")
	require.NoError(t, err)
	assert.Equal(t, "Ahri", st.Player1)
	assert.Equal(t, "Zed", st.Player2)
	assert.Equal(t, 1, st.Player1Wins)
	assert.Equal(t, 1, st.Player2Wins)
	assert.Equal(t, 2, st.TotalMatches)
	require.NotNil(t, st.LastPlayed)
	assert.True(t, st.LastPlayed.Equal(base.Add(time.Hour)))
	assert.Equal(t, "m2", st.Matches[0].ID, "newest first")

	st2, err := s.Rivalry(ctx, "Ahri", "Zed")
	require.NoError(t, err)
	assert.Equal(t, st, st2)
}

func TestMemoryStore_DuplicateIDIsIgnored(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Save(ctx, rec("m1", "A", "B", 2, 0, base)))
	require.NoError(t, s.Save(ctx, rec("m1", "A", "B", 2, 0, base)))

	st, err := s.Rivalry(ctx, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalMatches)
}

func TestMemoryStore_EmptyRivalry(t *testing.T) {
	st, err := NewMemoryStore().Rivalry(context.Background(), "A", "B")
	require.NoError(t, err)
	assert.Zero(t, st.TotalMatches)
	assert.Nil(t, st.LastPlayed)
	assert.NotNil(t, st.Matches)
}

func TestMatchRecord_Validate(t *testing.T) {
	cases := []struct {
		name string
		rec  MatchRecord
		ok   bool
	}{
		{name: "valid", rec: rec("m1", "A", "B", 3, 1, base), ok: true},
		{name: "missing id", rec: rec("", "A", "B", 3, 1, base)},
		{name: "missing loser", rec: rec("m1", "A", "", 3, 1, base)},
		{name: "inverted score", rec: rec("m1", "A", "B", 1, 3, base)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
	assert.Equal(t, "3-1", rec("m1", "A", "B", 3, 1, base).FinalScore())
}

func TestRivalryKey(t *testing.T) {
	assert.Equal(t, "Ahri_vs_Zed", RivalryKey("Zed", "Ahri"))
	assert.Equal(t, RivalryKey("x", "y"), RivalryKey("y", "x"))
}

type flakyStore struct {
	*MemoryStore
	mu    sync.Mutex
	fails int
}

func (f *flakyStore) Save(ctx context.Context, r MatchRecord) error {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return errors.New("db down")
	}
	f.mu.Unlock()
	return f.MemoryStore.Save(ctx, r)
}

func TestRecorder_SavesQueuedRecords(t *testing.T) {
	store := NewMemoryStore()
	r := NewRecorder(store, 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	require.True(t, r.Enqueue(rec("m1", "A", "B", 2, 0, base)))
	require.Eventually(t, func() bool {
		st, _ := store.Rivalry(context.Background(), "A", "B")
		return st.TotalMatches == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRecorder_DropsWhenFullAndDrainsOnStop(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), fails: 1}
	r := NewRecorder(store, 2, zap.NewNop())

	// Worker not running yet: the queue holds two, the third is dropped.
	assert.True(t, r.Enqueue(rec("m1", "A", "B", 2, 0, base)))
	assert.True(t, r.Enqueue(rec("m2", "A", "B", 2, 0, base)))
	assert.False(t, r.Enqueue(rec("m3", "A", "B", 2, 0, base)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))

	// m1 hit the failing store and is logged, m2 is archived by the drain.
	st, err := store.Rivalry(context.Background(), "A", "B")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalMatches)
}
