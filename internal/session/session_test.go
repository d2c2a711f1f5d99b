package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/rom"
	"rom-stream-go/internal/storage"
)

func TestTrackerRoundTrip(t *testing.T) {
	ctx := context.Background()
	sq, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer sq.Close()

	for name, store := range map[string]storage.Store{"memory": storage.NewMemory(), "sqlite": sq} {
		t.Run(name, func(t *testing.T) {
			m := NewManager(store)

			tr, err := m.GetOrCreateTracker(ctx, "s1", "lower_back", "flexion")
			require.NoError(t, err)
			assert.Equal(t, rom.Unseen, tr.State())

			for _, v := range []float64{12, 48, 30} {
				tr.Update(angles.Set{"trunk": v}, "trunk")
			}
			tr.Update(angles.Set{}, "trunk")
			require.NoError(t, m.SaveTracker(ctx, "s1", tr))

			again, err := m.GetOrCreateTracker(ctx, "s1", "lower_back", "flexion")
			require.NoError(t, err)
			if diff := cmp.Diff(tr, again); diff != "" {
				t.Fatalf("reloaded tracker mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFreshTrackerIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewManager(store)

	_, err := m.GetOrCreateTracker(ctx, "s1", "knee", "flexion")
	require.NoError(t, err)
	assert.Zero(t, store.Len())

	_, err = m.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSessionView(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storage.NewMemory())

	flex := rom.NewTracker("lower_back", "flexion")
	flex.Update(angles.Set{"trunk": 10}, "trunk")
	flex.Update(angles.Set{"trunk": 40}, "trunk")
	require.NoError(t, m.SaveTracker(ctx, "s1", flex))

	knee := rom.NewTracker("knee", "flexion")
	knee.Update(angles.Set{}, "right knee")
	require.NoError(t, m.SaveTracker(ctx, "s1", knee))

	other := rom.NewTracker("knee", "flexion")
	other.Update(angles.Set{"right knee": 90}, "right knee")
	require.NoError(t, m.SaveTracker(ctx, "s10", other))

	view, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	want := View{
		"lower_back": {"flexion": {ROM: Bounds{Min: 10, Max: 40, Range: 30}, FrameCount: 2, ValidFrameCount: 2}},
		"knee":       {"flexion": {FrameCount: 1}},
	}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Fatalf("view mismatch (-want +got):\n%s", diff)
	}
}

func TestClearSession(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewManager(store)

	for _, sid := range []string{"s1", "s2"} {
		tr := rom.NewTracker("elbow", "flexion")
		tr.Update(angles.Set{"right elbow": 20}, "right elbow")
		require.NoError(t, m.SaveTracker(ctx, sid, tr))
	}
	require.NoError(t, m.ClearSession(ctx, "s1"))
	require.NoError(t, m.ClearSession(ctx, "never-seen"))

	_, err := m.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.GetSession(ctx, "s2")
	assert.NoError(t, err)

	tr, err := m.GetOrCreateTracker(ctx, "s1", "elbow", "flexion")
	require.NoError(t, err)
	assert.Zero(t, tr.FrameCount)
}

func TestInvalidSessionID(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storage.NewMemory())

	_, err := m.GetOrCreateTracker(ctx, "a:b", "knee", "flexion")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
	assert.ErrorIs(t, m.SaveTracker(ctx, "", rom.NewTracker("knee", "flexion")), ErrInvalidSessionID)
	_, err = m.GetSession(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
	assert.ErrorIs(t, m.ClearSession(ctx, "x:"), ErrInvalidSessionID)

	for _, id := range []string{
		"x/../../escaped", "..", "a b", "s1\x00", `c:\\tmp`, "é", strings.Repeat("a", MaxSessionIDLen+1),
	} {
		assert.ErrorIs(t, ValidateSessionID(id), ErrInvalidSessionID, "%q", id)
	}
	for _, id := range []string{"s1", "patient-42_visit-3", strings.Repeat("Z", MaxSessionIDLen)} {
		assert.NoError(t, ValidateSessionID(id), id)
	}
}

func TestCorruptRecord(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewManager(store)
	require.NoError(t, store.Set(ctx, Key("s1", "knee", "flexion"), []byte{0xff, 0x00}))

	_, err := m.GetOrCreateTracker(ctx, "s1", "knee", "flexion")
	assert.Error(t, err)
}

func TestLockSerialisesTriple(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storage.NewMemory())

	const workers, frames = 8, 25
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range frames {
				unlock := m.Lock("s1", "knee", "flexion")
				tr, err := m.GetOrCreateTracker(ctx, "s1", "knee", "flexion")
				if err == nil {
					tr.Update(angles.Set{"right knee": float64(w*frames + i)}, "right knee")
					err = m.SaveTracker(ctx, "s1", tr)
				}
				unlock()
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	tr, err := m.GetOrCreateTracker(ctx, "s1", "knee", "flexion")
	require.NoError(t, err)
	assert.Equal(t, workers*frames, tr.FrameCount)
	assert.Equal(t, 0.0, tr.MinAngle)
	assert.Equal(t, float64(workers*frames-1), tr.MaxAngle)
	assert.Zero(t, m.locks.size())
}

func TestUnlockIsIdempotent(t *testing.T) {
	m := NewManager(storage.NewMemory())
	unlock := m.Lock("s1", "knee", "flexion")
	unlock()
	unlock()
	assert.Zero(t, m.locks.size())

	// The triple can be taken again.
	m.Lock("s1", "knee", "flexion")()
}
