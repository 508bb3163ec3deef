package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anemone1693821/gpu-worker/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "settings.json")
}

func TestStore_LoadDefaults(t *testing.T) {
	store := NewStore(testPath(t))

	st, err := store.Load()
	require.NoError(t, err)

	assert.NotEmpty(t, st.WorkerID, "a fresh worker must mint an identity")
	assert.Nil(t, st.EnabledModels)
	assert.True(t, st.Schedule.Eligible(st.LastSync), "default schedule is always eligible")
}

func TestStore_IdentitySurvivesRestart(t *testing.T) {
	path := testPath(t)

	first, err := NewStore(path).Load()
	require.NoError(t, err)

	second, err := NewStore(path).Load()
	require.NoError(t, err)

	assert.Equal(t, first.WorkerID, second.WorkerID)
}

func TestStore_ReplaceRoundTrip(t *testing.T) {
	path := testPath(t)
	store := NewStore(path)
	_, err := store.Load()
	require.NoError(t, err)

	next := store.Current()
	next.Version = 7
	next.EnabledModels = []string{"sdxl-base"}
	next.Schedule = schedule.Schedule{
		Enabled: true,
		Rules:   []schedule.Rule{{Days: []string{"mon"}, StartTime: "09:00", EndTime: "17:00"}},
	}
	require.NoError(t, store.Replace(next))

	// Simulated restart: a brand-new store reading the same file.
	reloaded, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, next, reloaded)
}

func TestStore_FailedReplaceKeepsState(t *testing.T) {
	path := testPath(t)
	store := NewStore(path)
	_, err := store.Load()
	require.NoError(t, err)

	good := store.Current()
	good.Version = 3
	require.NoError(t, store.Replace(good))

	// Point the store at an unwritable location: a path whose parent is a
	// regular file.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	store.path = filepath.Join(blocker, "settings.json")

	bad := good
	bad.Version = 4
	assert.Error(t, store.Replace(bad))
	assert.Equal(t, good, store.Current(), "in-memory state must survive a failed write")

	// And the durable copy is the last good one.
	store.path = path
	reloaded, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, good, reloaded)
}

func TestStore_CorruptFileFallsBackToDefaults(t *testing.T) {
	path := testPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	st, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.NotEmpty(t, st.WorkerID)
	assert.EqualValues(t, 0, st.Version)
}

func TestStore_ApplyVersionGate(t *testing.T) {
	store := NewStore(testPath(t))
	_, err := store.Load()
	require.NoError(t, err)

	applied, err := store.Apply(&Sync{Version: 2, Settings: &Settings{EnabledModels: []string{"a"}}})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.EqualValues(t, 2, store.Current().Version)

	// Same version again is a no-op.
	applied, err = store.Apply(&Sync{Version: 2, Settings: &Settings{EnabledModels: []string{"b"}}})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, []string{"a"}, store.Current().EnabledModels)

	// Older version is a no-op.
	applied, err = store.Apply(&Sync{Version: 1, Settings: &Settings{}})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestStore_ApplyPreservesIdentity(t *testing.T) {
	store := NewStore(testPath(t))
	st, err := store.Load()
	require.NoError(t, err)

	applied, err := store.Apply(&Sync{Version: 1, Settings: &Settings{WorkerID: "server-imposed"}})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, st.WorkerID, store.Current().WorkerID, "server syncs must not overwrite identity")
}

func TestStore_ApplyNil(t *testing.T) {
	store := NewStore(testPath(t))
	_, err := store.Load()
	require.NoError(t, err)

	applied, err := store.Apply(nil)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = store.Apply(&Sync{Version: 5})
	require.NoError(t, err)
	assert.False(t, applied, "a sync without settings is ignored")
}

func TestModelEnabled(t *testing.T) {
	var st Settings
	assert.True(t, st.ModelEnabled("anything"), "nil list means no restriction")

	st.EnabledModels = []string{}
	assert.False(t, st.ModelEnabled("anything"), "empty list disables all models")

	st.EnabledModels = []string{"sdxl-base"}
	assert.True(t, st.ModelEnabled("sdxl-base"))
	assert.False(t, st.ModelEnabled("other"))
}
