package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()

	t.Run("Create manager with custom directory", func(t *testing.T) {
		manager, err := NewManager(tmpDir)
		require.NoError(t, err)
		assert.Equal(t, tmpDir, manager.Dir())
	})

	t.Run("Create manager with default directory", func(t *testing.T) {
		manager, err := NewManager("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(os.TempDir(), "casegraph-checkpoints"), manager.Dir())
	})

	t.Run("Save and load checkpoint", func(t *testing.T) {
		manager, err := NewManager(tmpDir)
		require.NoError(t, err)

		checkpoint := NewCheckpoint("001")
		checkpoint.Records = 10
		checkpoint.APICalls = 12
		require.NoError(t, manager.Save(ctx, checkpoint))

		loaded, err := manager.Load(ctx, "001")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, StatePending, loaded.State)
		assert.Equal(t, 10, loaded.Records)
		assert.Equal(t, 12, loaded.APICalls)

		_, err = os.Stat(filepath.Join(tmpDir, "checkpoint_001.json.tmp"))
		assert.True(t, os.IsNotExist(err), "temp file is renamed away")
	})

	t.Run("Load non-existent checkpoint", func(t *testing.T) {
		manager, err := NewManager(tmpDir)
		require.NoError(t, err)

		loaded, err := manager.Load(ctx, "999")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		manager, err := NewManager(tmpDir)
		require.NoError(t, err)
		require.NoError(t, manager.Save(ctx, NewCheckpoint("del")))
		require.NoError(t, manager.Delete(ctx, "del"))
		require.NoError(t, manager.Delete(ctx, "del"))
	})
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	cp, err := manager.Begin(ctx, "002", "in/batch_002.json", "out/enriched_batch_002.json")
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, cp.State)
	assert.Equal(t, 1, cp.AttemptCount)
	assert.False(t, cp.IsDone())

	cp.EnrichmentErrors = 1
	require.NoError(t, manager.Finish(ctx, cp, StateCompletedWithErrors))

	loaded, err := manager.Load(ctx, "002")
	require.NoError(t, err)
	assert.True(t, loaded.IsDone())
	assert.Equal(t, "in/batch_002.json", loaded.Input)

	cp, err = manager.Begin(ctx, "002", "in/batch_002.json", "out/enriched_batch_002.json")
	require.NoError(t, err)
	assert.Equal(t, 2, cp.AttemptCount)
	assert.True(t, cp.CanRetry(3))
	assert.False(t, cp.CanRetry(2))

	require.NoError(t, manager.RecordError(ctx, "002", errors.New("disk full")))
	loaded, err = manager.Load(ctx, "002")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, loaded.State)
	assert.Equal(t, "disk full", loaded.LastError)
	assert.Contains(t, loaded.Summary(), "Last Error: disk full")
}

func TestManager_ListAndStatistics(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	manager, err := NewManager(dir)
	require.NoError(t, err)

	for _, id := range []string{"003", "001", "002"} {
		cp := NewCheckpoint(id)
		cp.Records = 10
		cp.State = StateCompleted
		require.NoError(t, manager.Save(ctx, cp))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint_bad.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	list, err := manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "001", list[0].BatchID)
	assert.Equal(t, "003", list[2].BatchID)

	stats, err := manager.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.ByState[StateCompleted])
	assert.Equal(t, 30, stats.Records)
}

func TestManager_FindStalledAndCleanOld(t *testing.T) {
	ctx := context.Background()
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = manager.Begin(ctx, "001", "", "")
	require.NoError(t, err)

	stalled, err := manager.FindStalled(ctx, -time.Second)
	require.NoError(t, err)
	assert.Len(t, stalled, 1)

	stalled, err = manager.FindStalled(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stalled)

	removed, err := manager.CleanOld(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestPathValidation(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	tests := []string{"", "../escape", "a/b", `a\b`, "nul\x00byte"}
	for _, id := range tests {
		_, err := manager.Path(id)
		assert.ErrorIs(t, err, ErrInvalidBatchID, "id %q", id)
	}

	p, err := manager.Path("007")
	require.NoError(t, err)
	assert.Equal(t, "checkpoint_007.json", filepath.Base(p))
}
