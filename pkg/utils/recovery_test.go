package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverAsError(t *testing.T) {
	t.Run("recovers from panic", func(t *testing.T) {
		fn := func() (err error) {
			defer RecoverAsError(&err)
			panic("test panic")
		}

		err := fn()
		var panicErr *PanicError
		require.ErrorAs(t, err, &panicErr)
		assert.Equal(t, "test panic", panicErr.Value)
		assert.NotEmpty(t, panicErr.StackTrace)
		assert.Equal(t, "panic: test panic", err.Error())
	})

	t.Run("no error when no panic", func(t *testing.T) {
		fn := func() (err error) {
			defer RecoverAsError(&err)
			return nil
		}
		assert.NoError(t, fn())
	})

	t.Run("preserves original error", func(t *testing.T) {
		originalErr := errors.New("original error")
		fn := func() (err error) {
			defer RecoverAsError(&err)
			return originalErr
		}
		assert.Same(t, originalErr, fn())
	})
}

func TestGuard(t *testing.T) {
	err := Guard(func() error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	var panicErr *PanicError
	assert.ErrorAs(t, err, &panicErr)

	sentinel := errors.New("plain")
	assert.Same(t, sentinel, Guard(func() error { return sentinel }))
}

func TestForEachLimit(t *testing.T) {
	var running, peak, total atomic.Int32
	err := ForEachLimit(context.Background(), 20, 3, func(ctx context.Context, i int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		total.Add(1)
		running.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(20), total.Load())
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestForEachLimit_PanicAndError(t *testing.T) {
	err := ForEachLimit(context.Background(), 5, 1, func(ctx context.Context, i int) error {
		if i == 2 {
			panic("worker exploded")
		}
		return nil
	})
	var panicErr *PanicError
	assert.ErrorAs(t, err, &panicErr)

	sentinel := errors.New("stop")
	var calls atomic.Int32
	err = ForEachLimit(context.Background(), 10, 1, func(ctx context.Context, i int) error {
		calls.Add(1)
		if i == 0 {
			return sentinel
		}
		return nil
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Less(t, calls.Load(), int32(10))
}

func TestForEachLimit_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEachLimit(ctx, 3, 2, func(ctx context.Context, i int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0644))
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"a": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
