package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls atomic.Int32
	n     int
	err   error
}

func (s *countingStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	s.calls.Add(1)
	return s.n, s.err
}

func TestSweeperRunOnce_RemovesStaleFiles(t *testing.T) {
	store := newStore(t)
	stale := filepath.Join(store.BasePath(), "target_STALE")
	fresh := filepath.Join(store.BasePath(), "source_fresh.exe")
	require.NoError(t, os.WriteFile(stale, nil, 0o600))
	require.NoError(t, os.WriteFile(fresh, nil, 0o600))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	s := NewSweeper(store, "@every 1h", 15*time.Minute, discardLogger())
	assert.Equal(t, 1, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"source_fresh.exe"}, dirEntries(t, store))
}

func TestSweeperRunOnce_LogsErrors(t *testing.T) {
	store := &countingStore{n: 2, err: errBoom}
	s := NewSweeper(store, "@every 1h", time.Minute, discardLogger())
	assert.Equal(t, 2, s.RunOnce(context.Background()))
}

func TestSweeperRunOnce_CanceledContext(t *testing.T) {
	store := &countingStore{}
	s := NewSweeper(store, "@every 1h", time.Minute, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, s.RunOnce(ctx))
	assert.Zero(t, store.calls.Load())
}

func TestSweeperStart_InvalidSchedule(t *testing.T) {
	s := NewSweeper(&countingStore{}, "every now and then", time.Minute, discardLogger())
	assert.Error(t, s.Start(context.Background()))
	s.Stop()
}

func TestSweeperStart_RunsImmediately(t *testing.T) {
	store := &countingStore{}
	s := NewSweeper(store, "@every 1h", time.Minute, discardLogger())

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	assert.Equal(t, int32(1), store.calls.Load())
}
