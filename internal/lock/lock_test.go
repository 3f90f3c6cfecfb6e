package lock

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTryAcquireContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.lock")

	first, err := TryAcquire(path)
	require.NoError(t, err)

	// flock locks belong to the open file description, so a second open in
	// the same process contends like another process would.
	_, err = TryAcquire(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, first.Release())

	again, err := TryAcquire(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
	require.NoError(t, again.Release(), "second release is a no-op")
}

func TestTryAcquireCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "update.lock")
	held, err := TryAcquire(path)
	require.NoError(t, err)
	require.NoError(t, held.Release())
}

func TestTryAcquireUnexpectedFlockError(t *testing.T) {
	orig := flockFn
	t.Cleanup(func() { flockFn = orig })
	flockFn = func(int, int) error { return unix.EBADF }

	_, err := TryAcquire(filepath.Join(t.TempDir(), "update.lock"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLocked))
}
