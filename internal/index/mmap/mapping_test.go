package mmap

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestMapping_ReadAndRelease(t *testing.T) {
	m, err := Open(writeFile(t, []byte("hello world")))
	require.NoError(t, err)
	assert.Equal(t, 11, m.Size())
	assert.Equal(t, []byte("hello world"), m.Bytes())
	require.NoError(t, m.Advise(AccessRandom))

	buf := make([]byte, 5)
	n, err := m.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	require.True(t, m.Acquire())
	require.NoError(t, m.Close())
	assert.True(t, m.Loaded(), "second reference keeps the mapping alive")
	assert.Equal(t, []byte("hello world"), m.Bytes())

	require.NoError(t, m.Release())
	assert.False(t, m.Loaded())
	assert.Nil(t, m.Bytes())
	assert.False(t, m.Acquire())
	_, err = m.ReadAt(buf, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMapping_EmptyFile(t *testing.T) {
	m, err := Open(writeFile(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Size())
	assert.True(t, m.Loaded())
	require.NoError(t, m.Close())
}

func TestMapping_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

type countingCloser struct {
	closed atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func TestDeferredCloser_HonoursGracePeriod(t *testing.T) {
	d := NewDeferredCloser()
	defer d.Close()

	fast := &countingCloser{}
	slow := &countingCloser{}
	d.Schedule(fast, 0)
	d.Schedule(slow, time.Hour)

	require.Eventually(t, func() bool { return fast.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), slow.closed.Load())
	assert.Equal(t, 1, d.Pending())
}

func TestDeferredCloser_CloseFlushesPending(t *testing.T) {
	d := NewDeferredCloser()
	c := &countingCloser{}
	d.Schedule(c, time.Hour)
	require.NoError(t, d.Close())
	assert.Equal(t, int32(1), c.closed.Load())

	late := &countingCloser{}
	d.Schedule(late, time.Hour)
	assert.Equal(t, int32(1), late.closed.Load(), "scheduling after shutdown closes synchronously")
}
