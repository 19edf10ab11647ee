package lock_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscalops/internal/lock"
)

func TestMutexMapSerializesPerKey(t *testing.T) {
	m := lock.NewMutexMap()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.With("proc-1", func() error {
				v := counter
				v++
				counter = v
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestMutexMapIndependentKeys(t *testing.T) {
	m := lock.NewMutexMap()
	err := m.With("a", func() error {
		done := make(chan error)
		go func() {
			done <- m.With("b", func() error { return nil })
		}()
		return <-done
	})
	assert.NoError(t, err)
}

func TestZeroValueMutexMap(t *testing.T) {
	var m lock.MutexMap
	assert.NoError(t, m.With("x", func() error { return nil }))
}

func TestFileLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.lock")
	first := lock.NewFileLock(path)
	require.NoError(t, first.TryLock())

	second := lock.NewFileLock(path)
	assert.Error(t, second.TryLock())

	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
	assert.NoError(t, second.Unlock(), "unlocking twice is a no-op")
}
