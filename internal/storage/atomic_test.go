package storage_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/storage"
)

func newStore(t *testing.T, dir string) *storage.LocalStore {
	t.Helper()
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	store, err := storage.NewLocalStore(dir, logger)
	require.NoError(t, err)
	return store
}

func TestAtomicWrites(t *testing.T) {
	tmpDir := t.TempDir()
	store := newStore(t, tmpDir)

	t.Run("written metadata", func(t *testing.T) {
		data := []byte("quarterly report")
		sum := sha256.Sum256(data)

		w, err := store.Write("reports/q3.pdf", data, 0600)
		require.NoError(t, err)

		assert.Equal(t, "reports/q3.pdf", w.Path)
		assert.Equal(t, len(data), w.Size)
		assert.Equal(t, hex.EncodeToString(sum[:]), w.SHA256)
		assert.False(t, w.Skipped)

		info, err := os.Stat(filepath.Join(tmpDir, "reports", "q3.pdf"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("concurrent writes different files", func(t *testing.T) {
		var wg sync.WaitGroup
		errors := make(chan error, 10)

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()

				path := fmt.Sprintf("concurrent-%d.txt", n)
				data := fmt.Sprintf("content-%d", n)

				if _, err := store.Write(path, []byte(data), 0644); err != nil {
					errors <- err
				}
			}(i)
		}

		wg.Wait()
		close(errors)

		for err := range errors {
			t.Errorf("Write error: %v", err)
		}

		for i := 0; i < 10; i++ {
			data, err := store.Read(fmt.Sprintf("concurrent-%d.txt", i))
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("content-%d", i), string(data))
		}
	})

	t.Run("size limit", func(t *testing.T) {
		limited := newStore(t, t.TempDir())
		limited.SetMaxFileSize(1024)

		_, err := limited.Write("small.bin", bytes.Repeat([]byte("a"), 1024), 0644)
		assert.NoError(t, err)

		_, err = limited.Write("large.bin", bytes.Repeat([]byte("b"), 2048), 0644)
		assert.ErrorIs(t, err, storage.ErrTooLarge)

		exists, _ := limited.Exists("large.bin")
		assert.False(t, exists)

		// Non-positive sizes keep the current limit.
		limited.SetMaxFileSize(0)
		_, err = limited.Write("large.bin", bytes.Repeat([]byte("b"), 2048), 0644)
		assert.ErrorIs(t, err, storage.ErrTooLarge)
	})

	t.Run("write failure cleanup", func(t *testing.T) {
		dir := t.TempDir()
		blocked := newStore(t, dir)
		blocked.SetConflictStrategy(storage.ConflictOverwrite)

		require.NoError(t, os.MkdirAll(filepath.Join(dir, "blocker", "inner"), 0700))

		_, err := blocked.Write("blocker", []byte("data"), 0644)
		assert.Error(t, err)

		files, err := blocked.ListDir("")
		require.NoError(t, err)

		for _, file := range files {
			assert.False(t, strings.Contains(file.Path, ".tmp."),
				"Found temp file: %s", file.Path)
		}
	})
}

func TestDirectoryOperations(t *testing.T) {
	store := newStore(t, t.TempDir())

	t.Run("nested write and list", func(t *testing.T) {
		_, err := store.Write("a/b/c.txt", []byte("data"), 0644)
		require.NoError(t, err)

		info, err := store.Stat("a/b")
		require.NoError(t, err)
		assert.True(t, info.IsDir)

		files, err := store.ListDir("a/b")
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "a/b/c.txt", files[0].Path)
		assert.Equal(t, int64(4), files[0].Size)
	})

	t.Run("clean empty directories", func(t *testing.T) {
		_, err := store.Write("cleanup/sub/file.txt", []byte("data"), 0644)
		require.NoError(t, err)

		require.NoError(t, store.Delete("cleanup/sub/file.txt"))

		exists, _ := store.Exists("cleanup/sub")
		assert.False(t, exists)
		exists, _ = store.Exists("cleanup")
		assert.False(t, exists)
	})

	t.Run("delete missing file", func(t *testing.T) {
		assert.NoError(t, store.Delete("never-written.txt"))
	})

	t.Run("read missing file", func(t *testing.T) {
		_, err := store.Read("never-written.txt")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}
