package client_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/taskcrypt/internal/client"
	"github.com/TheMichaelB/taskcrypt/internal/config"
	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
	"github.com/TheMichaelB/taskcrypt/internal/state"
	"github.com/TheMichaelB/taskcrypt/internal/storage"
	"github.com/TheMichaelB/taskcrypt/internal/transport"
)

const password = "correcthorse"

func newClient(t *testing.T, backend string) (*client.Client, *transport.MockTransport) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Crypto.MasterPassword = password
	cfg.Storage.DataDir = dir
	cfg.Storage.StateDir = filepath.Join(dir, "state")
	cfg.Storage.DownloadDir = filepath.Join(dir, "downloads")
	cfg.Storage.StateBackend = backend

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	mock := transport.NewMockTransport()
	c, err := client.NewWithTransport(cfg, mock, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, mock
}

func TestOpenProject(t *testing.T) {
	for _, backend := range []string{state.BackendJSON, state.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			c, mock := newClient(t, backend)
			ctx := context.Background()

			token, err := c.Crypto.Encrypt("Buy milk")
			require.NoError(t, err)

			mock.AddResponse(http.MethodGet, "/tasks", []models.Task{
				{GID: "t1", Name: token},
				{GID: "t2", Name: "Plain"},
			})

			records, err := c.OpenProject(ctx, "p1")
			require.NoError(t, err)

			items := records.Items()
			require.Len(t, items, 2)
			assert.Equal(t, "Buy milk", items[0].Task)
			assert.Equal(t, "Plain", items[1].Task)

			// The snapshot keeps what the API returned.
			snap, err := c.Snapshots.Load("p1")
			require.NoError(t, err)
			require.Len(t, snap.Items, 2)
			assert.Equal(t, token, snap.Items[0].Task)

			// Offline with the wrong password the token text is kept.
			c.SetPassword("wrong")
			offline, loaded, err := c.OpenSnapshot(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, 2, loaded.ItemCount())
			assert.Equal(t, token, offline.Items()[0].Task)

			c.SetPassword(password)
			offline, _, err = c.OpenSnapshot(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, "Buy milk", offline.Items()[0].Task)
		})
	}
}

func TestOpenProjectErrors(t *testing.T) {
	t.Run("not authenticated", func(t *testing.T) {
		c, mock := newClient(t, state.BackendJSON)
		mock.SetToken("")

		assert.False(t, c.Authenticated())
		_, err := c.OpenProject(context.Background(), "p1")
		assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	})

	t.Run("missing snapshot", func(t *testing.T) {
		c, _ := newClient(t, state.BackendJSON)

		_, _, err := c.OpenSnapshot(context.Background(), "never-fetched")
		assert.ErrorIs(t, err, state.ErrStateNotFound)
	})

	t.Run("fetch failure saves nothing", func(t *testing.T) {
		c, mock := newClient(t, state.BackendJSON)
		mock.AddError(http.MethodGet, "/tasks", models.NewAPIError(http.StatusForbidden, nil))

		_, err := c.OpenProject(context.Background(), "p1")
		assert.Error(t, err)

		_, err = c.Snapshots.Load("p1")
		assert.ErrorIs(t, err, state.ErrStateNotFound)
	})

	t.Run("snapshot save failure", func(t *testing.T) {
		c, mock := newClient(t, state.BackendJSON)
		require.NoError(t, c.Snapshots.Close())

		snapshots := state.NewMockStore()
		snapshots.SaveError = errors.New("disk full")
		c.Snapshots = snapshots

		mock.AddResponse(http.MethodGet, "/tasks", []models.Task{{GID: "t1", Name: "Plain"}})

		records, err := c.OpenProject(context.Background(), "p1")
		require.NoError(t, err)
		assert.Len(t, records.Items(), 1)

		_, err = snapshots.Load("p1")
		assert.ErrorIs(t, err, state.ErrStateNotFound)
	})
}

func TestSaveAttachment(t *testing.T) {
	c, mock := newClient(t, state.BackendJSON)
	ctx := context.Background()

	data := []byte("hello file")
	file, err := c.Crypto.EncryptFile(data, "../notes.txt", "text/plain")
	require.NoError(t, err)

	const url = "https://files.example.com/a1"
	mock.AddDownload(url, file.Content)
	att := models.Attachment{GID: "a1", Name: file.Name, DownloadURL: url}

	saved, err := c.SaveAttachment(ctx, att, storage.ConflictRename)
	require.NoError(t, err)
	assert.True(t, saved.Decrypted)
	assert.Equal(t, "notes.txt", saved.Path)
	assert.Equal(t, "text/plain", saved.Mime)
	assert.Equal(t, len(data), saved.Size)

	written, err := c.Files.Read(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, data, written)

	// A second download lands next to the first.
	again, err := c.SaveAttachment(ctx, att, storage.ConflictRename)
	require.NoError(t, err)
	assert.NotEqual(t, saved.Path, again.Path)

	_, err = c.SaveAttachment(ctx, att, storage.ConflictError)
	assert.ErrorIs(t, err, storage.ErrExists)

	var taskErr *models.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, models.ErrCodeStorage, taskErr.Code)
}

func TestSaveAttachmentTooLarge(t *testing.T) {
	c, mock := newClient(t, state.BackendJSON)
	c.Files.SetMaxFileSize(4)

	const url = "https://files.example.com/big"
	mock.AddDownload(url, []byte("more than four bytes"))

	_, err := c.SaveAttachment(context.Background(), models.Attachment{GID: "big", Name: "big.bin", DownloadURL: url}, storage.ConflictRename)
	assert.ErrorIs(t, err, storage.ErrTooLarge)
}

func TestClose(t *testing.T) {
	c, mock := newClient(t, state.BackendJSON)

	require.NoError(t, c.Close())
	assert.True(t, mock.Closed())
	assert.False(t, c.Crypto.HasPassword())
}
