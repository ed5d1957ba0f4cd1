package auth_test

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
	"github.com/TheMichaelB/taskcrypt/internal/services/auth"
	"github.com/TheMichaelB/taskcrypt/internal/transport"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func me() models.Me {
	return models.Me{
		User:       models.User{GID: "u1", Name: "Ana", Email: "ana@example.com"},
		Workspaces: []models.Workspace{{GID: "w1", Name: "Home"}},
	}
}

func TestAuthService(t *testing.T) {
	logger := testLogger()
	mockTransport := transport.NewMockTransport()
	mockTransport.SetToken("")
	tokenFile := filepath.Join(t.TempDir(), "auth", "token.json")

	service := auth.NewService(mockTransport, tokenFile, logger)

	t.Run("not logged in", func(t *testing.T) {
		_, err := service.GetToken()
		assert.ErrorIs(t, err, models.ErrNotAuthenticated)

		_, err = service.Me(context.Background())
		assert.ErrorIs(t, err, models.ErrNotAuthenticated)

		assert.ErrorIs(t, service.EnsureAuthenticated(), models.ErrNotAuthenticated)
	})

	t.Run("successful login", func(t *testing.T) {
		mockTransport.AddResponse(http.MethodGet, "/users/me", me())

		user, err := service.Login(context.Background(), "  1/123:abc  ")
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", user.Email)
		require.Len(t, user.Workspaces, 1)

		token, err := service.GetToken()
		require.NoError(t, err)
		assert.Equal(t, "1/123:abc", token.Token)
		assert.Equal(t, "Ana", token.Name)

		assert.Equal(t, "1/123:abc", mockTransport.GetToken())

		info, err := os.Stat(tokenFile)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("token persistence", func(t *testing.T) {
		fresh := transport.NewMockTransport()
		fresh.SetToken("")
		service2 := auth.NewService(fresh, tokenFile, logger)

		require.NoError(t, service2.EnsureAuthenticated())
		assert.Equal(t, "1/123:abc", fresh.GetToken())
	})

	t.Run("configured token wins", func(t *testing.T) {
		configured := transport.NewMockTransport()
		configured.SetToken("from-config")
		service2 := auth.NewService(configured, tokenFile, logger)

		require.NoError(t, service2.EnsureAuthenticated())
		assert.Equal(t, "from-config", configured.GetToken())
	})

	t.Run("logout", func(t *testing.T) {
		require.NoError(t, service.Logout())

		_, err := service.GetToken()
		assert.ErrorIs(t, err, models.ErrNotAuthenticated)
		assert.Empty(t, mockTransport.GetToken())

		_, err = os.Stat(tokenFile)
		assert.True(t, os.IsNotExist(err))

		// Logging out twice is fine.
		assert.NoError(t, service.Logout())
	})
}

func TestLoginRejected(t *testing.T) {
	mockTransport := transport.NewMockTransport()
	mockTransport.SetToken("old-token")
	mockTransport.AddError(http.MethodGet, "/users/me", models.NewAPIError(http.StatusUnauthorized, nil))

	tokenFile := filepath.Join(t.TempDir(), "token.json")
	service := auth.NewService(mockTransport, tokenFile, testLogger())

	_, err := service.Login(context.Background(), "bad-token")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	assert.Equal(t, "old-token", mockTransport.GetToken())
	_, err = os.Stat(tokenFile)
	assert.True(t, os.IsNotExist(err))

	_, err = service.Login(context.Background(), "   ")
	assert.Error(t, err)
}

func TestCorruptTokenFile(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(tokenFile, []byte("{not json"), 0600))

	mockTransport := transport.NewMockTransport()
	mockTransport.SetToken("")
	service := auth.NewService(mockTransport, tokenFile, testLogger())

	_, err := service.GetToken()
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestMemoryOnly(t *testing.T) {
	mockTransport := transport.NewMockTransport()
	mockTransport.SetToken("")
	mockTransport.AddResponse(http.MethodGet, "/users/me", me())

	service := auth.NewService(mockTransport, "", testLogger())

	_, err := service.Login(context.Background(), "tok")
	require.NoError(t, err)

	token, err := service.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "tok", token.Token)
}
