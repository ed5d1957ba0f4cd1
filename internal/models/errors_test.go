package models_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/taskcrypt/internal/models"
)

func TestTaskError(t *testing.T) {
	tests := []struct {
		name string
		err  *models.TaskError
		want string
	}{
		{
			name: "with task",
			err: &models.TaskError{
				Code:   models.ErrCodeNetwork,
				Op:     "save notes",
				TaskID: "1201",
				Err:    errors.New("connection timeout"),
			},
			want: "save notes [NETWORK_ERROR]: task 1201: connection timeout",
		},
		{
			name: "without task",
			err: &models.TaskError{
				Code: models.ErrCodeNotFound,
				Op:   "load project",
				Err:  errors.New("gone"),
			},
			want: "load project [NOT_FOUND]: gone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAPIError(t *testing.T) {
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(`{"errors":[{"message":"Not Authorized"}]}`), &body))

	err := models.NewAPIError(http.StatusUnauthorized, &body)

	assert.Equal(t, "API error 401 (AUTH_ERROR): Not Authorized", err.Error())
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAPIErrorWithoutBody(t *testing.T) {
	err := models.NewAPIError(http.StatusBadGateway, nil)

	assert.Equal(t, "API error 502 (SERVER_ERROR): Bad Gateway", err.Error())
	assert.ErrorIs(t, err, models.ErrServer)
}

func TestAPIErrorSentinels(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusUnauthorized, models.ErrCodeAuth, models.ErrUnauthorized},
		{http.StatusForbidden, models.ErrCodeForbidden, models.ErrUnauthorized},
		{http.StatusNotFound, models.ErrCodeNotFound, models.ErrNotFound},
		{http.StatusTooManyRequests, models.ErrCodeRateLimit, models.ErrRateLimited},
		{http.StatusInternalServerError, models.ErrCodeServerError, models.ErrServer},
		{http.StatusBadRequest, models.ErrCodeInvalidRequest, nil},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := models.NewAPIError(tt.status, nil)
			assert.Equal(t, tt.code, err.Code)
			if tt.want == nil {
				assert.Nil(t, errors.Unwrap(err))
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestDecryptError(t *testing.T) {
	tests := []struct {
		name string
		err  *models.DecryptError
		want string
	}{
		{
			name: "with id",
			err: &models.DecryptError{
				Field:  "name",
				ID:     "1201",
				Reason: "authentication",
				Err:    errors.New("cipher: message authentication failed"),
			},
			want: "decrypt name of 1201: authentication: cipher: message authentication failed",
		},
		{
			name: "without id",
			err: &models.DecryptError{
				Field:  "comment",
				Reason: "malformed",
				Err:    errors.New("bad token"),
			},
			want: "decrypt comment: malformed: bad token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("base error")

	t.Run("TaskError unwrap", func(t *testing.T) {
		taskErr := &models.TaskError{Code: models.ErrCodeNetwork, Op: "rename", Err: baseErr}
		assert.Equal(t, baseErr, errors.Unwrap(taskErr))
	})

	t.Run("DecryptError unwrap", func(t *testing.T) {
		decryptErr := &models.DecryptError{Field: "notes", Reason: "invalid key", Err: baseErr}
		assert.Equal(t, baseErr, errors.Unwrap(decryptErr))
	})
}
