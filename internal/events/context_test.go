package events_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/taskcrypt/internal/events"
)

func TestFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return default logger when none in context
	logger := events.FromContext(ctx)
	assert.NotNil(t, logger)
}

func TestWithLogger(t *testing.T) {
	ctx := context.Background()
	logger := events.Nop()

	ctx = events.WithLogger(ctx, logger)
	retrieved := events.FromContext(ctx)

	assert.Equal(t, logger, retrieved)
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithLogger(context.Background(), events.NewTestLogger(events.InfoLevel, "json", &buf))

	ctx = events.WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", events.GetRequestID(ctx))

	events.FromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
}

func TestWithRequestIDGenerated(t *testing.T) {
	ctx := events.WithLogger(context.Background(), events.Nop())
	ctx = events.WithRequestID(ctx, "")

	id := events.GetRequestID(ctx)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestWithTaskID(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithLogger(context.Background(), events.NewTestLogger(events.InfoLevel, "json", &buf))

	ctx = events.WithTaskID(ctx, "1201234567890")
	assert.Equal(t, "1201234567890", events.GetTaskID(ctx))

	events.FromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), `"task_id":"1201234567890"`)
}

func TestGetIDsEmpty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, events.GetRequestID(ctx))
	assert.Empty(t, events.GetTaskID(ctx))
}

func TestSetDefault(t *testing.T) {
	previous := events.FromContext(context.Background())
	t.Cleanup(func() { events.SetDefault(previous) })

	customLogger := events.Nop()
	events.SetDefault(customLogger)

	retrieved := events.FromContext(context.Background())
	assert.Equal(t, customLogger, retrieved)
}
