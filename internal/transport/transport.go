package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/TheMichaelB/taskcrypt/internal/config"
	"github.com/TheMichaelB/taskcrypt/internal/events"
)

// Transport is the task API surface used by services.
type Transport interface {
	// JSON methods. Responses arrive as {"data": ...}; out receives data.
	GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error
	GetAll(ctx context.Context, path string, query url.Values, out interface{}) error
	SendJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error

	// Files
	Upload(ctx context.Context, path string, file UploadFile, out interface{}) error
	Download(ctx context.Context, rawURL string) ([]byte, error)

	// Authentication
	SetToken(token string)
	GetToken() string

	// Lifecycle
	Close() error
}

// UploadFile is one multipart file part.
type UploadFile struct {
	Field       string // form field, "file" when empty
	Name        string
	ContentType string
	Content     []byte
}

// NewTransport creates a transport instance.
func NewTransport(cfg *config.APIConfig, logger *events.Logger) Transport {
	return NewHTTPClient(cfg, logger)
}

type dataEnvelope struct {
	Data interface{} `json:"data"`
}

type responseEnvelope struct {
	Data     json.RawMessage `json:"data"`
	NextPage *struct {
		Offset string `json:"offset"`
		Path   string `json:"path"`
		URI    string `json:"uri"`
	} `json:"next_page"`
}

// decodeData unmarshals raw into out. Nil out or empty raw is a no-op.
func decodeData(raw json.RawMessage, out interface{}) error {
	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
