package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// MockTransport provides a mock implementation for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration, keyed by "METHOD /path"
	Responses map[string]interface{}
	Downloads map[string][]byte

	// Error injection
	Errors        map[string]error
	DownloadError error

	// Request tracking
	Requests         []Request
	DownloadRequests []string

	// State
	token  string
	closed bool
}

// Request tracks one API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   json.RawMessage
	File   *UploadFile
}

// Decode unmarshals the recorded body into out.
func (r Request) Decode(out interface{}) error {
	return json.Unmarshal(r.Body, out)
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Responses: make(map[string]interface{}),
		Downloads: make(map[string][]byte),
		Errors:    make(map[string]error),
		token:     "mock-token",
	}
}

// GetJSON mocks a GET.
func (m *MockTransport) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return m.handle(Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// GetAll mocks a paginated GET; the configured response is the full list.
func (m *MockTransport) GetAll(ctx context.Context, path string, query url.Values, out interface{}) error {
	return m.handle(Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// SendJSON mocks POST/PUT/DELETE.
func (m *MockTransport) SendJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return m.handle(Request{Method: method, Path: path, Body: raw}, out)
}

// Upload mocks a multipart upload.
func (m *MockTransport) Upload(ctx context.Context, path string, file UploadFile, out interface{}) error {
	copied := file
	copied.Content = append([]byte(nil), file.Content...)
	return m.handle(Request{Method: http.MethodPost, Path: path, File: &copied}, out)
}

// Download mocks fetching a pre-signed URL.
func (m *MockTransport) Download(ctx context.Context, rawURL string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DownloadRequests = append(m.DownloadRequests, rawURL)

	if m.DownloadError != nil {
		return nil, m.DownloadError
	}

	if data, ok := m.Downloads[rawURL]; ok {
		return append([]byte(nil), data...), nil
	}

	return nil, fmt.Errorf("no mock download for %s", rawURL)
}

// SetToken mocks token setting.
func (m *MockTransport) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// GetToken returns the current token.
func (m *MockTransport) GetToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Close mocks connection closing.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockTransport) handle(req Request, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Track request
	m.Requests = append(m.Requests, req)

	key := req.Method + " " + req.Path

	// Return configured error
	if err, ok := m.Errors[key]; ok {
		return err
	}

	resp, ok := m.Responses[key]
	if !ok {
		if req.Method != http.MethodGet {
			return nil
		}
		return fmt.Errorf("no mock response for %s", key)
	}

	if out == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Helper methods for test setup

// AddResponse sets the data returned for method and path.
func (m *MockTransport) AddResponse(method, path string, response interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[method+" "+path] = response
}

// AddError sets an error for a specific method and path.
func (m *MockTransport) AddError(method, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[method+" "+path] = err
}

// AddDownload sets the content served for a download URL.
func (m *MockTransport) AddDownload(rawURL string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Downloads[rawURL] = data
}

// RequestsFor returns the tracked requests for method and path.
func (m *MockTransport) RequestsFor(method, path string) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Request
	for _, r := range m.Requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}
