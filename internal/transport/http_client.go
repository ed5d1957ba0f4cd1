package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/ratelimit"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"

	"github.com/TheMichaelB/taskcrypt/internal/config"
	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
)

// HTTPClient handles HTTP communication with the task API.
type HTTPClient struct {
	client     *http.Client // authenticated API calls
	downloader *http.Client // pre-signed download URLs
	base       *http.Transport
	baseURL    string
	userAgent  string
	tokens     *tokenSource
	limiter    *ratelimit.Bucket
	logger     *events.Logger

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	// Create transport with HTTP/2 support
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
			MinVersion: tls.VersionTLS12,
		},
	}

	// Configure HTTP/2
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	tokens := &tokenSource{}
	tokens.Set(cfg.Token)

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	perMinute := cfg.RateLimit
	if perMinute <= 0 {
		perMinute = 150
	}
	burst := int64(perMinute / 10)
	if burst < 1 {
		burst = 1
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &oauth2.Transport{Source: tokens, Base: transport},
		},
		downloader: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		base:       transport,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		tokens:     tokens,
		limiter:    ratelimit.NewBucketWithRate(float64(perMinute)/60, burst),
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
		logger:     logger.WithField("component", "http_client"),
	}
}

// SetToken sets the personal access token.
func (c *HTTPClient) SetToken(token string) {
	c.tokens.Set(token)
}

// GetToken returns the current personal access token.
func (c *HTTPClient) GetToken() string {
	return c.tokens.Get()
}

// GetJSON fetches path and decodes the response's data member into out.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	env, err := c.call(ctx, http.MethodGet, c.endpoint(path, query), nil, "")
	if err != nil {
		return err
	}
	return decodeData(env.Data, out)
}

// GetAll follows next_page offsets and decodes every page's items into
// out, which must point to a slice.
func (c *HTTPClient) GetAll(ctx context.Context, path string, query url.Values, out interface{}) error {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}

	var all []json.RawMessage
	for page := 0; ; page++ {
		env, err := c.call(ctx, http.MethodGet, c.endpoint(path, q), nil, "")
		if err != nil {
			return err
		}

		var items []json.RawMessage
		if err := decodeData(env.Data, &items); err != nil {
			return err
		}
		all = append(all, items...)

		if env.NextPage == nil || env.NextPage.Offset == "" {
			break
		}
		q.Set("offset", env.NextPage.Offset)

		c.logger.WithFields(map[string]interface{}{
			"path":  path,
			"page":  page + 1,
			"items": len(all),
		}).Debug("Fetching next page")
	}

	if all == nil {
		all = []json.RawMessage{}
	}
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("merge pages: %w", err)
	}
	return decodeData(raw, out)
}

// SendJSON sends body wrapped as {"data": body} and decodes the response's
// data member into out. out may be nil.
func (c *HTTPClient) SendJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(dataEnvelope{Data: body})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	env, err := c.call(ctx, method, c.endpoint(path, nil), payload, "application/json")
	if err != nil {
		return err
	}
	return decodeData(env.Data, out)
}

// Upload posts content as a multipart form file.
func (c *HTTPClient) Upload(ctx context.Context, path string, file UploadFile, out interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	field := file.Field
	if field == "" {
		field = "file"
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(file.Name)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(file.Content); err != nil {
		return fmt.Errorf("write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	env, err := c.call(ctx, http.MethodPost, c.endpoint(path, nil), buf.Bytes(), w.FormDataContentType())
	if err != nil {
		return err
	}
	return decodeData(env.Data, out)
}

// Download fetches an absolute, pre-signed URL without credentials.
func (c *HTTPClient) Download(ctx context.Context, rawURL string) ([]byte, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("invalid download url: %w", err)
	}

	c.logger.Debug("Downloading attachment")

	var data []byte
	err := c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.downloader.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		if err := c.checkStatus(resp, body); err != nil {
			return err
		}

		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithField("size", len(data)).Debug("Downloaded attachment")
	return data, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.base.CloseIdleConnections()
	return nil
}

// call performs one API request with rate limiting and retry, and returns
// the decoded envelope.
func (c *HTTPClient) call(ctx context.Context, method, target string, body []byte, contentType string) (*responseEnvelope, error) {
	if c.tokens.Get() == "" {
		return nil, models.ErrNotAuthenticated
	}

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    redactQuery(target),
		"size":   len(body),
	}).Debug("Sending request")

	var respBody []byte
	err := c.retry(ctx, func() error {
		if err := c.wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		// Set headers
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if err := c.checkStatus(resp, data); err != nil {
			return err
		}

		respBody = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"size":   len(respBody),
	}).Debug("Received response")

	env := &responseEnvelope{}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(respBody, env); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return env, nil
}

// checkStatus turns non-2xx responses into errors, marking the ones worth
// retrying.
func (c *HTTPClient) checkStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var parsed models.ErrorResponse
	_ = json.Unmarshal(body, &parsed)
	apiErr := models.NewAPIError(resp.StatusCode, &parsed)

	if c.isRetryable(resp.StatusCode) {
		return &retryableError{err: apiErr, after: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	return apiErr
}

// wait blocks until the rate limiter grants a request.
func (c *HTTPClient) wait(ctx context.Context) error {
	d := c.limiter.Take(1)
	if d <= 0 {
		return nil
	}

	c.logger.WithField("delay", d).Debug("Rate limited locally")

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes a function with exponential backoff.
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := delay
			var r *retryableError
			if errors.As(lastErr, &r) && r.after > wait {
				wait = r.after
			}

			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   wait,
			}).Debug("Retrying request")

			select {
			case <-time.After(wait):
				delay *= 2 // Exponential backoff
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		// Check if error is retryable
		if !c.isRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an HTTP status code is retryable.
func (c *HTTPClient) isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusBadGateway ||
		status == http.StatusGatewayTimeout ||
		(status >= 500 && status < 600)
}

// isRetryableError checks if an error is retryable. Network errors and
// retryable statuses are; API rejections and cancellation are not.
func (c *HTTPClient) isRetryableError(err error) bool {
	var r *retryableError
	if errors.As(err, &r) {
		return true
	}

	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return !errors.Is(err, models.ErrNotAuthenticated)
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// tokenSource hands the current access token to oauth2.Transport.
type tokenSource struct {
	mu  sync.RWMutex
	src oauth2.TokenSource
	raw string
}

func (t *tokenSource) Set(token string) {
	token = strings.TrimSpace(token)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.raw = token
	t.src = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

func (t *tokenSource) Get() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.raw
}

// Token implements oauth2.TokenSource.
func (t *tokenSource) Token() (*oauth2.Token, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.raw == "" {
		return nil, models.ErrNotAuthenticated
	}
	return t.src.Token()
}

type retryableError struct {
	err   error
	after time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at)
	}
	return 0
}

// redactQuery drops query values from logged URLs.
func redactQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
