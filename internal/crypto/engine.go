package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/rcrowley/go-metrics"

	"github.com/TheMichaelB/taskcrypt/internal/events"
)

const (
	// Key sizes
	KeySize   = 32 // AES-256
	SaltSize  = 16
	NonceSize = 12 // GCM standard
	TagSize   = 16 // GCM tag

	// PBKDF2 parameters. Changing them orphans every existing token.
	DefaultIterations = 100000

	// Sentinel is shown in place of content that cannot be decrypted.
	Sentinel = "[ENCRYPTED]"

	metricPrefix = "taskcrypt.crypto."
)

// Errors
var (
	ErrNoPassword       = errors.New("master password not set")
	ErrAuthentication   = errors.New("authentication failed: wrong password or corrupted ciphertext")
	ErrMalformedToken   = errors.New("malformed envelope token")
	ErrMalformedPayload = errors.New("malformed binary payload")
	ErrNotEncrypted     = errors.New("content is not encrypted")
	ErrInvalidKey       = errors.New("invalid key size")
	ErrInvalidFileName  = errors.New("file name is not valid UTF-8")
)

// Result is the outcome of a decryption. Err is nil, ErrMalformedToken
// or ErrAuthentication.
type Result struct {
	Plaintext string
	Err       error
}

// OK reports whether decryption succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// OrSentinel returns the plaintext, or Sentinel on failure.
func (r Result) OrSentinel() string {
	if r.Err != nil {
		return Sentinel
	}
	return r.Plaintext
}

// Engine encrypts and decrypts task fields under a master password.
// It is safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	password *memguard.Enclave

	cache  *KeyCache
	codec  Codec
	random io.Reader
	logger *events.Logger

	encrypts metrics.Counter
	decrypts metrics.Counter
	failures metrics.Counter
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	codec    Codec
	random   io.Reader
	logger   *events.Logger
	registry metrics.Registry
}

// WithCodec swaps the token format.
func WithCodec(codec Codec) Option {
	return func(o *engineOptions) { o.codec = codec }
}

// WithRandom replaces crypto/rand as the salt and nonce source.
func WithRandom(r io.Reader) Option {
	return func(o *engineOptions) { o.random = r }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *events.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithMetrics registers counters in registry.
func WithMetrics(registry metrics.Registry) Option {
	return func(o *engineOptions) { o.registry = registry }
}

// NewEngine creates an engine with encryption disabled.
func NewEngine(opts ...Option) *Engine {
	o := engineOptions{
		codec:  NewJSONCodec(),
		random: rand.Reader,
		logger: events.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cache:    NewKeyCache(o.registry),
		codec:    o.codec,
		random:   o.random,
		logger:   o.logger.WithField("component", "crypto"),
		encrypts: metrics.NilCounter{},
		decrypts: metrics.NilCounter{},
		failures: metrics.NilCounter{},
	}
	if o.registry != nil {
		e.encrypts = metrics.GetOrRegisterCounter(metricPrefix+"encrypt", o.registry)
		e.decrypts = metrics.GetOrRegisterCounter(metricPrefix+"decrypt", o.registry)
		e.failures = metrics.GetOrRegisterCounter(metricPrefix+"decrypt.failed", o.registry)
	}

	return e
}

// SetMasterPassword replaces the master password and drops every cached
// key. Blank input disables encryption.
func (e *Engine) SetMasterPassword(password string) {
	password = strings.TrimSpace(password)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.password = nil
	if password != "" {
		e.password = memguard.NewEnclave([]byte(password))
	}
	e.cache.Reset()

	e.logger.WithField("enabled", e.password != nil).Debug("Master password updated")
}

// ClearMasterPassword disables encryption.
func (e *Engine) ClearMasterPassword() {
	e.SetMasterPassword("")
}

// HasPassword implements Provider.
func (e *Engine) HasPassword() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.password != nil
}

// IsEncrypted implements Provider.
func (e *Engine) IsEncrypted(text string) bool {
	return e.codec.LooksLikeEnvelope(text)
}

// CachedKeys returns the number of derived keys held in memory.
func (e *Engine) CachedKeys() int {
	return e.cache.Len()
}

// Close forgets the master password and cached keys.
func (e *Engine) Close() {
	e.ClearMasterPassword()
}

// Encrypt implements Provider.
func (e *Engine) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !e.HasPassword() {
		return plaintext, nil
	}

	salt, err := e.randomBytes(SaltSize)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	nonce, err := e.randomBytes(NonceSize)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	key, err := e.deriveKey(salt)
	if errors.Is(err, ErrNoPassword) {
		// Password cleared while we were running.
		return plaintext, nil
	}
	if err != nil {
		return "", err
	}
	defer wipe(key)

	ciphertext, err := Seal(key, nonce, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}

	token, err := e.codec.Serialize(Envelope{Salt: salt, Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return "", fmt.Errorf("serialize envelope: %w", err)
	}

	e.encrypts.Inc(1)
	return token, nil
}

// Decrypt implements Provider. It never panics: parse and authentication
// failures are logged and reported through Result.Err.
func (e *Engine) Decrypt(token string) Result {
	if token == "" || !e.HasPassword() {
		return Result{Plaintext: token}
	}

	e.decrypts.Inc(1)

	env, err := e.codec.Parse(token)
	if err != nil {
		return e.fail(err)
	}

	key, err := e.deriveKey(env.Salt)
	if errors.Is(err, ErrNoPassword) {
		return Result{Plaintext: token}
	}
	if err != nil {
		return e.fail(err)
	}
	defer wipe(key)

	plaintext, err := Open(key, env.Nonce, env.Ciphertext)
	if err != nil {
		return e.fail(err)
	}

	return Result{Plaintext: string(plaintext)}
}

// DecryptString implements Provider.
func (e *Engine) DecryptString(token string) string {
	return e.Decrypt(token).OrSentinel()
}

// DecryptIfEnvelope implements Provider.
func (e *Engine) DecryptIfEnvelope(text string) string {
	if text == "" || !e.HasPassword() || !e.IsEncrypted(text) {
		return text
	}

	res := e.Decrypt(text)
	if !res.OK() {
		return text
	}
	return res.Plaintext
}

// deriveKey returns the key for salt under the current password.
func (e *Engine) deriveKey(salt []byte) ([]byte, error) {
	e.mu.RLock()
	enclave := e.password
	generation := e.cache.Generation()
	e.mu.RUnlock()

	if enclave == nil {
		return nil, ErrNoPassword
	}

	if key, ok := e.cache.Get(salt); ok {
		return key, nil
	}

	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("open password enclave: %w", err)
	}
	key := DeriveKey(buf.Bytes(), salt)
	buf.Destroy()

	if !e.cache.Store(salt, key, generation) {
		e.logger.Debug("Discarded key derived under a replaced password")
	}

	return key, nil
}

func (e *Engine) randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(e.random, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (e *Engine) fail(err error) Result {
	e.failures.Inc(1)

	kind := ErrAuthentication
	if errors.Is(err, ErrMalformedToken) {
		kind = ErrMalformedToken
	}

	e.logger.WithError(err).Warn("Decryption failed")
	return Result{Err: kind}
}
