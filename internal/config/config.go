package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Iterations is the only PBKDF2 work factor tokens are produced with.
const Iterations = 100000

// Config holds all application configuration.
type Config struct {
	// API configuration
	API APIConfig `json:"api" mapstructure:"api"`

	// Encryption settings
	Crypto CryptoConfig `json:"crypto" mapstructure:"crypto"`

	// Storage paths
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Fetch and decrypt behavior
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	Token      string        `json:"token,omitempty" mapstructure:"token"` // Personal access token
	TokenFile  string        `json:"token_file" mapstructure:"token_file"`  // Saved by login; empty = state_dir/auth/token.json
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
	RateLimit  int           `json:"rate_limit" mapstructure:"rate_limit"` // Requests per minute
	UserAgent  string        `json:"user_agent" mapstructure:"user_agent"`
}

// CryptoConfig for client-side encryption.
type CryptoConfig struct {
	MasterPassword string `json:"master_password,omitempty" mapstructure:"master_password"`
	Iterations     int    `json:"iterations" mapstructure:"iterations"`
}

// StorageConfig for local file paths.
type StorageConfig struct {
	DataDir      string `json:"data_dir" mapstructure:"data_dir"`           // Base directory for all data
	StateDir     string `json:"state_dir" mapstructure:"state_dir"`         // Project snapshots
	DownloadDir  string `json:"download_dir" mapstructure:"download_dir"`   // Downloaded attachments
	StateBackend string `json:"state_backend" mapstructure:"state_backend"` // json or sqlite
	MaxFileSize  int64  `json:"max_file_size" mapstructure:"max_file_size"` // Max attachment size in bytes
}

// SyncConfig for fetch and decrypt fan-out.
type SyncConfig struct {
	MaxConcurrent int `json:"max_concurrent" mapstructure:"max_concurrent"`
	PageLimit     int `json:"page_limit" mapstructure:"page_limit"`
	MaxDepth      int `json:"max_depth" mapstructure:"max_depth"` // Subtask recursion limit
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stderr)
	Color  bool   `json:"color" mapstructure:"color"`   // Enable colored output
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".taskcrypt"

	return &Config{
		API: APIConfig{
			BaseURL:    "https://app.asana.com/api/1.0",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
			RateLimit:  150,
			UserAgent:  "taskcrypt/1.0",
		},
		Crypto: CryptoConfig{
			Iterations: Iterations,
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			StateDir:     filepath.Join(dataDir, "state"),
			DownloadDir:  filepath.Join(dataDir, "downloads"),
			StateBackend: "json",
			MaxFileSize:  100 * 1024 * 1024, // 100MB
		},
		Sync: SyncConfig{
			MaxConcurrent: 8,
			PageLimit:     100,
			MaxDepth:      8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("invalid api.base_url: %w", err)
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must not be negative")
	}

	if c.API.RateLimit <= 0 {
		return errors.New("api.rate_limit must be positive")
	}

	if c.Crypto.Iterations != Iterations {
		return fmt.Errorf("crypto.iterations must be %d", Iterations)
	}

	if c.Storage.MaxFileSize <= 0 {
		return errors.New("storage.max_file_size must be positive")
	}

	validBackends := map[string]bool{"json": true, "sqlite": true}
	if !validBackends[c.Storage.StateBackend] {
		return fmt.Errorf("invalid state backend: %s", c.Storage.StateBackend)
	}

	if c.Sync.MaxConcurrent <= 0 {
		return errors.New("sync.max_concurrent must be positive")
	}

	if c.Sync.PageLimit < 1 || c.Sync.PageLimit > 100 {
		return errors.New("sync.page_limit must be between 1 and 100")
	}

	if c.Sync.MaxDepth < 0 {
		return errors.New("sync.max_depth must not be negative")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.Storage.StateDir,
		c.Storage.DownloadDir,
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
