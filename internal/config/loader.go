package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. TASKCRYPT_LOG_LEVEL.
const EnvPrefix = "TASKCRYPT"

// Loader handles configuration loading from multiple sources.
// Precedence: flags, environment, config file, defaults.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default
// locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		configPath: configPath,
		v:          v,
	}
}

// BindFlag lets a command-line flag override key.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if err := l.v.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("bind flag %s: %w", key, err)
	}
	return nil
}

// ConfigFileUsed returns the file Load read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	setDefaults(l.v, DefaultConfig())

	if err := l.bindEnv(); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	// Load from file if exists
	if l.configPath == "" {
		for _, path := range l.defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				l.configPath = path
				break
			}
		}
	}
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Crypto.MasterPassword = strings.TrimSpace(cfg.Crypto.MasterPassword)

	// Paths under data_dir follow it unless set explicitly.
	if cfg.Storage.StateDir == "" {
		cfg.Storage.StateDir = filepath.Join(cfg.Storage.DataDir, "state")
	}
	if cfg.Storage.DownloadDir == "" {
		cfg.Storage.DownloadDir = filepath.Join(cfg.Storage.DataDir, "downloads")
	}

	// Validate final config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{
		"taskcrypt.json",
		"taskcrypt.yaml",
		".taskcrypt.json",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "taskcrypt", "config.json"),
			filepath.Join(homeDir, ".config", "taskcrypt", "config.yaml"),
		)
	}

	return paths
}

// bindEnv registers keys without defaults and the compatibility names.
func (l *Loader) bindEnv() error {
	bindings := [][]string{
		{"api.token", EnvPrefix + "_API_TOKEN", "ASANA_TOKEN"},
		{"crypto.master_password", EnvPrefix + "_CRYPTO_MASTER_PASSWORD", EnvPrefix + "_CRYPTO_PASSWORD", "ASANA_MASTER_PASSWORD"},
		{"api.token_file"},
		{"storage.state_dir"},
		{"storage.download_dir"},
	}

	for _, b := range bindings {
		if err := l.v.BindEnv(b...); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.max_retries", d.API.MaxRetries)
	v.SetDefault("api.retry_delay", d.API.RetryDelay)
	v.SetDefault("api.rate_limit", d.API.RateLimit)
	v.SetDefault("api.user_agent", d.API.UserAgent)

	v.SetDefault("crypto.iterations", d.Crypto.Iterations)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.state_backend", d.Storage.StateBackend)
	v.SetDefault("storage.max_file_size", d.Storage.MaxFileSize)

	v.SetDefault("sync.max_concurrent", d.Sync.MaxConcurrent)
	v.SetDefault("sync.page_limit", d.Sync.PageLimit)
	v.SetDefault("sync.max_depth", d.Sync.MaxDepth)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.color", d.Log.Color)
}

// SaveExample writes an example config file. The format follows the
// extension of path. Existing files are left alone.
func SaveExample(path string) error {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.Set("storage.state_dir", DefaultConfig().Storage.StateDir)
	v.Set("storage.download_dir", DefaultConfig().Storage.DownloadDir)

	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
