// Package client wires configuration, transport, encryption and local
// persistence into one handle for the CLI.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcrowley/go-metrics"

	"github.com/TheMichaelB/taskcrypt/internal/config"
	"github.com/TheMichaelB/taskcrypt/internal/crypto"
	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
	"github.com/TheMichaelB/taskcrypt/internal/services/auth"
	"github.com/TheMichaelB/taskcrypt/internal/services/tasks"
	"github.com/TheMichaelB/taskcrypt/internal/state"
	"github.com/TheMichaelB/taskcrypt/internal/storage"
	"github.com/TheMichaelB/taskcrypt/internal/store"
	"github.com/TheMichaelB/taskcrypt/internal/transport"
)

// Client provides the high-level API for taskcrypt operations.
type Client struct {
	Auth      *auth.Service
	Tasks     *tasks.Service
	Crypto    *crypto.Engine
	Snapshots state.Store
	Files     *storage.LocalStore
	Metrics   metrics.Registry

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
}

// New creates a client talking to the configured API.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	return NewWithTransport(cfg, transport.NewTransport(&cfg.API, logger), logger)
}

// NewWithTransport creates a client on top of an existing transport.
func NewWithTransport(cfg *config.Config, t transport.Transport, logger *events.Logger) (*Client, error) {
	registry := metrics.NewRegistry()

	engine := crypto.NewEngine(
		crypto.WithLogger(logger),
		crypto.WithMetrics(registry),
	)
	if cfg.Crypto.MasterPassword != "" {
		engine.SetMasterPassword(cfg.Crypto.MasterPassword)
	}

	snapshots, err := state.New(&cfg.Storage, logger)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	files, err := storage.NewLocalStore(cfg.Storage.DownloadDir, logger)
	if err != nil {
		engine.Close()
		snapshots.Close()
		return nil, fmt.Errorf("create download store: %w", err)
	}
	files.SetMaxFileSize(cfg.Storage.MaxFileSize)

	if cfg.API.Token != "" {
		t.SetToken(cfg.API.Token)
	}

	authService := auth.NewService(t, tokenFile(cfg), logger)
	if err := authService.EnsureAuthenticated(); err != nil {
		logger.Debug("No access token configured")
	}

	return &Client{
		Auth:      authService,
		Tasks:     tasks.NewService(t, engine, cfg.Sync, logger),
		Crypto:    engine,
		Snapshots: snapshots,
		Files:     files,
		Metrics:   registry,
		config:    cfg,
		logger:    logger,
		transport: t,
	}, nil
}

// tokenFile resolves where login saves the access token.
func tokenFile(cfg *config.Config) string {
	path := cfg.API.TokenFile
	if path == "" {
		return filepath.Join(cfg.Storage.StateDir, "auth", "token.json")
	}

	// Expand tilde in path
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// Authenticated reports whether an access token is configured.
func (c *Client) Authenticated() bool {
	return c.transport.GetToken() != ""
}

// SetPassword replaces the master password. Blank input disables
// encryption.
func (c *Client) SetPassword(password string) {
	c.Crypto.SetMasterPassword(password)
}

// OpenProject fetches a project, saves the raw items as its snapshot and
// returns a record store over the decrypted items.
func (c *Client) OpenProject(ctx context.Context, projectID string) (*store.Store, error) {
	if !c.Authenticated() {
		return nil, models.ErrNotAuthenticated
	}

	projectName, _ := c.Tasks.ProjectName(projectID)

	items, err := c.Tasks.LoadProjectRaw(ctx, projectID, projectName)
	if err != nil {
		return nil, err
	}

	c.saveSnapshot(projectID, projectName, items)

	return c.openItems(ctx, items)
}

// OpenSnapshot returns a record store over the last saved snapshot of a
// project, decrypted with the current password.
func (c *Client) OpenSnapshot(ctx context.Context, projectID string) (*store.Store, *models.Snapshot, error) {
	snap, err := c.Snapshots.Load(projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshot %s: %w", projectID, err)
	}

	s, err := c.openItems(ctx, snap.Items)
	if err != nil {
		return nil, nil, err
	}
	return s, snap, nil
}

func (c *Client) openItems(ctx context.Context, items []models.Item) (*store.Store, error) {
	decrypted := make([]models.Item, len(items))
	copy(decrypted, items)
	if err := c.Tasks.DecryptItems(ctx, decrypted); err != nil {
		return nil, err
	}

	s := store.New(c.logger)
	if err := s.Load(decrypted); err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return s, nil
}

// saveSnapshot persists raw items. Failures are logged and never fail the
// fetch.
func (c *Client) saveSnapshot(projectID, projectName string, items []models.Item) {
	logger := c.logger.WithField("project_id", projectID)

	unlock, err := c.Snapshots.Lock(projectID)
	if err != nil {
		logger.WithError(err).Warn("Failed to lock snapshot")
		return
	}
	defer unlock()

	if err := c.Snapshots.Save(models.NewSnapshot(projectID, projectName, items)); err != nil {
		logger.WithError(err).Warn("Failed to save snapshot")
	}
}

// SavedAttachment describes a downloaded attachment written to disk.
type SavedAttachment struct {
	storage.Written
	Name      string
	Mime      string
	Decrypted bool
}

// SaveAttachment downloads an attachment, decrypts it when possible and
// writes it under the download directory.
func (c *Client) SaveAttachment(ctx context.Context, att models.Attachment, strategy storage.ConflictStrategy) (*SavedAttachment, error) {
	payload, decrypted, err := c.Tasks.DownloadAttachment(ctx, att)
	if err != nil {
		return nil, err
	}

	name := storage.SanitizeFileName(payload.Name, att.GID)
	c.Files.SetConflictStrategy(strategy)

	written, err := c.Files.Write(name, payload.Data, 0600)
	if err != nil {
		return nil, &models.TaskError{Code: models.ErrCodeStorage, Op: "save attachment", TaskID: att.GID, Err: err}
	}

	return &SavedAttachment{
		Written:   written,
		Name:      payload.Name,
		Mime:      payload.Mime,
		Decrypted: decrypted,
	}, nil
}

// Config returns the client configuration.
func (c *Client) Config() *config.Config {
	return c.config
}

// Close releases the transport, the snapshot store and the password.
func (c *Client) Close() error {
	c.Crypto.Close()

	var errs []error
	if err := c.transport.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Snapshots.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
