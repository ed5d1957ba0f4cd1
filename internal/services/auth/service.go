package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
	"github.com/TheMichaelB/taskcrypt/internal/transport"
)

// Service verifies and stores the personal access token.
type Service struct {
	transport transport.Transport
	logger    *events.Logger

	// Token cache
	mu        sync.Mutex
	token     *models.TokenInfo
	tokenFile string
}

// NewService creates an auth service. An empty tokenFile keeps tokens in
// memory only.
func NewService(transport transport.Transport, tokenFile string, logger *events.Logger) *Service {
	return &Service{
		transport: transport,
		tokenFile: tokenFile,
		logger:    logger.WithField("service", "auth"),
	}
}

// Me returns the user the current token belongs to.
func (s *Service) Me(ctx context.Context) (*models.Me, error) {
	if s.transport.GetToken() == "" {
		return nil, models.ErrNotAuthenticated
	}

	query := url.Values{}
	query.Set("opt_fields", "name,email,workspaces.name")

	var me models.Me
	if err := s.transport.GetJSON(ctx, "/users/me", query, &me); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &me, nil
}

// Login checks token against the API and saves it. The previous token is
// kept when the check fails.
func (s *Service) Login(ctx context.Context, token string) (*models.Me, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("token required")
	}

	previous := s.transport.GetToken()
	s.transport.SetToken(token)

	me, err := s.Me(ctx)
	if err != nil {
		s.transport.SetToken(previous)
		return nil, fmt.Errorf("verify token: %w", err)
	}

	s.mu.Lock()
	s.token = &models.TokenInfo{
		Token:   token,
		Name:    me.Name,
		Email:   me.Email,
		SavedAt: time.Now().UTC(),
	}
	err = s.saveToken()
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).Warn("Failed to save token")
	}

	s.logger.WithField("email", me.Email).Info("Login successful")
	return me, nil
}

// Logout forgets the saved token.
func (s *Service) Logout() error {
	s.logger.Info("Logging out")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = nil
	s.transport.SetToken("")

	if s.tokenFile != "" {
		if err := os.Remove(s.tokenFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove token file: %w", err)
		}
	}
	return nil
}

// GetToken returns the saved token.
func (s *Service) GetToken() (*models.TokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil {
		return s.token, nil
	}

	if err := s.loadToken(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.WithError(err).Debug("No usable token file")
		}
		return nil, models.ErrNotAuthenticated
	}
	return s.token, nil
}

// EnsureAuthenticated makes sure the transport carries a token, loading
// the saved one when none was configured.
func (s *Service) EnsureAuthenticated() error {
	if s.transport.GetToken() != "" {
		return nil
	}

	token, err := s.GetToken()
	if err != nil {
		return err
	}

	s.transport.SetToken(token.Token)
	s.logger.WithField("email", token.Email).Debug("Using saved token")
	return nil
}

// Token persistence

func (s *Service) saveToken() error {
	if s.tokenFile == "" || s.token == nil {
		return nil
	}

	data, err := json.Marshal(s.token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.tokenFile), 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}

	// Save with restricted permissions
	return os.WriteFile(s.tokenFile, data, 0600)
}

func (s *Service) loadToken() error {
	if s.tokenFile == "" {
		return os.ErrNotExist
	}

	data, err := os.ReadFile(s.tokenFile)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	var token models.TokenInfo
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}
	if token.Token == "" {
		return fmt.Errorf("token file %s holds no token", s.tokenFile)
	}

	s.token = &token
	return nil
}
