package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/repositories"
	"github.com/desertthunder/clipsync/internal/shared"
)

// WsTokenService issues short-lived tokens that let a client open a realtime connection.
type WsTokenService struct {
	tokens *repositories.WsTokenRepository
	ttl    time.Duration
	limit  int
	now    func() time.Time
}

// NewWsTokenService creates a [WsTokenService]. limit caps the unexpired tokens per user; zero disables it.
func NewWsTokenService(tokens *repositories.WsTokenRepository, ttl time.Duration, limit int) *WsTokenService {
	return &WsTokenService{tokens: tokens, ttl: ttl, limit: limit, now: models.Now}
}

// Generate issues a token for userID with the default lifetime.
func (s *WsTokenService) Generate(userID, deviceID string) (*models.WsToken, error) {
	return s.GenerateWithExpiry(userID, deviceID, s.ttl)
}

// GenerateWithExpiry issues a token that lives for ttl.
func (s *WsTokenService) GenerateWithExpiry(userID, deviceID string, ttl time.Duration) (*models.WsToken, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: token lifetime must be positive", shared.ErrInvalidInput)
	}

	if s.limit > 0 {
		n, err := s.tokens.CountForUser(userID)
		if err != nil {
			return nil, err
		}
		if n >= s.limit {
			return nil, fmt.Errorf("too many active tokens (%d): %w", n, shared.ErrRateLimited)
		}
	}

	token, err := shared.GenerateToken(32)
	if err != nil {
		return nil, err
	}

	w := models.NewWsToken(token, userID, deviceID, ttl)
	if err := s.tokens.Create(w); err != nil {
		return nil, fmt.Errorf("failed to create ws token: %w", err)
	}
	return w, nil
}

// Validate returns the token if it is still valid. Expired tokens are deleted and reported as not found.
func (s *WsTokenService) Validate(token string) (*models.WsToken, error) {
	w, err := s.tokens.Get(token)
	if err != nil {
		return nil, err
	}

	if w.Expired(s.now()) {
		if err := s.tokens.Delete(token); err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid or expired token: %w", shared.ErrNotFound)
	}
	return w, nil
}

// Revoke deletes one of the user's tokens.
func (s *WsTokenService) Revoke(userID, token string) error {
	w, err := s.tokens.Get(token)
	if err != nil {
		return err
	}
	if w.UserID() != userID {
		return fmt.Errorf("ws token: %w", shared.ErrNotFound)
	}
	return s.tokens.Delete(token)
}

// Refresh pushes the token's expiry one lifetime past now.
func (s *WsTokenService) Refresh(userID, token string) (*models.WsToken, error) {
	w, err := s.Validate(token)
	if err != nil {
		return nil, err
	}
	if w.UserID() != userID {
		return nil, fmt.Errorf("ws token: %w", shared.ErrNotFound)
	}

	expiresAt := s.now().Add(s.ttl)
	if err := s.tokens.Extend(token, expiresAt); err != nil {
		return nil, err
	}
	w.SetExpiresAt(expiresAt)
	return w, nil
}

func (s *WsTokenService) ListForUser(userID string) ([]*models.WsToken, error) {
	return s.tokens.ListForUser(userID)
}

func (s *WsTokenService) ListForDevice(deviceID string) ([]*models.WsToken, error) {
	return s.tokens.ListForDevice(deviceID)
}

func (s *WsTokenService) CleanupExpired() (int64, error) {
	return s.tokens.CleanupExpired()
}
