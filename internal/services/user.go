package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/repositories"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/desertthunder/clipsync/internal/storage"
)

// DataSummary describes everything stored for a user.
type DataSummary struct {
	User           *models.User `json:"user"`
	Devices        int          `json:"devices"`
	ClipboardItems int64        `json:"clipboardItems"`
	StorageBytes   int64        `json:"storageBytes"`
	LatestSeq      int64        `json:"latestSeq"`
	WsTokens       int          `json:"wsTokens"`
}

// UserService manages accounts and their sessions.
type UserService struct {
	users    *repositories.UserRepository
	sessions *repositories.SessionRepository
	devices  *repositories.DeviceRepository
	items    *repositories.ClipboardRepository
	wsTokens *repositories.WsTokenRepository
	store    storage.Store
	ttl      time.Duration
	logger   *log.Logger
}

func NewUserService(repos *Repositories, store storage.Store, sessionTTL time.Duration, logger *log.Logger) *UserService {
	if logger == nil {
		logger = log.Default()
	}
	return &UserService{
		users:    repos.Users,
		sessions: repos.Sessions,
		devices:  repos.Devices,
		items:    repos.Clipboard,
		wsTokens: repos.WsTokens,
		store:    store,
		ttl:      sessionTTL,
		logger:   logger,
	}
}

// Create registers a new account. An empty name defaults to the local part of the email.
func (s *UserService) Create(email, name string) (*models.User, error) {
	if strings.TrimSpace(name) == "" {
		name, _, _ = strings.Cut(strings.TrimSpace(email), "@")
	}
	user := models.NewUser(0, email, name)
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Get(id string) (*models.User, error) {
	return s.users.Get(id)
}

// Find looks a user up by id or, when ref contains "@", by email.
func (s *UserService) Find(ref string) (*models.User, error) {
	if strings.Contains(ref, "@") {
		return s.users.GetByEmail(strings.ToLower(strings.TrimSpace(ref)))
	}
	return s.users.Get(ref)
}

func (s *UserService) List() ([]*models.User, error) {
	return s.users.List(nil)
}

// IssueSession signs the user in and returns a bearer session.
func (s *UserService) IssueSession(userID, userAgent, ipAddress string) (*models.Session, error) {
	if _, err := s.users.Get(userID); err != nil {
		return nil, err
	}

	token, err := shared.GenerateToken(32)
	if err != nil {
		return nil, err
	}

	session := models.NewSession(token, userID, s.ttl)
	session.SetClient(userAgent, ipAddress)
	if err := s.sessions.Create(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Authenticate resolves a session token. Unknown and expired sessions are unauthorized.
func (s *UserService) Authenticate(token string) (*models.User, *models.Session, error) {
	if token == "" || shared.IsAPIKey(token) {
		return nil, nil, fmt.Errorf("missing session: %w", shared.ErrUnauthorized)
	}

	session, err := s.sessions.Get(token)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil, fmt.Errorf("invalid or expired session: %w", shared.ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.Get(session.UserID())
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil, fmt.Errorf("session user is gone: %w", shared.ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// SignOut deletes a session.
func (s *UserService) SignOut(token string) error {
	return s.sessions.Delete(token)
}

func (s *UserService) CleanupSessions() (int64, error) {
	return s.sessions.CleanupExpired()
}

// Summary counts what is stored for the user.
func (s *UserService) Summary(userID string) (*DataSummary, error) {
	user, err := s.users.Get(userID)
	if err != nil {
		return nil, err
	}

	devices, err := s.devices.ListForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	count, err := s.items.CountForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count clipboard items: %w", err)
	}
	usage, err := s.items.StorageUsage(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum storage usage: %w", err)
	}
	latest, err := s.items.LatestSeq(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest seq: %w", err)
	}
	tokens, err := s.wsTokens.CountForUser(userID)
	if err != nil {
		return nil, err
	}

	return &DataSummary{
		User:           user,
		Devices:        len(devices),
		ClipboardItems: count,
		StorageBytes:   usage,
		LatestSeq:      latest,
		WsTokens:       tokens,
	}, nil
}

// DeleteAllData removes the account and everything that belongs to it, returning what was there.
//
// Rows go with the user through foreign key cascades; blobs are deleted from the store afterwards.
func (s *UserService) DeleteAllData(ctx context.Context, userID string) (*DataSummary, error) {
	summary, err := s.Summary(userID)
	if err != nil {
		return nil, err
	}

	urls, err := s.items.ObjectURLsForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored blobs: %w", err)
	}

	if err := s.users.Purge(userID); err != nil {
		return nil, fmt.Errorf("failed to delete user data: %w", err)
	}

	if s.store != nil {
		for _, url := range urls {
			if err := s.store.Delete(ctx, url); err != nil {
				s.logger.Warn("failed to delete blob", "url", url, "error", err)
			}
		}
	}

	s.logger.Info("user data deleted", "user", userID, "items", summary.ClipboardItems, "devices", summary.Devices)
	return summary, nil
}
