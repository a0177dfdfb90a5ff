package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/clipsync/internal/models"
)

// SessionRepository stores signed in sessions for the user facing API.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO sessions (token, user_id, user_agent, ip_address, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, session.Token(), session.UserID(), nullString(session.UserAgent()),
		nullString(session.IPAddress()), session.ExpiresAt(), session.CreatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get returns an unexpired session by token.
func (r *SessionRepository) Get(token string) (*models.Session, error) {
	query := `
		SELECT s.token, s.user_id, s.user_agent, s.ip_address, s.expires_at, s.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id AND u.deleted_at IS NULL
		WHERE s.token = ? AND s.expires_at > ?
	`

	var (
		tok, userID          string
		userAgent, ipAddress sql.NullString
		expiresAt, createdAt sql.NullTime
	)

	err := r.db.QueryRow(query, token, models.Now()).Scan(&tok, &userID, &userAgent, &ipAddress, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("session", "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	session := models.NewSession(tok, userID, 0)
	session.SetClient(userAgent.String, ipAddress.String)
	session.SetExpiresAt(expiresAt.Time)
	session.SetCreatedAt(createdAt.Time)
	return session, nil
}

func (r *SessionRepository) Delete(token string) error {
	result, err := r.db.Exec("DELETE FROM sessions WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectAffected(result, "session", "")
}

func (r *SessionRepository) DeleteForUser(userID string) (int64, error) {
	n, err := affected(r.db.Exec("DELETE FROM sessions WHERE user_id = ?", userID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return n, nil
}

// CleanupExpired removes every session past its expiry.
func (r *SessionRepository) CleanupExpired() (int64, error) {
	n, err := affected(r.db.Exec("DELETE FROM sessions WHERE expires_at <= ?", models.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	return n, nil
}
