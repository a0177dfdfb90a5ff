package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/clipsync/internal/models"
)

// WsTokenRepository persists realtime connection tokens.
type WsTokenRepository struct {
	db *sql.DB
}

func NewWsTokenRepository(db *sql.DB) *WsTokenRepository {
	return &WsTokenRepository{db: db}
}

const wsTokenColumns = "token, user_id, device_id, expires_at, created_at"

func scanWsToken(row scanner) (*models.WsToken, error) {
	var (
		token, userID        string
		deviceID             sql.NullString
		expiresAt, createdAt sql.NullTime
	)
	if err := row.Scan(&token, &userID, &deviceID, &expiresAt, &createdAt); err != nil {
		return nil, err
	}

	w := models.NewWsToken(token, userID, deviceID.String, 0)
	w.SetExpiresAt(expiresAt.Time)
	w.SetCreatedAt(createdAt.Time)
	return w, nil
}

func (r *WsTokenRepository) list(where string, args ...any) ([]*models.WsToken, error) {
	rows, err := r.db.Query("SELECT "+wsTokenColumns+" FROM ws_tokens WHERE "+where+" ORDER BY created_at DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ws tokens: %w", err)
	}
	defer rows.Close()

	tokens := []*models.WsToken{}
	for rows.Next() {
		w, err := scanWsToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ws token: %w", err)
		}
		tokens = append(tokens, w)
	}
	return tokens, rows.Err()
}

func (r *WsTokenRepository) Create(w *models.WsToken) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := r.db.Exec("INSERT INTO ws_tokens ("+wsTokenColumns+") VALUES (?, ?, ?, ?, ?)",
		w.Token(), w.UserID(), nullString(w.DeviceID()), w.ExpiresAt(), w.CreatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert ws token: %w", err)
	}
	return nil
}

// Get returns a token regardless of expiry.
func (r *WsTokenRepository) Get(token string) (*models.WsToken, error) {
	w, err := scanWsToken(r.db.QueryRow("SELECT "+wsTokenColumns+" FROM ws_tokens WHERE token = ?", token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("ws token", "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ws token: %w", err)
	}
	return w, nil
}

// ListForUser returns the unexpired tokens of a user, newest first.
func (r *WsTokenRepository) ListForUser(userID string) ([]*models.WsToken, error) {
	return r.list("user_id = ? AND expires_at > ?", userID, models.Now())
}

// ListForDevice returns the unexpired tokens bound to a device.
func (r *WsTokenRepository) ListForDevice(deviceID string) ([]*models.WsToken, error) {
	return r.list("device_id = ? AND expires_at > ?", deviceID, models.Now())
}

// CountForUser counts the unexpired tokens of a user.
func (r *WsTokenRepository) CountForUser(userID string) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM ws_tokens WHERE user_id = ? AND expires_at > ?", userID, models.Now()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count ws tokens: %w", err)
	}
	return n, nil
}

// Extend sets a new expiry for a token.
func (r *WsTokenRepository) Extend(token string, expiresAt time.Time) error {
	result, err := r.db.Exec("UPDATE ws_tokens SET expires_at = ? WHERE token = ?", expiresAt, token)
	if err != nil {
		return fmt.Errorf("failed to extend ws token: %w", err)
	}
	return expectAffected(result, "ws token", "")
}

func (r *WsTokenRepository) Delete(token string) error {
	result, err := r.db.Exec("DELETE FROM ws_tokens WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("failed to delete ws token: %w", err)
	}
	return expectAffected(result, "ws token", "")
}

func (r *WsTokenRepository) DeleteForUser(userID string) (int64, error) {
	n, err := affected(r.db.Exec("DELETE FROM ws_tokens WHERE user_id = ?", userID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete ws tokens: %w", err)
	}
	return n, nil
}

func (r *WsTokenRepository) DeleteForDevice(deviceID string) (int64, error) {
	n, err := affected(r.db.Exec("DELETE FROM ws_tokens WHERE device_id = ?", deviceID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete ws tokens: %w", err)
	}
	return n, nil
}

func (r *WsTokenRepository) CleanupExpired() (int64, error) {
	n, err := affected(r.db.Exec("DELETE FROM ws_tokens WHERE expires_at <= ?", models.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up ws tokens: %w", err)
	}
	return n, nil
}
