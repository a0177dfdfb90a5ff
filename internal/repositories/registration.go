package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/clipsync/internal/models"
)

// RegistrationRepository persists [models.PendingRegistration] rows.
//
// Lookups never return expired registrations.
type RegistrationRepository struct {
	db *sql.DB
}

func NewRegistrationRepository(db *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `token, user_id, device_id_prefix, detected_device_id, detected_name, detected_platform,
	user_approved, expires_at, created_at, updated_at`

func scanRegistration(row scanner) (*models.PendingRegistration, error) {
	var (
		token, userID, prefix            string
		detectedID, detectedName, detPlf sql.NullString
		approved                         bool
		expiresAt, createdAt, updatedAt  sql.NullTime
	)

	err := row.Scan(&token, &userID, &prefix, &detectedID, &detectedName, &detPlf, &approved, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p := models.NewPendingRegistration(token, userID, prefix, 0)
	p.SetDetected(detectedID.String, detectedName.String, detPlf.String)
	p.SetApproved(approved)
	p.SetExpiresAt(expiresAt.Time)
	p.SetCreatedAt(createdAt.Time)
	p.SetUpdatedAt(updatedAt.Time)
	return p, nil
}

func (r *RegistrationRepository) queryOne(where string, args ...any) (*models.PendingRegistration, error) {
	query := "SELECT " + registrationColumns + " FROM pending_device_registrations WHERE " + where
	p, err := scanRegistration(r.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("registration", "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query registration: %w", err)
	}
	return p, nil
}

func (r *RegistrationRepository) Create(p *models.PendingRegistration) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO pending_device_registrations (` + registrationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		p.Token(),
		p.UserID(),
		p.DeviceIDPrefix(),
		nullString(p.DetectedDeviceID()),
		nullString(p.DetectedName()),
		nullString(p.DetectedPlatform()),
		p.UserApproved(),
		p.ExpiresAt(),
		p.CreatedAt(),
		p.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert registration: %w", err)
	}
	return nil
}

// Get returns an unexpired registration by token.
func (r *RegistrationRepository) Get(token string) (*models.PendingRegistration, error) {
	return r.queryOne("token = ? AND expires_at > ?", token, models.Now())
}

// GetByPrefix returns the newest unexpired registration for a device id prefix.
func (r *RegistrationRepository) GetByPrefix(prefix string) (*models.PendingRegistration, error) {
	return r.queryOne("device_id_prefix = ? AND expires_at > ? ORDER BY created_at DESC LIMIT 1", prefix, models.Now())
}

// ListForUser returns a user's unexpired registrations, newest first.
func (r *RegistrationRepository) ListForUser(userID string) ([]*models.PendingRegistration, error) {
	query := "SELECT " + registrationColumns + ` FROM pending_device_registrations
		WHERE user_id = ? AND expires_at > ? ORDER BY created_at DESC`

	rows, err := r.db.Query(query, userID, models.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer rows.Close()

	var registrations []*models.PendingRegistration
	for rows.Next() {
		p, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		registrations = append(registrations, p)
	}
	return registrations, rows.Err()
}

// UpdateDetected records what the agent reported about itself.
func (r *RegistrationRepository) UpdateDetected(token, deviceID, name, platform string) error {
	result, err := r.db.Exec(`
		UPDATE pending_device_registrations
		SET detected_device_id = ?, detected_name = ?, detected_platform = ?, updated_at = ?
		WHERE token = ?
	`, nullString(deviceID), nullString(name), nullString(platform), models.Now(), token)
	if err != nil {
		return fmt.Errorf("failed to update registration: %w", err)
	}
	return expectAffected(result, "registration", token)
}

func (r *RegistrationRepository) Approve(token string) error {
	result, err := r.db.Exec("UPDATE pending_device_registrations SET user_approved = 1, updated_at = ? WHERE token = ?",
		models.Now(), token)
	if err != nil {
		return fmt.Errorf("failed to approve registration: %w", err)
	}
	return expectAffected(result, "registration", token)
}

func (r *RegistrationRepository) Delete(token string) error {
	result, err := r.db.Exec("DELETE FROM pending_device_registrations WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}
	return expectAffected(result, "registration", token)
}

// DeleteByPrefix removes every registration for a device id prefix.
func (r *RegistrationRepository) DeleteByPrefix(prefix string) (int64, error) {
	n, err := affected(r.db.Exec("DELETE FROM pending_device_registrations WHERE device_id_prefix = ?", prefix))
	if err != nil {
		return 0, fmt.Errorf("failed to delete registrations: %w", err)
	}
	return n, nil
}

func (r *RegistrationRepository) CleanupExpired() (int64, error) {
	n, err := affected(r.db.Exec("DELETE FROM pending_device_registrations WHERE expires_at <= ?", models.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up registrations: %w", err)
	}
	return n, nil
}
