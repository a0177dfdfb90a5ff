package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
)

var _ models.Repository[*models.Device] = (*DeviceRepository)(nil)

// DeviceRepository implements [models.Repository] for [models.Device] persistence.
//
// Devices are addressed two ways: by the internal id that clipboard items reference,
// and by the agent generated device id that clients see.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new [DeviceRepository] with the given database connection
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `id, user_id, device_id, name, platform, ip_address, user_agent, api_key,
	verified, receive_updates, is_active, last_seen_at, created_at, updated_at`

func scanDevice(row scanner) (*models.Device, error) {
	var (
		id, userID, deviceID, name, platform string
		ipAddress, userAgent, apiKey         sql.NullString
		verified, receiveUpdates, isActive   bool
		lastSeenAt, createdAt, updatedAt     sql.NullTime
	)

	err := row.Scan(&id, &userID, &deviceID, &name, &platform, &ipAddress, &userAgent, &apiKey,
		&verified, &receiveUpdates, &isActive, &lastSeenAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	device := models.NewDevice(userID, deviceID, name, platform)
	device.SetID(id)
	device.SetClient(ipAddress.String, userAgent.String)
	device.SetAPIKey(apiKey.String)
	device.SetVerified(verified)
	device.SetReceiveUpdates(receiveUpdates)
	device.SetActive(isActive)
	device.SetLastSeenAt(lastSeenAt.Time)
	device.SetCreatedAt(createdAt.Time)
	device.SetUpdatedAt(updatedAt.Time)
	return device, nil
}

func (r *DeviceRepository) queryOne(kind, key, where string, args ...any) (*models.Device, error) {
	device, err := scanDevice(r.db.QueryRow("SELECT "+deviceColumns+" FROM devices WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(kind, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}
	return device, nil
}

func (r *DeviceRepository) queryMany(where string, args ...any) ([]*models.Device, error) {
	rows, err := r.db.Query("SELECT "+deviceColumns+" FROM devices WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return devices, nil
}

// Create inserts a new device with a generated internal id.
func (r *DeviceRepository) Create(device *models.Device) error {
	if err := device.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	device.SetID(shared.GenerateID())

	query := `
		INSERT INTO devices (
			id, user_id, device_id, name, platform, ip_address, user_agent, api_key,
			verified, receive_updates, is_active, last_seen_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		device.ID(),
		device.UserID(),
		device.DeviceID(),
		device.Name(),
		device.Platform(),
		nullString(device.IPAddress()),
		nullString(device.UserAgent()),
		nullString(device.APIKey()),
		device.Verified(),
		device.ReceiveUpdates(),
		device.IsActive(),
		device.LastSeenAt(),
		device.CreatedAt(),
		device.UpdatedAt(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("device %s already exists: %w", device.DeviceID(), shared.ErrConflict)
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

// Get retrieves a device by its internal id.
func (r *DeviceRepository) Get(id string) (*models.Device, error) {
	return r.queryOne("device", id, "id = ?", id)
}

// GetByDeviceID retrieves a device by the identifier the agent generated.
func (r *DeviceRepository) GetByDeviceID(deviceID string) (*models.Device, error) {
	return r.queryOne("device", deviceID, "device_id = ?", deviceID)
}

// GetByAPIKey retrieves the device holding key.
func (r *DeviceRepository) GetByAPIKey(key string) (*models.Device, error) {
	if key == "" {
		return nil, notFound("device", "api key")
	}
	return r.queryOne("device", "api key", "api_key = ?", key)
}

// Update writes every mutable field of device.
func (r *DeviceRepository) Update(device *models.Device) error {
	if err := device.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := models.Now()
	device.SetUpdatedAt(now)

	query := `
		UPDATE devices
		SET user_id = ?, name = ?, platform = ?, ip_address = ?, user_agent = ?, api_key = ?,
			verified = ?, receive_updates = ?, is_active = ?, last_seen_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		device.UserID(),
		device.Name(),
		device.Platform(),
		nullString(device.IPAddress()),
		nullString(device.UserAgent()),
		nullString(device.APIKey()),
		device.Verified(),
		device.ReceiveUpdates(),
		device.IsActive(),
		device.LastSeenAt(),
		now,
		device.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return expectAffected(result, "device", device.DeviceID())
}

// Upsert inserts device, or refreshes the existing row with the same device id.
//
// An existing row is reactivated and takes the incoming owner, name, platform and client details.
// Verification and the API key are left alone. device receives the stored state.
func (r *DeviceRepository) Upsert(device *models.Device) error {
	existing, err := r.GetByDeviceID(device.DeviceID())
	if errors.Is(err, shared.ErrNotFound) {
		return r.Create(device)
	}
	if err != nil {
		return err
	}

	existing.SetUserID(device.UserID())
	existing.SetName(device.Name())
	existing.SetPlatform(device.Platform())
	if device.IPAddress() != "" || device.UserAgent() != "" {
		existing.SetClient(device.IPAddress(), device.UserAgent())
	}
	existing.SetActive(true)
	existing.SetLastSeenAt(models.Now())

	if err := r.Update(existing); err != nil {
		return err
	}
	*device = *existing
	return nil
}

// Delete removes a device by internal id. Its clipboard items keep a null device reference.
func (r *DeviceRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return expectAffected(result, "device", id)
}

// DeleteForUser removes every device of a user.
func (r *DeviceRepository) DeleteForUser(userID string) (int64, error) {
	n, err := affected(r.db.Exec("DELETE FROM devices WHERE user_id = ?", userID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete devices: %w", err)
	}
	return n, nil
}

// List retrieves devices matching criteria: user_id (string), verified, active (bool).
func (r *DeviceRepository) List(criteria map[string]any) ([]*models.Device, error) {
	where := "1 = 1"
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		where += " AND user_id = ?"
		args = append(args, userID)
	}
	if verified, ok := criteria["verified"].(bool); ok {
		where += " AND verified = ?"
		args = append(args, verified)
	}
	if active, ok := criteria["active"].(bool); ok {
		where += " AND is_active = ?"
		args = append(args, active)
	}

	return r.queryMany(where+" ORDER BY last_seen_at DESC", args...)
}

// ListForUser returns a user's devices, most recently seen first.
func (r *DeviceRepository) ListForUser(userID string) ([]*models.Device, error) {
	return r.queryMany("user_id = ? ORDER BY last_seen_at DESC, created_at DESC", userID)
}

// ListForUpdates returns the devices that should be told about new items: active, verified,
// receiving updates and not the sending device.
func (r *DeviceRepository) ListForUpdates(userID, excludeDeviceID string) ([]*models.Device, error) {
	return r.queryMany(`user_id = ? AND device_id != ? AND is_active = 1 AND verified = 1 AND receive_updates = 1
		ORDER BY last_seen_at DESC`, userID, excludeDeviceID)
}

// IsUserDevice reports whether the external device id belongs to userID.
func (r *DeviceRepository) IsUserDevice(userID, deviceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow("SELECT EXISTS(SELECT 1 FROM devices WHERE user_id = ? AND device_id = ?)", userID, deviceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check device owner: %w", err)
	}
	return exists, nil
}

// HasAPIKey reports whether the device currently holds an API key.
func (r *DeviceRepository) HasAPIKey(deviceID string) (bool, error) {
	var key sql.NullString
	err := r.db.QueryRow("SELECT api_key FROM devices WHERE device_id = ?", deviceID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, notFound("device", deviceID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to query device: %w", err)
	}
	return key.Valid && key.String != "", nil
}

// IDMapping maps internal device ids to external ids for one user.
func (r *DeviceRepository) IDMapping(userID string) (map[string]string, error) {
	rows, err := r.db.Query("SELECT id, device_id FROM devices WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	mapping := make(map[string]string)
	for rows.Next() {
		var id, deviceID string
		if err := rows.Scan(&id, &deviceID); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		mapping[id] = deviceID
	}
	return mapping, rows.Err()
}

// exec runs a single column update keyed by the external device id.
func (r *DeviceRepository) exec(deviceID, set string, args ...any) error {
	args = append(args, models.Now(), deviceID)
	result, err := r.db.Exec("UPDATE devices SET "+set+", updated_at = ? WHERE device_id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return expectAffected(result, "device", deviceID)
}

func (r *DeviceRepository) UpdateName(deviceID, name string) error {
	return r.exec(deviceID, "name = ?", strings.TrimSpace(name))
}

func (r *DeviceRepository) Verify(deviceID string) error {
	return r.exec(deviceID, "verified = 1")
}

// Deactivate marks a device inactive and drops its API key.
func (r *DeviceRepository) Deactivate(deviceID string) error {
	return r.exec(deviceID, "is_active = 0, api_key = NULL")
}

func (r *DeviceRepository) SetReceiveUpdates(deviceID string, v bool) error {
	return r.exec(deviceID, "receive_updates = ?", v)
}

// ToggleReceiveUpdates flips the receive updates flag and returns the new value.
func (r *DeviceRepository) ToggleReceiveUpdates(deviceID string) (bool, error) {
	device, err := r.GetByDeviceID(deviceID)
	if err != nil {
		return false, err
	}
	next := !device.ReceiveUpdates()
	return next, r.SetReceiveUpdates(deviceID, next)
}

func (r *DeviceRepository) UpdateLastSeen(deviceID string) error {
	return r.exec(deviceID, "last_seen_at = ?", models.Now())
}

func (r *DeviceRepository) SetAPIKey(deviceID, key string) error {
	return r.exec(deviceID, "api_key = ?", nullString(key))
}

func (r *DeviceRepository) RevokeAPIKey(deviceID string) error {
	return r.exec(deviceID, "api_key = NULL")
}
