package services

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/repositories"
	"github.com/desertthunder/clipsync/internal/shared"
)

// RegisterDeviceRequest describes a device a signed-in user adds.
//
// Manual devices get a generated identifier and default to linux.
type RegisterDeviceRequest struct {
	DeviceID  string `json:"deviceId"`
	Name      string `json:"name"`
	Platform  string `json:"platform"`
	IsManual  bool   `json:"isManual,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// APIKeyResult is returned whenever a device receives a new API key. Keys do not expire.
type APIKeyResult struct {
	APIKey    string     `json:"apiKey"`
	DeviceID  string     `json:"deviceId"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// VerificationToken is a one-off token and the URL a user opens to verify a device.
type VerificationToken struct {
	Token           string `json:"token"`
	VerificationURL string `json:"verificationUrl"`
}

// DeviceService manages a user's devices.
type DeviceService struct {
	devices   *repositories.DeviceRepository
	wsTokens  *repositories.WsTokenRepository
	publicURL string
	now       func() time.Time
}

func NewDeviceService(repos *Repositories, publicURL string) *DeviceService {
	return &DeviceService{
		devices:   repos.Devices,
		wsTokens:  repos.WsTokens,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		now:       time.Now,
	}
}

// Register adds a device for userID, or refreshes it when the same device registers again.
func (s *DeviceService) Register(userID string, req RegisterDeviceRequest) (*models.Device, error) {
	if req.IsManual {
		suffix, err := randomHex(4)
		if err != nil {
			return nil, err
		}
		req.DeviceID = fmt.Sprintf("manual_%s_%d_%s", userID, millis(s.now()), suffix)
		if req.Platform == "" {
			req.Platform = "linux"
		}
	}

	if err := checkDeviceOwner(s.devices, userID, req.DeviceID); err != nil {
		return nil, err
	}

	device := models.NewDevice(userID, req.DeviceID, req.Name, req.Platform)
	device.SetClient(req.IPAddress, req.UserAgent)
	if err := device.Validate(); err != nil {
		return nil, err
	}

	if err := s.devices.Upsert(device); err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}
	return device, nil
}

// checkDeviceOwner rejects device ids already registered to another user.
func checkDeviceOwner(devices *repositories.DeviceRepository, userID, deviceID string) error {
	existing, err := devices.GetByDeviceID(deviceID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to look up device: %w", err)
	case existing.UserID() != userID:
		return fmt.Errorf("device belongs to another user: %w", shared.ErrForbidden)
	}
	return nil
}

// List returns the user's devices, most recently seen first.
func (s *DeviceService) List(userID string) ([]*models.Device, error) {
	return s.devices.ListForUser(userID)
}

// Get returns one of the user's devices by its external id.
func (s *DeviceService) Get(userID, deviceID string) (*models.Device, error) {
	device, err := s.devices.GetByDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	if device.UserID() != userID {
		return nil, fmt.Errorf("device %s: %w", deviceID, shared.ErrNotFound)
	}
	return device, nil
}

func (s *DeviceService) Rename(userID, deviceID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrInvalidInput)
	}
	if _, err := s.Get(userID, deviceID); err != nil {
		return err
	}
	return s.devices.UpdateName(deviceID, name)
}

func (s *DeviceService) SetReceiveUpdates(userID, deviceID string, v bool) error {
	if _, err := s.Get(userID, deviceID); err != nil {
		return err
	}
	return s.devices.SetReceiveUpdates(deviceID, v)
}

// ToggleUpdates flips whether the device receives updates and returns the new setting.
func (s *DeviceService) ToggleUpdates(userID, deviceID string) (bool, error) {
	if _, err := s.Get(userID, deviceID); err != nil {
		return false, err
	}
	return s.devices.ToggleReceiveUpdates(deviceID)
}

func (s *DeviceService) Verify(userID, deviceID string) error {
	if _, err := s.Get(userID, deviceID); err != nil {
		return err
	}
	return s.devices.Verify(deviceID)
}

// Deactivate stops the device from syncing and drops its API key.
func (s *DeviceService) Deactivate(userID, deviceID string) error {
	if _, err := s.Get(userID, deviceID); err != nil {
		return err
	}
	return s.devices.Deactivate(deviceID)
}

// VerificationToken mints a verify_ token for one of the user's devices.
func (s *DeviceService) VerificationToken(userID, deviceID string) (*VerificationToken, error) {
	if _, err := s.Get(userID, deviceID); err != nil {
		return nil, err
	}

	suffix, err := randomHex(4)
	if err != nil {
		return nil, err
	}

	token := fmt.Sprintf("verify_%s_%d_%s", deviceID, millis(s.now()), suffix)
	return &VerificationToken{
		Token:           token,
		VerificationURL: s.publicURL + "/devices/verify?token=" + url.QueryEscape(token),
	}, nil
}

// ForUpdates lists the devices that should receive a change made by excludeDeviceID.
func (s *DeviceService) ForUpdates(userID, excludeDeviceID string) ([]*models.Device, error) {
	return s.devices.ListForUpdates(userID, excludeDeviceID)
}

// Delete removes one of the user's devices together with its websocket tokens.
func (s *DeviceService) Delete(userID, deviceID string) error {
	device, err := s.Get(userID, deviceID)
	if err != nil {
		return err
	}
	if _, err := s.wsTokens.DeleteForDevice(deviceID); err != nil {
		return fmt.Errorf("failed to delete device tokens: %w", err)
	}
	return s.devices.Delete(device.ID())
}

// DeleteAll removes every device of the user and returns how many were removed.
func (s *DeviceService) DeleteAll(userID string) (int64, error) {
	return s.devices.DeleteForUser(userID)
}

// GenerateAPIKey issues a fresh key for a verified device, replacing any previous key.
func (s *DeviceService) GenerateAPIKey(userID, deviceID string) (*APIKeyResult, error) {
	device, err := s.Get(userID, deviceID)
	if err != nil {
		return nil, err
	}
	if !device.Verified() {
		return nil, fmt.Errorf("device must be verified before generating API key: %w", shared.ErrDeviceNotVerified)
	}
	return rotateAPIKey(s.devices, deviceID)
}

func rotateAPIKey(devices *repositories.DeviceRepository, deviceID string) (*APIKeyResult, error) {
	key, err := shared.GenerateAPIKey()
	if err != nil {
		return nil, err
	}
	if err := devices.SetAPIKey(deviceID, key); err != nil {
		return nil, fmt.Errorf("failed to store API key: %w", err)
	}
	return &APIKeyResult{APIKey: key, DeviceID: deviceID}, nil
}

func (s *DeviceService) RevokeAPIKey(userID, deviceID string) error {
	if _, err := s.Get(userID, deviceID); err != nil {
		return err
	}
	return s.devices.RevokeAPIKey(deviceID)
}

func (s *DeviceService) HasAPIKey(userID, deviceID string) (bool, error) {
	if _, err := s.Get(userID, deviceID); err != nil {
		return false, err
	}
	return s.devices.HasAPIKey(deviceID)
}
