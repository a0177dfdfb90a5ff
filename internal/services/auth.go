package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/repositories"
	"github.com/desertthunder/clipsync/internal/shared"
)

// DesktopAuthService authenticates desktop agents by API key.
type DesktopAuthService struct {
	devices *repositories.DeviceRepository
}

func NewDesktopAuthService(devices *repositories.DeviceRepository) *DesktopAuthService {
	return &DesktopAuthService{devices: devices}
}

// ParseAPIKey extracts the key from an "Authorization: Bearer cpb_..." or "ApiKey cpb_..." header.
func ParseAPIKey(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing authorization header: %w", shared.ErrUnauthorized)
	}

	scheme, key, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || (!strings.EqualFold(scheme, "Bearer") && !strings.EqualFold(scheme, "ApiKey")) {
		return "", fmt.Errorf("invalid authorization format: %w", shared.ErrUnauthorized)
	}

	key = strings.TrimSpace(key)
	if !shared.IsAPIKey(key) {
		return "", fmt.Errorf("invalid API key format: %w", shared.ErrUnauthorized)
	}
	return key, nil
}

// Authenticate resolves the device behind an Authorization header.
//
// Unknown keys and inactive devices are unauthorized; unverified devices are rejected with
// [shared.ErrDeviceNotVerified]. A successful call records the device as seen.
func (s *DesktopAuthService) Authenticate(header string) (*models.Device, error) {
	key, err := ParseAPIKey(header)
	if err != nil {
		return nil, err
	}

	device, err := s.devices.GetByAPIKey(key)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("invalid API key: %w", shared.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}

	if !device.IsActive() {
		return nil, fmt.Errorf("device %s is inactive: %w", device.DeviceID(), shared.ErrUnauthorized)
	}
	if !device.Verified() {
		return nil, fmt.Errorf("device %s: %w", device.DeviceID(), shared.ErrDeviceNotVerified)
	}

	if err := s.devices.UpdateLastSeen(device.DeviceID()); err != nil {
		return nil, fmt.Errorf("failed to record device activity: %w", err)
	}
	return device, nil
}
