package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/repositories"
	"github.com/desertthunder/clipsync/internal/shared"
)

// TokenPrefix starts every device registration token.
const TokenPrefix = "dev"

// TokenInfo is the parsed form of a dev_{prefix}_{unix} registration token.
type TokenInfo struct {
	Prefix    string
	Timestamp int64
}

// DeviceIDInfo is the parsed form of a {platform}-{hostname}-{unix}-{hex} device id.
type DeviceIDInfo struct {
	Platform  string
	Hostname  string
	Timestamp int64
	Random    string
}

// Prefix is the registration prefix derived from the id: the platform and the first two hostname characters.
func (d DeviceIDInfo) Prefix() string {
	host := d.Hostname
	if len(host) > 2 {
		host = host[:2]
	}
	return d.Platform + "-" + host
}

// ParseToken parses a registration token. The timestamp part is optional.
func ParseToken(token string) (*TokenInfo, error) {
	parts := strings.Split(token, "_")
	if len(parts) < 2 || parts[0] != TokenPrefix || parts[1] == "" {
		return nil, fmt.Errorf("%w: malformed registration token", shared.ErrInvalidInput)
	}

	info := &TokenInfo{Prefix: parts[1]}
	if len(parts) > 2 {
		if ts, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			info.Timestamp = ts
		}
	}
	return info, nil
}

// ParseDeviceID parses an agent generated device id. Hostnames may themselves contain dashes.
func ParseDeviceID(id string) (*DeviceIDInfo, error) {
	parts := strings.Split(id, "-")
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: malformed device id %q", shared.ErrInvalidInput, id)
	}

	n := len(parts)
	ts, err := strconv.ParseInt(parts[n-2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed device id timestamp %q", shared.ErrInvalidInput, parts[n-2])
	}

	return &DeviceIDInfo{
		Platform:  parts[0],
		Hostname:  strings.Join(parts[1:n-2], "-"),
		Timestamp: ts,
		Random:    parts[n-1],
	}, nil
}

// RegistrationRequest is sent by an agent that wants an API key.
type RegistrationRequest struct {
	Token     string `json:"token,omitempty"`
	DeviceID  string `json:"deviceId"`
	Name      string `json:"name"`
	Platform  string `json:"platform"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// RegistrationService pairs agents with user accounts through short-lived registration tokens.
//
// A signed-in user creates a pending registration for a device prefix. The agent then registers
// with the token (or only its device id) and receives a verified device and an API key.
type RegistrationService struct {
	registrations *repositories.RegistrationRepository
	devices       *repositories.DeviceRepository
	ttl           time.Duration
	now           func() time.Time
}

func NewRegistrationService(repos *Repositories, ttl time.Duration) *RegistrationService {
	return &RegistrationService{
		registrations: repos.Registrations,
		devices:       repos.Devices,
		ttl:           ttl,
		now:           time.Now,
	}
}

// CreatePending mints dev_{prefix}_{unix} for userID.
func (s *RegistrationService) CreatePending(userID, prefix string) (*models.PendingRegistration, error) {
	token := fmt.Sprintf("%s_%s_%d", TokenPrefix, prefix, s.now().Unix())
	return s.create(userID, token, prefix)
}

// Adopt records a pending registration for a token the agent generated itself.
// Adopting the same token twice returns the existing registration.
func (s *RegistrationService) Adopt(userID, token string) (*models.PendingRegistration, error) {
	info, err := ParseToken(token)
	if err != nil {
		return nil, err
	}

	existing, err := s.registrations.Get(token)
	switch {
	case err == nil && existing.UserID() == userID:
		return existing, nil
	case err == nil:
		return nil, fmt.Errorf("registration token is in use: %w", shared.ErrConflict)
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}
	return s.create(userID, token, info.Prefix)
}

func (s *RegistrationService) create(userID, token, prefix string) (*models.PendingRegistration, error) {
	p := models.NewPendingRegistration(token, userID, prefix, s.ttl)
	if err := s.registrations.Create(p); err != nil {
		return nil, fmt.Errorf("failed to create pending registration: %w", err)
	}
	return p, nil
}

// Pending lists the user's unexpired registrations.
func (s *RegistrationService) Pending(userID string) ([]*models.PendingRegistration, error) {
	return s.registrations.ListForUser(userID)
}

// Approve lets a device whose id does not match the registration prefix finish registering.
func (s *RegistrationService) Approve(userID, token string) error {
	p, err := s.registrations.Get(token)
	if err != nil {
		return err
	}
	if p.UserID() != userID {
		return fmt.Errorf("registration: %w", shared.ErrNotFound)
	}
	return s.registrations.Approve(token)
}

// ResolveUser finds the pending registration for an agent: by exact token, then by the token's prefix,
// then by the prefix derived from deviceID.
func (s *RegistrationService) ResolveUser(token, deviceID string) (*models.PendingRegistration, error) {
	if token != "" {
		p, err := s.registrations.Get(token)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}

		if info, err := ParseToken(token); err == nil {
			if p, err := s.lookupPrefix(info.Prefix); p != nil || err != nil {
				return p, err
			}
		}
	}

	if info, err := ParseDeviceID(deviceID); err == nil {
		if p, err := s.lookupPrefix(info.Prefix()); p != nil || err != nil {
			return p, err
		}
	}

	return nil, fmt.Errorf("no pending registration for device: %w", shared.ErrUnauthorized)
}

func (s *RegistrationService) lookupPrefix(prefix string) (*models.PendingRegistration, error) {
	p, err := s.registrations.GetByPrefix(prefix)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// matchesPrefix reports whether deviceID plausibly belongs to a registration for prefix.
func matchesPrefix(prefix, deviceID string) bool {
	if strings.HasPrefix(deviceID, prefix) {
		return true
	}
	info, err := ParseDeviceID(deviceID)
	return err == nil && info.Prefix() == prefix
}

// Register creates or refreshes a verified device and issues it an API key.
//
// With a session the device joins sessionUserID directly. Otherwise the owner comes from the pending
// registration, which is consumed on success. A device id that does not match the registration prefix is
// recorded on the registration and refused until the user approves it.
func (s *RegistrationService) Register(sessionUserID string, req RegistrationRequest) (*APIKeyResult, error) {
	var (
		userID  = sessionUserID
		pending *models.PendingRegistration
	)

	if userID == "" {
		if req.Token == "" {
			return nil, fmt.Errorf("missing session or registration token: %w", shared.ErrUnauthorized)
		}

		p, err := s.ResolveUser(req.Token, req.DeviceID)
		if err != nil {
			return nil, err
		}
		if !matchesPrefix(p.DeviceIDPrefix(), req.DeviceID) && !p.UserApproved() {
			if err := s.registrations.UpdateDetected(p.Token(), req.DeviceID, req.Name, req.Platform); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("device %s awaits approval: %w", req.DeviceID, shared.ErrForbidden)
		}
		userID, pending = p.UserID(), p
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
	if err := s.devices.Verify(device.DeviceID()); err != nil {
		return nil, fmt.Errorf("failed to verify device: %w", err)
	}

	result, err := rotateAPIKey(s.devices, device.DeviceID())
	if err != nil {
		return nil, err
	}

	if pending != nil {
		if _, err := s.registrations.DeleteByPrefix(pending.DeviceIDPrefix()); err != nil {
			return nil, fmt.Errorf("failed to consume registration: %w", err)
		}
	}
	return result, nil
}

// CompleteExisting finishes a registration for a device the user already has.
//
// The device is found among the registering user's devices by the platform and hostname in the token
// prefix. It is verified, given a new API key, and the registration is consumed.
func (s *RegistrationService) CompleteExisting(token string) (*APIKeyResult, error) {
	info, err := ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid or expired registration token: %w", shared.ErrInvalidInput)
	}

	p, err := s.registrations.Get(token)
	if errors.Is(err, shared.ErrNotFound) {
		p, err = s.registrations.GetByPrefix(info.Prefix)
	}
	if errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("invalid or expired registration token: %w", shared.ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}

	platform, hostPart, _ := strings.Cut(p.DeviceIDPrefix(), "-")

	devices, err := s.devices.ListForUser(p.UserID())
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var match *models.Device
	for _, d := range devices {
		rest, ok := strings.CutPrefix(d.DeviceID(), platform+"-")
		if ok && d.Platform() == platform && strings.HasPrefix(rest, hostPart) {
			match = d
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("device not found, setup still in progress: %w", shared.ErrNotFound)
	}

	if err := s.devices.Verify(match.DeviceID()); err != nil {
		return nil, fmt.Errorf("failed to verify device: %w", err)
	}
	result, err := rotateAPIKey(s.devices, match.DeviceID())
	if err != nil {
		return nil, err
	}

	if _, err := s.registrations.DeleteByPrefix(p.DeviceIDPrefix()); err != nil {
		return nil, fmt.Errorf("failed to consume registration: %w", err)
	}
	return result, nil
}

// CleanupExpired removes expired registrations.
func (s *RegistrationService) CleanupExpired() (int64, error) {
	return s.registrations.CleanupExpired()
}
