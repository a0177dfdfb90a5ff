package agent

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/services"
	"github.com/desertthunder/clipsync/internal/shared"
)

// Identity is how this machine presents itself to the server.
type Identity struct {
	DeviceID string
	Name     string
	Platform string
}

// Platform returns the server platform name for this OS. Unknown systems register as linux.
func Platform() string {
	if models.ValidPlatform(runtime.GOOS) {
		return runtime.GOOS
	}
	return "linux"
}

// Hostname returns the machine name reduced to lowercase letters, digits and dashes.
func Hostname() string {
	name, _ := os.Hostname()
	return sanitizeHostname(name)
}

func sanitizeHostname(name string) string {
	name, _, _ = strings.Cut(strings.ToLower(name), ".")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	host := strings.Trim(b.String(), "-")
	if host == "" {
		return "unknown"
	}
	return host
}

// NewDeviceID generates {platform}-{hostname}-{unix}-{16 hex}.
func NewDeviceID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate device id: %w", err)
	}
	return fmt.Sprintf("%s-%s-%d-%s", Platform(), Hostname(), time.Now().Unix(), hex.EncodeToString(b)), nil
}

// LoadIdentity builds the identity from the agent config, generating a device id when none is set.
// The returned bool reports whether a new id was generated and should be saved.
func LoadIdentity(cfg shared.AgentConfig) (Identity, bool, error) {
	id := Identity{DeviceID: cfg.DeviceID, Name: cfg.DeviceName, Platform: Platform()}
	if id.Name == "" {
		name, _ := os.Hostname()
		id.Name = cmp.Or(name, "Unknown Device")
	}

	if id.DeviceID != "" {
		if _, err := services.ParseDeviceID(id.DeviceID); err != nil {
			return id, false, fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
		}
		return id, false, nil
	}

	deviceID, err := NewDeviceID()
	if err != nil {
		return id, false, err
	}
	id.DeviceID = deviceID
	return id, true, nil
}

// RegistrationPrefix is the prefix a user enters to pair this device.
func (i Identity) RegistrationPrefix() string {
	info, err := services.ParseDeviceID(i.DeviceID)
	if err != nil {
		return ""
	}
	return info.Prefix()
}

// RegistrationToken generates a dev_{prefix}_{unix} token the user can adopt from a signed-in client.
func (i Identity) RegistrationToken() string {
	return fmt.Sprintf("%s_%s_%d", services.TokenPrefix, i.RegistrationPrefix(), time.Now().Unix())
}

// Request builds the registration request for token. An empty token registers by device id prefix.
func (i Identity) Request(token string) services.RegistrationRequest {
	return services.RegistrationRequest{
		Token:     token,
		DeviceID:  i.DeviceID,
		Name:      i.Name,
		Platform:  i.Platform,
		UserAgent: "clipsync-agent/" + runtime.GOOS,
	}
}

// WaitForRegistration retries registration every interval until the server issues an API key.
//
// Missing registrations (unauthorized) and registrations waiting for approval (forbidden) are retried;
// any other error is returned.
func WaitForRegistration(ctx context.Context, client *services.Client, req services.RegistrationRequest, interval time.Duration, logger *log.Logger) (*services.APIKeyResult, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		result, err := client.Register(ctx, req)
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, shared.ErrForbidden):
			logger.Info("registration is waiting for approval", "device", req.DeviceID)
		case errors.Is(err, shared.ErrUnauthorized):
			logger.Debug("registration not found yet", "device", req.DeviceID)
		default:
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
