package services

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/clipsync/internal/notify"
	"github.com/desertthunder/clipsync/internal/repositories"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/desertthunder/clipsync/internal/storage"
)

// Repositories groups the repositories the services share.
type Repositories struct {
	Users         *repositories.UserRepository
	Sessions      *repositories.SessionRepository
	Devices       *repositories.DeviceRepository
	Clipboard     *repositories.ClipboardRepository
	WsTokens      *repositories.WsTokenRepository
	Registrations *repositories.RegistrationRepository
}

// NewRepositories builds every repository over db. inlineMax is the largest item kept inline.
func NewRepositories(db *sql.DB, inlineMax int64) *Repositories {
	return &Repositories{
		Users:         repositories.NewUserRepository(db),
		Sessions:      repositories.NewSessionRepository(db),
		Devices:       repositories.NewDeviceRepository(db),
		Clipboard:     repositories.NewClipboardRepository(db, inlineMax),
		WsTokens:      repositories.NewWsTokenRepository(db),
		Registrations: repositories.NewRegistrationRepository(db),
	}
}

// Services is the full set of server-side services, wired from one config.
type Services struct {
	Clipboard    *ClipboardService
	Devices      *DeviceService
	DesktopAuth  *DesktopAuthService
	Registration *RegistrationService
	WsTokens     *WsTokenService
	Users        *UserService
}

// New wires every service. store and notifier may be nil: large content then stays in the database
// and long polls return immediately.
func New(repos *Repositories, store storage.Store, notifier notify.Notifier, cfg *shared.Config, logger *log.Logger) *Services {
	devices := NewDeviceService(repos, cfg.Server.PublicURL)
	return &Services{
		Clipboard:    NewClipboardService(repos, store, notifier, cfg.Sync, logger),
		Devices:      devices,
		DesktopAuth:  NewDesktopAuthService(repos.Devices),
		Registration: NewRegistrationService(repos, cfg.Tokens.RegistrationTTL.Duration),
		WsTokens:     NewWsTokenService(repos.WsTokens, cfg.Tokens.WsTokenTTL.Duration, cfg.Tokens.WsTokenLimit),
		Users:        NewUserService(repos, store, cfg.Tokens.SessionTTL.Duration, logger),
	}
}

// randomHex returns n random bytes hex encoded.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// clampLimit applies the default for non-positive limits and caps the result at max.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	return min(limit, max)
}

func millis(t time.Time) int64 { return t.UnixMilli() }
