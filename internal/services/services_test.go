package services

import (
	"io"
	"testing"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/notify"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/desertthunder/clipsync/internal/storage"
)

const (
	laptopID  = "linux-laptop-1700000000-0011223344556677"
	desktopID = "darwin-desk-1700000001-8899aabbccddeeff"
)

type fixture struct {
	svc      *Services
	repos    *Repositories
	store    *storage.FileStore
	notifier *notify.Local
	cfg      *shared.Config
}

// setupServices wires every service over an in-memory database, a temporary blob store and the
// in-process notifier. Items above 64 bytes are stored outside the item row.
func setupServices(t *testing.T) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	store, err := storage.NewFileStore(t.TempDir(), storage.CompressionGzip)
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	cfg := shared.DefaultConfig()
	cfg.Sync.InlineMaxBytes = 64
	cfg.Server.PublicURL = "https://clip.example.com"

	local := notify.NewLocal()
	repos := NewRepositories(db, cfg.Sync.InlineMaxBytes)
	svc := New(repos, store, local, cfg, shared.NewLogger(io.Discard))

	t.Cleanup(func() {
		local.Close()
		db.Close()
	})
	return &fixture{svc: svc, repos: repos, store: store, notifier: local, cfg: cfg}
}

func (f *fixture) user(t *testing.T, email string) *models.User {
	t.Helper()

	user, err := f.svc.Users.Create(email, "Test User")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// device registers and verifies a device for userID.
func (f *fixture) device(t *testing.T, userID, deviceID string) *models.Device {
	t.Helper()

	if _, err := f.svc.Devices.Register(userID, RegisterDeviceRequest{DeviceID: deviceID, Name: "Machine", Platform: "linux"}); err != nil {
		t.Fatalf("failed to register device: %v", err)
	}
	if err := f.svc.Devices.Verify(userID, deviceID); err != nil {
		t.Fatalf("failed to verify device: %v", err)
	}

	device, err := f.svc.Devices.Get(userID, deviceID)
	if err != nil {
		t.Fatalf("failed to reload device: %v", err)
	}
	return device
}

func syncRequest(content string) SyncRequest {
	return SyncRequest{
		Type:        models.TypeText,
		Content:     content,
		ContentHash: shared.HashContent(content),
		SizeBytes:   int64(len(content)),
	}
}

func TestClampLimit(t *testing.T) {
	tc := []struct {
		limit, want int
	}{
		{limit: 0, want: 50},
		{limit: -3, want: 50},
		{limit: 10, want: 10},
		{limit: 500, want: 100},
	}

	for _, tt := range tc {
		if got := clampLimit(tt.limit, 50, 100); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}
