package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/clipsync/internal/shared"
)

func TestParseToken(t *testing.T) {
	tc := []struct {
		name    string
		token   string
		prefix  string
		ts      int64
		wantErr bool
	}{
		{name: "full token", token: "dev_linux-my_1700000000", prefix: "linux-my", ts: 1700000000},
		{name: "no timestamp", token: "dev_linux-my", prefix: "linux-my"},
		{name: "bad timestamp ignored", token: "dev_linux-my_soon", prefix: "linux-my"},
		{name: "wrong scheme", token: "verify_linux-my_1", wantErr: true},
		{name: "empty prefix", token: "dev__1", wantErr: true},
		{name: "bare", token: "dev", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseToken(tt.token)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseToken() error = %v", err)
			}
			if info.Prefix != tt.prefix || info.Timestamp != tt.ts {
				t.Errorf("ParseToken() = %+v, want prefix %s ts %d", info, tt.prefix, tt.ts)
			}
		})
	}
}

func TestParseDeviceID(t *testing.T) {
	t.Run("simple hostname", func(t *testing.T) {
		info, err := ParseDeviceID(laptopID)
		if err != nil {
			t.Fatalf("ParseDeviceID() error = %v", err)
		}
		if info.Platform != "linux" || info.Hostname != "laptop" || info.Timestamp != 1700000000 || info.Random != "0011223344556677" {
			t.Errorf("unexpected parse %+v", info)
		}
		if info.Prefix() != "linux-la" {
			t.Errorf("Prefix() = %s, want linux-la", info.Prefix())
		}
	})

	t.Run("hostname with dashes", func(t *testing.T) {
		info, err := ParseDeviceID("windows-build-box-2-1700000000-ff")
		if err != nil {
			t.Fatalf("ParseDeviceID() error = %v", err)
		}
		if info.Hostname != "build-box-2" {
			t.Errorf("Hostname = %s, want build-box-2", info.Hostname)
		}
	})

	t.Run("short hostname", func(t *testing.T) {
		info, err := ParseDeviceID("linux-x-1-ab")
		if err != nil {
			t.Fatalf("ParseDeviceID() error = %v", err)
		}
		if info.Prefix() != "linux-x" {
			t.Errorf("Prefix() = %s, want linux-x", info.Prefix())
		}
	})

	for _, bad := range []string{"", "linux-box", "linux-box-notanumber-ff", "manual_u_1_ab"} {
		if _, err := ParseDeviceID(bad); err == nil {
			t.Errorf("ParseDeviceID(%q) expected error", bad)
		}
	}
}

func TestRegistrationRegister(t *testing.T) {
	request := func(token, deviceID string) RegistrationRequest {
		return RegistrationRequest{Token: token, DeviceID: deviceID, Name: "Laptop", Platform: "linux"}
	}

	t.Run("requires session or token", func(t *testing.T) {
		f := setupServices(t)
		if _, err := f.svc.Registration.Register("", request("", laptopID)); !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		f := setupServices(t)
		if _, err := f.svc.Registration.Register("", request("dev_linux-zz_1", laptopID)); !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("exact token", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "reg@example.com")

		pending, err := f.svc.Registration.CreatePending(user.ID(), "linux-la")
		if err != nil {
			t.Fatalf("CreatePending() error = %v", err)
		}
		if !strings.HasPrefix(pending.Token(), "dev_linux-la_") {
			t.Errorf("unexpected token %s", pending.Token())
		}

		result, err := f.svc.Registration.Register("", request(pending.Token(), laptopID))
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if !shared.IsAPIKey(result.APIKey) || result.DeviceID != laptopID || result.ExpiresAt != nil {
			t.Errorf("unexpected result %+v", result)
		}

		device, err := f.svc.DesktopAuth.Authenticate("Bearer " + result.APIKey)
		if err != nil {
			t.Fatalf("new key should authenticate: %v", err)
		}
		if device.UserID() != user.ID() || !device.Verified() {
			t.Errorf("expected verified device of %s, got %s verified=%v", user.ID(), device.UserID(), device.Verified())
		}

		if _, err := f.repos.Registrations.Get(pending.Token()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected registration to be consumed, got %v", err)
		}
	})

	t.Run("falls back to device id prefix", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "fallback@example.com")

		if _, err := f.svc.Registration.CreatePending(user.ID(), "linux-la"); err != nil {
			t.Fatalf("CreatePending() error = %v", err)
		}

		p, err := f.svc.Registration.ResolveUser("dev_elsewhere_1", laptopID)
		if err != nil {
			t.Fatalf("ResolveUser() error = %v", err)
		}
		if p.UserID() != user.ID() {
			t.Errorf("resolved user %s, want %s", p.UserID(), user.ID())
		}
	})

	t.Run("mismatched device needs approval", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "approve@example.com")

		pending, err := f.svc.Registration.CreatePending(user.ID(), "linux-ab")
		if err != nil {
			t.Fatalf("CreatePending() error = %v", err)
		}

		if _, err := f.svc.Registration.Register("", request(pending.Token(), desktopID)); !errors.Is(err, shared.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}

		stored, err := f.repos.Registrations.Get(pending.Token())
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if stored.DetectedDeviceID() != desktopID {
			t.Errorf("expected detected device %s, got %s", desktopID, stored.DetectedDeviceID())
		}

		other := f.user(t, "other@example.com")
		if err := f.svc.Registration.Approve(other.ID(), pending.Token()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected other users to be unable to approve, got %v", err)
		}
		if err := f.svc.Registration.Approve(user.ID(), pending.Token()); err != nil {
			t.Fatalf("Approve() error = %v", err)
		}

		if _, err := f.svc.Registration.Register("", request(pending.Token(), desktopID)); err != nil {
			t.Errorf("expected approved registration to succeed, got %v", err)
		}
	})

	t.Run("session registers directly", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "session@example.com")

		result, err := f.svc.Registration.Register(user.ID(), request("", laptopID))
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if !shared.IsAPIKey(result.APIKey) {
			t.Errorf("expected API key, got %s", result.APIKey)
		}
	})

	t.Run("device of another user is forbidden", func(t *testing.T) {
		f := setupServices(t)
		owner := f.user(t, "owner@example.com")
		intruder := f.user(t, "intruder@example.com")
		f.device(t, owner.ID(), laptopID)

		if _, err := f.svc.Registration.Register(intruder.ID(), request("", laptopID)); !errors.Is(err, shared.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestRegistrationAdopt(t *testing.T) {
	f := setupServices(t)
	user := f.user(t, "adopt@example.com")
	other := f.user(t, "other@example.com")

	token := "dev_linux-la_1700000000"
	p, err := f.svc.Registration.Adopt(user.ID(), token)
	if err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}
	if p.DeviceIDPrefix() != "linux-la" {
		t.Errorf("expected prefix linux-la, got %s", p.DeviceIDPrefix())
	}

	if again, err := f.svc.Registration.Adopt(user.ID(), token); err != nil || again.Token() != token {
		t.Errorf("adopting twice should return the registration, got %v", err)
	}
	if _, err := f.svc.Registration.Adopt(other.ID(), token); !errors.Is(err, shared.ErrConflict) {
		t.Errorf("expected ErrConflict for another user, got %v", err)
	}
	if _, err := f.svc.Registration.Adopt(user.ID(), "nope"); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	pending, err := f.svc.Registration.Pending(user.ID())
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected one pending registration, got %d", len(pending))
	}
}

func TestRegistrationCompleteExisting(t *testing.T) {
	t.Run("verifies and rotates key", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "complete@example.com")

		if _, err := f.svc.Devices.Register(user.ID(), RegisterDeviceRequest{DeviceID: laptopID, Name: "Laptop", Platform: "linux"}); err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		pending, err := f.svc.Registration.CreatePending(user.ID(), "linux-la")
		if err != nil {
			t.Fatalf("CreatePending() error = %v", err)
		}

		result, err := f.svc.Registration.CompleteExisting(pending.Token())
		if err != nil {
			t.Fatalf("CompleteExisting() error = %v", err)
		}
		if result.DeviceID != laptopID || !shared.IsAPIKey(result.APIKey) {
			t.Errorf("unexpected result %+v", result)
		}

		device, err := f.svc.Devices.Get(user.ID(), laptopID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !device.Verified() {
			t.Error("expected device to be verified")
		}

		if _, err := f.svc.Registration.CompleteExisting(pending.Token()); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected consumed token to be invalid, got %v", err)
		}
	})

	t.Run("device not yet registered", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "early@example.com")

		pending, err := f.svc.Registration.CreatePending(user.ID(), "linux-la")
		if err != nil {
			t.Fatalf("CreatePending() error = %v", err)
		}
		if _, err := f.svc.Registration.CompleteExisting(pending.Token()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("malformed token", func(t *testing.T) {
		f := setupServices(t)
		if _, err := f.svc.Registration.CompleteExisting("garbage"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
