package services

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/desertthunder/clipsync/internal/shared"
)

func TestDeviceService(t *testing.T) {
	t.Run("Register manual device", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "manual@example.com")

		device, err := f.svc.Devices.Register(user.ID(), RegisterDeviceRequest{Name: "Work PC", IsManual: true})
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if !strings.HasPrefix(device.DeviceID(), "manual_"+user.ID()+"_") {
			t.Errorf("unexpected manual device id %s", device.DeviceID())
		}
		if device.Platform() != "linux" {
			t.Errorf("expected default platform linux, got %s", device.Platform())
		}
	})

	t.Run("Register rejects invalid devices", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "invalid@example.com")

		_, err := f.svc.Devices.Register(user.ID(), RegisterDeviceRequest{DeviceID: laptopID, Name: "Box", Platform: "beos"})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Register again refreshes the device", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "again@example.com")
		f.device(t, user.ID(), laptopID)

		device, err := f.svc.Devices.Register(user.ID(), RegisterDeviceRequest{DeviceID: laptopID, Name: "Renamed", Platform: "linux"})
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if device.Name() != "Renamed" || !device.Verified() {
			t.Errorf("expected renamed verified device, got name=%s verified=%v", device.Name(), device.Verified())
		}

		devices, err := f.svc.Devices.List(user.ID())
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(devices) != 1 {
			t.Errorf("expected a single device, got %d", len(devices))
		}
	})

	t.Run("settings", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "settings@example.com")
		f.device(t, user.ID(), laptopID)

		if err := f.svc.Devices.Rename(user.ID(), laptopID, "  "); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for blank name, got %v", err)
		}
		if err := f.svc.Devices.Rename(user.ID(), laptopID, "Travel laptop"); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}

		on, err := f.svc.Devices.ToggleUpdates(user.ID(), laptopID)
		if err != nil {
			t.Fatalf("ToggleUpdates() error = %v", err)
		}
		if on {
			t.Error("expected toggling a new device to disable updates")
		}

		if err := f.svc.Devices.SetReceiveUpdates(user.ID(), laptopID, true); err != nil {
			t.Fatalf("SetReceiveUpdates() error = %v", err)
		}

		device, err := f.svc.Devices.Get(user.ID(), laptopID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if device.Name() != "Travel laptop" || !device.ReceiveUpdates() {
			t.Errorf("unexpected device state name=%s updates=%v", device.Name(), device.ReceiveUpdates())
		}

		recipients, err := f.svc.Devices.ForUpdates(user.ID(), desktopID)
		if err != nil {
			t.Fatalf("ForUpdates() error = %v", err)
		}
		if len(recipients) != 1 {
			t.Errorf("expected laptop to receive updates, got %d devices", len(recipients))
		}
	})

	t.Run("ownership", func(t *testing.T) {
		f := setupServices(t)
		owner := f.user(t, "mine@example.com")
		other := f.user(t, "theirs@example.com")
		f.device(t, owner.ID(), laptopID)

		if _, err := f.svc.Devices.Get(other.ID(), laptopID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := f.svc.Devices.Delete(other.ID(), laptopID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := f.svc.Devices.Register(other.ID(), RegisterDeviceRequest{DeviceID: laptopID, Name: "Mine", Platform: "linux"}); !errors.Is(err, shared.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("API keys", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "keys@example.com")

		if _, err := f.svc.Devices.Register(user.ID(), RegisterDeviceRequest{DeviceID: laptopID, Name: "Laptop", Platform: "linux"}); err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		if _, err := f.svc.Devices.GenerateAPIKey(user.ID(), laptopID); !errors.Is(err, shared.ErrDeviceNotVerified) {
			t.Fatalf("expected ErrDeviceNotVerified, got %v", err)
		}

		if err := f.svc.Devices.Verify(user.ID(), laptopID); err != nil {
			t.Fatalf("Verify() error = %v", err)
		}

		result, err := f.svc.Devices.GenerateAPIKey(user.ID(), laptopID)
		if err != nil {
			t.Fatalf("GenerateAPIKey() error = %v", err)
		}
		if !shared.IsAPIKey(result.APIKey) {
			t.Errorf("expected cpb_ key, got %s", result.APIKey)
		}

		has, err := f.svc.Devices.HasAPIKey(user.ID(), laptopID)
		if err != nil || !has {
			t.Errorf("HasAPIKey() = %v, %v; want true", has, err)
		}

		if err := f.svc.Devices.RevokeAPIKey(user.ID(), laptopID); err != nil {
			t.Fatalf("RevokeAPIKey() error = %v", err)
		}
		if _, err := f.svc.DesktopAuth.Authenticate("Bearer " + result.APIKey); !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("revoked key should be unauthorized, got %v", err)
		}
	})

	t.Run("VerificationToken", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "verify@example.com")
		f.device(t, user.ID(), laptopID)

		vt, err := f.svc.Devices.VerificationToken(user.ID(), laptopID)
		if err != nil {
			t.Fatalf("VerificationToken() error = %v", err)
		}
		if !strings.HasPrefix(vt.Token, "verify_"+laptopID+"_") {
			t.Errorf("unexpected token %s", vt.Token)
		}

		u, err := url.Parse(vt.VerificationURL)
		if err != nil {
			t.Fatalf("invalid verification url: %v", err)
		}
		if u.Host != "clip.example.com" || u.Query().Get("token") != vt.Token {
			t.Errorf("unexpected verification url %s", vt.VerificationURL)
		}
	})

	t.Run("Delete and DeleteAll", func(t *testing.T) {
		f := setupServices(t)
		user := f.user(t, "delete@example.com")
		f.device(t, user.ID(), laptopID)
		f.device(t, user.ID(), desktopID)

		if _, err := f.svc.WsTokens.Generate(user.ID(), laptopID); err != nil {
			t.Fatalf("Generate() error = %v", err)
		}

		if err := f.svc.Devices.Delete(user.ID(), laptopID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		tokens, err := f.svc.WsTokens.ListForDevice(laptopID)
		if err != nil {
			t.Fatalf("ListForDevice() error = %v", err)
		}
		if len(tokens) != 0 {
			t.Errorf("expected device tokens to be deleted, got %d", len(tokens))
		}

		n, err := f.svc.Devices.DeleteAll(user.ID())
		if err != nil {
			t.Fatalf("DeleteAll() error = %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 remaining device deleted, got %d", n)
		}
	})
}

func TestParseAPIKey(t *testing.T) {
	tc := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer cpb_abc", want: "cpb_abc"},
		{name: "apikey scheme", header: "ApiKey cpb_abc", want: "cpb_abc"},
		{name: "lowercase scheme", header: "bearer cpb_abc", want: "cpb_abc"},
		{name: "missing", header: "", wantErr: true},
		{name: "no scheme", header: "cpb_abc", wantErr: true},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "session token", header: "Bearer abcdef", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAPIKey(tt.header)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrUnauthorized) {
					t.Errorf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseAPIKey() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestDesktopAuthenticate(t *testing.T) {
	f := setupServices(t)
	user := f.user(t, "auth@example.com")

	if _, err := f.svc.Devices.Register(user.ID(), RegisterDeviceRequest{DeviceID: laptopID, Name: "Laptop", Platform: "linux"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	key, err := shared.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	if err := f.repos.Devices.SetAPIKey(laptopID, key); err != nil {
		t.Fatalf("SetAPIKey() error = %v", err)
	}

	if _, err := f.svc.DesktopAuth.Authenticate("Bearer " + key); !errors.Is(err, shared.ErrDeviceNotVerified) {
		t.Errorf("expected ErrDeviceNotVerified for unverified device, got %v", err)
	}

	if err := f.svc.Devices.Verify(user.ID(), laptopID); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	device, err := f.svc.DesktopAuth.Authenticate("ApiKey " + key)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if device.DeviceID() != laptopID {
		t.Errorf("authenticated %s, want %s", device.DeviceID(), laptopID)
	}

	if _, err := f.svc.DesktopAuth.Authenticate("Bearer cpb_unknown"); !errors.Is(err, shared.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for unknown key, got %v", err)
	}

	if err := f.svc.Devices.Deactivate(user.ID(), laptopID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if _, err := f.svc.DesktopAuth.Authenticate("Bearer " + key); !errors.Is(err, shared.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for deactivated device, got %v", err)
	}
}
