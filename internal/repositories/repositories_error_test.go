package repositories

import (
	"errors"
	"testing"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
)

func TestUserRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewUserRepository(db)

			user := models.NewUser(0, "", "Test User")
			if err := repo.Create(user); !errors.Is(err, shared.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput for empty email, got %v", err)
			}
		})

		t.Run("DuplicateEmail", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewUserRepository(db)
			createUser(t, db, "test@example.com")

			err := repo.Create(models.NewUser(0, "test@example.com", "User Two"))
			if !errors.Is(err, shared.ErrConflict) {
				t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
			}
		})
	})

	t.Run("NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)

		if _, err := repo.Get("nonexistent-id"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Get: expected ErrNotFound, got %v", err)
		}
		if _, err := repo.GetByEmail("nobody@example.com"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("GetByEmail: expected ErrNotFound, got %v", err)
		}
		if err := repo.Delete("nonexistent-id"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Delete: expected ErrNotFound, got %v", err)
		}
		if err := repo.Purge("nonexistent-id"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Purge: expected ErrNotFound, got %v", err)
		}

		ghost := models.NewUser(1, "ghost@example.com", "Ghost")
		ghost.SetID("nonexistent-id")
		if err := repo.Update(ghost); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Update: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Closed database", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)
		db.Close()

		if _, err := repo.List(nil); err == nil {
			t.Error("expected error listing users on a closed database")
		}
	})
}

func TestDeviceRepositoryErrors(t *testing.T) {
	t.Run("ValidationError", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewDeviceRepository(db)
		user := createUser(t, db, "test@example.com")

		tc := []struct {
			name   string
			device *models.Device
		}{
			{name: "empty device id", device: models.NewDevice(user.ID(), "", "Box", "linux")},
			{name: "empty name", device: models.NewDevice(user.ID(), "linux-box", "", "linux")},
			{name: "bad platform", device: models.NewDevice(user.ID(), "linux-box", "Box", "amiga")},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if err := repo.Create(tt.device); !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
			})
		}
	})

	t.Run("DuplicateDeviceID", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewDeviceRepository(db)
		user := createUser(t, db, "test@example.com")
		createDevice(t, db, user.ID(), "linux-box-1-aa")

		err := repo.Create(models.NewDevice(user.ID(), "linux-box-1-aa", "Again", "linux"))
		if !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewDeviceRepository(db)

		if _, err := repo.GetByAPIKey(""); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("GetByAPIKey: expected ErrNotFound, got %v", err)
		}
		if err := repo.Verify("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Verify: expected ErrNotFound, got %v", err)
		}
		if _, err := repo.HasAPIKey("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("HasAPIKey: expected ErrNotFound, got %v", err)
		}
		if _, err := repo.ToggleReceiveUpdates("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("ToggleReceiveUpdates: expected ErrNotFound, got %v", err)
		}
	})
}

func TestClipboardRepositoryErrors(t *testing.T) {
	db := setupTestDB(t)
	repo := NewClipboardRepository(db, 1024)
	user := createUser(t, db, "test@example.com")

	tc := []struct {
		name string
		item *models.ClipboardItem
	}{
		{name: "unknown type", item: models.NewClipboardItem(user.ID(), "", "video", "x", "hash", 1)},
		{name: "missing hash", item: models.NewClipboardItem(user.ID(), "", models.TypeText, "x", "", 1)},
		{name: "zero size", item: models.NewClipboardItem(user.ID(), "", models.TypeText, "x", "hash", 0)},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Create(tt.item); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	t.Run("unknown user", func(t *testing.T) {
		if err := repo.Create(newItem("nobody", "", "x")); err == nil {
			t.Error("expected foreign key error for unknown user")
		}
	})

	t.Run("failed insert does not consume seq", func(t *testing.T) {
		item := newItem(user.ID(), "", "first")
		if err := repo.Create(item); err != nil {
			t.Fatalf("failed to create item: %v", err)
		}
		if item.Seq() != 1 {
			t.Errorf("expected seq 1 after rolled back insert, got %d", item.Seq())
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.Get("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Get: expected ErrNotFound, got %v", err)
		}
		if _, err := repo.FindByContentHash(user.ID(), "nope"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("FindByContentHash: expected ErrNotFound, got %v", err)
		}
		if err := repo.Delete("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Delete: expected ErrNotFound, got %v", err)
		}
		if err := repo.SetObjectStorageURL("missing", "file:///x", ""); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("SetObjectStorageURL: expected ErrNotFound, got %v", err)
		}
	})
}

func TestTokenRepositoryErrors(t *testing.T) {
	db := setupTestDB(t)
	user := createUser(t, db, "test@example.com")

	t.Run("ws token validation", func(t *testing.T) {
		if err := NewWsTokenRepository(db).Create(models.NewWsToken("", user.ID(), "", 0)); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("registration prefix validation", func(t *testing.T) {
		p := models.NewPendingRegistration("dev_bad_1", user.ID(), "bad_prefix", 0)
		if err := NewRegistrationRepository(db).Create(p); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("missing rows", func(t *testing.T) {
		if err := NewWsTokenRepository(db).Extend("missing", models.Now()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Extend: expected ErrNotFound, got %v", err)
		}
		if _, err := NewRegistrationRepository(db).Get("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Get: expected ErrNotFound, got %v", err)
		}
		if err := NewRegistrationRepository(db).Approve("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Approve: expected ErrNotFound, got %v", err)
		}
	})
}
