package tasks

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/services"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/desertthunder/clipsync/internal/storage"
	tu "github.com/desertthunder/clipsync/internal/testing"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	repos  *services.Repositories
	store  *storage.FileStore
	cfg    *shared.Config
	userID string
}

// setupMaintenance creates a database with one user, a temporary blob store and a config that keeps
// items for a week and moves anything from 32 bytes up out of the database.
func setupMaintenance(t *testing.T) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	store, err := storage.NewFileStore(t.TempDir(), storage.CompressionGzip)
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	cfg := shared.DefaultConfig()
	cfg.Sync.InlineMaxBytes = 16
	cfg.Sync.ObjectMinBytes = 32
	cfg.Sync.RetentionDays = 7
	cfg.Maintenance.Workers = 2
	cfg.Maintenance.Rate = 1000

	repos := services.NewRepositories(db, cfg.Sync.InlineMaxBytes)
	user := models.NewUser(0, "tasks@example.com", "Tasks")
	if err := repos.Users.Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return &fixture{repos: repos, store: store, cfg: cfg, userID: user.ID()}
}

func (f *fixture) maintenance(store storage.Store) *Maintenance {
	return NewMaintenance(f.repos, store, f.cfg, shared.NewLogger(io.Discard))
}

// item stores content created age ago.
func (f *fixture) item(t *testing.T, content string, age time.Duration) *models.ClipboardItem {
	t.Helper()

	item := models.NewClipboardItem(f.userID, "", models.TypeText, content, shared.HashContent(content), int64(len(content)))
	item.SetCreatedAt(models.Now().Add(-age))
	if err := f.repos.Clipboard.Create(item); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	return item
}

// expired creates one expired row of every token kind plus one live session.
func (f *fixture) expired(t *testing.T) {
	t.Helper()

	if err := f.repos.WsTokens.Create(models.NewWsToken("ws-old", f.userID, "", -time.Minute)); err != nil {
		t.Fatalf("failed to create ws token: %v", err)
	}
	if err := f.repos.Registrations.Create(models.NewPendingRegistration("dev_linux-ol_1", f.userID, "linux-ol", -time.Minute)); err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}
	for token, ttl := range map[string]time.Duration{"session-old": -time.Minute, "session-live": time.Hour} {
		if err := f.repos.Sessions.Create(models.NewSession(token, f.userID, ttl)); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
	}
}

func TestMaintenanceRun(t *testing.T) {
	t.Run("removes expired rows", func(t *testing.T) {
		f := setupMaintenance(t)
		f.expired(t)
		f.item(t, "ancient", 30*24*time.Hour)
		fresh := f.item(t, "fresh", time.Hour)

		progress := make(chan ProgressUpdate, 16)
		result, err := f.maintenance(nil).Run(context.Background(), progress)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		close(progress)

		if err := result.Err(); err != nil {
			t.Errorf("unexpected step failure: %v", err)
		}
		if result.Migration != nil {
			t.Error("expected no migration without a blob store")
		}

		want := map[Phase]int64{CleanupItems: 1, CleanupWsTokens: 1, CleanupRegistrations: 1, CleanupSessions: 1}
		for _, c := range result.Cleanups {
			if c.Removed != want[c.Phase] {
				t.Errorf("%s removed %d, want %d", c.Phase, c.Removed, want[c.Phase])
			}
		}
		if result.Removed() != 4 {
			t.Errorf("Removed() = %d, want 4", result.Removed())
		}

		var updates int
		for u := range progress {
			updates++
			if u.Total != 4 || u.Step < 1 || u.Step > 4 {
				t.Errorf("unexpected progress %+v", u)
			}
		}
		if updates != 4 {
			t.Errorf("expected 4 progress updates, got %d", updates)
		}

		if _, err := f.repos.Clipboard.Get(fresh.ID()); err != nil {
			t.Errorf("fresh item should survive: %v", err)
		}
		if _, err := f.repos.Sessions.Get("session-live"); err != nil {
			t.Errorf("live session should survive: %v", err)
		}
	})

	t.Run("retention disabled", func(t *testing.T) {
		f := setupMaintenance(t)
		f.cfg.Sync.RetentionDays = 0
		f.item(t, "ancient", 365*24*time.Hour)

		result, err := f.maintenance(nil).Run(context.Background(), nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if result.Cleanups[0].Phase != CleanupItems || result.Cleanups[0].Removed != 0 {
			t.Errorf("expected no items removed, got %+v", result.Cleanups[0])
		}
	})

	t.Run("deletes blobs of expired items", func(t *testing.T) {
		ctx := context.Background()
		f := setupMaintenance(t)
		f.item(t, strings.Repeat("o", 40), 30*24*time.Hour)

		files, err := f.repos.Clipboard.FilesNeedingMigration(0, 10)
		if err != nil || len(files) != 1 {
			t.Fatalf("expected one external file, got %d (%v)", len(files), err)
		}
		url, err := f.store.Put(ctx, files[0].ClipboardItemID(), []byte(files[0].Content()))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := f.repos.Clipboard.SetObjectStorageURL(files[0].ID(), url, f.store.Compression()); err != nil {
			t.Fatalf("SetObjectStorageURL() error = %v", err)
		}

		if _, err := f.maintenance(f.store).Run(ctx, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if _, err := f.store.Get(ctx, url); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected blob to be deleted, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := setupMaintenance(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := f.maintenance(f.store).Run(ctx, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestMigrateStorage(t *testing.T) {
	t.Run("moves large files", func(t *testing.T) {
		ctx := context.Background()
		f := setupMaintenance(t)

		small := f.item(t, strings.Repeat("s", 20), time.Minute)
		var large []*models.ClipboardItem
		for i := range 5 {
			large = append(large, f.item(t, strings.Repeat(string(rune('a'+i)), 64), time.Minute))
		}

		progress := make(chan ProgressUpdate, 16)
		result, err := f.maintenance(f.store).MigrateStorage(ctx, progress, MigrationOpts{MinBytes: 32, NumWorkers: 3, RateLimit: 1000})
		if err != nil {
			t.Fatalf("MigrateStorage() error = %v", err)
		}
		close(progress)

		if result.Total != 5 || result.Migrated != 5 || result.Failed != 0 || result.Bytes != 5*64 {
			t.Errorf("unexpected result total=%d migrated=%d failed=%d bytes=%d", result.Total, result.Migrated, result.Failed, result.Bytes)
		}

		first := <-progress
		if first.Phase != MigrateStorage || first.Step != 0 || first.Total != 5 {
			t.Errorf("unexpected first update %+v", first)
		}
		var steps int
		for u := range progress {
			steps++
			if !strings.Contains(u.Message, "✓") {
				t.Errorf("expected success message, got %q", u.Message)
			}
		}
		if steps != 5 {
			t.Errorf("expected 5 file updates, got %d", steps)
		}

		for _, item := range large {
			got, err := f.repos.Clipboard.Get(item.ID())
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			file := got.File()
			if file == nil || !file.InObjectStorage() || file.CompressionType() != storage.CompressionGzip {
				t.Fatalf("expected %s to live in object storage, got %+v", item.ID(), file)
			}
			data, err := f.store.Get(ctx, file.ObjectStorageURL())
			if err != nil {
				t.Fatalf("store.Get() error = %v", err)
			}
			if string(data) != item.Content() {
				t.Errorf("blob content mismatch for %s", item.ID())
			}
		}

		got, err := f.repos.Clipboard.Get(small.ID())
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.File().InObjectStorage() {
			t.Error("small file should stay in the database")
		}

		again, err := f.maintenance(f.store).MigrateStorage(ctx, nil, MigrationOpts{MinBytes: 32})
		if err != nil || again.Total != 0 {
			t.Errorf("expected nothing left to migrate, got %d (%v)", again.Total, err)
		}
	})

	t.Run("batch size", func(t *testing.T) {
		f := setupMaintenance(t)
		for i := range 3 {
			f.item(t, strings.Repeat(string(rune('x'+i)), 40), time.Minute)
		}

		result, err := f.maintenance(f.store).MigrateStorage(context.Background(), nil, MigrationOpts{MinBytes: 32, BatchSize: 2, RateLimit: 1000})
		if err != nil {
			t.Fatalf("MigrateStorage() error = %v", err)
		}
		if result.Total != 2 || result.Migrated != 2 {
			t.Errorf("expected one batch of 2, got total=%d migrated=%d", result.Total, result.Migrated)
		}
	})

	t.Run("no store", func(t *testing.T) {
		f := setupMaintenance(t)
		if _, err := f.maintenance(nil).MigrateStorage(context.Background(), nil, MigrationOpts{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("cancelled while waiting for the limiter", func(t *testing.T) {
		f := setupMaintenance(t)
		for i := range 3 {
			f.item(t, strings.Repeat(string(rune('k'+i)), 40), time.Minute)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := f.maintenance(f.store).MigrateStorage(ctx, nil, MigrationOpts{MinBytes: 32, RateLimit: 0.001})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if result.Failed != 3 || result.Migrated != 0 {
			t.Errorf("expected every file to fail, got migrated=%d failed=%d", result.Migrated, result.Failed)
		}
	})
}

func TestScheduler(t *testing.T) {
	f := setupMaintenance(t)
	f.expired(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewScheduler(f.maintenance(f.store), 10*time.Millisecond, shared.NewLogger(io.Discard)).Run(ctx)
	}()

	tu.Eventually(t, time.Second, func() bool {
		_, err := f.repos.WsTokens.Get("ws-old")
		return errors.Is(err, shared.ErrNotFound)
	}, "expired ws token should be cleaned up")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestPhaseString(t *testing.T) {
	for phase, want := range map[Phase]string{
		CleanupItems:    "cleanup_items",
		CleanupSessions: "cleanup_sessions",
		MigrateStorage:  "migrate_storage",
		Phase(99):       "",
	} {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}
