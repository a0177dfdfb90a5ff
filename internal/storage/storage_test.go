package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/clipsync/internal/shared"
	tu "github.com/desertthunder/clipsync/internal/testing"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	for _, compression := range []string{CompressionNone, CompressionGzip} {
		t.Run(compression, func(t *testing.T) {
			store, err := NewFileStore(t.TempDir(), compression)
			if err != nil {
				t.Fatalf("NewFileStore() error = %v", err)
			}

			data := bytes.Repeat([]byte("clipboard "), 1000)
			url, err := store.Put(ctx, "user-1/file-1", data)
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if !strings.HasPrefix(url, Scheme+"user-1/file-1") {
				t.Errorf("unexpected url %s", url)
			}

			p, _ := store.path(url)
			tu.AssertFileExists(t, p)
			if compression == CompressionGzip {
				if info, _ := os.Stat(p); info.Size() >= int64(len(data)) {
					t.Errorf("expected compressed blob smaller than %d bytes, got %d", len(data), info.Size())
				}
			}

			got, err := store.Get(ctx, url)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Error("Get() returned different bytes")
			}

			if err := store.Delete(ctx, url); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := store.Get(ctx, url); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
			if err := store.Delete(ctx, url); err != nil {
				t.Errorf("deleting a missing blob should succeed, got %v", err)
			}
		})
	}

	t.Run("keys cannot escape the root", func(t *testing.T) {
		root := t.TempDir()
		store, err := NewFileStore(filepath.Join(root, "blobs"), "")
		if err != nil {
			t.Fatalf("NewFileStore() error = %v", err)
		}

		url, err := store.Put(ctx, "../../etc/passwd", []byte("x"))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if url != Scheme+"etc/passwd" {
			t.Errorf("expected sanitized key, got %s", url)
		}

		if _, err := store.Get(ctx, Scheme+"../outside"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for escaping url, got %v", err)
		}
		if _, err := store.Get(ctx, "file:///etc/passwd"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for foreign scheme, got %v", err)
		}
	})

	t.Run("rejects unknown compression", func(t *testing.T) {
		if _, err := NewFileStore(t.TempDir(), "brotli"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("honors cancelled context", func(t *testing.T) {
		store, _ := NewFileStore(t.TempDir(), "")
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := store.Put(cancelled, "k", []byte("x")); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestSanitizeKey(t *testing.T) {
	tc := []struct {
		in, want string
	}{
		{in: "user/file", want: "user/file"},
		{in: "/abs/path", want: "abs/path"},
		{in: "a/../b", want: "a/b"},
		{in: "sp ace?&", want: "sp_ace__"},
		{in: "..", want: ""},
	}

	for _, tt := range tc {
		if got := SanitizeKey(tt.in); got != tt.want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
