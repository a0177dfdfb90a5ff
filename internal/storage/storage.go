// Package storage keeps large clipboard payloads outside the database.
//
// A [FileStore] writes each payload to a file under its root directory and hands back a
// blob:// URL that is recorded on the clipboard_files row. Payloads are gzip compressed
// when the store is configured to.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/klauspost/compress/gzip"
)

// Scheme prefixes every URL handed out by a [FileStore].
const Scheme = "blob://"

const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// Store is a blob store addressed by URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, url string) ([]byte, error)
	Delete(ctx context.Context, url string) error
	Compression() string
}

var unsafeKey = regexp.MustCompile(`[^A-Za-z0-9._/-]`)

// FileStore stores blobs as files below root.
type FileStore struct {
	root        string
	compression string
}

// NewFileStore creates the root directory if needed. compression is "gzip" or "none" (empty means none).
func NewFileStore(root, compression string) (*FileStore, error) {
	switch compression {
	case "":
		compression = CompressionNone
	case CompressionNone, CompressionGzip:
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", shared.ErrInvalidConfig, compression)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve blob directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileStore{root: abs, compression: compression}, nil
}

func (s *FileStore) Root() string        { return s.root }
func (s *FileStore) Compression() string { return s.compression }

// SanitizeKey replaces characters outside [A-Za-z0-9._/-] and strips leading slashes and dot segments.
func SanitizeKey(key string) string {
	key = unsafeKey.ReplaceAllString(key, "_")
	parts := strings.Split(key, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "/")
}

// path maps a blob URL to a file below root.
func (s *FileStore) path(url string) (string, error) {
	key, ok := strings.CutPrefix(url, Scheme)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: not a blob url: %q", shared.ErrInvalidInput, url)
	}

	p := filepath.Join(s.root, filepath.FromSlash(key))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: blob url escapes store: %q", shared.ErrInvalidInput, url)
	}
	return p, nil
}

// Put writes data under key and returns its URL. Compressed blobs get a .gz suffix.
func (s *FileStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key = SanitizeKey(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty blob key", shared.ErrInvalidInput)
	}

	payload := data
	if s.compression == CompressionGzip {
		key += ".gz"
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if err != nil {
			return "", fmt.Errorf("failed to create gzip writer: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			return "", fmt.Errorf("failed to compress blob: %w", err)
		}
		if err := zw.Close(); err != nil {
			return "", fmt.Errorf("failed to compress blob: %w", err)
		}
		payload = buf.Bytes()
	}

	url := Scheme + key
	p, err := s.path(url)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, payload, 0600); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return url, nil
}

// Get reads the blob at url, decompressing .gz blobs.
func (s *FileStore) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.path(url)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", url, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(p, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read compressed blob: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob at url. Missing blobs are not an error.
func (s *FileStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.path(url)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
