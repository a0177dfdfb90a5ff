package agent

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// MaxItemBytes is the largest file the drop watcher pushes.
const MaxItemBytes = 10 << 20

// DroppedFile is a file that settled in the drop directory.
type DroppedFile struct {
	Path string
	Name string
	Mime string
	Data []byte
}

// DropWatcher pushes files placed in a directory.
//
// Events are debounced per path: a file is read once no event has arrived for it within the debounce window,
// so a file that is still being copied is read after the copy finishes.
type DropWatcher struct {
	dir      string
	maxBytes int64
	debounce time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

func NewDropWatcher(dir string, logger *log.Logger) *DropWatcher {
	return &DropWatcher{
		dir:      dir,
		maxBytes: MaxItemBytes,
		debounce: 250 * time.Millisecond,
		logger:   logger,
		pending:  make(map[string]time.Time),
	}
}

func (w *DropWatcher) Dir() string { return w.dir }

// Run watches the directory and calls onFile for every settled file until ctx is done.
func (w *DropWatcher) Run(ctx context.Context, onFile func(DroppedFile)) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create drop directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching drop folder", "dir", w.dir)

	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("drop folder watch error", "error", err)
		case <-ticker.C:
			for _, path := range w.settled() {
				if file, ok := w.read(path); ok {
					onFile(file)
				}
			}
		}
	}
}

func (w *DropWatcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// settled removes and returns paths with no events inside the debounce window.
func (w *DropWatcher) settled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var paths []string
	for path, at := range w.pending {
		if time.Since(at) >= w.debounce {
			paths = append(paths, path)
			delete(w.pending, path)
		}
	}
	return paths
}

func (w *DropWatcher) read(path string) (DroppedFile, bool) {
	info, err := os.Stat(path)
	if err != nil {
		w.logger.Debug("dropped file vanished", "path", path, "error", err)
		return DroppedFile{}, false
	}
	if info.IsDir() || info.Size() == 0 {
		return DroppedFile{}, false
	}
	if info.Size() > w.maxBytes {
		w.logger.Warn("dropped file is too large", "path", path, "size", info.Size(), "max", w.maxBytes)
		return DroppedFile{}, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read dropped file", "path", path, "error", err)
		return DroppedFile{}, false
	}

	name := filepath.Base(path)
	return DroppedFile{Path: path, Name: name, Mime: MimeType(name), Data: data}, true
}

// MimeType guesses the MIME type from the file extension.
func MimeType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}
