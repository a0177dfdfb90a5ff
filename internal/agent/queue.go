package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/desertthunder/clipsync/internal/services"
	"github.com/desertthunder/clipsync/internal/shared"
)

// QueuedItem is a sealed sync request waiting for the server.
type QueuedItem struct {
	ID       string               `json:"id"`
	Request  services.SyncRequest `json:"request"`
	Attempts int                  `json:"attempts"`
	QueuedAt time.Time            `json:"queued_at"`
	LastTry  time.Time            `json:"last_try"`
}

// Queue holds pushes that failed while the server was unreachable.
//
// Every change is written through to a JSON file (temporary file, then rename) so queued items
// survive restarts. An empty path keeps the queue in memory.
type Queue struct {
	path  string
	items []QueuedItem
	mu    sync.RWMutex
	now   func() time.Time
}

func NewQueue(path string) *Queue {
	return &Queue{path: path, items: []QueuedItem{}, now: time.Now}
}

// Load reads the queue file. A missing or empty file is an empty queue.
func (q *Queue) Load() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.path == "" {
		return nil
	}

	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		q.items = []QueuedItem{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read queue file: %w", err)
	}

	var items []QueuedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to decode queue file: %w", err)
	}
	q.items = items
	return nil
}

// Add queues req and returns its queue id.
func (q *Queue) Add(req services.SyncRequest) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := QueuedItem{ID: shared.GenerateID(), Request: req, QueuedAt: q.now()}
	q.items = append(q.items, item)
	return item.ID, q.save()
}

// Pending returns the items due for another attempt. An item that has been tried n times
// waits 2^n minutes after its last try; items at maxAttempts are never returned.
func (q *Queue) Pending(maxAttempts int) []QueuedItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	now := q.now()
	var pending []QueuedItem
	for _, item := range q.items {
		if item.Attempts >= maxAttempts {
			continue
		}
		backoff := time.Duration(1<<item.Attempts) * time.Minute
		if item.Attempts == 0 || now.Sub(item.LastTry) >= backoff {
			pending = append(pending, item)
		}
	}
	return pending
}

// MarkAttempted counts a failed attempt for id.
func (q *Queue) MarkAttempted(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.index(id)
	if i < 0 {
		return fmt.Errorf("queued item %s: %w", id, shared.ErrNotFound)
	}
	q.items[i].Attempts++
	q.items[i].LastTry = q.now()
	return q.save()
}

// Remove drops id after it was synced.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.index(id)
	if i < 0 {
		return fmt.Errorf("queued item %s: %w", id, shared.ErrNotFound)
	}
	q.items = slices.Delete(q.items, i, i+1)
	return q.save()
}

func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = []QueuedItem{}
	return q.save()
}

// CleanupOld drops items queued more than maxAge ago and returns how many were dropped.
func (q *Queue) CleanupOld(maxAge time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-maxAge)
	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, func(item QueuedItem) bool { return !item.QueuedAt.After(cutoff) })

	removed := before - len(q.items)
	if removed == 0 {
		return 0, nil
	}
	return removed, q.save()
}

func (q *Queue) index(id string) int {
	return slices.IndexFunc(q.items, func(item QueuedItem) bool { return item.ID == id })
}

// save writes the queue. Callers hold the lock.
func (q *Queue) save() error {
	if q.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(q.items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}
