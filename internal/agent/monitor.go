package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/clipsync/internal/models"
)

// appliedTTL is how long content written by the agent is ignored by the monitor.
const appliedTTL = 5 * time.Minute

// Change is new local clipboard content.
type Change struct {
	Type    string
	Content string
	Hash    string
}

// Monitor polls a [Clipboard] and reports content it has not seen before.
//
// Content the agent wrote itself (see [Monitor.Apply]) is skipped for five minutes so remote
// items are not pushed straight back.
type Monitor struct {
	clip     Clipboard
	interval time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	lastHash string
	applied  map[string]time.Time
	now      func() time.Time
}

func NewMonitor(clip Clipboard, interval time.Duration, logger *log.Logger) *Monitor {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Monitor{
		clip:     clip,
		interval: interval,
		logger:   logger,
		applied:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// Prime records the current clipboard as seen, so content copied before the agent started is not pushed.
func (m *Monitor) Prime() error {
	text, err := m.clip.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read clipboard: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if text != "" {
		m.lastHash = LocalHash(models.TypeText, text)
	}
	return nil
}

// Check reads the clipboard once and returns a change when the content is new.
func (m *Monitor) Check() (Change, bool, error) {
	text, err := m.clip.ReadAll()
	if err != nil {
		return Change{}, false, fmt.Errorf("failed to read clipboard: %w", err)
	}
	if text == "" {
		return Change{}, false, nil
	}

	hash := LocalHash(models.TypeText, text)

	m.mu.Lock()
	defer m.mu.Unlock()
	if hash == m.lastHash || m.isApplied(hash) {
		return Change{}, false, nil
	}
	m.lastHash = hash
	return Change{Type: models.TypeText, Content: text, Hash: hash}, true, nil
}

// Run checks the clipboard every interval and calls onChange for each change until ctx is done.
func (m *Monitor) Run(ctx context.Context, onChange func(Change)) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			change, ok, err := m.Check()
			if err != nil {
				m.logger.Debug("clipboard check failed", "error", err)
				continue
			}
			if ok {
				onChange(change)
			}
		}
	}
}

// Apply writes text to the clipboard and marks it as applied.
func (m *Monitor) Apply(text string) error {
	hash := LocalHash(models.TypeText, text)
	m.MarkApplied(hash)

	if err := m.clip.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}

	m.mu.Lock()
	m.lastHash = hash
	m.mu.Unlock()
	return nil
}

// MarkApplied records hash as written by the agent and forgets entries older than five minutes.
func (m *Monitor) MarkApplied(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.applied[hash] = now
	for h, at := range m.applied {
		if now.Sub(at) >= appliedTTL {
			delete(m.applied, h)
		}
	}
}

// Applied reports whether hash was written by the agent within the last five minutes.
func (m *Monitor) Applied(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isApplied(hash)
}

func (m *Monitor) isApplied(hash string) bool {
	at, ok := m.applied[hash]
	return ok && m.now().Sub(at) < appliedTTL
}
