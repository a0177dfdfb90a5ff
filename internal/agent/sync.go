package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/clipsync/internal/encryption"
	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/services"
	"github.com/desertthunder/clipsync/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options tunes a [SyncManager].
type Options struct {
	PollInterval  time.Duration // Time between polls (default: 5s)
	RetryInterval time.Duration // Pause between push attempts (default: 10s)
	MaxRetries    int           // Push attempts before an item is queued (default: 3)
	PollLimit     int           // Items per poll (default: 50)
	Wait          time.Duration // Long poll duration; zero polls without waiting
	PushRate      float64       // Pushes per second (default: 2)
	QueueMaxAge   time.Duration // Queued items older than this are dropped (default: 24h)
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 10 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.PollLimit <= 0 {
		o.PollLimit = 50
	}
	if o.PushRate <= 0 {
		o.PushRate = 2
	}
	if o.QueueMaxAge <= 0 {
		o.QueueMaxAge = 24 * time.Hour
	}
}

// OptionsFromConfig reads the agent section of the config.
func OptionsFromConfig(cfg shared.AgentConfig) Options {
	return Options{
		PollInterval:  cfg.PollInterval.Duration,
		RetryInterval: cfg.RetryInterval.Duration,
		MaxRetries:    cfg.MaxRetries,
	}
}

// Stats is a snapshot of sync activity.
type Stats struct {
	Running       bool
	ItemsSynced   int64
	ItemsReceived int64
	LastSyncTime  time.Time
	LastPollTime  time.Time
	LastError     error
	LastSeq       int64
	Queued        int
}

// IsHealthy reports whether the manager is running and its last operation succeeded.
func (s Stats) IsHealthy() bool { return s.Running && s.LastError == nil }

// SyncManager keeps the local clipboard and the server in step.
//
// Local changes are sealed with the user's key and pushed; failed pushes go to the offline [Queue]
// and are retried after each poll. Remote items from other devices are opened and written to the
// clipboard through the [Monitor], which keeps them from echoing back.
type SyncManager struct {
	client  *services.Client
	crypto  *encryption.Manager
	monitor *Monitor
	queue   *Queue
	drops   *DropWatcher
	opts    Options
	limiter *rate.Limiter
	logger  *log.Logger
	pushes  chan services.SyncRequest

	mu    sync.RWMutex
	stats Stats
}

func NewSyncManager(client *services.Client, crypto *encryption.Manager, monitor *Monitor, queue *Queue, opts Options, logger *log.Logger) *SyncManager {
	opts.defaults()
	if queue == nil {
		queue = NewQueue("")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &SyncManager{
		client:  client,
		crypto:  crypto,
		monitor: monitor,
		queue:   queue,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.PushRate), 1),
		logger:  logger,
		pushes:  make(chan services.SyncRequest, 16),
	}
}

// WithDropWatcher pushes files from w while the manager runs.
func (s *SyncManager) WithDropWatcher(w *DropWatcher) *SyncManager {
	s.drops = w
	return s
}

// Stats returns a snapshot of the counters.
func (s *SyncManager) Stats() Stats {
	s.mu.RLock()
	stats := s.stats
	s.mu.RUnlock()

	stats.LastSeq = s.client.LastSeq()
	stats.Queued = s.queue.Size()
	return stats
}

func (s *SyncManager) record(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Run syncs until ctx is done. It returns nil on cancellation.
func (s *SyncManager) Run(ctx context.Context) error {
	s.record(func(st *Stats) { st.Running = true })
	defer s.record(func(st *Stats) { st.Running = false })

	if err := s.initialSeq(ctx); err != nil {
		s.logger.Warn("could not read the latest seq", "error", err)
	} else {
		s.logger.Info("sync started", "seq", s.client.LastSeq())
	}

	if err := s.monitor.Prime(); err != nil {
		s.logger.Warn("could not read the clipboard", "error", err)
	}
	if n, err := s.queue.CleanupOld(s.opts.QueueMaxAge); err != nil {
		s.logger.Warn("failed to clean up queue", "error", err)
	} else if n > 0 {
		s.logger.Info("dropped stale queued items", "count", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.monitor.Run(gctx, s.onChange) })
	g.Go(func() error { return s.pushLoop(gctx) })
	g.Go(func() error { return s.pollLoop(gctx) })
	if s.drops != nil {
		g.Go(func() error { return s.drops.Run(gctx, s.onDrop) })
	}
	return g.Wait()
}

// initialSeq skips history: it polls without applying until the client is at the latest seq.
func (s *SyncManager) initialSeq(ctx context.Context) error {
	for range 100 {
		result, err := s.client.Poll(ctx, s.opts.PollLimit, 0)
		if err != nil {
			return err
		}
		if result.Count < s.opts.PollLimit {
			return nil
		}
	}
	return nil
}

func (s *SyncManager) onChange(c Change) {
	req, err := s.Seal(c.Type, "text/plain", c.Content, nil)
	if err != nil {
		s.logger.Error("failed to seal clipboard content", "error", err)
		return
	}
	s.logger.Debug("local clipboard changed", "bytes", len(c.Content))
	s.enqueue(req)
}

func (s *SyncManager) onDrop(f DroppedFile) {
	content := base64.StdEncoding.EncodeToString(f.Data)
	req, err := s.Seal(models.TypeFile, f.Mime, content, map[string]any{"filename": f.Name, "originalSize": len(f.Data)})
	if err != nil {
		s.logger.Error("failed to seal dropped file", "file", f.Name, "error", err)
		return
	}
	s.logger.Info("pushing dropped file", "file", f.Name, "size", shared.FormatBytes(int64(len(f.Data))))
	s.enqueue(req)
}

// enqueue hands req to the push loop, or to the offline queue when the loop is backed up.
func (s *SyncManager) enqueue(req services.SyncRequest) {
	select {
	case s.pushes <- req:
	default:
		s.queueRequest(req)
	}
}

func (s *SyncManager) queueRequest(req services.SyncRequest) {
	if _, err := s.queue.Add(req); err != nil {
		s.logger.Error("failed to queue clipboard item", "error", err)
	}
}

// Seal encrypts content and builds the sync request. The content hash covers the sealed content.
func (s *SyncManager) Seal(itemType, mime, content string, metadata map[string]any) (services.SyncRequest, error) {
	sealed, err := s.crypto.Encrypt(content)
	if err != nil {
		return services.SyncRequest{}, err
	}

	encrypted := sealed.IsEncrypted
	return services.SyncRequest{
		Type:                itemType,
		Mime:                mime,
		Content:             sealed.Content,
		ContentHash:         encryption.ContentHash(sealed.Content),
		SizeBytes:           int64(len(sealed.Content)),
		IsEncrypted:         &encrypted,
		EncryptionAlgorithm: sealed.Algorithm,
		Metadata:            metadata,
	}, nil
}

func (s *SyncManager) pushLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-s.pushes:
			if _, err := s.Push(ctx, req); err != nil {
				s.logger.Warn("push failed, queued for later", "error", err)
				s.queueRequest(req)
			}
		}
	}
}

// Push sends req, retrying up to MaxRetries times. Requests the server rejects outright are not retried.
func (s *SyncManager) Push(ctx context.Context, req services.SyncRequest) (*services.SyncResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		result, err := s.pushOnce(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if permanent(err) || ctx.Err() != nil {
			break
		}

		s.logger.Debug("push attempt failed", "attempt", attempt, "max", s.opts.MaxRetries, "error", err)
		if attempt == s.opts.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.RetryInterval):
		}
	}

	s.record(func(st *Stats) { st.LastError = lastErr })
	return nil, fmt.Errorf("failed to sync clipboard item: %w", lastErr)
}

func (s *SyncManager) pushOnce(ctx context.Context, req services.SyncRequest) (*services.SyncResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := s.client.Sync(ctx, req)
	if err != nil {
		return nil, err
	}

	s.record(func(st *Stats) {
		st.ItemsSynced++
		st.LastSyncTime = time.Now()
		st.LastError = nil
	})
	if result.Created {
		s.logger.Info("synced clipboard item", "id", result.ID, "seq", result.Seq)
	} else {
		s.logger.Debug("clipboard item already on server", "id", result.ID)
	}
	return result, nil
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	return errors.Is(err, shared.ErrInvalidInput) ||
		errors.Is(err, shared.ErrUnauthorized) ||
		errors.Is(err, shared.ErrForbidden) ||
		errors.Is(err, shared.ErrDeviceNotVerified)
}

func (s *SyncManager) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *SyncManager) tick(ctx context.Context) {
	if _, err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("poll failed", "error", err)
		return
	}
	if _, err := s.FlushQueue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("failed to flush queue", "error", err)
	}
}

// PollOnce fetches new items from other devices and applies them. It returns how many were applied.
func (s *SyncManager) PollOnce(ctx context.Context) (int, error) {
	s.record(func(st *Stats) { st.LastPollTime = time.Now() })

	result, err := s.client.Poll(ctx, s.opts.PollLimit, s.opts.Wait)
	if err != nil {
		s.record(func(st *Stats) { st.LastError = err })
		return 0, err
	}
	s.record(func(st *Stats) { st.LastError = nil })

	applied := 0
	for _, item := range result.Items {
		if err := s.apply(item); err != nil {
			s.logger.Warn("failed to apply remote item", "id", item.ID, "error", err)
			continue
		}
		applied++
	}
	return applied, nil
}

// apply writes a remote text item to the clipboard. Images and files are not written to the text clipboard.
func (s *SyncManager) apply(item models.ClipboardItemView) error {
	if item.Type != models.TypeText {
		s.logger.Debug("skipping non-text item", "id", item.ID, "type", item.Type)
		return nil
	}

	text, err := s.crypto.DecryptItem(item)
	if err != nil {
		return err
	}
	if err := s.monitor.Apply(text); err != nil {
		return err
	}

	s.record(func(st *Stats) { st.ItemsReceived++ })
	s.logger.Info("applied remote clipboard item", "id", item.ID, "device", item.DeviceID, "bytes", len(text))
	return nil
}

// FlushQueue makes one attempt for every due queued item and returns how many were synced.
// Items the server rejects outright are dropped.
func (s *SyncManager) FlushQueue(ctx context.Context) (int, error) {
	synced := 0
	for _, item := range s.queue.Pending(s.opts.MaxRetries) {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}

		_, err := s.pushOnce(ctx, item.Request)
		switch {
		case err == nil:
			synced++
			if err := s.queue.Remove(item.ID); err != nil {
				return synced, err
			}
		case permanent(err):
			s.logger.Warn("dropping rejected queued item", "id", item.ID, "error", err)
			if err := s.queue.Remove(item.ID); err != nil {
				return synced, err
			}
		default:
			s.record(func(st *Stats) { st.LastError = err })
			if err := s.queue.MarkAttempted(item.ID); err != nil {
				return synced, err
			}
		}
	}
	return synced, nil
}
