package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/notify"
	"github.com/desertthunder/clipsync/internal/repositories"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/desertthunder/clipsync/internal/storage"
)

const (
	MessageRecentlySynced = "Content recently synced - preventing rapid re-sync"
	MessageAlreadyExists  = "Content already exists"
)

// SyncRequest is the body a device sends to store a clipboard item.
//
// IsEncrypted is a pointer so an absent field can default to true.
type SyncRequest struct {
	Type                string         `json:"type"`
	Mime                string         `json:"mime,omitempty"`
	Content             string         `json:"content"`
	ContentHash         string         `json:"contentHash"`
	SizeBytes           int64          `json:"sizeBytes"`
	IsEncrypted         *bool          `json:"isEncrypted,omitempty"`
	EncryptionAlgorithm string         `json:"encryptionAlgorithm,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields every stored item needs.
func (r SyncRequest) Validate() error {
	switch {
	case !slices.Contains(models.ItemTypes, r.Type):
		return fmt.Errorf("%w: type must be one of text, image, file", shared.ErrInvalidInput)
	case r.Content == "":
		return fmt.Errorf("%w: content is required", shared.ErrInvalidInput)
	case r.ContentHash == "":
		return fmt.Errorf("%w: contentHash is required", shared.ErrInvalidInput)
	case r.SizeBytes <= 0:
		return fmt.Errorf("%w: sizeBytes must be positive", shared.ErrInvalidInput)
	}
	return nil
}

func (r SyncRequest) item(userID, deviceID string) *models.ClipboardItem {
	item := models.NewClipboardItem(userID, deviceID, r.Type, r.Content, r.ContentHash, r.SizeBytes)
	item.SetMime(r.Mime)
	item.SetMetadata(r.Metadata)

	encrypted := r.IsEncrypted == nil || *r.IsEncrypted
	item.SetEncryption(encrypted, r.EncryptionAlgorithm)
	return item
}

// SyncResult reports whether a sync stored a new item.
type SyncResult struct {
	ID       string `json:"id"`
	Seq      int64  `json:"seq"`
	Created  bool   `json:"created"`
	DeviceID string `json:"deviceId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// PollOptions narrows a poll. Wait > 0 turns an empty poll into a long poll.
type PollOptions struct {
	Since       int64
	Limit       int
	ExcludeSelf bool
	Wait        time.Duration
}

// PollResult is the response to a device poll.
type PollResult struct {
	Items    []models.ClipboardItemView `json:"items"`
	LastSeq  int64                      `json:"lastSeq"`
	DeviceID string                     `json:"deviceId"`
	Count    int                        `json:"count"`
}

// Stats summarizes a user's clipboard.
type Stats struct {
	Count        int64  `json:"count"`
	StorageBytes int64  `json:"storageBytes"`
	Storage      string `json:"storage"`
	LatestSeq    int64  `json:"latestSeq"`
}

// ClipboardService stores and serves clipboard items.
type ClipboardService struct {
	items    *repositories.ClipboardRepository
	devices  *repositories.DeviceRepository
	store    storage.Store
	notifier notify.Notifier
	cfg      shared.SyncConfig
	logger   *log.Logger
	now      func() time.Time
}

// NewClipboardService creates a [ClipboardService]. store and notifier are optional.
func NewClipboardService(repos *Repositories, store storage.Store, notifier notify.Notifier, cfg shared.SyncConfig, logger *log.Logger) *ClipboardService {
	if logger == nil {
		logger = log.Default()
	}
	return &ClipboardService{
		items:    repos.Clipboard,
		devices:  repos.Devices,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      models.Now,
	}
}

// Sync stores an item pushed by device, unless the user already has content with the same hash.
func (s *ClipboardService) Sync(ctx context.Context, device *models.Device, req SyncRequest) (*SyncResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.items.FindByContentHash(device.UserID(), req.ContentHash)
	switch {
	case err == nil:
		msg := MessageAlreadyExists
		if existing.Age(s.now()) < s.cfg.DedupWindow.Duration {
			msg = MessageRecentlySynced
		}
		s.logger.Debug("duplicate clipboard content", "device", device.DeviceID(), "item", existing.ID(), "seq", existing.Seq())
		return &SyncResult{ID: existing.ID(), Seq: existing.Seq(), Message: msg}, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, fmt.Errorf("failed to check for duplicate content: %w", err)
	}

	item := req.item(device.UserID(), device.ID())
	if err := s.items.Create(item); err != nil {
		return nil, fmt.Errorf("failed to store clipboard item: %w", err)
	}

	s.publish(ctx, item, device.DeviceID())
	s.logger.Info("clipboard item stored", "device", device.DeviceID(), "seq", item.Seq(), "type", item.Type(), "size", item.SizeBytes())

	return &SyncResult{ID: item.ID(), Seq: item.Seq(), Created: true, DeviceID: device.DeviceID()}, nil
}

func (s *ClipboardService) publish(ctx context.Context, item *models.ClipboardItem, deviceID string) {
	if s.notifier == nil {
		return
	}
	event := notify.Event{UserID: item.UserID(), Seq: item.Seq(), DeviceID: deviceID}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish clipboard event", "seq", item.Seq(), "error", err)
	}
}

// Poll returns the user's items after opts.Since in seq order.
//
// When nothing is newer and opts.Wait is set, Poll blocks until another device stores an item or the
// wait (capped by max_wait) runs out, then queries again.
func (s *ClipboardService) Poll(ctx context.Context, device *models.Device, opts PollOptions) (*PollResult, error) {
	limit := clampLimit(opts.Limit, s.cfg.DefaultLimit, s.cfg.MaxLimit)
	query := func() ([]*models.ClipboardItem, error) {
		if opts.ExcludeSelf {
			return s.items.ItemsSinceExcludingDevice(device.UserID(), device.ID(), opts.Since, limit)
		}
		return s.items.ItemsSince(device.UserID(), opts.Since, limit)
	}

	var sub *notify.Subscription
	if opts.Wait > 0 && s.notifier != nil {
		var err error
		if sub, err = s.notifier.Subscribe(ctx, device.UserID()); err != nil {
			s.logger.Warn("long poll unavailable", "device", device.DeviceID(), "error", err)
		} else {
			defer sub.Close()
		}
	}

	items, err := query()
	if err != nil {
		return nil, fmt.Errorf("failed to poll clipboard items: %w", err)
	}

	if len(items) == 0 && sub != nil {
		waitCtx, cancel := context.WithTimeout(ctx, min(opts.Wait, s.cfg.MaxWait.Duration))
		defer cancel()

		for len(items) == 0 && sub.Wait(waitCtx) {
			if items, err = query(); err != nil {
				return nil, fmt.Errorf("failed to poll clipboard items: %w", err)
			}
		}
	}

	views, err := s.views(ctx, device.UserID(), items)
	if err != nil {
		return nil, err
	}

	lastSeq := int64(0)
	if n := len(items); n > 0 {
		lastSeq = items[n-1].Seq()
	} else if lastSeq, err = s.items.LatestSeq(device.UserID()); err != nil {
		return nil, fmt.Errorf("failed to read latest seq: %w", err)
	}

	return &PollResult{Items: views, LastSeq: lastSeq, DeviceID: device.DeviceID(), Count: len(views)}, nil
}

// views resolves external content and swaps internal device keys for external identifiers.
func (s *ClipboardService) views(ctx context.Context, userID string, items []*models.ClipboardItem) ([]models.ClipboardItemView, error) {
	views := make([]models.ClipboardItemView, 0, len(items))
	if len(items) == 0 {
		return views, nil
	}

	mapping, err := s.devices.IDMapping(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to map device ids: %w", err)
	}

	for _, item := range items {
		if err := s.resolveContent(ctx, item); err != nil {
			return nil, err
		}
		views = append(views, item.View(mapping[item.DeviceID()]))
	}
	return views, nil
}

// resolveContent loads content that has been moved to the blob store.
func (s *ClipboardService) resolveContent(ctx context.Context, item *models.ClipboardItem) error {
	file := item.File()
	if file == nil || !file.InObjectStorage() {
		return nil
	}
	if s.store == nil {
		return fmt.Errorf("item %s is in object storage but no store is configured: %w", item.ID(), shared.ErrServiceUnavailable)
	}

	data, err := s.store.Get(ctx, file.ObjectStorageURL())
	if err != nil {
		return fmt.Errorf("failed to load content of item %s: %w", item.ID(), err)
	}
	item.SetContent(string(data))
	return nil
}

// List returns the user's items after since, or the most recent items when since is zero.
func (s *ClipboardService) List(ctx context.Context, userID string, since int64, limit int) ([]models.ClipboardItemView, error) {
	limit = clampLimit(limit, s.cfg.DefaultLimit, s.cfg.UserMaxLimit)

	var (
		items []*models.ClipboardItem
		err   error
	)
	if since > 0 {
		items, err = s.items.ItemsSince(userID, since, limit)
	} else {
		items, err = s.items.Recent(userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list clipboard items: %w", err)
	}
	return s.views(ctx, userID, items)
}

// owned fetches an item and hides items of other users behind not found.
func (s *ClipboardService) owned(userID, id string) (*models.ClipboardItem, error) {
	item, err := s.items.Get(id)
	if err != nil {
		return nil, err
	}
	if item.UserID() != userID {
		return nil, fmt.Errorf("clipboard item %s: %w", id, shared.ErrNotFound)
	}
	return item, nil
}

// Get returns one of the user's items.
func (s *ClipboardService) Get(ctx context.Context, userID, id string) (*models.ClipboardItemView, error) {
	item, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}

	views, err := s.views(ctx, userID, []*models.ClipboardItem{item})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// CreateRequest is a [SyncRequest] made by a signed-in user, optionally on behalf of one of their devices.
type CreateRequest struct {
	SyncRequest
	DeviceID string `json:"deviceId,omitempty"`
}

// Create stores an item for the user without deduplication.
func (s *ClipboardService) Create(ctx context.Context, userID string, req CreateRequest) (*models.ClipboardItemView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var internalID string
	if req.DeviceID != "" {
		device, err := s.devices.GetByDeviceID(req.DeviceID)
		if err != nil || device.UserID() != userID {
			return nil, fmt.Errorf("device %s: %w", req.DeviceID, shared.ErrNotFound)
		}
		internalID = device.ID()
	}

	item := req.item(userID, internalID)
	if err := s.items.Create(item); err != nil {
		return nil, fmt.Errorf("failed to store clipboard item: %w", err)
	}
	s.publish(ctx, item, req.DeviceID)

	view := item.View(req.DeviceID)
	return &view, nil
}

// Delete removes one of the user's items and its blob, if any.
func (s *ClipboardService) Delete(ctx context.Context, userID, id string) error {
	item, err := s.owned(userID, id)
	if err != nil {
		return err
	}

	if err := s.items.Delete(id); err != nil {
		return fmt.Errorf("failed to delete clipboard item: %w", err)
	}

	if file := item.File(); file != nil && file.InObjectStorage() {
		s.deleteBlobs(ctx, []string{file.ObjectStorageURL()})
	}
	return nil
}

// Clear deletes all of the user's items and returns how many were removed.
func (s *ClipboardService) Clear(ctx context.Context, userID string) (int64, error) {
	urls, err := s.items.ObjectURLsForUser(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored blobs: %w", err)
	}

	n, err := s.items.DeleteForUser(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear clipboard: %w", err)
	}

	s.deleteBlobs(ctx, urls)
	s.logger.Info("clipboard cleared", "user", userID, "deleted", n)
	return n, nil
}

// deleteBlobs removes blobs whose rows are already gone. Failures only leave orphan files, so they are logged.
func (s *ClipboardService) deleteBlobs(ctx context.Context, urls []string) {
	if s.store == nil {
		return
	}
	for _, url := range urls {
		if err := s.store.Delete(ctx, url); err != nil {
			s.logger.Warn("failed to delete blob", "url", url, "error", err)
		}
	}
}

// Stats reports item count, stored bytes and the latest seq for the user.
func (s *ClipboardService) Stats(userID string) (*Stats, error) {
	count, err := s.items.CountForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count clipboard items: %w", err)
	}
	usage, err := s.items.StorageUsage(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum storage usage: %w", err)
	}
	latest, err := s.items.LatestSeq(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest seq: %w", err)
	}
	return &Stats{Count: count, StorageBytes: usage, Storage: shared.FormatBytes(usage), LatestSeq: latest}, nil
}
