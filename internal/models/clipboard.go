package models

import (
	"slices"
	"time"
)

// Clipboard content types.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeFile  = "file"
)

// DefaultAlgorithm is assumed for encrypted items that do not name their algorithm.
const DefaultAlgorithm = "AES-256-GCM"

// ItemTypes lists the accepted clipboard content types.
var ItemTypes = []string{TypeText, TypeImage, TypeFile}

// ClipboardItem is one clipboard entry synchronized between a user's devices.
//
// Items are immutable once stored. seq is assigned on insert from a global counter and never reused,
// so clients fetch incrementally by asking for everything after the last seq they saw.
type ClipboardItem struct {
	id                  string
	userID              string
	deviceID            string
	seq                 int64
	itemType            string
	mime                string
	contentHash         string
	sizeBytes           int64
	content             string
	isEncrypted         bool
	encryptionAlgorithm string
	metadata            map[string]any
	createdAt           time.Time
	file                *ClipboardFile
}

// NewClipboardItem creates an encrypted [ClipboardItem] using [DefaultAlgorithm].
func NewClipboardItem(userID, deviceID, itemType, content, contentHash string, sizeBytes int64) *ClipboardItem {
	return &ClipboardItem{
		userID:              userID,
		deviceID:            deviceID,
		itemType:            itemType,
		content:             content,
		contentHash:         contentHash,
		sizeBytes:           sizeBytes,
		isEncrypted:         true,
		encryptionAlgorithm: DefaultAlgorithm,
		createdAt:           now(),
	}
}

func (c *ClipboardItem) ID() string                  { return c.id }
func (c *ClipboardItem) UserID() string              { return c.userID }
func (c *ClipboardItem) DeviceID() string            { return c.deviceID }
func (c *ClipboardItem) Seq() int64                  { return c.seq }
func (c *ClipboardItem) Type() string                { return c.itemType }
func (c *ClipboardItem) Mime() string                { return c.mime }
func (c *ClipboardItem) ContentHash() string         { return c.contentHash }
func (c *ClipboardItem) SizeBytes() int64            { return c.sizeBytes }
func (c *ClipboardItem) Content() string             { return c.content }
func (c *ClipboardItem) IsEncrypted() bool           { return c.isEncrypted }
func (c *ClipboardItem) EncryptionAlgorithm() string { return c.encryptionAlgorithm }
func (c *ClipboardItem) Metadata() map[string]any    { return c.metadata }
func (c *ClipboardItem) CreatedAt() time.Time        { return c.createdAt }
func (c *ClipboardItem) UpdatedAt() time.Time        { return c.createdAt }
func (c *ClipboardItem) File() *ClipboardFile        { return c.file }

func (c *ClipboardItem) SetID(id string)              { c.id = id }
func (c *ClipboardItem) SetSeq(seq int64)             { c.seq = seq }
func (c *ClipboardItem) SetMime(mime string)          { c.mime = mime }
func (c *ClipboardItem) SetContent(content string)    { c.content = content }
func (c *ClipboardItem) SetMetadata(m map[string]any) { c.metadata = m }
func (c *ClipboardItem) SetCreatedAt(t time.Time)     { c.createdAt = t }
func (c *ClipboardItem) SetFile(f *ClipboardFile)     { c.file = f }

// SetEncryption records whether content is ciphertext and with which algorithm.
// Unencrypted items never carry an algorithm.
func (c *ClipboardItem) SetEncryption(encrypted bool, algorithm string) {
	c.isEncrypted = encrypted
	switch {
	case !encrypted:
		c.encryptionAlgorithm = ""
	case algorithm == "":
		c.encryptionAlgorithm = DefaultAlgorithm
	default:
		c.encryptionAlgorithm = algorithm
	}
}

// External reports whether the content lives outside the item row.
func (c *ClipboardItem) External() bool { return c.file != nil }

// Age returns how long ago the item was created, relative to t.
func (c *ClipboardItem) Age(t time.Time) time.Duration { return t.Sub(c.createdAt) }

// Validate checks type, hash and size.
func (c *ClipboardItem) Validate() error {
	if c.userID == "" {
		return invalid("clipboard item user is required")
	}
	if !slices.Contains(ItemTypes, c.itemType) {
		return invalid("type %q is not one of text, image, file", c.itemType)
	}
	if c.contentHash == "" {
		return invalid("content hash is required")
	}
	if c.sizeBytes <= 0 {
		return invalid("size must be positive")
	}
	return nil
}

// ClipboardItemView is the wire representation of a [ClipboardItem].
//
// DeviceID holds the external device identifier, never the internal key.
type ClipboardItemView struct {
	ID                  string         `json:"id"`
	Seq                 int64          `json:"seq"`
	Type                string         `json:"type"`
	Mime                string         `json:"mime,omitempty"`
	Content             string         `json:"content"`
	ContentHash         string         `json:"contentHash"`
	SizeBytes           int64          `json:"sizeBytes"`
	IsEncrypted         bool           `json:"isEncrypted"`
	EncryptionAlgorithm string         `json:"encryptionAlgorithm,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	DeviceID            string         `json:"deviceId"`
	CreatedAt           time.Time      `json:"createdAt"`
}

// View builds the wire representation, substituting the external device identifier.
func (c *ClipboardItem) View(externalDeviceID string) ClipboardItemView {
	return ClipboardItemView{
		ID:                  c.id,
		Seq:                 c.seq,
		Type:                c.itemType,
		Mime:                c.mime,
		Content:             c.content,
		ContentHash:         c.contentHash,
		SizeBytes:           c.sizeBytes,
		IsEncrypted:         c.isEncrypted,
		EncryptionAlgorithm: c.encryptionAlgorithm,
		Metadata:            c.metadata,
		DeviceID:            externalDeviceID,
		CreatedAt:           c.createdAt,
	}
}

// ClipboardFile holds content for items too large to store inline.
//
// Content is cleared once it has been moved to object storage.
type ClipboardFile struct {
	id               string
	clipboardItemID  string
	content          string
	objectStorageURL string
	compressionType  string
	createdAt        time.Time
}

// NewClipboardFile creates a [ClipboardFile] for the item with the given content.
func NewClipboardFile(itemID, content string) *ClipboardFile {
	return &ClipboardFile{clipboardItemID: itemID, content: content, createdAt: now()}
}

func (f *ClipboardFile) ID() string               { return f.id }
func (f *ClipboardFile) ClipboardItemID() string  { return f.clipboardItemID }
func (f *ClipboardFile) Content() string          { return f.content }
func (f *ClipboardFile) ObjectStorageURL() string { return f.objectStorageURL }
func (f *ClipboardFile) CompressionType() string  { return f.compressionType }
func (f *ClipboardFile) CreatedAt() time.Time     { return f.createdAt }
func (f *ClipboardFile) UpdatedAt() time.Time     { return f.createdAt }

func (f *ClipboardFile) SetID(id string)           { f.id = id }
func (f *ClipboardFile) SetItemID(id string)       { f.clipboardItemID = id }
func (f *ClipboardFile) SetContent(content string) { f.content = content }
func (f *ClipboardFile) SetCreatedAt(t time.Time)  { f.createdAt = t }
func (f *ClipboardFile) SetObject(url, compression string) {
	f.objectStorageURL = url
	f.compressionType = compression
	f.content = ""
}

// InObjectStorage reports whether the content was moved to the blob store.
func (f *ClipboardFile) InObjectStorage() bool { return f.objectStorageURL != "" }

func (f *ClipboardFile) Validate() error {
	if f.clipboardItemID == "" {
		return invalid("clipboard file item is required")
	}
	if f.content == "" && f.objectStorageURL == "" {
		return invalid("clipboard file needs content or an object url")
	}
	return nil
}
