package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
)

// ClipboardRepository persists [models.ClipboardItem] rows and their out of row content.
type ClipboardRepository struct {
	db        *sql.DB
	inlineMax int64
}

// NewClipboardRepository creates a [ClipboardRepository]. Items larger than inlineMax bytes keep their content in clipboard_files.
func NewClipboardRepository(db *sql.DB, inlineMax int64) *ClipboardRepository {
	return &ClipboardRepository{db: db, inlineMax: inlineMax}
}

const itemSelect = `
	SELECT i.id, i.user_id, i.device_id, i.seq, i.type, i.mime, i.content_hash, i.size_bytes, i.content,
		i.is_encrypted, i.encryption_algorithm, i.metadata, i.created_at,
		f.id, f.content, f.object_storage_url, f.compression_type, f.created_at
	FROM clipboard_items i
	LEFT JOIN clipboard_files f ON f.clipboard_item_id = i.id
`

// scanItem reads an item row. The item content is the inline content, else the file content; when the file
// content has moved to object storage the item content is empty and the attached file carries the URL.
func scanItem(row scanner) (*models.ClipboardItem, error) {
	var (
		id, userID, itemType, contentHash     string
		deviceID, mime, content, algorithm    sql.NullString
		metadata                              sql.NullString
		seq, sizeBytes                        int64
		isEncrypted                           bool
		createdAt                             sql.NullTime
		fileID, fileContent, fileURL, fileCmp sql.NullString
		fileCreatedAt                         sql.NullTime
	)

	err := row.Scan(&id, &userID, &deviceID, &seq, &itemType, &mime, &contentHash, &sizeBytes, &content,
		&isEncrypted, &algorithm, &metadata, &createdAt,
		&fileID, &fileContent, &fileURL, &fileCmp, &fileCreatedAt)
	if err != nil {
		return nil, err
	}

	item := models.NewClipboardItem(userID, deviceID.String, itemType, content.String, contentHash, sizeBytes)
	item.SetID(id)
	item.SetSeq(seq)
	item.SetMime(mime.String)
	item.SetEncryption(isEncrypted, algorithm.String)
	item.SetCreatedAt(createdAt.Time)

	if metadata.Valid && metadata.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(metadata.String), &m); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of item %s: %w", id, err)
		}
		item.SetMetadata(m)
	}

	if fileID.Valid {
		file := models.NewClipboardFile(id, fileContent.String)
		file.SetID(fileID.String)
		file.SetCreatedAt(fileCreatedAt.Time)
		if fileURL.Valid && fileURL.String != "" {
			file.SetObject(fileURL.String, fileCmp.String)
		}
		item.SetFile(file)
		if !content.Valid {
			item.SetContent(file.Content())
		}
	}
	return item, nil
}

func (r *ClipboardRepository) queryOne(key, where string, args ...any) (*models.ClipboardItem, error) {
	item, err := scanItem(r.db.QueryRow(itemSelect+"WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("clipboard item", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query clipboard item: %w", err)
	}
	return item, nil
}

func (r *ClipboardRepository) queryMany(where string, args ...any) ([]*models.ClipboardItem, error) {
	rows, err := r.db.Query(itemSelect+"WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clipboard items: %w", err)
	}
	defer rows.Close()

	items := []*models.ClipboardItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clipboard item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

// Create inserts item, claiming the next seq in the same transaction.
//
// Content above the inline threshold is written to clipboard_files and the item row keeps NULL content.
func (r *ClipboardRepository) Create(item *models.ClipboardItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var metadata any
	if len(item.Metadata()) > 0 {
		data, err := json.Marshal(item.Metadata())
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = string(data)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSequence(tx, "clipboard_items")
	if err != nil {
		return fmt.Errorf("failed to generate seq: %w", err)
	}

	id := shared.GenerateID()
	external := item.SizeBytes() > r.inlineMax

	var inline any = item.Content()
	if external {
		inline = nil
	}

	query := `
		INSERT INTO clipboard_items (
			id, user_id, device_id, seq, type, mime, content_hash, size_bytes, content,
			is_encrypted, encryption_algorithm, metadata, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		id,
		item.UserID(),
		nullString(item.DeviceID()),
		seq,
		item.Type(),
		nullString(item.Mime()),
		item.ContentHash(),
		item.SizeBytes(),
		inline,
		item.IsEncrypted(),
		nullString(item.EncryptionAlgorithm()),
		metadata,
		item.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert clipboard item: %w", err)
	}

	var file *models.ClipboardFile
	if external {
		file = models.NewClipboardFile(id, item.Content())
		file.SetID(shared.GenerateID())
		_, err := tx.Exec("INSERT INTO clipboard_files (id, clipboard_item_id, content, created_at) VALUES (?, ?, ?, ?)",
			file.ID(), id, file.Content(), file.CreatedAt())
		if err != nil {
			return fmt.Errorf("failed to insert clipboard file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clipboard item: %w", err)
	}

	item.SetID(id)
	item.SetSeq(seq)
	item.SetFile(file)
	return nil
}

func (r *ClipboardRepository) Get(id string) (*models.ClipboardItem, error) {
	return r.queryOne(id, "i.id = ?", id)
}

// ItemsSince returns up to limit items of a user with seq greater than since, in seq order.
func (r *ClipboardRepository) ItemsSince(userID string, since int64, limit int) ([]*models.ClipboardItem, error) {
	return r.queryMany("i.user_id = ? AND i.seq > ? ORDER BY i.seq ASC LIMIT ?", userID, since, limit)
}

// ItemsSinceExcludingDevice is [ClipboardRepository.ItemsSince] without the items pushed by one device (internal id).
func (r *ClipboardRepository) ItemsSinceExcludingDevice(userID, deviceID string, since int64, limit int) ([]*models.ClipboardItem, error) {
	return r.queryMany(`i.user_id = ? AND i.seq > ? AND (i.device_id IS NULL OR i.device_id != ?)
		ORDER BY i.seq ASC LIMIT ?`, userID, since, deviceID, limit)
}

// Recent returns the newest items of a user.
func (r *ClipboardRepository) Recent(userID string, limit int) ([]*models.ClipboardItem, error) {
	return r.queryMany("i.user_id = ? ORDER BY i.created_at DESC, i.seq DESC LIMIT ?", userID, limit)
}

// ItemsByDevice returns the newest items pushed by one device (internal id).
func (r *ClipboardRepository) ItemsByDevice(userID, deviceID string, limit int) ([]*models.ClipboardItem, error) {
	return r.queryMany("i.user_id = ? AND i.device_id = ? ORDER BY i.seq DESC LIMIT ?", userID, deviceID, limit)
}

// FindByContentHash returns the newest item of a user with the given hash.
func (r *ClipboardRepository) FindByContentHash(userID, hash string) (*models.ClipboardItem, error) {
	return r.queryOne(hash, "i.user_id = ? AND i.content_hash = ? ORDER BY i.created_at DESC, i.seq DESC LIMIT 1", userID, hash)
}

// LatestSeq returns the highest seq of a user, or 0 without items.
func (r *ClipboardRepository) LatestSeq(userID string) (int64, error) {
	var seq int64
	if err := r.db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM clipboard_items WHERE user_id = ?", userID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to query latest seq: %w", err)
	}
	return seq, nil
}

func (r *ClipboardRepository) CountForUser(userID string) (int64, error) {
	var n int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM clipboard_items WHERE user_id = ?", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count clipboard items: %w", err)
	}
	return n, nil
}

// StorageUsage sums the declared size of a user's items.
func (r *ClipboardRepository) StorageUsage(userID string) (int64, error) {
	var n int64
	if err := r.db.QueryRow("SELECT COALESCE(SUM(size_bytes), 0) FROM clipboard_items WHERE user_id = ?", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to sum clipboard storage: %w", err)
	}
	return n, nil
}

func (r *ClipboardRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM clipboard_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete clipboard item: %w", err)
	}
	return expectAffected(result, "clipboard item", id)
}

func (r *ClipboardRepository) DeleteForUser(userID string) (int64, error) {
	n, err := affected(r.db.Exec("DELETE FROM clipboard_items WHERE user_id = ?", userID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete clipboard items: %w", err)
	}
	return n, nil
}

// DeleteForDevice removes the items pushed by one device (internal id).
func (r *ClipboardRepository) DeleteForDevice(deviceID string) (int64, error) {
	n, err := affected(r.db.Exec("DELETE FROM clipboard_items WHERE device_id = ?", deviceID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete clipboard items: %w", err)
	}
	return n, nil
}

// CleanupOlderThan removes items created more than days ago.
func (r *ClipboardRepository) CleanupOlderThan(days int) (int64, error) {
	cutoff := models.Now().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := affected(r.db.Exec("DELETE FROM clipboard_items WHERE created_at < ?", cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up clipboard items: %w", err)
	}
	return n, nil
}

// FilesNeedingMigration returns file rows still holding content whose item is at least minBytes.
func (r *ClipboardRepository) FilesNeedingMigration(minBytes int64, limit int) ([]*models.ClipboardFile, error) {
	query := `
		SELECT f.id, f.clipboard_item_id, f.content, f.created_at
		FROM clipboard_files f
		JOIN clipboard_items i ON i.id = f.clipboard_item_id
		WHERE i.size_bytes >= ? AND f.content IS NOT NULL AND f.object_storage_url IS NULL
		ORDER BY f.created_at ASC
		LIMIT ?
	`

	rows, err := r.db.Query(query, minBytes, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query clipboard files: %w", err)
	}
	defer rows.Close()

	var files []*models.ClipboardFile
	for rows.Next() {
		var (
			id, itemID, content string
			createdAt           sql.NullTime
		)
		if err := rows.Scan(&id, &itemID, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan clipboard file: %w", err)
		}
		file := models.NewClipboardFile(itemID, content)
		file.SetID(id)
		file.SetCreatedAt(createdAt.Time)
		files = append(files, file)
	}
	return files, rows.Err()
}

// SetObjectStorageURL records where a file's content now lives and clears the copy in the row.
func (r *ClipboardRepository) SetObjectStorageURL(fileID, url, compression string) error {
	result, err := r.db.Exec("UPDATE clipboard_files SET object_storage_url = ?, compression_type = ?, content = NULL WHERE id = ?",
		url, nullString(compression), fileID)
	if err != nil {
		return fmt.Errorf("failed to update clipboard file: %w", err)
	}
	return expectAffected(result, "clipboard file", fileID)
}

// ObjectURLsForUser lists the object storage URLs referenced by a user's items.
func (r *ClipboardRepository) ObjectURLsForUser(userID string) ([]string, error) {
	return r.objectURLs("i.user_id = ?", userID)
}

// ObjectURLsOlderThan lists the object storage URLs of items that [ClipboardRepository.CleanupOlderThan] would remove.
func (r *ClipboardRepository) ObjectURLsOlderThan(days int) ([]string, error) {
	cutoff := models.Now().Add(-time.Duration(days) * 24 * time.Hour)
	return r.objectURLs("i.created_at < ?", cutoff)
}

func (r *ClipboardRepository) objectURLs(where string, args ...any) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT f.object_storage_url
		FROM clipboard_files f
		JOIN clipboard_items i ON i.id = f.clipboard_item_id
		WHERE f.object_storage_url IS NOT NULL AND `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query object urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan object url: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}
