// package formatter exports clipboard history to JSON, CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
)

// Format names an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// ParseFormat accepts a format name or its usual file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, s)
}

// Ext is the file extension used for f.
func (f Format) Ext() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	}
	return string(f)
}

// Decrypter opens the content of a stored item. [encryption.Manager] satisfies it.
type Decrypter interface {
	DecryptItem(item models.ClipboardItemView) (string, error)
}

// Entry is one exported clipboard item with its content decrypted when a key allowed it.
// Locked entries could not be decrypted and carry no content.
type Entry struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Mime      string         `json:"mime,omitempty"`
	DeviceID  string         `json:"deviceId"`
	SizeBytes int64          `json:"sizeBytes"`
	Content   string         `json:"content,omitempty"`
	Encrypted bool           `json:"encrypted"`
	Locked    bool           `json:"locked,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Export is a user's clipboard history ready to be rendered.
type Export struct {
	User       string    `json:"user,omitempty"`
	ExportedAt time.Time `json:"exportedAt"`
	Items      []Entry   `json:"items"`
	Locked     int       `json:"locked"`
}

// BuildExport decrypts items with dec. A nil dec leaves encrypted items locked.
func BuildExport(user string, items []models.ClipboardItemView, dec Decrypter) *Export {
	export := &Export{User: user, ExportedAt: models.Now(), Items: make([]Entry, 0, len(items))}

	for _, item := range items {
		entry := Entry{
			ID:        item.ID,
			Seq:       item.Seq,
			Type:      item.Type,
			Mime:      item.Mime,
			DeviceID:  item.DeviceID,
			SizeBytes: item.SizeBytes,
			Content:   item.Content,
			Encrypted: item.IsEncrypted,
			Metadata:  item.Metadata,
			CreatedAt: item.CreatedAt,
		}

		if item.IsEncrypted {
			entry.Content, entry.Locked = "", true
			if dec != nil {
				if plain, err := dec.DecryptItem(item); err == nil {
					entry.Content, entry.Locked = plain, false
				}
			}
		}
		if entry.Locked {
			export.Locked++
		}
		export.Items = append(export.Items, entry)
	}
	return export
}

// summary is the one-line stand-in used for content that should not be printed inline.
func (e Entry) summary() string {
	switch {
	case e.Locked:
		return "[encrypted]"
	case e.Type == models.TypeText:
		return e.Content
	}

	label := e.Type
	if name, ok := e.Metadata["filename"].(string); ok && name != "" {
		label = name
	}
	return fmt.Sprintf("[%s, %s, %s]", label, e.Mime, shared.FormatBytes(e.SizeBytes))
}

// ExportToJSON renders the export as indented JSON.
func ExportToJSON(export *Export) ([]byte, error) {
	data, err := shared.MarshalJSON(export, true)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

// ExportToCSV writes one row per item with columns: ID, Seq, Type, Mime, Device, Size, Created, Encrypted, Content
func ExportToCSV(export *Export) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Seq", "Type", "Mime", "Device", "Size", "Created", "Encrypted", "Content"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range export.Items {
		record := []string{
			e.ID,
			strconv.FormatInt(e.Seq, 10),
			e.Type,
			e.Mime,
			e.DeviceID,
			strconv.FormatInt(e.SizeBytes, 10),
			e.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(e.Encrypted),
			e.Content,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown renders a heading per item with text content in a fenced block.
func ExportToMarkdown(export *Export) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Clipboard history\n\n")
	if export.User != "" {
		fmt.Fprintf(&buf, "**User**: %s\n", export.User)
	}
	fmt.Fprintf(&buf, "**Exported**: %s\n", export.ExportedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "**Items**: %d\n", len(export.Items))
	if export.Locked > 0 {
		fmt.Fprintf(&buf, "**Locked**: %d\n", export.Locked)
	}
	buf.WriteString("\n")

	for _, e := range export.Items {
		fmt.Fprintf(&buf, "## #%d %s\n\n", e.Seq, e.Type)
		fmt.Fprintf(&buf, "- Device: %s\n", e.DeviceID)
		fmt.Fprintf(&buf, "- Created: %s\n", e.CreatedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&buf, "- Size: %s\n\n", shared.FormatBytes(e.SizeBytes))

		if e.Type == models.TypeText && !e.Locked {
			fence := "```"
			for strings.Contains(e.Content, fence) {
				fence += "`"
			}
			fmt.Fprintf(&buf, "%s\n%s\n%s\n\n", fence, e.Content, fence)
			continue
		}
		fmt.Fprintf(&buf, "_%s_\n\n", e.summary())
	}
	return buf.Bytes(), nil
}

// ExportToText renders one line per item.
func ExportToText(export *Export) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Clipboard history: %d items\n\n", len(export.Items))
	for _, e := range export.Items {
		content := strings.ReplaceAll(e.summary(), "\n", `\n`)
		fmt.Fprintf(&buf, "%d. [%s] %s (%s): %s\n", e.Seq, e.CreatedAt.UTC().Format(time.DateTime), e.Type, e.DeviceID, content)
	}
	return buf.Bytes(), nil
}

// Render dispatches to the exporter for f.
func Render(export *Export, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return ExportToJSON(export)
	case FormatCSV:
		return ExportToCSV(export)
	case FormatMarkdown:
		return ExportToMarkdown(export)
	case FormatText:
		return ExportToText(export)
	}
	return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, f)
}

// WriteExport renders the export and writes it to path.
//
// Defaults to clipboard_{YYYYMMDD}.{ext} in the working directory.
func WriteExport(export *Export, f Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("clipboard_%s.%s", export.ExportedAt.Format("20060102"), f.Ext())
	}

	data, err := Render(export, f)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
