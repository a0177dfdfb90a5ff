package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
)

var _ list.Item = clipItem{}

// clipItem wraps [models.ClipboardItemView] to implement [list.Item].
type clipItem struct {
	item models.ClipboardItemView
	now  time.Time
}

func (i clipItem) FilterValue() string {
	return strings.Join([]string{i.item.Type, i.item.DeviceID, i.preview()}, " ")
}

func (i clipItem) Title() string { return i.preview() }

func (i clipItem) Description() string {
	return fmt.Sprintf("%s • %s • %s • %s", i.item.Type, shared.FormatBytes(i.item.SizeBytes), i.item.DeviceID, age(i.now, i.item.CreatedAt))
}

// preview is the first line of unencrypted text, or a label for everything else.
func (i clipItem) preview() string {
	switch {
	case i.item.IsEncrypted:
		return fmt.Sprintf("[encrypted %s]", i.item.Type)
	case i.item.Type != models.TypeText:
		if name, ok := i.item.Metadata["filename"].(string); ok && name != "" {
			return name
		}
		return fmt.Sprintf("[%s %s]", i.item.Type, i.item.Mime)
	}

	line, _, _ := strings.Cut(strings.TrimSpace(i.item.Content), "\n")
	return shared.Truncate(line, 60)
}

// age renders the time since t in the largest whole unit.
func age(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return t.Local().Format("Jan 2 15:04")
}
