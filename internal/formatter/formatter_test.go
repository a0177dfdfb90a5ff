package formatter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/desertthunder/clipsync/internal/encryption"
	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
	tu "github.com/desertthunder/clipsync/internal/testing"
)

const userID = "user-1"

var created = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func sealed(t *testing.T, m *encryption.Manager, plain string) models.ClipboardItemView {
	t.Helper()
	s, err := m.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	return models.ClipboardItemView{
		ID:                  "enc",
		Seq:                 2,
		Type:                models.TypeText,
		Content:             s.Content,
		ContentHash:         encryption.ContentHash(s.Content),
		SizeBytes:           int64(len(plain)),
		IsEncrypted:         true,
		EncryptionAlgorithm: s.Algorithm,
		DeviceID:            "linux-laptop-1700000000-aa",
		CreatedAt:           created.Add(time.Minute),
	}
}

func history(t *testing.T, m *encryption.Manager) []models.ClipboardItemView {
	return []models.ClipboardItemView{
		{
			ID:        "plain",
			Seq:       1,
			Type:      models.TypeText,
			Content:   "hello, \"world\"\nsecond line",
			SizeBytes: 26,
			DeviceID:  "linux-laptop-1700000000-aa",
			CreatedAt: created,
		},
		sealed(t, m, "top secret"),
		{
			ID:        "img",
			Seq:       3,
			Type:      models.TypeFile,
			Mime:      "image/png",
			Content:   "iVBORw0KGgo=",
			SizeBytes: 2048,
			Metadata:  map[string]any{"filename": "shot.png"},
			DeviceID:  "darwin-mac-1700000000-bb",
			CreatedAt: created.Add(2 * time.Minute),
		},
	}
}

func manager(t *testing.T, pass string) *encryption.Manager {
	t.Helper()
	m, err := encryption.NewManagerWithPassphrase(userID, pass)
	if err != nil {
		t.Fatalf("NewManagerWithPassphrase() error = %v", err)
	}
	return m
}

func TestBuildExport(t *testing.T) {
	m := manager(t, "correct horse")
	items := history(t, m)
	ignoreTime := cmpopts.IgnoreFields(Export{}, "ExportedAt")

	want := &Export{
		User: "me@example.com",
		Items: []Entry{
			{ID: "plain", Seq: 1, Type: "text", DeviceID: "linux-laptop-1700000000-aa", SizeBytes: 26, Content: "hello, \"world\"\nsecond line", CreatedAt: created},
			{ID: "enc", Seq: 2, Type: "text", DeviceID: "linux-laptop-1700000000-aa", SizeBytes: 10, Content: "top secret", Encrypted: true, CreatedAt: created.Add(time.Minute)},
			{ID: "img", Seq: 3, Type: "file", Mime: "image/png", DeviceID: "darwin-mac-1700000000-bb", SizeBytes: 2048, Content: "iVBORw0KGgo=", Metadata: map[string]any{"filename": "shot.png"}, CreatedAt: created.Add(2 * time.Minute)},
		},
	}

	t.Run("decrypts with the right key", func(t *testing.T) {
		got := BuildExport("me@example.com", items, m)
		if diff := cmp.Diff(want, got, ignoreTime); diff != "" {
			t.Errorf("BuildExport() mismatch (-want +got):\n%s", diff)
		}
		if got.ExportedAt.IsZero() {
			t.Error("expected export time to be set")
		}
	})

	locked := func() *Export {
		w := *want
		w.Items = append([]Entry(nil), want.Items...)
		w.Items[1].Content, w.Items[1].Locked = "", true
		w.Locked = 1
		return &w
	}

	t.Run("no decrypter leaves items locked", func(t *testing.T) {
		got := BuildExport("me@example.com", items, nil)
		if diff := cmp.Diff(locked(), got, ignoreTime); diff != "" {
			t.Errorf("BuildExport() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("wrong passphrase leaves items locked", func(t *testing.T) {
		got := BuildExport("me@example.com", items, manager(t, "wrong"))
		if diff := cmp.Diff(locked(), got, ignoreTime); diff != "" {
			t.Errorf("BuildExport() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestExporters(t *testing.T) {
	m := manager(t, "correct horse")
	export := BuildExport("me@example.com", history(t, m), nil)

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(export)
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var decoded Export
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(decoded.Items) != 3 || decoded.Locked != 1 || decoded.Items[1].Content != "" {
			t.Errorf("unexpected decoded export %+v", decoded)
		}
		if !strings.Contains(string(data), "\n  ") {
			t.Error("expected indented output")
		}
	})

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(export)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("output is not CSV: %v", err)
		}

		want := [][]string{
			{"ID", "Seq", "Type", "Mime", "Device", "Size", "Created", "Encrypted", "Content"},
			{"plain", "1", "text", "", "linux-laptop-1700000000-aa", "26", "2026-03-14T09:26:53Z", "false", "hello, \"world\"\nsecond line"},
			{"enc", "2", "text", "", "linux-laptop-1700000000-aa", "10", "2026-03-14T09:27:53Z", "true", ""},
			{"img", "3", "file", "image/png", "darwin-mac-1700000000-bb", "2048", "2026-03-14T09:28:53Z", "false", "iVBORw0KGgo="},
		}
		if diff := cmp.Diff(want, records); diff != "" {
			t.Errorf("CSV mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(export)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"# Clipboard history",
			"**User**: me@example.com",
			"**Items**: 3",
			"**Locked**: 1",
			"## #1 text",
			"```\nhello, \"world\"\nsecond line\n```",
			"_[encrypted]_",
			"_[shot.png, image/png, 2.0 KiB]_",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown lengthens fences", func(t *testing.T) {
		e := &Export{Items: []Entry{{Seq: 1, Type: "text", Content: "```go\nfmt.Println()\n```"}}}
		data, err := ExportToMarkdown(e)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		if !strings.Contains(string(data), "````\n```go") {
			t.Errorf("expected a longer fence, got:\n%s", data)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(export)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		want := []string{
			"Clipboard history: 3 items",
			"",
			`1. [2026-03-14 09:26:53] text (linux-laptop-1700000000-aa): hello, "world"\nsecond line`,
			"2. [2026-03-14 09:27:53] text (linux-laptop-1700000000-aa): [encrypted]",
			"3. [2026-03-14 09:28:53] file (darwin-mac-1700000000-bb): [shot.png, image/png, 2.0 KiB]",
		}
		if diff := cmp.Diff(want, lines); diff != "" {
			t.Errorf("text mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tc := []struct {
		in   string
		want Format
		ext  string
	}{
		{in: "json", want: FormatJSON, ext: "json"},
		{in: "CSV", want: FormatCSV, ext: "csv"},
		{in: "md", want: FormatMarkdown, ext: "md"},
		{in: "markdown", want: FormatMarkdown, ext: "md"},
		{in: " txt ", want: FormatText, ext: "txt"},
	}
	for _, tt := range tc {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want || got.Ext() != tt.ext {
			t.Errorf("ParseFormat(%q) = %q (%s), %v; want %q (%s)", tt.in, got, got.Ext(), err, tt.want, tt.ext)
		}
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidFlag) {
		t.Errorf("expected ErrInvalidFlag, got %v", err)
	}
	if _, err := Render(&Export{}, Format("xml")); !errors.Is(err, shared.ErrInvalidFlag) {
		t.Errorf("expected ErrInvalidFlag from Render, got %v", err)
	}
}

func TestWriteExport(t *testing.T) {
	export := &Export{ExportedAt: created, Items: []Entry{{Seq: 1, Type: "text", Content: "hi", CreatedAt: created}}}

	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		got, err := WriteExport(export, FormatCSV, path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
		if !strings.HasPrefix(tu.MustReadFile(t, path), "ID,Seq,Type") {
			t.Error("expected CSV content")
		}
	})

	t.Run("default filename", func(t *testing.T) {
		wd := tu.MustGetwd(t)
		tu.MustChdir(t, t.TempDir())
		defer tu.MustChdir(t, wd)

		got, err := WriteExport(export, FormatMarkdown, "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != "clipboard_20260314.md" {
			t.Errorf("unexpected default filename %s", got)
		}
		tu.AssertFileExists(t, got)
	})

	t.Run("unwritable path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "out.txt")
		if _, err := WriteExport(export, FormatText, path); err == nil {
			t.Error("expected write error")
		}
	})
}
