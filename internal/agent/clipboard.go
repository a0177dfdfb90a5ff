package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/desertthunder/clipsync/internal/shared"
)

// Clipboard reads and writes the text clipboard of the machine.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// SystemClipboard is the desktop clipboard.
type SystemClipboard struct{}

// NewSystemClipboard fails when no clipboard utility is available (for example xclip or xsel on Linux).
func NewSystemClipboard() (*SystemClipboard, error) {
	if clipboard.Unsupported {
		return nil, fmt.Errorf("%w: no system clipboard available", shared.ErrServiceUnavailable)
	}
	return &SystemClipboard{}, nil
}

func (SystemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (SystemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// LocalHash identifies clipboard content on this machine. It hashes the plaintext, unlike the
// content hash sent to the server, so it is stable across encryption.
func LocalHash(itemType, content string) string {
	h := sha256.New()
	h.Write([]byte(itemType))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
