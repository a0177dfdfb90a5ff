// Package encryption seals clipboard content on the client before it leaves the device.
//
// Keys are derived from a passphrase with PBKDF2-SHA256 and a salt bound to the user id,
// so every device of a user that knows the passphrase derives the same key and can read
// what the others push. The server only ever sees ciphertext and its hash.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize    = 32
	saltSize   = 16
	nonceSize  = 12
	tagSize    = 16
	iterations = 100000
	saltPrefix = "ap-user-salt-v2:"
)

// AlgorithmNone is reported when encryption is disabled.
const AlgorithmNone = "none"

// Sealed is content ready to send: ciphertext when encrypted, the plaintext otherwise.
type Sealed struct {
	Algorithm   string
	Content     string
	IsEncrypted bool
}

// Manager encrypts and decrypts content for one user.
type Manager struct {
	userID string
	key    []byte
	rand   io.Reader
}

// NewManager creates a disabled [Manager] for userID. Call [Manager.SetPassphrase] to enable it.
func NewManager(userID string) *Manager {
	return &Manager{userID: userID, rand: rand.Reader}
}

// NewManagerWithPassphrase creates a [Manager] and derives its key.
func NewManagerWithPassphrase(userID, passphrase string) (*Manager, error) {
	m := NewManager(userID)
	if err := m.SetPassphrase(passphrase); err != nil {
		return nil, err
	}
	return m, nil
}

// DeriveKey derives the 32 byte key for userID and passphrase.
func DeriveKey(userID, passphrase string) []byte {
	salt := sha256.Sum256([]byte(saltPrefix + userID))
	return pbkdf2.Key([]byte(passphrase), salt[:saltSize], iterations, keySize, sha256.New)
}

// SetPassphrase derives the key from passphrase and enables encryption.
func (m *Manager) SetPassphrase(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("%w: passphrase cannot be empty", shared.ErrInvalidInput)
	}
	if m.userID == "" {
		return fmt.Errorf("%w: user id is required to derive a key", shared.ErrInvalidInput)
	}
	m.key = DeriveKey(m.userID, passphrase)
	return nil
}

// ChangePassphrase replaces the key. Items sealed with the old key can no longer be opened.
func (m *Manager) ChangePassphrase(passphrase string) error {
	return m.SetPassphrase(passphrase)
}

// ValidatePassphrase reports whether passphrase derives the current key.
func (m *Manager) ValidatePassphrase(passphrase string) bool {
	if !m.Enabled() {
		return false
	}
	return subtle.ConstantTimeCompare(DeriveKey(m.userID, passphrase), m.key) == 1
}

// Disable forgets the key.
func (m *Manager) Disable() { m.key = nil }

func (m *Manager) Enabled() bool  { return len(m.key) == keySize }
func (m *Manager) UserID() string { return m.userID }

// Algorithm names the algorithm new content is sealed with.
func (m *Manager) Algorithm() string {
	if m.Enabled() {
		return models.DefaultAlgorithm
	}
	return AlgorithmNone
}

func (m *Manager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext as base64(nonce || ciphertext || tag). A disabled manager passes plaintext through.
func (m *Manager) Encrypt(plaintext string) (*Sealed, error) {
	if !m.Enabled() {
		return &Sealed{Algorithm: AlgorithmNone, Content: plaintext}, nil
	}
	if plaintext == "" {
		return nil, fmt.Errorf("%w: plaintext cannot be empty", shared.ErrEncryptionFailed)
	}

	aead, err := m.gcm()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrEncryptionFailed, err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(m.rand, nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %w", shared.ErrEncryptionFailed, err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return &Sealed{
		Algorithm:   models.DefaultAlgorithm,
		Content:     base64.StdEncoding.EncodeToString(sealed),
		IsEncrypted: true,
	}, nil
}

// Decrypt opens content sealed by [Manager.Encrypt]. Unencrypted content is returned as is.
func (m *Manager) Decrypt(content string, isEncrypted bool, algorithm string) (string, error) {
	if !isEncrypted || algorithm == AlgorithmNone {
		return content, nil
	}
	if !m.Enabled() {
		return "", fmt.Errorf("%w: no key configured", shared.ErrDecryptionFailed)
	}
	if algorithm != "" && algorithm != models.DefaultAlgorithm {
		return "", fmt.Errorf("%w: unsupported algorithm %s", shared.ErrDecryptionFailed, algorithm)
	}

	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %w", shared.ErrDecryptionFailed, err)
	}
	if len(raw) < nonceSize+1+tagSize {
		return "", fmt.Errorf("%w: ciphertext too short", shared.ErrDecryptionFailed)
	}

	aead, err := m.gcm()
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrDecryptionFailed, err)
	}

	plaintext, err := aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrDecryptionFailed, err)
	}
	if len(plaintext) == 0 {
		return "", fmt.Errorf("%w: empty plaintext", shared.ErrDecryptionFailed)
	}
	return string(plaintext), nil
}

// DecryptItem opens the content of a stored item.
func (m *Manager) DecryptItem(item models.ClipboardItemView) (string, error) {
	return m.Decrypt(item.Content, item.IsEncrypted, item.EncryptionAlgorithm)
}

// ContentHash returns the hex SHA-256 of sealed content, used by the server for deduplication.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
