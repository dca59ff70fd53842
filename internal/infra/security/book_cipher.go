package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrSealedForOtherOwner is returned when a sealed session book is opened
// under a different owner than it was sealed for.
var ErrSealedForOtherOwner = errors.New("session book sealed for another owner")

// BookCipher seals session-book documents at rest with AES-GCM. The owner is
// bound as additional data, so a document copied onto another owner's row
// does not open.
type BookCipher struct {
	gcm cipher.AEAD
}

// NewBookCipher accepts a 16, 24 or 32 byte key.
func NewBookCipher(key string) (*BookCipher, error) {
	k := []byte(key)
	if n := len(k); n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24 or 32 bytes, got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &BookCipher{gcm: gcm}, nil
}

// Seal returns base64(nonce || ciphertext).
func (c *BookCipher) Seal(owner string, doc []byte) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(c.gcm.Seal(nonce, nonce, doc, []byte(owner))), nil
}

func (c *BookCipher) Open(owner, sealed string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decode sealed book: %w", err)
	}
	ns := c.gcm.NonceSize()
	if len(data) < ns {
		return nil, errors.New("sealed book too short")
	}
	doc, err := c.gcm.Open(nil, data[:ns], data[ns:], []byte(owner))
	if err != nil {
		return nil, ErrSealedForOtherOwner
	}
	return doc, nil
}
