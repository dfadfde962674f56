// Package secretbox encrypts provider credentials before they are stored in
// Postgres. Values are AES-GCM sealed with a key derived from the service
// secret and carry an "enc:" prefix so plaintext rows from older deployments
// can be told apart and re-encrypted on next save.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrDecryptFailed = errors.New("decrypt failed; re-save provider credentials")

const prefix = "enc:"

type Box struct {
	// keys are tried in order for decryption. Encrypt always uses keys[0],
	// so listing a retired secret only helps read old rows.
	keys [][32]byte
}

// New derives the encryption key from the current service secret. Previous
// secrets may be passed to keep older rows readable across a rotation.
func New(secret string, previous ...string) *Box {
	keys := make([][32]byte, 0, 1+len(previous))
	keys = append(keys, sha256.Sum256([]byte(secret)))
	for _, old := range previous {
		if strings.TrimSpace(old) == "" {
			continue
		}
		keys = append(keys, sha256.Sum256([]byte(old)))
	}
	return &Box{keys: keys}
}

func (b *Box) Encrypt(plaintext string) (string, error) {
	if b == nil || len(b.keys) == 0 {
		return "", fmt.Errorf("secret box unavailable")
	}
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return "", nil
	}
	block, err := aes.NewCipher(b.keys[0][:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return prefix + base64.RawStdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// Decrypt unwraps an "enc:" value. Values without the prefix are returned
// verbatim so legacy plaintext rows keep working until re-saved.
func (b *Box) Decrypt(value string) (string, error) {
	if b == nil || len(b.keys) == 0 {
		return "", fmt.Errorf("secret box unavailable")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", ErrDecryptFailed
	}
	for _, key := range b.keys {
		block, err := aes.NewCipher(key[:])
		if err != nil {
			continue
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			continue
		}
		if len(raw) < gcm.NonceSize() {
			continue
		}
		nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
		plaintext, err := gcm.Open(nil, nonce, sealed, nil)
		if err == nil {
			return string(plaintext), nil
		}
	}
	// Most commonly the service secret changed after rows were stored. Surface a
	// stable, user-actionable error instead of the raw crypto failure.
	return "", ErrDecryptFailed
}
