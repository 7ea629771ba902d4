package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
)

var errDecrypt = errors.New("failed to decrypt message payload")

// noTokenTTL disables the fernet token age check; stored content never expires.
const noTokenTTL = -1

// Encryptor seals message content at rest with AES-256-GCM. Content written
// by older deployments under fernet keys can still be opened.
type Encryptor struct {
	aead   cipher.AEAD
	legacy []*fernet.Key
}

// NewEncryptor derives the AES key from secret with SHA-256, so any length of
// secret is accepted. legacyKeys are fernet keys tried on decryption only.
func NewEncryptor(secret []byte, legacyKeys ...string) (*Encryptor, error) {
	if len(secret) == 0 {
		return nil, errors.New("encryption key must not be empty")
	}
	sum := sha256.Sum256(secret)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	e := &Encryptor{aead: aead}
	for _, raw := range append([]string{string(secret)}, legacyKeys...) {
		if k, err := fernet.DecodeKey(strings.TrimSpace(raw)); err == nil {
			e.legacy = append(e.legacy, k)
		}
	}
	return e, nil
}

func (e *Encryptor) Encrypt(plain string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(enc string) (string, error) {
	if raw, err := base64.StdEncoding.DecodeString(enc); err == nil && len(raw) >= e.aead.NonceSize() {
		n := e.aead.NonceSize()
		if plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil); err == nil {
			return string(plain), nil
		}
	}
	if len(e.legacy) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(enc), noTokenTTL, e.legacy); plain != nil {
			return string(plain), nil
		}
	}
	return "", errDecrypt
}
