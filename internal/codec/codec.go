// Package codec encrypts and decrypts avatar payloads with a shared secret.
//
// WIRE FORMAT (standard base64 of):
//
//	version (1 byte) | salt (16 bytes) | nonce (24 bytes) | ciphertext + tag
//
// A fresh salt and nonce are drawn for every message, so encrypting the same
// plaintext twice gives two different ciphertexts. The per-message key is
// HKDF-SHA256(secret, salt). The cipher is XChaCha20-Poly1305, which also
// authenticates the payload: a wrong secret or a tampered ciphertext fails
// to decrypt instead of returning garbage.
//
// Decrypt also reads the older OpenSSL-envelope records (see legacy.go).
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	version  byte = 1
	saltSize      = 16
	info          = "user-avatar-service/avatar"
)

var (
	// ErrMalformed is returned for input that is not a ciphertext produced by Encrypt.
	ErrMalformed = errors.New("codec: malformed ciphertext")
	// ErrDecrypt is returned when authentication fails (wrong secret or tampering).
	ErrDecrypt = errors.New("codec: decryption failed")
)

// Codec is a secret-bound symmetric cipher. It is safe for concurrent use.
type Codec struct {
	secret []byte
	rand   io.Reader
}

// New returns a Codec keyed by secret.
func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("codec: secret must not be empty")
	}
	return &Codec{secret: []byte(secret), rand: rand.Reader}, nil
}

// Encrypt seals plaintext and returns the base64 wire format.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return "", fmt.Errorf("codec: reading salt: %w", err)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("codec: reading nonce: %w", err)
	}

	header := make([]byte, 0, 1+saltSize+len(nonce))
	header = append(header, version)
	header = append(header, salt...)
	header = append(header, nonce...)

	// The header is authenticated as additional data.
	sealed := aead.Seal(nil, nonce, []byte(plaintext), header)
	return base64.StdEncoding.EncodeToString(append(header, sealed...)), nil
}

// Decrypt opens a ciphertext produced by Encrypt, or a legacy envelope,
// with the same secret.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if isLegacy(raw) {
		return c.decryptLegacy(raw)
	}

	headerSize := 1 + saltSize + chacha20poly1305.NonceSizeX
	if len(raw) < headerSize+chacha20poly1305.Overhead || raw[0] != version {
		return "", ErrMalformed
	}

	header := raw[:headerSize]
	salt := header[1 : 1+saltSize]
	nonce := header[1+saltSize:]

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, nonce, raw[headerSize:], header)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

func (c *Codec) aead(salt []byte) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.secret, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("codec: deriving key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("codec: creating cipher: %w", err)
	}
	return aead, nil
}
