package biometric

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
)

const (
	keySalt   = "inhouse-biometric-templates"
	separator = ":"
)

var ErrMissingKey = errors.New("biometric encryption key is not configured")

// Cipher encrypts templates at rest with AES-256-GCM. Ciphertext format is
// hex(nonce) ":" hex(sealed).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the key from secret once. An empty secret is rejected.
func NewCipher(secret string) (*Cipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingKey
	}
	key, err := scrypt.Key([]byte(secret), []byte(keySalt), 1<<15, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plain []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nil, nonce, plain, nil)
	return hex.EncodeToString(nonce) + separator + hex.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	ivHex, ctHex, ok := strings.Cut(encoded, separator)
	if !ok {
		return nil, apperr.Crypto("Template cifrado con formato inválido")
	}
	nonce, err := hex.DecodeString(ivHex)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return nil, apperr.Crypto("Template cifrado con formato inválido")
	}
	sealed, err := hex.DecodeString(ctHex)
	if err != nil {
		return nil, apperr.Crypto("Template cifrado con formato inválido").Wrap(err)
	}
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, apperr.Crypto("No se pudo descifrar el template").Wrap(err)
	}
	return plain, nil
}
