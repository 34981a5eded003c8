package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

var ErrInvalidKey = errors.New("encryption key must be 32 bytes, raw or base64 encoded")

// Encryptor protects stored connection passwords.
type Encryptor interface {
	Encrypt(plain string) (string, error)
	Decrypt(cipherText string) (string, error)
}

type AesGcmEncryptor struct {
	aead cipher.AEAD
}

// ParseKey accepts a 32 byte key as is or base64 encoded.
func ParseKey(key string) ([]byte, error) {
	if len(key) == 32 {
		return []byte(key), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(decoded) != 32 {
		return nil, ErrInvalidKey
	}
	return decoded, nil
}

func NewAesGcmEncryptor(key []byte) (*AesGcmEncryptor, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AesGcmEncryptor{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext). Empty passwords stay empty.
func (e *AesGcmEncryptor) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *AesGcmEncryptor) Decrypt(cipherText string) (string, error) {
	if cipherText == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return "", err
	}
	if len(data) < e.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := data[:e.aead.NonceSize()], data[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
