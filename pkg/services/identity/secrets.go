package identity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrInvalidSecret is returned when a sealed value cannot be opened with the
// configured key.
var ErrInvalidSecret = errors.New("invalid sealed secret")

const keySize = 32
const nonceSize = 24

// Seal encrypts a plaintext secret for storage in configuration. The result
// is base64(nonce || box).
func Seal(plaintext string, key []byte) (string, error) {
	if len(key) != keySize {
		return "", ErrInvalidSecret
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	var boxKey [keySize]byte
	copy(boxKey[:], key)

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &boxKey)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func Open(sealed string, key []byte) (string, error) {
	if len(key) != keySize {
		return "", ErrInvalidSecret
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize {
		return "", ErrInvalidSecret
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	var boxKey [keySize]byte
	copy(boxKey[:], key)

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &boxKey)
	if !ok {
		return "", ErrInvalidSecret
	}
	return string(plaintext), nil
}
