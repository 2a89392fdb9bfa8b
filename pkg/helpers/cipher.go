package helpers

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/oksasatya/identity-service/pkg/apperr"
)

// ErrDecryption is returned when a stored credential cannot be decrypted.
var ErrDecryption = apperr.Decryption("credential decryption failed")

// CredentialCipher encrypts credentials with AES-256-CBC and PKCS#7 padding.
// Ciphertext is standard base64. The empty string maps to itself in both directions.
type CredentialCipher struct {
	block cipher.Block
	iv    []byte
}

func NewCredentialCipher(key, iv string) (*CredentialCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("credential cipher: key must be 32 bytes, got %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("credential cipher: iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, err
	}
	return &CredentialCipher{block: block, iv: []byte(iv)}, nil
}

func (c *CredentialCipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	data := pkcs7Pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, data)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *CredentialCipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", apperr.Wrap(ErrDecryption, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", apperr.Wrap(ErrDecryption, errors.New("ciphertext is not a whole number of blocks"))
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)
	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", apperr.Wrap(ErrDecryption, err)
	}
	return string(plain), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty block")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
