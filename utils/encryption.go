package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"odcrm/config"
)

// Identity credentials (SMTP/IMAP passwords, OAuth refresh tokens) are stored
// AES-CFB encrypted under the deployment encryption key, base64url encoded
// with the IV prepended. A fresh IV is drawn per call, so encrypting the same
// secret twice yields different ciphertexts.

func credentialCipher() (cipher.Block, error) {
	block, err := aes.NewCipher([]byte(config.AppConfig.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	return block, nil
}

// Encrypt returns the empty string unchanged so optional credential fields
// round-trip without a sentinel.
func Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := credentialCipher()
	if err != nil {
		return "", err
	}

	out := make([]byte, aes.BlockSize+len(plaintext))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(out[aes.BlockSize:], []byte(plaintext))

	return base64.URLEncoding.EncodeToString(out), nil
}

func Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	block, err := credentialCipher()
	if err != nil {
		return "", err
	}

	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	if len(raw) < aes.BlockSize {
		return "", errors.New("ciphertext too short")
	}

	iv, body := raw[:aes.BlockSize], raw[aes.BlockSize:]
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(body, body)

	return string(body), nil
}
