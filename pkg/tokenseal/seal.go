// Package tokenseal encrypts a bearer token under an SRP session key.
//
// AES-256 is used in CBC mode with HMAC-SHA256 in encrypt-then-authenticate mode. The
// encryption and authentication keys are derived from the session key with HKDF-SHA256. The
// tag covers IV || ciphertext and is appended to the ciphertext.
package tokenseal

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// MinKeySize is the shortest accepted session key.
	MinKeySize = 16

	tagSize = sha256.Size
	info    = "quietplanet token seal v1"
)

var (
	// ErrOpenFailed is returned for any failure to open a sealed token.
	ErrOpenFailed = errors.New("failed to open sealed token")

	// ErrInvalidKey is returned when the session key is too short.
	ErrInvalidKey = errors.New("invalid session key")
)

// Sealed is an encrypted token. Both fields are standard base64.
type Sealed struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// Seal encrypts plaintext under key with a fresh random IV.
func Seal(key, plaintext []byte) (*Sealed, error) {
	return SealWithRandom(rand.Reader, key, plaintext)
}

// SealWithRandom is Seal with an explicit IV source.
func SealWithRandom(randr io.Reader, key, plaintext []byte) (*Sealed, error) {
	encKey, macKey, err := deriveKeys(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(randr, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := addPadding(aes.BlockSize, plaintext)
	out := make([]byte, len(padded), len(padded)+tagSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	clear(padded)

	out = append(out, tag(macKey, iv, out)...)

	return &Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(out),
		IV:         base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// Open authenticates and decrypts a sealed token. Every failure returns ErrOpenFailed and no
// plaintext.
func Open(key []byte, sealed *Sealed) ([]byte, error) {
	if sealed == nil {
		return nil, ErrOpenFailed
	}

	encKey, macKey, err := deriveKeys(key)
	if err != nil {
		return nil, ErrOpenFailed
	}

	iv, err := base64.StdEncoding.DecodeString(sealed.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, ErrOpenFailed
	}
	data, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil || len(data) < aes.BlockSize+tagSize {
		return nil, ErrOpenFailed
	}

	ciphertext := data[:len(data)-tagSize]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrOpenFailed
	}
	if !hmac.Equal(tag(macKey, iv, ciphertext), data[len(data)-tagSize:]) {
		return nil, ErrOpenFailed
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, ErrOpenFailed
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, ok := removePadding(aes.BlockSize, plaintext)
	if !ok {
		clear(plaintext)
		return nil, ErrOpenFailed
	}
	return unpadded, nil
}

func deriveKeys(key []byte) (encKey, macKey []byte, err error) {
	if len(key) < MinKeySize {
		return nil, nil, ErrInvalidKey
	}

	kdf := hkdf.New(sha256.New, key, nil, []byte(info))
	encKey = make([]byte, 32)
	macKey = make([]byte, 32)
	if _, err := io.ReadFull(kdf, encKey); err != nil {
		return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	if _, err := io.ReadFull(kdf, macKey); err != nil {
		return nil, nil, fmt.Errorf("failed to derive authentication key: %w", err)
	}
	return encKey, macKey, nil
}

func tag(macKey, iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

// addPadding applies PKCS#7 padding (RFC 5652 section 6.3).
func addPadding(blockSize int, input []byte) []byte {
	n := blockSize - len(input)%blockSize
	out := make([]byte, len(input), len(input)+n)
	copy(out, input)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

// removePadding strips PKCS#7 padding, reporting false if it is malformed.
func removePadding(blockSize int, input []byte) ([]byte, bool) {
	if len(input) == 0 || len(input)%blockSize != 0 {
		return nil, false
	}
	n := int(input[len(input)-1])
	if n == 0 || n > blockSize {
		return nil, false
	}
	for _, b := range input[len(input)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return input[:len(input)-n], true
}
