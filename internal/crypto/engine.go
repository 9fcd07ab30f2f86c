package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Key sizes
	KeySize   = 32 // 256 bits for AES-256
	SaltSize  = 32 // 256 bits
	NonceSize = 12 // 96 bits (standard for AES-GCM)
	TagSize   = 16 // GCM authentication tag

	// PBKDF2-HMAC-SHA256 iteration count. Deliberately slow to resist
	// offline brute force against the encrypted wallet file.
	PBKDF2Iterations = 600_000
)

// EncryptedBlob holds the output of one Encrypt call. The authentication tag
// covers the ciphertext; any single bit flip in either causes Decrypt to fail.
type EncryptedBlob struct {
	Ciphertext []byte
	Nonce      []byte // 12 bytes
	AuthTag    []byte // 16 bytes
}

// Engine implements PBKDF2 key stretching and AES-256-GCM authenticated
// encryption. It is stateless; the EncryptionMode strategies decide what
// input feeds DeriveKey.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// DeriveKey stretches input into a 256-bit key using PBKDF2-HMAC-SHA256.
// Deterministic: the same (salt, input) pair always yields the same key.
func (e *Engine) DeriveKey(salt []byte, input []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrKeyDerivation, SaltSize, len(salt))
	}
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: derivation input cannot be empty", ErrKeyDerivation)
	}

	return pbkdf2.Key(input, salt, PBKDF2Iterations, KeySize, sha256.New), nil
}

// Encrypt seals plaintext under key with AES-256-GCM. A fresh random nonce is
// generated per call, so encrypting identical plaintext twice yields
// different ciphertext.
func (e *Engine) Encrypt(plaintext []byte, key []byte) (*EncryptedBlob, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %v", ErrEncryption, err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	return &EncryptedBlob{
		Ciphertext: sealed[:len(sealed)-TagSize],
		Nonce:      nonce,
		AuthTag:    sealed[len(sealed)-TagSize:],
	}, nil
}

// Decrypt opens a blob sealed by Encrypt. Tag-verification failure (tampered
// ciphertext or wrong key) returns ErrAuthentication; no partially-decrypted
// data is ever returned.
func (e *Engine) Decrypt(blob *EncryptedBlob, key []byte) ([]byte, error) {
	if blob == nil {
		return nil, fmt.Errorf("%w: nil blob", ErrDecryption)
	}
	if len(blob.Nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrDecryption, NonceSize, len(blob.Nonce))
	}
	if len(blob.AuthTag) != TagSize {
		return nil, fmt.Errorf("%w: auth tag must be %d bytes, got %d", ErrDecryption, TagSize, len(blob.AuthTag))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	sealed := make([]byte, 0, len(blob.Ciphertext)+TagSize)
	sealed = append(sealed, blob.Ciphertext...)
	sealed = append(sealed, blob.AuthTag...)

	plaintext, err := gcm.Open(nil, blob.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
