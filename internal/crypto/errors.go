package crypto

import (
	"errors"
	"fmt"
)

var (
	// Engine errors
	ErrKeyDerivation = errors.New("key derivation failed")
	ErrEncryption    = errors.New("encryption failed")
	ErrDecryption    = errors.New("decryption failed")

	// ErrAuthentication wraps ErrDecryption so errors.Is(err, ErrDecryption)
	// holds for tag-verification failures (tampered ciphertext or wrong key).
	ErrAuthentication = fmt.Errorf("%w: ciphertext authentication failed", ErrDecryption)

	// Mode errors
	ErrUnknownEncryptionMode = errors.New("unknown encryption mode")
)
