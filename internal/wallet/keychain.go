package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keychainService = "paperwall"
	keychainAccount = "wallet-key"
)

// Keychain adapts the OS credential store (macOS Keychain, Windows Credential
// Manager, Linux Secret Service) for the single wallet secret.
type Keychain struct {
	service string
	account string
}

func NewKeychain() *Keychain {
	return &Keychain{service: keychainService, account: keychainAccount}
}

// Store saves the secret. Failures propagate.
func (k *Keychain) Store(secret string) error {
	if err := keyring.Set(k.service, k.account, secret); err != nil {
		return wrapKeychainError(err)
	}
	return nil
}

// Retrieve returns the stored secret, or "" with a nil error when no entry
// exists. Absence is a normal, recoverable condition and is never an error.
func (k *Keychain) Retrieve() (string, error) {
	secret, err := keyring.Get(k.service, k.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", wrapKeychainError(err)
	}
	return secret, nil
}

// Delete removes the stored secret, reporting whether an entry was removed.
func (k *Keychain) Delete() (bool, error) {
	if err := keyring.Delete(k.service, k.account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return false, nil
		}
		return false, wrapKeychainError(err)
	}
	return true, nil
}

func wrapKeychainError(err error) error {
	if errors.Is(err, keyring.ErrUnsupportedPlatform) || isSessionError(err) {
		return fmt.Errorf("%w: %v", ErrKeychainUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrKeychainAccess, err)
}

// isSessionError detects a Linux host without a usable D-Bus secret service,
// which go-keyring surfaces as a generic dbus error.
func isSessionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "dbus") || strings.Contains(msg, "DBUS_SESSION_BUS_ADDRESS")
}
