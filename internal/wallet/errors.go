package wallet

import "errors"

var (
	ErrNoWallet          = errors.New("no wallet configured, create or import one first")
	ErrWalletExists      = errors.New("wallet already exists, use force to overwrite")
	ErrInvalidPrivateKey = errors.New("private key must be 64 hex characters (optionally 0x-prefixed)")

	// Keychain errors. Unavailable means the OS secret service cannot be
	// reached at all (e.g. Linux without a D-Bus session); Access means the
	// store/retrieve/delete call itself failed.
	ErrKeychainUnavailable  = errors.New("OS keychain unavailable")
	ErrKeychainAccess       = errors.New("OS keychain access failed")
	ErrKeychainEntryMissing = errors.New("wallet key not found in OS keychain, re-import the wallet or migrate it back to file storage")
)
