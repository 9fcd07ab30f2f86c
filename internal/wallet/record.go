package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Key storage backends recorded in the wallet file.
const (
	StorageFile     = "file"
	StorageKeychain = "keychain"
)

// Record is the persistent wallet record. Exactly one exists per
// installation. When KeyStorage is "file" the encrypted key material lives in
// EncryptedKey/KeySalt/KeyIv; when "keychain" the private key lives in the OS
// keychain and those fields are empty.
//
// EncryptedKey is hex(ciphertext ‖ 16-byte auth tag), KeySalt hex(32 bytes),
// KeyIv hex(12-byte nonce). An absent EncryptionMode means a legacy
// machine-bound wallet.
type Record struct {
	Address        string `json:"address"`
	EncryptedKey   string `json:"encryptedKey,omitempty"`
	KeySalt        string `json:"keySalt,omitempty"`
	KeyIv          string `json:"keyIv,omitempty"`
	NetworkID      string `json:"networkId"`
	EncryptionMode string `json:"encryptionMode,omitempty"`
	KeyStorage     string `json:"keyStorage,omitempty"`
}

// Storage normalizes the record's key storage backend; legacy records have no
// keyStorage field and are file-backed.
func (r *Record) Storage() string {
	if r.KeyStorage == "" {
		return StorageFile
	}
	return r.KeyStorage
}

func loadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read wallet file: %v", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse wallet file: %v", err)
	}

	return &rec, nil
}

// saveRecord writes the record atomically: the new content lands in a temp
// file which is renamed over the old one, so a crash mid-write never leaves a
// truncated wallet file.
func saveRecord(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal wallet record: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".wallet-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp wallet file: %v", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set wallet file permissions: %v", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write wallet file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close wallet file: %v", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace wallet file: %v", err)
	}

	return nil
}
