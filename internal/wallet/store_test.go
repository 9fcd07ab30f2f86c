package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/zalando/go-keyring"

	"github.com/paperwall-labs/paperwall-node/internal/crypto"
	"github.com/paperwall-labs/paperwall-node/internal/utils"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "configs")
	if err := os.WriteFile(cfgPath, []byte("network_id = eip155:84532\n"), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cm := utils.NewConfigManager(cfgPath)
	lm := utils.NewLogsManager(cm)
	t.Cleanup(func() { lm.Close() })

	return NewStoreAt(filepath.Join(dir, "wallet.json"), cm, lm)
}

func TestCreateRefusesOverwrite(t *testing.T) {
	store := newTestStore(t)

	info1, err := store.Create(&CreateOptions{})
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}
	if info1.Address == "" {
		t.Fatal("Created wallet has no address")
	}
	if info1.KeyStorage != StorageFile {
		t.Errorf("Expected file storage, got %s", info1.KeyStorage)
	}

	if _, err := store.Create(&CreateOptions{}); !errors.Is(err, ErrWalletExists) {
		t.Fatalf("Expected ErrWalletExists, got %v", err)
	}

	info2, err := store.Create(&CreateOptions{Force: true})
	if err != nil {
		t.Fatalf("Forced create failed: %v", err)
	}
	if info2.Address == info1.Address {
		t.Error("Forced create should generate a different address")
	}
}

func TestCreateKeychainModeMutuallyExclusive(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create(&CreateOptions{Keychain: true, Mode: crypto.ModePassword})
	if err == nil {
		t.Fatal("Expected error for keychain + explicit encryption mode")
	}
}

func TestImportValidation(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", false},
		{"valid 0x prefix", "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", false},
		{"too short", "4c0883a69102937d", true},
		{"not hex", "zz0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", true},
		{"too long", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318ab", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestStore(t)
			_, err := store.Import(tc.key, &CreateOptions{})
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidPrivateKey) {
					t.Fatalf("Expected ErrInvalidPrivateKey, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		})
	}
}

func TestResolvePrivateKeyMachineMode(t *testing.T) {
	store := newTestStore(t)

	info, err := store.Create(&CreateOptions{})
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}

	keyBytes, err := store.ResolvePrivateKey(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to resolve private key: %v", err)
	}

	privateKey, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		t.Fatalf("Resolved key is not a valid ECDSA key: %v", err)
	}
	if addr := ethcrypto.PubkeyToAddress(privateKey.PublicKey).Hex(); addr != info.Address {
		t.Errorf("Resolved key address %s does not match wallet address %s", addr, info.Address)
	}
}

func TestResolvePrivateKeyPasswordMode(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create(&CreateOptions{Mode: crypto.ModePassword, ModeInput: "correct-password"})
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}

	if _, err := store.ResolvePrivateKey(context.Background(), "wrong-password-1"); err == nil {
		t.Fatal("Expected decryption failure with wrong password")
	} else if !errors.Is(err, crypto.ErrAuthentication) {
		t.Fatalf("Expected ErrAuthentication, got %v", err)
	}

	store.ClearKeyCache()
	if _, err := store.ResolvePrivateKey(context.Background(), "correct-password"); err != nil {
		t.Fatalf("Failed to resolve with correct password: %v", err)
	}
}

func TestResolvePrivateKeyEnvOverride(t *testing.T) {
	store := newTestStore(t)
	rawKey := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	t.Setenv(EnvPrivateKeyVariable, rawKey)

	// No wallet record exists; the override bypasses everything.
	keyBytes, err := store.ResolvePrivateKey(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to resolve via env override: %v", err)
	}
	if hex.EncodeToString(keyBytes) != rawKey {
		t.Error("Env-override key does not match")
	}
}

func TestResolvePrivateKeyNoWallet(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.ResolvePrivateKey(context.Background(), ""); !errors.Is(err, ErrNoWallet) {
		t.Fatalf("Expected ErrNoWallet, got %v", err)
	}
}

func TestMigrateToKeychainAndBack(t *testing.T) {
	keyring.MockInit()
	store := newTestStore(t)

	info, err := store.Create(&CreateOptions{})
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}

	original, err := store.ResolvePrivateKey(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to resolve original key: %v", err)
	}
	originalHex := hex.EncodeToString(original)

	if err := store.MigrateToKeychain(""); err != nil {
		t.Fatalf("Migration to keychain failed: %v", err)
	}

	migrated, err := store.Show()
	if err != nil {
		t.Fatalf("Failed to show wallet: %v", err)
	}
	if migrated.KeyStorage != StorageKeychain {
		t.Errorf("Expected keychain storage, got %s", migrated.KeyStorage)
	}
	if migrated.Address != info.Address {
		t.Error("Migration changed the wallet address")
	}

	resolved, err := store.ResolvePrivateKey(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to resolve key from keychain: %v", err)
	}
	if hex.EncodeToString(resolved) != originalHex {
		t.Error("Key changed during keychain migration")
	}

	if err := store.MigrateToFile(crypto.ModePassword, "migration-password"); err != nil {
		t.Fatalf("Migration back to file failed: %v", err)
	}

	back, err := store.Show()
	if err != nil {
		t.Fatalf("Failed to show wallet: %v", err)
	}
	if back.KeyStorage != StorageFile {
		t.Errorf("Expected file storage, got %s", back.KeyStorage)
	}
	if back.EncryptionMode != string(crypto.ModePassword) {
		t.Errorf("Expected password mode, got %s", back.EncryptionMode)
	}

	resolved, err = store.ResolvePrivateKey(context.Background(), "migration-password")
	if err != nil {
		t.Fatalf("Failed to resolve key after file migration: %v", err)
	}
	if hex.EncodeToString(resolved) != originalHex {
		t.Error("Key changed during file migration")
	}

	// Keychain entry must be gone after a verified file migration.
	if secret, err := store.keychain.Retrieve(); err != nil || secret != "" {
		t.Errorf("Expected keychain entry to be deleted, got secret=%q err=%v", secret, err)
	}
}
