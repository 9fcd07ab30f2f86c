package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/paperwall-labs/paperwall-node/internal/crypto"
	"github.com/paperwall-labs/paperwall-node/internal/utils"
)

// EnvPrivateKeyVariable bypasses all wallet encryption when set. Intended for
// ephemeral CI wallets only; the key sits in the process environment in
// plaintext, which is insecure for anything that holds real funds.
const EnvPrivateKeyVariable = "PAPERWALL_PRIVATE_KEY"

const walletFileName = "wallet.json"

var privateKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Store owns the single persistent wallet record and the key lifecycle built
// on it: create, import, decrypt-on-demand (cached, single-flight) and
// migration between encrypted-file and OS-keychain storage.
type Store struct {
	walletPath string
	engine     *crypto.Engine
	cache      *crypto.KeyCache
	keychain   *Keychain
	config     *utils.ConfigManager
	logger     *utils.LogsManager
	mu         sync.Mutex
}

// CreateOptions control wallet creation and import. Keychain storage and an
// explicit encryption mode are mutually exclusive: the mode only applies to
// file-backed key material.
type CreateOptions struct {
	NetworkID string
	Mode      crypto.ModeName // empty means machine-bound
	ModeInput string          // password for crypto.ModePassword
	Keychain  bool
	Force     bool
}

// Info is wallet metadata safe to return to callers; it never contains key
// material.
type Info struct {
	Address        string `json:"address"`
	NetworkID      string `json:"networkId"`
	KeyStorage     string `json:"keyStorage"`
	EncryptionMode string `json:"encryptionMode,omitempty"`
}

func NewStore(config *utils.ConfigManager, logger *utils.LogsManager) *Store {
	paths := utils.GetAppPaths("")
	return NewStoreAt(filepath.Join(paths.DataDir, walletFileName), config, logger)
}

// NewStoreAt creates a store over an explicit wallet file path.
func NewStoreAt(path string, config *utils.ConfigManager, logger *utils.LogsManager) *Store {
	return &Store{
		walletPath: path,
		engine:     crypto.NewEngine(),
		cache:      crypto.NewKeyCache(),
		keychain:   NewKeychain(),
		config:     config,
		logger:     logger,
	}
}

// Create generates a fresh random private key and persists it either
// encrypted under the chosen mode or in the OS keychain. It refuses to
// overwrite an existing wallet unless Force is set.
func (s *Store) Create(opts *CreateOptions) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOverwrite(opts); err != nil {
		return nil, err
	}

	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %v", err)
	}

	keyBytes := ethcrypto.FromECDSA(privateKey)
	defer crypto.Wipe(keyBytes)

	address := ethcrypto.PubkeyToAddress(privateKey.PublicKey).Hex()

	info, err := s.persistKey(keyBytes, address, opts)
	if err != nil {
		return nil, err
	}

	s.cache.Clear()
	s.logger.Info(fmt.Sprintf("Wallet created: address=%s storage=%s", address, info.KeyStorage), "wallet")
	return info, nil
}

// Import persists an existing private key. The key must be exactly 64 hex
// characters, optionally 0x-prefixed. Same overwrite/force semantics as
// Create.
func (s *Store) Import(rawKey string, opts *CreateOptions) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOverwrite(opts); err != nil {
		return nil, err
	}

	keyBytes, err := decodePrivateKey(rawKey)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(keyBytes)

	privateKey, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	address := ethcrypto.PubkeyToAddress(privateKey.PublicKey).Hex()

	info, err := s.persistKey(keyBytes, address, opts)
	if err != nil {
		return nil, err
	}

	s.cache.Clear()
	s.logger.Info(fmt.Sprintf("Wallet imported: address=%s storage=%s", address, info.KeyStorage), "wallet")
	return info, nil
}

// Show returns wallet metadata without touching key material.
func (s *Store) Show() (*Info, error) {
	rec, err := loadRecord(s.walletPath)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNoWallet
	}
	return recordInfo(rec), nil
}

// ResolvePrivateKey returns the plaintext signing key, cached and
// single-flight. Resolution priority:
//
//  1. the PAPERWALL_PRIVATE_KEY environment override (bypasses encryption)
//  2. the OS keychain, when the record says keyStorage == "keychain"
//  3. decrypting the wallet file under its recorded encryption mode
//
// modeInput is the password for password-mode wallets and ignored otherwise.
// The returned buffer is owned by the key cache; do not modify or wipe it.
func (s *Store) ResolvePrivateKey(ctx context.Context, modeInput string) ([]byte, error) {
	return s.cache.GetOrResolve(ctx, func(ctx context.Context) ([]byte, error) {
		if raw := strings.TrimSpace(os.Getenv(EnvPrivateKeyVariable)); raw != "" {
			key, err := decodePrivateKey(raw)
			if err != nil {
				return nil, fmt.Errorf("%s is set but invalid: %w", EnvPrivateKeyVariable, err)
			}
			return key, nil
		}

		rec, err := loadRecord(s.walletPath)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, ErrNoWallet
		}

		if rec.Storage() == StorageKeychain {
			secret, err := s.keychain.Retrieve()
			if err != nil {
				return nil, err
			}
			if secret == "" {
				return nil, ErrKeychainEntryMissing
			}
			return decodePrivateKey(secret)
		}

		return s.decryptRecord(rec, modeInput)
	})
}

// MigrateToKeychain moves file-backed key material into the OS keychain. The
// destination is written first and read back for verification; only after
// the stored secret matches is the encrypted material dropped from the wallet
// file. On verification failure the keychain write is rolled back, so the
// wallet is never left un-decryptable.
func (s *Store) MigrateToKeychain(modeInput string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := loadRecord(s.walletPath)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNoWallet
	}
	if rec.Storage() == StorageKeychain {
		return fmt.Errorf("wallet key is already stored in the OS keychain")
	}

	keyBytes, err := s.decryptRecord(rec, modeInput)
	if err != nil {
		return err
	}
	defer crypto.Wipe(keyBytes)

	secret := hex.EncodeToString(keyBytes)
	if err := s.keychain.Store(secret); err != nil {
		return err
	}

	stored, err := s.keychain.Retrieve()
	if err != nil || stored != secret {
		s.keychain.Delete()
		if err == nil {
			err = fmt.Errorf("stored secret does not match")
		}
		return fmt.Errorf("keychain verification failed, migration rolled back: %v", err)
	}

	newRec := &Record{
		Address:    rec.Address,
		NetworkID:  rec.NetworkID,
		KeyStorage: StorageKeychain,
	}
	if err := saveRecord(s.walletPath, newRec); err != nil {
		s.keychain.Delete()
		return fmt.Errorf("failed to update wallet record, migration rolled back: %v", err)
	}

	s.cache.Clear()
	s.logger.Info("Wallet key migrated to OS keychain", "wallet")
	return nil
}

// MigrateToFile moves the key from the OS keychain into encrypted-file
// storage under the given mode. The rewritten wallet file is read back and
// decrypted for verification before the keychain entry is deleted; on
// verification failure the previous record is restored.
func (s *Store) MigrateToFile(mode crypto.ModeName, modeInput string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := loadRecord(s.walletPath)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNoWallet
	}
	if rec.Storage() != StorageKeychain {
		return fmt.Errorf("wallet key is already file-backed")
	}

	secret, err := s.keychain.Retrieve()
	if err != nil {
		return err
	}
	if secret == "" {
		return ErrKeychainEntryMissing
	}

	keyBytes, err := decodePrivateKey(secret)
	if err != nil {
		return fmt.Errorf("keychain entry is corrupted: %w", err)
	}
	defer crypto.Wipe(keyBytes)

	newRec, err := s.encryptToRecord(keyBytes, rec.Address, rec.NetworkID, mode, modeInput)
	if err != nil {
		return err
	}
	if err := saveRecord(s.walletPath, newRec); err != nil {
		return err
	}

	// Verify by reading the destination back and decrypting it.
	written, err := loadRecord(s.walletPath)
	if err == nil {
		var decrypted []byte
		decrypted, err = s.decryptRecord(written, modeInput)
		if err == nil {
			if hex.EncodeToString(decrypted) != hex.EncodeToString(keyBytes) {
				err = fmt.Errorf("decrypted key does not match")
			}
			crypto.Wipe(decrypted)
		}
	}
	if err != nil {
		saveRecord(s.walletPath, rec) // roll back the destination write
		return fmt.Errorf("wallet file verification failed, migration rolled back: %v", err)
	}

	if _, err := s.keychain.Delete(); err != nil {
		return fmt.Errorf("wallet file written but keychain entry could not be deleted: %w", err)
	}

	s.cache.Clear()
	s.logger.Info(fmt.Sprintf("Wallet key migrated to encrypted file storage (mode=%s)", newRec.EncryptionMode), "wallet")
	return nil
}

// ClearKeyCache wipes the cached plaintext key. Call at process shutdown.
func (s *Store) ClearKeyCache() {
	s.cache.Clear()
}

func (s *Store) checkOverwrite(opts *CreateOptions) error {
	existing, err := loadRecord(s.walletPath)
	if err != nil {
		return err
	}
	if existing != nil && !opts.Force {
		return ErrWalletExists
	}
	if opts.Keychain && opts.Mode != "" {
		return fmt.Errorf("keychain storage and an explicit encryption mode are mutually exclusive")
	}
	if dir := filepath.Dir(s.walletPath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create wallet directory: %v", err)
		}
	}
	return nil
}

func (s *Store) persistKey(keyBytes []byte, address string, opts *CreateOptions) (*Info, error) {
	networkID := opts.NetworkID
	if networkID == "" {
		networkID = s.config.GetConfigWithDefault("network_id", "eip155:84532")
	}

	if opts.Keychain {
		if err := s.keychain.Store(hex.EncodeToString(keyBytes)); err != nil {
			return nil, err
		}
		rec := &Record{Address: address, NetworkID: networkID, KeyStorage: StorageKeychain}
		if err := saveRecord(s.walletPath, rec); err != nil {
			s.keychain.Delete()
			return nil, err
		}
		return recordInfo(rec), nil
	}

	rec, err := s.encryptToRecord(keyBytes, address, networkID, opts.Mode, opts.ModeInput)
	if err != nil {
		return nil, err
	}
	if err := saveRecord(s.walletPath, rec); err != nil {
		return nil, err
	}
	return recordInfo(rec), nil
}

func (s *Store) encryptToRecord(keyBytes []byte, address, networkID string, modeName crypto.ModeName, modeInput string) (*Record, error) {
	mode, err := crypto.DetectMode(string(modeName), s.engine)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, crypto.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %v", err)
	}

	derived, err := mode.DeriveKey(salt, modeInput)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(derived)

	blob, err := mode.Encrypt(keyBytes, derived)
	if err != nil {
		return nil, err
	}

	return &Record{
		Address:        address,
		EncryptedKey:   hex.EncodeToString(append(blob.Ciphertext, blob.AuthTag...)),
		KeySalt:        hex.EncodeToString(salt),
		KeyIv:          hex.EncodeToString(blob.Nonce),
		NetworkID:      networkID,
		EncryptionMode: string(mode.Name()),
		KeyStorage:     StorageFile,
	}, nil
}

func (s *Store) decryptRecord(rec *Record, modeInput string) ([]byte, error) {
	mode, err := crypto.DetectMode(rec.EncryptionMode, s.engine)
	if err != nil {
		return nil, err
	}

	salt, err := hex.DecodeString(rec.KeySalt)
	if err != nil {
		return nil, fmt.Errorf("wallet file corrupted: bad key salt: %v", err)
	}
	nonce, err := hex.DecodeString(rec.KeyIv)
	if err != nil {
		return nil, fmt.Errorf("wallet file corrupted: bad key IV: %v", err)
	}
	sealed, err := hex.DecodeString(rec.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("wallet file corrupted: bad encrypted key: %v", err)
	}
	if len(sealed) < crypto.TagSize {
		return nil, fmt.Errorf("wallet file corrupted: encrypted key too short")
	}

	derived, err := mode.DeriveKey(salt, modeInput)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(derived)

	blob := &crypto.EncryptedBlob{
		Ciphertext: sealed[:len(sealed)-crypto.TagSize],
		Nonce:      nonce,
		AuthTag:    sealed[len(sealed)-crypto.TagSize:],
	}

	plaintext, err := mode.Decrypt(blob, derived)
	if err != nil {
		return nil, fmt.Errorf("wallet decryption failed (wrong password, different machine, or corrupted file): %w", err)
	}
	return plaintext, nil
}

func recordInfo(rec *Record) *Info {
	return &Info{
		Address:        rec.Address,
		NetworkID:      rec.NetworkID,
		KeyStorage:     rec.Storage(),
		EncryptionMode: rec.EncryptionMode,
	}
}

func decodePrivateKey(raw string) ([]byte, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if !privateKeyPattern.MatchString(cleaned) {
		return nil, ErrInvalidPrivateKey
	}
	keyBytes, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return keyBytes, nil
}
