package crypto

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// ModeName tags the key-derivation strategy recorded in the wallet file.
type ModeName string

const (
	ModeMachine  ModeName = "machine"
	ModePassword ModeName = "password"
	ModeEnv      ModeName = "env"
)

// EnvKeyVariable holds a base64-encoded 32-byte encryption key for ModeEnv.
const EnvKeyVariable = "PAPERWALL_ENCRYPTION_KEY"

// machinePepper is mixed into the machine-bound derivation input. It is not a
// secret; the protection comes from the per-wallet random salt plus the
// machine identity.
const machinePepper = "paperwall-machine-key-v1"

// minPasswordLength for ModePassword.
const minPasswordLength = 8

// EncryptionMode is a key-derivation strategy over the Engine. All variants
// delegate Encrypt/Decrypt to the Engine and differ only in what input feeds
// DeriveKey. The mode is chosen at wallet creation and recorded in the wallet
// file; the same mode must be detected again at decrypt time.
type EncryptionMode interface {
	Name() ModeName
	DeriveKey(salt []byte, input string) ([]byte, error)
	Encrypt(plaintext []byte, key []byte) (*EncryptedBlob, error)
	Decrypt(blob *EncryptedBlob, key []byte) ([]byte, error)
}

// DetectMode maps a wallet's recorded mode name to a strategy. An empty name
// means a legacy wallet written before the mode tag existed, which is always
// machine-bound. Unrecognized names fail rather than guessing, guarding
// against corrupted wallet records.
func DetectMode(name string, engine *Engine) (EncryptionMode, error) {
	switch ModeName(name) {
	case "", ModeMachine:
		return &MachineBoundMode{baseMode{engine}}, nil
	case ModePassword:
		return &PasswordMode{baseMode{engine}}, nil
	case ModeEnv:
		return &EnvInjectedMode{baseMode{engine}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncryptionMode, name)
	}
}

type baseMode struct {
	engine *Engine
}

func (m *baseMode) Encrypt(plaintext []byte, key []byte) (*EncryptedBlob, error) {
	return m.engine.Encrypt(plaintext, key)
}

func (m *baseMode) Decrypt(blob *EncryptedBlob, key []byte) ([]byte, error) {
	return m.engine.Decrypt(blob, key)
}

// MachineBoundMode derives the key from the machine identity
// (hostname:uid:pepper), ignoring caller input. Deterministic per
// machine+user; a wallet file copied to another machine cannot be decrypted.
// That is intentional.
type MachineBoundMode struct {
	baseMode
}

func (m *MachineBoundMode) Name() ModeName { return ModeMachine }

func (m *MachineBoundMode) DeriveKey(salt []byte, _ string) ([]byte, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read hostname: %v", ErrKeyDerivation, err)
	}

	input := fmt.Sprintf("%s:%d:%s", hostname, os.Getuid(), machinePepper)
	return m.engine.DeriveKey(salt, []byte(input))
}

// PasswordMode derives the key from a caller-supplied password. Case
// sensitive, minimum 8 characters.
type PasswordMode struct {
	baseMode
}

func (m *PasswordMode) Name() ModeName { return ModePassword }

func (m *PasswordMode) DeriveKey(salt []byte, input string) ([]byte, error) {
	if len(input) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrKeyDerivation, minPasswordLength)
	}
	return m.engine.DeriveKey(salt, []byte(input))
}

// EnvInjectedMode reads a base64-encoded 32-byte key from EnvKeyVariable,
// ignoring caller input. Intended for headless deployments where an
// orchestrator injects the key. Error messages never echo the variable's
// value.
type EnvInjectedMode struct {
	baseMode
}

func (m *EnvInjectedMode) Name() ModeName { return ModeEnv }

func (m *EnvInjectedMode) DeriveKey(salt []byte, _ string) ([]byte, error) {
	raw := os.Getenv(EnvKeyVariable)
	if raw == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", ErrKeyDerivation, EnvKeyVariable)
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return nil, fmt.Errorf("%w: %s contains whitespace", ErrKeyDerivation, EnvKeyVariable)
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64", ErrKeyDerivation, EnvKeyVariable)
	}
	defer Wipe(decoded)

	if len(decoded) != KeySize {
		return nil, fmt.Errorf("%w: %s must decode to %d bytes, got %d", ErrKeyDerivation, EnvKeyVariable, KeySize, len(decoded))
	}

	return m.engine.DeriveKey(salt, decoded)
}
