package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestDetectMode(t *testing.T) {
	engine := NewEngine()

	cases := []struct {
		name string
		want ModeName
	}{
		{"", ModeMachine}, // legacy wallets have no mode tag
		{"machine", ModeMachine},
		{"password", ModePassword},
		{"env", ModeEnv},
	}

	for _, tc := range cases {
		mode, err := DetectMode(tc.name, engine)
		if err != nil {
			t.Fatalf("DetectMode(%q) failed: %v", tc.name, err)
		}
		if mode.Name() != tc.want {
			t.Errorf("DetectMode(%q) = %s, want %s", tc.name, mode.Name(), tc.want)
		}
	}

	if _, err := DetectMode("rot13", engine); !errors.Is(err, ErrUnknownEncryptionMode) {
		t.Errorf("Expected ErrUnknownEncryptionMode, got %v", err)
	}
}

func TestMachineBoundModeIgnoresInput(t *testing.T) {
	engine := NewEngine()
	mode := &MachineBoundMode{baseMode{engine}}
	salt := testSalt(t)

	key1, err := mode.DeriveKey(salt, "ignored")
	if err != nil {
		t.Fatalf("Failed to derive key: %v", err)
	}
	key2, err := mode.DeriveKey(salt, "also ignored")
	if err != nil {
		t.Fatalf("Failed to derive key: %v", err)
	}

	if !bytes.Equal(key1, key2) {
		t.Error("Machine-bound derivation should not depend on caller input")
	}
}

func TestPasswordModeMinimumLength(t *testing.T) {
	engine := NewEngine()
	mode := &PasswordMode{baseMode{engine}}
	salt := testSalt(t)

	_, err := mode.DeriveKey(salt, "short")
	if !errors.Is(err, ErrKeyDerivation) {
		t.Fatalf("Expected ErrKeyDerivation for short password, got %v", err)
	}
	if !strings.Contains(err.Error(), "at least 8") {
		t.Errorf("Error message should explain the minimum, got: %v", err)
	}

	if _, err := mode.DeriveKey(salt, "long enough password"); err != nil {
		t.Errorf("Valid password rejected: %v", err)
	}
}

func TestPasswordModeCaseSensitive(t *testing.T) {
	engine := NewEngine()
	mode := &PasswordMode{baseMode{engine}}
	salt := testSalt(t)

	key1, _ := mode.DeriveKey(salt, "Password123")
	key2, _ := mode.DeriveKey(salt, "password123")

	if bytes.Equal(key1, key2) {
		t.Error("Password derivation should be case sensitive")
	}
}

func TestEnvInjectedMode(t *testing.T) {
	engine := NewEngine()
	mode := &EnvInjectedMode{baseMode{engine}}
	salt := testSalt(t)

	validKey := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))

	cases := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", validKey, false},
		{"unset", "", true},
		{"whitespace", validKey + " ", true},
		{"not base64", "!!!not-base64!!!", true},
		{"wrong length", base64.StdEncoding.EncodeToString([]byte("too short")), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(EnvKeyVariable, tc.value)

			_, err := mode.DeriveKey(salt, "")
			if tc.wantErr {
				if !errors.Is(err, ErrKeyDerivation) {
					t.Fatalf("Expected ErrKeyDerivation, got %v", err)
				}
				// The secret value must never be echoed in the error.
				if tc.value != "" && strings.Contains(err.Error(), tc.value) {
					t.Error("Error message echoes the environment variable value")
				}
			} else if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		})
	}
}

func TestEnvInjectedModeDeterministic(t *testing.T) {
	engine := NewEngine()
	mode := &EnvInjectedMode{baseMode{engine}}
	salt := testSalt(t)

	t.Setenv(EnvKeyVariable, base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x37}, 32)))

	key1, err := mode.DeriveKey(salt, "")
	if err != nil {
		t.Fatalf("Failed to derive key: %v", err)
	}
	key2, err := mode.DeriveKey(salt, "")
	if err != nil {
		t.Fatalf("Failed to derive key: %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Error("Env-injected derivation is not deterministic")
	}
}
