// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package auth

import (
	"encoding/base64"
	"errors"
	"testing"
)

func newTestEncryptor(t *testing.T) *TokenEncryptor {
	t.Helper()
	key, err := GenerateEncryptionKey()
	if err != nil {
		t.Fatalf("GenerateEncryptionKey error: %v", err)
	}
	enc, err := NewTokenEncryptor(&TokenEncryptorConfig{MasterKey: key})
	if err != nil {
		t.Fatalf("NewTokenEncryptor error: %v", err)
	}
	return enc
}

func TestNewTokenEncryptor(t *testing.T) {
	t.Parallel()

	valid, _ := GenerateEncryptionKey()

	tests := []struct {
		name        string
		cfg         *TokenEncryptorConfig
		wantErr     bool
		wantEnabled bool
	}{
		{name: "nil config disables encryption", cfg: nil},
		{name: "empty key disables encryption", cfg: &TokenEncryptorConfig{}},
		{name: "valid key", cfg: &TokenEncryptorConfig{MasterKey: valid}, wantEnabled: true},
		{name: "short key", cfg: &TokenEncryptorConfig{MasterKey: base64.StdEncoding.EncodeToString([]byte("short"))}, wantErr: true},
		{name: "invalid base64", cfg: &TokenEncryptorConfig{MasterKey: "not-valid-base64!!!"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			enc, err := NewTokenEncryptor(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if enc.IsEnabled() != tt.wantEnabled {
				t.Errorf("IsEnabled() = %v, want %v", enc.IsEnabled(), tt.wantEnabled)
			}
		})
	}
}

func TestTokenEncryptor_EncryptDecrypt(t *testing.T) {
	t.Parallel()

	enc := newTestEncryptor(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"intra access token", "4f1c2e9a0b7d6e5f4c3b2a1908f7e6d5c4b3a291807f6e5d4c3b2a1908f7e6d5"},
		{"empty string", ""},
		{"special chars", "token+with/special=chars&more"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt error: %v", err)
			}
			if tt.plaintext != "" && ciphertext == tt.plaintext {
				t.Error("ciphertext should be different from plaintext")
			}

			decrypted, err := enc.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt error: %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("decrypted = %s, want %s", decrypted, tt.plaintext)
			}
		})
	}
}

func TestTokenEncryptor_RandomNonce(t *testing.T) {
	t.Parallel()

	enc := newTestEncryptor(t)

	first, _ := enc.Encrypt("same-token")
	second, _ := enc.Encrypt("same-token")
	if first == second {
		t.Error("ciphertexts should differ (random nonce)")
	}
}

func TestTokenEncryptor_DecryptInvalidCiphertext(t *testing.T) {
	t.Parallel()

	enc := newTestEncryptor(t)
	other := newTestEncryptor(t)
	foreign, _ := other.Encrypt("someone-elses-token")

	tests := []struct {
		name       string
		ciphertext string
		wantErr    error
	}{
		{"not base64", "not-valid-base64!!!", ErrInvalidCiphertext},
		{"too short", base64.StdEncoding.EncodeToString([]byte("x")), ErrInvalidCiphertext},
		{"corrupted", base64.StdEncoding.EncodeToString([]byte("this-is-not-encrypted-at-all-but-long-enough")), ErrDecryptionFailed},
		{"other key", foreign, ErrDecryptionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Decrypt(tt.ciphertext)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenEncryptor_NilEncryptor(t *testing.T) {
	t.Parallel()

	var enc *TokenEncryptor

	result, err := enc.Encrypt("test-token")
	if err != nil || result != "test-token" {
		t.Errorf("Encrypt() = %q, %v; want passthrough", result, err)
	}
	result, err = enc.Decrypt("test-token")
	if err != nil || result != "test-token" {
		t.Errorf("Decrypt() = %q, %v; want passthrough", result, err)
	}
}
