package services

import (
	"strings"
	"testing"
)

var testEncryptionKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "agent token", value: "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"},
		{name: "empty value", value: ""},
		{name: "unicode value", value: "ключ-sécret-鍵"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := encryptValue(testEncryptionKey, tt.value)
			if err != nil {
				t.Fatalf("encryptValue failed: %v", err)
			}
			if strings.Contains(encrypted, tt.value) && tt.value != "" {
				t.Fatal("Ciphertext must not contain the plaintext")
			}

			decrypted, err := decryptValue(testEncryptionKey, encrypted)
			if err != nil {
				t.Fatalf("decryptValue failed: %v", err)
			}
			if decrypted != tt.value {
				t.Fatalf("Round trip mismatch: expected %q, got %q", tt.value, decrypted)
			}
		})
	}
}

func TestEncryptValue_Nondeterministic(t *testing.T) {
	first, err := encryptValue(testEncryptionKey, "same plaintext")
	if err != nil {
		t.Fatalf("encryptValue failed: %v", err)
	}
	second, err := encryptValue(testEncryptionKey, "same plaintext")
	if err != nil {
		t.Fatalf("encryptValue failed: %v", err)
	}
	// Fresh nonce per encryption
	if first == second {
		t.Fatal("Expected distinct ciphertexts for repeated encryption")
	}
}

func TestDecryptValue_WrongKey(t *testing.T) {
	encrypted, err := encryptValue(testEncryptionKey, "secret value")
	if err != nil {
		t.Fatalf("encryptValue failed: %v", err)
	}

	otherKey := []byte("ffffffffffffffffffffffffffffffff")
	if _, err := decryptValue(otherKey, encrypted); err == nil {
		t.Fatal("Expected decryption with wrong key to fail")
	}
}

func TestDecryptValue_Garbage(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not base64", input: "!!!not-base64!!!"},
		{name: "too short", input: "YWJj"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decryptValue(testEncryptionKey, tt.input); err == nil {
				t.Fatal("Expected decryption failure")
			}
		})
	}
}

func TestNewSecretRef(t *testing.T) {
	ref, err := NewSecretRef()
	if err != nil {
		t.Fatalf("NewSecretRef failed: %v", err)
	}
	if !strings.HasPrefix(ref, "sec-") {
		t.Fatalf("Expected sec- prefix, got %q", ref)
	}
	if len(ref) != len("sec-")+32 {
		t.Fatalf("Expected 32 hex chars after prefix, got %q", ref)
	}

	other, _ := NewSecretRef()
	if ref == other {
		t.Fatal("Expected unique references")
	}
}
