package services

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/maverick-software/toolboxd/internal/database"
)

var (
	ErrSecretEncryptionFailed = errors.New("secret encryption failed")
	ErrSecretDecryptionFailed = errors.New("secret decryption failed")
)

// SecretStore provides opaque reference-based secret storage. Callers hold
// references only; plaintext values exist transiently in memory.
type SecretStore interface {
	CreateSecret(ctx context.Context, name, value string) (string, error)
	GetSecret(ctx context.Context, ref string) (string, error)
	DeleteSecret(ctx context.Context, ref string) error
}

// SecretService implements SecretStore over DynamoDB with AES-256-GCM
// encryption at rest.
type SecretService struct {
	db            *database.SecretOperations
	encryptionKey []byte
}

// NewSecretService creates a new SecretService instance
func NewSecretService(db *database.SecretOperations, encryptionKey string) *SecretService {
	return &SecretService{
		db:            db,
		encryptionKey: []byte(encryptionKey),
	}
}

// CreateSecret encrypts and stores a secret value, returning its reference
func (s *SecretService) CreateSecret(ctx context.Context, name, value string) (string, error) {
	ref, err := NewSecretRef()
	if err != nil {
		return "", err
	}

	ciphertext, err := encryptValue(s.encryptionKey, value)
	if err != nil {
		return "", err
	}

	if err := s.db.PutSecret(ctx, ref, name, ciphertext); err != nil {
		return "", err
	}

	return ref, nil
}

// GetSecret retrieves and decrypts the secret value for a reference
func (s *SecretService) GetSecret(ctx context.Context, ref string) (string, error) {
	ciphertext, err := s.db.GetSecretCiphertext(ctx, ref)
	if err != nil {
		return "", err
	}

	return decryptValue(s.encryptionKey, ciphertext)
}

// DeleteSecret removes a secret by reference
func (s *SecretService) DeleteSecret(ctx context.Context, ref string) error {
	return s.db.DeleteSecret(ctx, ref)
}

// NewSecretRef generates a random opaque secret reference
func NewSecretRef() (string, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate secret reference: %w", err)
	}
	return "sec-" + hex.EncodeToString(buf), nil
}

// encryptValue encrypts a plaintext value using AES-256-GCM
func encryptValue(key []byte, value string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptValue decrypts an AES-256-GCM encrypted value
func decryptValue(key []byte, encrypted string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretDecryptionFailed, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretDecryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretDecryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrSecretDecryptionFailed)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretDecryptionFailed, err)
	}

	return string(plaintext), nil
}
