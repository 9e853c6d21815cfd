package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeyDerivationHKDF derives the file key from a raw 32-byte master key
	KeyDerivationHKDF = "HKDF-SHA256"
	// KeyDerivationPBKDF2 derives the file key from a passphrase
	KeyDerivationPBKDF2 = "PBKDF2-SHA256"

	keySize          = 32
	saltSize         = 16
	nonceSize        = 12
	pbkdf2Iterations = 100000
	hkdfInfo         = "mrp-backup snapshot payload"
)

// EncryptionStats contains statistics about encryption operations
type EncryptionStats struct {
	OriginalSize  int64         `json:"original_size"`
	EncryptedSize int64         `json:"encrypted_size"`
	Algorithm     string        `json:"algorithm"`
	KeyDerivation string        `json:"key_derivation"`
	Duration      time.Duration `json:"duration"`
}

// EncryptionManager seals snapshot payloads with AES-256-GCM.
// Every call draws a fresh salt and nonce, so the per-file key is never reused.
// Sealed layout: salt(16) | nonce(12) | ciphertext+tag.
type EncryptionManager struct {
	config     *EncryptionConfig
	keyManager *KeyManager
}

// NewEncryptionManager creates a new encryption manager
func NewEncryptionManager(config *EncryptionConfig) *EncryptionManager {
	if config == nil {
		config = &EncryptionConfig{}
	}
	return &EncryptionManager{
		config:     config,
		keyManager: NewKeyManager(config),
	}
}

// Configured reports whether a master secret source is set
func (em *EncryptionManager) Configured() bool {
	return em.config.KeyRetriever != nil || em.config.KeySource != ""
}

// KeyDerivation names the KDF used with the configured master secret
func (em *EncryptionManager) KeyDerivation() string {
	if em.config.KeySource == KeySourcePassphrase {
		return KeyDerivationPBKDF2
	}
	return KeyDerivationHKDF
}

// Encrypt seals plaintext and binds aad to the ciphertext
func (em *EncryptionManager) Encrypt(plaintext, aad []byte) ([]byte, *EncryptionStats, error) {
	start := time.Now()

	secret, err := em.keyManager.MasterSecret()
	if err != nil {
		return nil, nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, NewEncryptionError("failed to generate salt", err)
	}

	gcm, err := em.newGCM(secret, salt, em.KeyDerivation())
	if err != nil {
		return nil, nil, NewEncryptionError("failed to initialise cipher", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, NewEncryptionError("failed to generate nonce", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, aad)

	return out, &EncryptionStats{
		OriginalSize:  int64(len(plaintext)),
		EncryptedSize: int64(len(out)),
		Algorithm:     "AES-256-GCM",
		KeyDerivation: em.KeyDerivation(),
		Duration:      time.Since(start),
	}, nil
}

// Decrypt opens a payload produced by Encrypt. A wrong key, altered aad or
// tampered ciphertext all surface as a DecryptionError.
func (em *EncryptionManager) Decrypt(sealed, aad []byte) ([]byte, error) {
	return em.DecryptWith(sealed, aad, em.KeyDerivation())
}

// DecryptWith opens a payload whose file key was derived with derivation
func (em *EncryptionManager) DecryptWith(sealed, aad []byte, derivation string) ([]byte, error) {
	if len(sealed) < saltSize+nonceSize {
		return nil, NewDecryptionError("encrypted payload is too short", nil)
	}

	secret, err := em.keyManager.MasterSecret()
	if err != nil {
		return nil, NewDecryptionError("no usable encryption key is configured", err)
	}

	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+nonceSize]
	ciphertext := sealed[saltSize+nonceSize:]

	gcm, err := em.newGCM(secret, salt, derivation)
	if err != nil {
		return nil, NewDecryptionError("failed to initialise cipher", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, NewDecryptionError("authentication failed: wrong key or tampered payload", err)
	}
	return plaintext, nil
}

func (em *EncryptionManager) newGCM(secret, salt []byte, derivation string) (cipher.AEAD, error) {
	key, err := deriveKey(secret, salt, derivation)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

func deriveKey(secret, salt []byte, derivation string) ([]byte, error) {
	switch derivation {
	case KeyDerivationPBKDF2:
		return pbkdf2.Key(secret, salt, pbkdf2Iterations, keySize, sha256.New), nil
	case KeyDerivationHKDF:
		key := make([]byte, keySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(hkdfInfo)), key); err != nil {
			return nil, err
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unknown key derivation %q", derivation)
	}
}

// KeyManager resolves the master secret from its external source
type KeyManager struct {
	config *EncryptionConfig
}

// NewKeyManager creates a new key manager
func NewKeyManager(config *EncryptionConfig) *KeyManager {
	return &KeyManager{config: config}
}

// MasterSecret returns the raw key or passphrase bytes. Nothing is cached.
func (km *KeyManager) MasterSecret() ([]byte, error) {
	if km.config.KeyRetriever != nil {
		secret, err := km.config.KeyRetriever()
		if err != nil {
			return nil, NewEncryptionError("key retriever failed", err)
		}
		return secret, nil
	}

	switch km.config.KeySource {
	case KeySourceEnv:
		return km.LoadKeyFromEnv(km.config.KeyEnvVar)
	case KeySourceFile:
		return km.LoadKeyFromFile(km.config.KeyPath)
	case KeySourcePassphrase:
		passphrase := os.Getenv(km.config.KeyEnvVar)
		if passphrase == "" {
			return nil, NewEncryptionError(fmt.Sprintf("passphrase environment variable %s not set", km.config.KeyEnvVar), nil)
		}
		return []byte(passphrase), nil
	case KeySourceExternal:
		return nil, NewEncryptionError("external key source requires a key retriever", nil)
	default:
		return nil, NewEncryptionError(fmt.Sprintf("invalid key source: %s", km.config.KeySource), nil)
	}
}

// GenerateKey generates a new 256-bit master key
func (km *KeyManager) GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, NewEncryptionError("failed to generate encryption key", err)
	}
	return key, nil
}

// SaveKeyToFile writes a hex-encoded key readable only by the owner
func (km *KeyManager) SaveKeyToFile(key []byte, path string) error {
	if err := km.ValidateKey(key); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		return NewEncryptionError("failed to save key to file", err)
	}
	return nil
}

// LoadKeyFromFile accepts either 32 raw bytes or 64 hex characters
func (km *KeyManager) LoadKeyFromFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEncryptionError("failed to read key from file", err).WithContext("path", path)
	}

	if len(data) == keySize {
		if err := km.ValidateKey(data); err != nil {
			return nil, err
		}
		return data, nil
	}
	return km.decodeHexKey(strings.TrimSpace(string(data)), "key file")
}

// LoadKeyFromEnv loads a hex-encoded key from an environment variable
func (km *KeyManager) LoadKeyFromEnv(envVar string) ([]byte, error) {
	value := os.Getenv(envVar)
	if value == "" {
		return nil, NewEncryptionError(fmt.Sprintf("environment variable %s not set", envVar), nil)
	}
	return km.decodeHexKey(value, "environment variable "+envVar)
}

func (km *KeyManager) decodeHexKey(value, source string) ([]byte, error) {
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, NewEncryptionError(fmt.Sprintf("failed to decode hex key from %s", source), err)
	}
	if err := km.ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ValidateKey rejects keys of the wrong size and trivially weak keys
func (km *KeyManager) ValidateKey(key []byte) error {
	if len(key) != keySize {
		return NewEncryptionError(fmt.Sprintf("key must be %d bytes for AES-256, got %d", keySize, len(key)), nil)
	}

	allZeros, allOnes := true, true
	for _, b := range key {
		if b != 0 {
			allZeros = false
		}
		if b != 0xFF {
			allOnes = false
		}
	}
	if allZeros || allOnes {
		return NewEncryptionError("key is trivially weak", nil)
	}
	return nil
}
