package backup

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := NewKeyManager(&EncryptionConfig{}).GenerateKey()
	require.NoError(t, err)
	return key
}

func retrieverManager(key []byte) *EncryptionManager {
	return NewEncryptionManager(&EncryptionConfig{
		KeySource:    KeySourceExternal,
		KeyRetriever: func() ([]byte, error) { return key, nil },
	})
}

func TestEncryptionManager_Configured(t *testing.T) {
	assert.False(t, NewEncryptionManager(nil).Configured())
	assert.False(t, NewEncryptionManager(&EncryptionConfig{}).Configured())
	assert.True(t, NewEncryptionManager(&EncryptionConfig{KeySource: KeySourceEnv, KeyEnvVar: "K"}).Configured())
	assert.True(t, retrieverManager(nil).Configured())
}

func TestEncryptionManager_KeyDerivation(t *testing.T) {
	assert.Equal(t, KeyDerivationHKDF, NewEncryptionManager(&EncryptionConfig{KeySource: KeySourceFile}).KeyDerivation())
	assert.Equal(t, KeyDerivationPBKDF2, NewEncryptionManager(&EncryptionConfig{KeySource: KeySourcePassphrase}).KeyDerivation())
}

func TestEncryptionManager_RoundTrip(t *testing.T) {
	em := retrieverManager(testKey(t))
	plaintext := []byte(`{"parts":[[1,"PART-0001",10]]}`)
	aad := []byte("header")

	sealed, stats, err := em.Encrypt(plaintext, aad)
	require.NoError(t, err)

	assert.Equal(t, "AES-256-GCM", stats.Algorithm)
	assert.Equal(t, KeyDerivationHKDF, stats.KeyDerivation)
	assert.Equal(t, int64(len(plaintext)), stats.OriginalSize)
	assert.Equal(t, int64(len(sealed)), stats.EncryptedSize)
	assert.False(t, bytes.Contains(sealed, plaintext))

	opened, err := em.Decrypt(sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestEncryptionManager_FreshSaltAndNonce(t *testing.T) {
	em := retrieverManager(testKey(t))
	plaintext := []byte("same input")

	first, _, err := em.Encrypt(plaintext, nil)
	require.NoError(t, err)
	second, _, err := em.Encrypt(plaintext, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first[:saltSize], second[:saltSize])
	assert.NotEqual(t, first, second)
}

func TestEncryptionManager_DecryptFailures(t *testing.T) {
	key := testKey(t)
	em := retrieverManager(key)
	sealed, _, err := em.Encrypt([]byte("inventory payload"), []byte("header"))
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0x01

	tests := []struct {
		name    string
		manager *EncryptionManager
		sealed  []byte
		aad     []byte
	}{
		{"wrong key", retrieverManager(testKey(t)), sealed, []byte("header")},
		{"altered header", em, sealed, []byte("HEADER")},
		{"tampered ciphertext", em, tampered, []byte("header")},
		{"truncated payload", em, sealed[:10], []byte("header")},
		{"no key", NewEncryptionManager(&EncryptionConfig{}), sealed, []byte("header")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.manager.Decrypt(tt.sealed, tt.aad)
			require.Error(t, err)
			assert.True(t, IsDecryptionError(err))
		})
	}
}

func TestEncryptionManager_Passphrase(t *testing.T) {
	t.Setenv("MRP_TEST_PASSPHRASE", "correct horse battery staple")
	em := NewEncryptionManager(&EncryptionConfig{KeySource: KeySourcePassphrase, KeyEnvVar: "MRP_TEST_PASSPHRASE"})

	sealed, stats, err := em.Encrypt([]byte("stock levels"), nil)
	require.NoError(t, err)
	assert.Equal(t, KeyDerivationPBKDF2, stats.KeyDerivation)

	opened, err := em.Decrypt(sealed, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("stock levels"), opened)

	// the file records its derivation, so a mismatched KDF must fail
	_, err = em.DecryptWith(sealed, nil, KeyDerivationHKDF)
	assert.True(t, IsDecryptionError(err))
}

func TestEncryptionManager_RetrieverError(t *testing.T) {
	em := NewEncryptionManager(&EncryptionConfig{
		KeySource:    KeySourceExternal,
		KeyRetriever: func() ([]byte, error) { return nil, errors.New("vault sealed") },
	})

	_, _, err := em.Encrypt([]byte("data"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault sealed")
}

func TestEncryption_EmptyAndLargeData(t *testing.T) {
	em := retrieverManager(testKey(t))

	for _, size := range []int{0, 1, 4 << 20} {
		plaintext := bytes.Repeat([]byte{'x'}, size)
		sealed, _, err := em.Encrypt(plaintext, nil)
		require.NoError(t, err)
		assert.Len(t, sealed, saltSize+nonceSize+size+16)

		opened, err := em.Decrypt(sealed, nil)
		require.NoError(t, err)
		assert.Len(t, opened, size)
	}
}

func TestKeyManager_GenerateKey(t *testing.T) {
	km := NewKeyManager(&EncryptionConfig{})

	first, err := km.GenerateKey()
	require.NoError(t, err)
	second, err := km.GenerateKey()
	require.NoError(t, err)

	assert.Len(t, first, keySize)
	assert.NotEqual(t, first, second)
	assert.NoError(t, km.ValidateKey(first))
}

func TestKeyManager_FileOperations(t *testing.T) {
	km := NewKeyManager(&EncryptionConfig{})
	key := testKey(t)
	dir := t.TempDir()

	t.Run("hex file", func(t *testing.T) {
		path := filepath.Join(dir, "backup.key")
		require.NoError(t, km.SaveKeyToFile(key, path))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		loaded, err := km.LoadKeyFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, key, loaded)
	})

	t.Run("raw file", func(t *testing.T) {
		path := filepath.Join(dir, "raw.key")
		require.NoError(t, os.WriteFile(path, key, 0600))

		loaded, err := km.LoadKeyFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, key, loaded)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := km.LoadKeyFromFile(filepath.Join(dir, "missing.key"))
		assert.Error(t, err)
	})

	t.Run("file key source", func(t *testing.T) {
		path := filepath.Join(dir, "source.key")
		require.NoError(t, km.SaveKeyToFile(key, path))

		em := NewEncryptionManager(&EncryptionConfig{KeySource: KeySourceFile, KeyPath: path})
		sealed, _, err := em.Encrypt([]byte("bom"), nil)
		require.NoError(t, err)

		opened, err := retrieverManager(key).Decrypt(sealed, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("bom"), opened)
	})
}

func TestKeyManager_EnvOperations(t *testing.T) {
	km := NewKeyManager(&EncryptionConfig{})
	key := testKey(t)

	t.Setenv("MRP_TEST_KEY", hex.EncodeToString(key))
	loaded, err := km.LoadKeyFromEnv("MRP_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, key, loaded)

	t.Setenv("MRP_TEST_BAD_KEY", "not-hex")
	_, err = km.LoadKeyFromEnv("MRP_TEST_BAD_KEY")
	assert.Error(t, err)

	_, err = km.LoadKeyFromEnv("MRP_TEST_UNSET_KEY")
	assert.Error(t, err)
}

func TestKeyManager_ValidateKey(t *testing.T) {
	km := NewKeyManager(&EncryptionConfig{})

	tests := []struct {
		name    string
		key     []byte
		wantErr string
	}{
		{"valid", testKey(t), ""},
		{"too short", make([]byte, 16), "must be 32 bytes"},
		{"too long", make([]byte, 64), "must be 32 bytes"},
		{"all zeros", make([]byte, 32), "trivially weak"},
		{"all ones", bytes.Repeat([]byte{0xFF}, 32), "trivially weak"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := km.ValidateKey(tt.key)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr))
		})
	}
}
