package infra

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/presenced/internal/domain"
)

const (
	keyFileName = "store.key"
	keySize     = 32 // SQLCipher raw key
)

// FileKeyProvider keeps the store key hex-encoded in a 0600 file next to
// the database.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider returns a provider for dataDir/store.key.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{keyPath: filepath.Join(dataDir, keyFileName)}
}

// GetKey reads and validates the key. A key file readable by group or
// others is rejected.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	info, err := os.Stat(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat key file: %w", err)
	}
	if info.Mode().Perm()&0077 != 0 {
		return nil, fmt.Errorf("key file %s has mode %o, want 0600", p.keyPath, info.Mode().Perm())
	}

	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return key, nil
}

// StoreKey writes key through a temp file so a crash never leaves a
// truncated key behind.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	tmp := p.keyPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := os.Rename(tmp, p.keyPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to install key file: %w", err)
	}
	return nil
}

// KeyExists reports whether the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// Path returns the key file path.
func (p *FileKeyProvider) Path() string { return p.keyPath }

// GenerateKey returns a new random store key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the provider's key, generating and storing one first
// when none exists. created reports whether a new key was made.
func EnsureKey(provider domain.KeyProvider) (key []byte, created bool, err error) {
	if provider.KeyExists() {
		key, err = provider.GetKey()
		return key, false, err
	}
	if key, err = GenerateKey(); err != nil {
		return nil, false, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}

var _ domain.KeyProvider = (*FileKeyProvider)(nil)
