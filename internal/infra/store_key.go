package infra

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/qvvonk/smart-replays/internal/domain"
)

const (
	storeKeyFileName = "store.key"
	storeKeyLen      = 32 // raw SQLCipher key, 256 bits
)

var (
	// ErrStoreKeyMissing is returned when a state database exists but its key
	// file is gone. A fresh key would never open it, so none is generated.
	ErrStoreKeyMissing = errors.New("state database exists but its key file is missing")
	// ErrStoreKeyMismatch is returned when the key does not decrypt the database.
	ErrStoreKeyMismatch = errors.New("store key does not open the state database")
)

// StoreKeyFile keeps the SQLCipher key hex-encoded in the data directory,
// readable by its owner only.
type StoreKeyFile struct {
	path string
}

// NewStoreKeyFile returns the key file of dataDir.
func NewStoreKeyFile(dataDir string) *StoreKeyFile {
	return &StoreKeyFile{path: filepath.Join(dataDir, storeKeyFileName)}
}

// Path returns the key file location.
func (f *StoreKeyFile) Path() string {
	return f.path
}

// GetKey reads the key. A key file other users can read is tightened to 0600.
func (f *StoreKeyFile) GetKey() ([]byte, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("store key %s: %w", f.path, err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		if err := os.Chmod(f.path, 0o600); err != nil {
			return nil, fmt.Errorf("store key %s is readable by other users and could not be restricted: %w", f.path, err)
		}
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("store key %s: %w", f.path, err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("store key %s is corrupt: %w", f.path, err)
	}
	if len(key) != storeKeyLen {
		return nil, fmt.Errorf("store key %s holds %d bytes, want %d", f.path, len(key), storeKeyLen)
	}
	return key, nil
}

// StoreKey replaces the key file atomically.
func (f *StoreKeyFile) StoreKey(key []byte) error {
	if len(key) != storeKeyLen {
		return fmt.Errorf("refusing to store a %d byte key, want %d", len(key), storeKeyLen)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := atomicWrite(f.path, []byte(hex.EncodeToString(key)+"\n")); err != nil {
		return fmt.Errorf("failed to write store key: %w", err)
	}
	return nil
}

// KeyExists reports whether the key file is present.
func (f *StoreKeyFile) KeyExists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// NewStoreKey returns a random key.
func NewStoreKey() ([]byte, error) {
	key := make([]byte, storeKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate store key: %w", err)
	}
	return key, nil
}

// OpenStore opens the state database of dataDir with the key from provider.
// On first run both the key and the database are created.
func OpenStore(dataDir string, provider domain.KeyProvider) (*EncryptedStore, error) {
	if !provider.KeyExists() {
		if _, err := os.Stat(filepath.Join(dataDir, stateDBName)); err == nil {
			return nil, fmt.Errorf("%w in %s; restore the key or move the database away", ErrStoreKeyMissing, dataDir)
		}
		key, err := NewStoreKey()
		if err != nil {
			return nil, err
		}
		if err := provider.StoreKey(key); err != nil {
			return nil, err
		}
		return NewEncryptedStore(dataDir, key)
	}

	key, err := provider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load store key: %w", err)
	}
	return NewEncryptedStore(dataDir, key)
}

// RotateStoreKey re-encrypts the database of dataDir under a new key and
// saves that key. If the new key cannot be saved the database is switched
// back to the old one. The daemon must not hold the database open.
func RotateStoreKey(ctx context.Context, dataDir string, provider domain.KeyProvider) error {
	oldKey, err := provider.GetKey()
	if err != nil {
		return fmt.Errorf("failed to load store key: %w", err)
	}
	newKey, err := NewStoreKey()
	if err != nil {
		return err
	}

	if err := rekeyDatabase(ctx, dataDir, oldKey, newKey); err != nil {
		return err
	}
	if err := provider.StoreKey(newKey); err != nil {
		if rerr := rekeyDatabase(ctx, dataDir, newKey, oldKey); rerr != nil {
			return fmt.Errorf("failed to save new store key (%v) and to restore the old one: %w", err, rerr)
		}
		return fmt.Errorf("failed to save new store key, database left on the old key: %w", err)
	}
	return nil
}

func rekeyDatabase(ctx context.Context, dataDir string, from, to []byte) error {
	store, err := NewEncryptedStore(dataDir, from)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.rekey(ctx, to); err != nil {
		return fmt.Errorf("failed to re-encrypt state database: %w", err)
	}
	return nil
}
