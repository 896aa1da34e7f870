// Package vstore provides the key/value backends that hold client session
// state between runs, with optional encryption at rest.
package vstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DataStore is a small key/value store for session credentials.
// Implementations must be safe for concurrent use.
type DataStore interface {
	// Get retrieves a value by key. Returns nil, nil if not found.
	// If decrypt is true, the value is decrypted before returning.
	Get(key string, decrypt bool) ([]byte, error)

	// Set stores a value by key.
	// If encrypt is true, the value is encrypted before storing.
	Set(key string, encrypt bool, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key string) error

	// Path returns the storage location for display purposes.
	Path() string
}

// Backend kinds accepted by Open.
const (
	KindMemory   = "memory"
	KindFile     = "file"
	KindConfig   = "config"
	KindBolt     = "bolt"
	KindRedis    = "redis"
	KindRegistry = "registry"
)

// Open creates a DataStore of the given kind. The meaning of location
// depends on the kind: a directory for file, a file path for config and
// bolt, a redis URL for redis and a registry path for registry.
// An empty location selects DefaultStorePath where that applies.
//
// Stores that hold resources implement io.Closer.
func Open(kind, location string) (DataStore, error) {
	switch kind {
	case KindMemory:
		return NewMemoryDataStore(), nil
	case KindFile, "":
		if location == "" {
			location = DefaultStorePath
		}
		return NewFileDataStore(location)
	case KindConfig:
		if location == "" {
			location = DefaultConfigPath
		}
		return NewConfigDataStore(location)
	case KindBolt:
		if location == "" {
			location = DefaultBoltPath
		}
		return NewBoltDataStore(location)
	case KindRedis:
		return OpenRedisDataStore(location, DefaultRedisPrefix)
	case KindRegistry:
		return openRegistry(location)
	default:
		return nil, fmt.Errorf("vstore: unknown store kind %q", kind)
	}
}

// Close closes ds if it holds resources.
func Close(ds DataStore) error {
	if c, ok := ds.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var errRegistryUnsupported = fmt.Errorf("vstore: registry store is only available on windows")

// expandPath expands a leading ~ and environment variables in a path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.Expand(path, os.Getenv)
}

// seal encrypts value when encrypt is set.
func seal(key string, encrypt bool, value []byte) ([]byte, error) {
	if !encrypt {
		return value, nil
	}
	data, err := encryptValue(value)
	if err != nil {
		return nil, fmt.Errorf("encrypt %s: %w", key, err)
	}
	return data, nil
}

// open decrypts data when decrypt is set. Empty data is returned as is.
func open(key string, decrypt bool, data []byte) ([]byte, error) {
	if !decrypt || len(data) == 0 {
		return data, nil
	}
	plain, err := decryptValue(data)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", key, err)
	}
	return plain, nil
}
