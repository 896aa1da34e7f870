//go:build windows

package vstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sys/windows/registry"
)

// RegistryDataStore stores values as binary registry values under one key.
type RegistryDataStore struct {
	hive    registry.Key
	keyPath string
	mu      sync.Mutex
}

var _ DataStore = (*RegistryDataStore)(nil)

// NewRegistryDataStore creates a registry-backed store.
// Path format: "HIVE/path/to/key" where HIVE is CU (CURRENT_USER) or
// LM (LOCAL_MACHINE), for example "CU/SOFTWARE/vsession".
func NewRegistryDataStore(path string) (*RegistryDataStore, error) {
	path = strings.ReplaceAll(path, "/", `\`)
	hiveName, keyPath, found := strings.Cut(path, `\`)
	if !found || keyPath == "" {
		return nil, fmt.Errorf("invalid registry path %q: want HIVE\\path", path)
	}

	var hive registry.Key
	switch strings.ToUpper(hiveName) {
	case "CU", "CURRENT_USER":
		hive = registry.CURRENT_USER
	case "LM", "LOCAL_MACHINE":
		hive = registry.LOCAL_MACHINE
	default:
		return nil, fmt.Errorf("invalid registry hive %q", hiveName)
	}

	key, _, err := registry.CreateKey(hive, keyPath, registry.ALL_ACCESS)
	if err != nil {
		return nil, fmt.Errorf("create registry key: %w", err)
	}
	key.Close()

	return &RegistryDataStore{hive: hive, keyPath: keyPath}, nil
}

func (s *RegistryDataStore) Get(key string, decrypt bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, err := registry.OpenKey(s.hive, s.keyPath, registry.QUERY_VALUE)
	if err != nil {
		return nil, nil
	}
	defer k.Close()

	data, _, err := k.GetBinaryValue(key)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return open(key, decrypt, data)
}

func (s *RegistryDataStore) Set(key string, encrypt bool, value []byte) error {
	data, err := seal(key, encrypt, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k, _, err := registry.CreateKey(s.hive, s.keyPath, registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("open registry key: %w", err)
	}
	defer k.Close()
	return k.SetBinaryValue(key, data)
}

func (s *RegistryDataStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, err := registry.OpenKey(s.hive, s.keyPath, registry.SET_VALUE)
	if err != nil {
		return nil
	}
	defer k.Close()
	if err := k.DeleteValue(key); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *RegistryDataStore) Path() string {
	hive := "HKCU"
	if s.hive == registry.LOCAL_MACHINE {
		hive = "HKLM"
	}
	return hive + `\` + s.keyPath
}
