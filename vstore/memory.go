package vstore

import (
	"bytes"
	"sync"
)

// MemoryDataStore keeps values in process memory. Values written with
// encrypt set are still sealed so the behaviour matches the durable stores.
type MemoryDataStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ DataStore = (*MemoryDataStore)(nil)

// NewMemoryDataStore creates an empty in-memory store.
func NewMemoryDataStore() *MemoryDataStore {
	return &MemoryDataStore{data: make(map[string][]byte)}
}

func (s *MemoryDataStore) Get(key string, decrypt bool) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return open(key, decrypt, bytes.Clone(data))
}

func (s *MemoryDataStore) Set(key string, encrypt bool, value []byte) error {
	data, err := seal(key, encrypt, value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = bytes.Clone(data)
	s.mu.Unlock()
	return nil
}

func (s *MemoryDataStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryDataStore) Path() string {
	return "memory"
}
