package vstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileDataStore stores each key as a file in a private directory.
type FileDataStore struct {
	dir string
	mu  sync.RWMutex
}

var _ DataStore = (*FileDataStore)(nil)

// NewFileDataStore creates a file-based data store rooted at dir.
func NewFileDataStore(dir string) (*FileDataStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory is required")
	}
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data store directory: %w", err)
	}
	return &FileDataStore{dir: dir}, nil
}

func (s *FileDataStore) Get(key string, decrypt bool) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return open(key, decrypt, data)
}

func (s *FileDataStore) Set(key string, encrypt bool, value []byte) error {
	data, err := seal(key, encrypt, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return atomicWriteFile(filepath.Join(s.dir, key), data, 0600)
}

func (s *FileDataStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileDataStore) Path() string {
	return s.dir
}

// atomicWriteFile writes data to a temp file in the same directory and
// renames it over path, so readers never see a partial value.
func atomicWriteFile(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(name)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
