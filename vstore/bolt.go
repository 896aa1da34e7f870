package vstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketSession = []byte("session")

// BoltDataStore keeps values in a bbolt database file.
type BoltDataStore struct {
	db   *bbolt.DB
	path string
}

var _ DataStore = (*BoltDataStore)(nil)

// NewBoltDataStore opens or creates the database at path.
func NewBoltDataStore(path string) (*BoltDataStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	path = expandPath(path)

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltDataStore{db: db, path: path}, nil
}

func (s *BoltDataStore) Get(key string, decrypt bool) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		// Values are only valid for the life of the transaction.
		if v := tx.Bucket(bucketSession).Get([]byte(key)); v != nil {
			data = bytes.Clone(v)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, err
	}
	return open(key, decrypt, data)
}

func (s *BoltDataStore) Set(key string, encrypt bool, value []byte) error {
	data, err := seal(key, encrypt, value)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Put([]byte(key), data)
	})
}

func (s *BoltDataStore) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete([]byte(key))
	})
}

func (s *BoltDataStore) Path() string {
	return s.path
}

// Close releases the database file lock.
func (s *BoltDataStore) Close() error {
	return s.db.Close()
}
