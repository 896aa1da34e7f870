package vstore

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ConfigDataStore keeps all keys in one human readable file:
//
//	# comment
//	has-session = true
//	session = b64:T2pL...
//
// Values that are printable ASCII without surrounding spaces are written
// as text. Anything else, including text that starts with the b64: prefix,
// is written base64 encoded after the prefix.
type ConfigDataStore struct {
	path string

	mu     sync.RWMutex
	values map[string][]byte
}

var _ DataStore = (*ConfigDataStore)(nil)

const base64Prefix = "b64:"

// NewConfigDataStore loads or creates the file at configPath.
// The path can start with ~ to indicate the user's home directory.
func NewConfigDataStore(configPath string) (*ConfigDataStore, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required")
	}
	configPath = expandPath(configPath)

	values := make(map[string][]byte)
	f, err := os.Open(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		values, err = readValues(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", configPath, err)
		}
	}
	return &ConfigDataStore{path: configPath, values: values}, nil
}

func (s *ConfigDataStore) Get(key string, decrypt bool) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return open(key, decrypt, data)
}

func (s *ConfigDataStore) Set(key string, encrypt bool, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := seal(key, encrypt, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = data
	return s.flushLocked()
}

func (s *ConfigDataStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flushLocked()
}

func (s *ConfigDataStore) Path() string {
	return s.path
}

func (s *ConfigDataStore) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	var b strings.Builder
	if err := writeValues(&b, s.values); err != nil {
		return err
	}
	return atomicWriteFile(s.path, []byte(b.String()), 0600)
}

func checkKey(key string) error {
	if key == "" || strings.ContainsAny(key, "= \t\r\n#") {
		return fmt.Errorf("vstore: invalid key %q", key)
	}
	return nil
}

// isPlainText reports whether value can be written without encoding.
func isPlainText(value []byte) bool {
	if len(value) == 0 {
		return true
	}
	if value[0] == ' ' || value[len(value)-1] == ' ' {
		return false
	}
	if strings.HasPrefix(string(value), base64Prefix) {
		return false
	}
	for _, b := range value {
		if b < 0x20 || b >= 0x7f {
			return false
		}
	}
	return true
}

func readValues(r io.Reader) (map[string][]byte, error) {
	values := make(map[string][]byte)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, found := strings.Cut(text, "=")
		if !found {
			return nil, fmt.Errorf("line %d: missing '='", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if encoded, ok := strings.CutPrefix(value, base64Prefix); ok {
			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("line %d: decode %q: %w", line, key, err)
			}
			values[key] = decoded
			continue
		}
		values[key] = []byte(value)
	}
	return values, scanner.Err()
}

func writeValues(w io.Writer, values map[string][]byte) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if _, err := io.WriteString(w, "# vsession credential store\n"); err != nil {
		return err
	}
	for _, key := range keys {
		value := values[key]
		var err error
		if isPlainText(value) {
			_, err = fmt.Fprintf(w, "%s = %s\n", key, value)
		} else {
			_, err = fmt.Fprintf(w, "%s = %s%s\n", key, base64Prefix, base64.StdEncoding.EncodeToString(value))
		}
		if err != nil {
			return err
		}
	}
	return nil
}
