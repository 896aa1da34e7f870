//go:build !windows

package vsession

import (
	"crypto/rand"
	"testing"

	"golang.org/x/crypto/nacl/secretbox"
)

// A value sealed under another key must read as no session.
func TestLoadForeignKey(t *testing.T) {
	s, ds := newCreds(t)

	var key [32]byte
	var nonce [24]byte
	rand.Read(key[:])
	rand.Read(nonce[:])
	foreign := secretbox.Seal(nonce[:], []byte("someone-else"), &nonce, &key)

	if err := ds.Set(KeySession, false, foreign); err != nil {
		t.Fatal(err)
	}
	if got := s.Load(); got != "" {
		t.Errorf("Load() = %q, want empty", got)
	}
}
