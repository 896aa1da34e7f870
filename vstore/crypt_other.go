//go:build !windows

package vstore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// keySeed may be injected at build time to replace the embedded key:
//
//	go build -ldflags "-X github.com/viicommerce/vsession/vstore.keySeed=..."
//
// Either way the key ships inside the binary. This keeps the session
// identifier out of plain text on disk; it does not protect it from anyone
// who can read the binary.
var keySeed string

var embeddedKey = [32]byte{
	0x5c, 0xe1, 0x07, 0x9a, 0x3b, 0xd4, 0x62, 0x8f,
	0x11, 0xa7, 0xc9, 0x4e, 0x80, 0x2d, 0xf6, 0x35,
	0x9b, 0x48, 0x0e, 0xd1, 0x76, 0xbc, 0x23, 0x6a,
	0xe8, 0x54, 0xaf, 0x19, 0x3c, 0x97, 0x02, 0xcb,
}

var storeKey = sync.OnceValue(func() *[32]byte {
	if keySeed == "" {
		return &embeddedKey
	}
	var key [32]byte
	r := hkdf.New(sha256.New, []byte(keySeed), nil, []byte("vsession credential store"))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return &embeddedKey
	}
	return &key
})

// encryptValue seals plaintext with nacl/secretbox.
// Returns nonce (24 bytes) + ciphertext.
func encryptValue(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, storeKey()), nil
}

// decryptValue opens data produced by encryptValue.
func decryptValue(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24+secretbox.Overhead {
		return nil, fmt.Errorf("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])

	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, storeKey())
	if !ok {
		return nil, fmt.Errorf("decrypt failed")
	}
	return plaintext, nil
}
