//go:build windows

package vstore

import (
	"github.com/billgraziano/dpapi"
)

// encryptValue protects plaintext with DPAPI for the current user.
func encryptValue(plaintext []byte) ([]byte, error) {
	return dpapi.EncryptBytes(plaintext)
}

// decryptValue reverses encryptValue.
func decryptValue(ciphertext []byte) ([]byte, error) {
	return dpapi.DecryptBytes(ciphertext)
}
