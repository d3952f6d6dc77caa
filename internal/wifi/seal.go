// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wifi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/MePride/pin/internal/ferr"
)

// Sealer encrypts and decrypts the Wi-Fi password at rest under a key
// supplied by the boot sequence, replacing the XOR+Base64 placeholder:
// a compiled-in XOR key is not a secret, since it ships in every binary.
// AES-256-GCM gives both confidentiality and tamper detection for the
// same single password field.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte key. The key's provenance
// (hardware-unique fuse, platform keystore, or similar) is a boot-time
// concern outside this package.
func NewSealer(key [32]byte) (*Sealer, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, ferr.Wrap(ferr.Internal, err, "building AES cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ferr.Wrap(ferr.Internal, err, "building GCM mode")
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext, returning nonce||ciphertext||tag.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, ferr.Wrap(ferr.Internal, err, "generating nonce")
	}
	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal, failing with IntegrityFail if sealed was tampered
// with or was not produced by this key.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	n := s.gcm.NonceSize()
	if len(sealed) < n {
		return nil, ferr.New(ferr.IntegrityFail, "sealed credential shorter than nonce")
	}
	nonce, ciphertext := sealed[:n], sealed[n:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ferr.Wrap(ferr.IntegrityFail, err, "opening sealed credential")
	}
	return plaintext, nil
}
