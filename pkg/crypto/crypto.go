/*
 *   Copyright 2023 Martin Proffitt <mproffitt@choclab.net>
 *
 *  Licensed under the Apache License, Version 2.0 (the "License");
 *  you may not use this file except in compliance with the License.
 *  You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 *  Unless required by applicable law or agreed to in writing, software
 *  distributed under the License is distributed on an "AS IS" BASIS,
 *  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  See the License for the specific language governing permissions and
 *  limitations under the License.
 */
package crypto

import (
	"crypto/hmac"
	cryptorand "crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"github.com/notapipeline/seal/pkg/secure"
	"github.com/notapipeline/seal/pkg/types"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrOpen is returned when an AEAD tag fails to verify.
var ErrOpen = errors.New("message authentication failed")

// IDKey is the Argon2id provider.
//
// This is a mockable entry point for testing and wraps argon2.IDKey.
var IDKey func(password, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte = argon2.IDKey

var randReader io.Reader = cryptorand.Reader

// DeriveKey derives a key from passphrase and salt into locked memory.
//
// The key buffer is locked before derivation so the derived bytes never sit
// in an unlocked key. On any failure the buffer is destroyed and nil is
// returned.
func DeriveKey(passphrase, salt []byte, params types.KDFParams) (k *secure.Key, err error) {
	if k, err = secure.NewKey(int(params.KeyLen)); err != nil {
		return nil, err
	}

	var raw []byte
	if raw, err = idKey(passphrase, salt, params); err != nil {
		k.Destroy()
		return nil, err
	}

	if err = k.Move(raw); err != nil {
		k.Destroy()
		return nil, types.SecurityError{Err: err}
	}
	return k, nil
}

func idKey(passphrase, salt []byte, params types.KDFParams) (key []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			secure.WipeBytes(key)
			key = nil
			err = types.DerivationError{Err: fmt.Errorf("%v", r)}
		}
	}()

	if params.Threads < 1 || params.Time < 1 || params.KeyLen < 1 {
		return nil, types.DerivationError{Err: fmt.Errorf("invalid argon2 parameters %+v", params)}
	}

	key = IDKey(passphrase, salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	if uint32(len(key)) != params.KeyLen {
		secure.WipeBytes(key)
		return nil, types.DerivationError{
			Err: fmt.Errorf("expected %d bytes of key material, got %d", params.KeyLen, len(key)),
		}
	}
	return key, nil
}

// RandomBytes reads n bytes from the system CSPRNG
func RandomBytes(n int) ([]byte, error) {
	var b []byte = make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("unable to read random bytes: %w", err)
	}
	return b, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 and empty associated data.
// The returned slice is ciphertext followed by the 16 byte tag.
func Seal(key *secure.Key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("seal: expected %d byte nonce, got %d", aead.NonceSize(), len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// Open verifies and decrypts ciphertext||tag. No plaintext is returned unless
// the tag verifies.
func Open(key *secure.Key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("open: expected %d byte nonce, got %d", aead.NonceSize(), len(nonce))
	}

	var plaintext []byte
	if plaintext, err = aead.Open(nil, nonce, ciphertext, nil); err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

// Sum512 returns the SHA-512 digest of data
func Sum512(data []byte) []byte {
	var sum [sha512.Size]byte = sha512.Sum512(data)
	return sum[:]
}

// HMAC512 returns HMAC-SHA-512 of data under key
func HMAC512(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

