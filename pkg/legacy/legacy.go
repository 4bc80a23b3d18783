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

// Package legacy reads and writes the headerless AES-256-GCM container used
// before the XChaCha20-Poly1305 envelope.
package legacy

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/notapipeline/seal/pkg/crypto"
	"github.com/notapipeline/seal/pkg/envelope"
	"github.com/notapipeline/seal/pkg/secure"
	"github.com/notapipeline/seal/pkg/types"
)

// Envelope - the legacy container
//
//	<salt><nonce><tag><ciphertext>
//
// Unlike the current envelope the tag precedes the ciphertext and there is
// no magic.
type Envelope struct {
	Salt       [types.SaltSize]byte
	Nonce      [types.LegacyNonceSize]byte
	Tag        [types.TagSize]byte
	Ciphertext []byte
}

func (e *Envelope) MarshalBinary() ([]byte, error) {
	var b bytes.Buffer
	b.Grow(types.LegacyHeaderSize + len(e.Ciphertext))
	b.Write(e.Salt[:])
	b.Write(e.Nonce[:])
	b.Write(e.Tag[:])
	b.Write(e.Ciphertext)
	return b.Bytes(), nil
}

func (e *Envelope) UnmarshalBinary(data []byte) error {
	if len(data) < types.LegacyMinSize {
		return types.ValidationError{Err: types.ErrEnvelopeTooShort}
	}

	var offset int
	offset += copy(e.Salt[:], data[offset:])
	offset += copy(e.Nonce[:], data[offset:])
	offset += copy(e.Tag[:], data[offset:])
	e.Ciphertext = append([]byte{}, data[offset:]...)
	return nil
}

// Parse only checks the length. The legacy format has no magic to verify.
func Parse(data []byte) (*Envelope, error) {
	var e *Envelope = &Envelope{}
	if err := e.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return e, nil
}

// DeriveKey derives the Argon2id key and replaces it with its SHA-256 digest.
// Both keys live in locked memory.
func (e *Envelope) DeriveKey(passphrase []byte) (*secure.Key, error) {
	raw, err := crypto.DeriveKey(passphrase, e.Salt[:], types.LegacyKDF)
	if err != nil {
		return nil, err
	}
	defer raw.Destroy()

	var key *secure.Key
	if key, err = secure.NewKey(sha256.Size); err != nil {
		return nil, err
	}

	var sum [sha256.Size]byte = sha256.Sum256(raw.Bytes())
	if err = key.Move(sum[:]); err != nil {
		key.Destroy()
		return nil, types.SecurityError{Err: err}
	}
	return key, nil
}

// OpenWith decrypts the container and verifies the embedded checksum.
//
// A tag failure returns crypto.ErrOpen. A checksum failure after the tag
// verified returns a ValidationError wrapping types.ErrChecksumMismatch.
func (e *Envelope) OpenWith(key *secure.Key) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	var sealed []byte = make([]byte, 0, len(e.Ciphertext)+types.TagSize)
	sealed = append(sealed, e.Ciphertext...)
	sealed = append(sealed, e.Tag[:]...)

	var decrypted []byte
	if decrypted, err = gcm.Open(nil, e.Nonce[:], sealed, nil); err != nil {
		return nil, crypto.ErrOpen
	}

	var (
		checksum  []byte            = decrypted[:types.LegacyChecksumSize]
		plaintext []byte            = decrypted[types.LegacyChecksumSize:]
		sum       [sha256.Size]byte = sha256.Sum256(plaintext)
	)
	if subtle.ConstantTimeCompare(checksum, sum[:]) != 1 {
		secure.WipeBytes(decrypted)
		return nil, types.ValidationError{Err: types.ErrChecksumMismatch}
	}
	return append([]byte{}, plaintext...), nil
}

// Encrypt seals plaintext in the legacy container.
//
// Inputs are validated exactly as envelope.Encrypt validates them.
func Encrypt(plaintext, passphrase, confirmation []byte) ([]byte, error) {
	if err := envelope.Validate(plaintext, passphrase, confirmation); err != nil {
		return nil, err
	}

	var (
		e   *Envelope = &Envelope{}
		b   []byte
		err error
	)
	if b, err = crypto.RandomBytes(types.SaltSize); err != nil {
		return nil, err
	}
	copy(e.Salt[:], b)

	if b, err = crypto.RandomBytes(types.LegacyNonceSize); err != nil {
		return nil, err
	}
	copy(e.Nonce[:], b)

	var key *secure.Key
	if key, err = e.DeriveKey(passphrase); err != nil {
		return nil, err
	}
	defer key.Destroy()

	var gcm cipher.AEAD
	if gcm, err = newGCM(key); err != nil {
		return nil, err
	}

	var (
		sum     [sha256.Size]byte = sha256.Sum256(plaintext)
		message []byte            = append(sum[:], plaintext...)
		sealed  []byte            = gcm.Seal(nil, e.Nonce[:], message, nil)
	)
	secure.WipeBytes(message)

	var split int = len(sealed) - types.TagSize
	e.Ciphertext = sealed[:split]
	copy(e.Tag[:], sealed[split:])
	return e.MarshalBinary()
}

// Decrypt parses data and runs the attempt machine against it
func Decrypt(ctx context.Context, data []byte, p types.Profile, src envelope.PassphraseSource, opts ...envelope.Option) ([]byte, error) {
	e, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return envelope.NewMachine(e, p, opts...).Run(ctx, src)
}

func newGCM(key *secure.Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	var gcm cipher.AEAD
	if gcm, err = cipher.NewGCM(block); err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
