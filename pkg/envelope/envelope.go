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
package envelope

import (
	"bytes"
	"context"
	"crypto/subtle"

	"github.com/notapipeline/seal/pkg/crypto"
	"github.com/notapipeline/seal/pkg/secure"
	"github.com/notapipeline/seal/pkg/types"
)

// Envelope - the serialized container written by Encrypt.
//
// The format is:
//
//	<magic><salt><nonce><ciphertext><tag>
//
// Where:
//
//	<magic> is the 4 byte profile discriminator
//	<salt> is the 16 byte Argon2id salt
//	<nonce> is the 24 byte XChaCha20-Poly1305 nonce
//	<ciphertext> is the same length as the plaintext
//	<tag> is the 16 byte Poly1305 tag
//
// Ciphertext holds both the ciphertext and the trailing tag.
type Envelope struct {
	Magic      types.Magic
	Salt       [types.SaltSize]byte
	Nonce      [types.NonceSize]byte
	Ciphertext []byte
}

// MarshalBinary - serialize the envelope in its fixed field order
func (e *Envelope) MarshalBinary() ([]byte, error) {
	var b bytes.Buffer
	b.Grow(e.Size())
	b.Write(e.Magic[:])
	b.Write(e.Salt[:])
	b.Write(e.Nonce[:])
	b.Write(e.Ciphertext)
	return b.Bytes(), nil
}

// UnmarshalBinary - split data into its fields by fixed offsets.
//
// Only the length is checked here. Use Parse to also verify the magic.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	if len(data) < types.MinEnvelopeSize {
		return types.ValidationError{Err: types.ErrEnvelopeTooShort}
	}

	copy(e.Magic[:], data[:types.MagicSize])
	copy(e.Salt[:], data[types.MagicSize:types.MagicSize+types.SaltSize])
	copy(e.Nonce[:], data[types.MagicSize+types.SaltSize:types.HeaderSize])
	e.Ciphertext = append([]byte{}, data[types.HeaderSize:]...)
	return nil
}

// Size is the serialized length of the envelope
func (e *Envelope) Size() int {
	return types.HeaderSize + len(e.Ciphertext)
}

// PlaintextSize is the length of the plaintext the envelope protects
func (e *Envelope) PlaintextSize() int {
	return len(e.Ciphertext) - types.TagSize
}

// DeriveKey derives the envelope key for passphrase
func (e *Envelope) DeriveKey(passphrase []byte) (*secure.Key, error) {
	return crypto.DeriveKey(passphrase, e.Salt[:], types.EnvelopeKDF)
}

// OpenWith verifies and decrypts the envelope with an already derived key
func (e *Envelope) OpenWith(key *secure.Key) ([]byte, error) {
	return crypto.Open(key, e.Nonce[:], e.Ciphertext)
}

// Parse validates the length and magic of data before any key is derived.
func Parse(data []byte, magic types.Magic) (*Envelope, error) {
	var e *Envelope = &Envelope{}
	if err := e.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if e.Magic != magic {
		return nil, types.ValidationError{Err: types.ErrBadMagic}
	}
	return e, nil
}

// Encrypt seals plaintext under a key derived from passphrase.
//
// All input validation happens before any cryptographic work. A fresh salt
// and nonce are generated for every call so a key/nonce pair is never
// reused.
func Encrypt(plaintext, passphrase, confirmation []byte, p types.Profile) ([]byte, error) {
	if err := Validate(plaintext, passphrase, confirmation); err != nil {
		return nil, err
	}

	var (
		e   *Envelope = &Envelope{Magic: p.Magic}
		b   []byte
		err error
	)

	if b, err = crypto.RandomBytes(types.SaltSize); err != nil {
		return nil, err
	}
	copy(e.Salt[:], b)

	if b, err = crypto.RandomBytes(types.NonceSize); err != nil {
		return nil, err
	}
	copy(e.Nonce[:], b)

	var key *secure.Key
	if key, err = crypto.DeriveKey(passphrase, e.Salt[:], types.EnvelopeKDF); err != nil {
		return nil, err
	}
	defer key.Destroy()

	if e.Ciphertext, err = crypto.Seal(key, e.Nonce[:], plaintext); err != nil {
		return nil, err
	}
	return e.MarshalBinary()
}

// Open makes a single decryption attempt against the envelope.
//
// On tag failure a types.AuthenticationError is returned. The key is
// destroyed before Open returns on every path.
func Open(e *Envelope, passphrase []byte) ([]byte, error) {
	key, err := e.DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	var plaintext []byte
	if plaintext, err = e.OpenWith(key); err == crypto.ErrOpen {
		return nil, types.AuthenticationError{Attempt: 1}
	}
	return plaintext, err
}

// Decrypt parses data for profile p and runs the attempt machine against it,
// asking src for a passphrase on every attempt.
func Decrypt(ctx context.Context, data []byte, p types.Profile, src PassphraseSource, opts ...Option) ([]byte, error) {
	e, err := Parse(data, p.Magic)
	if err != nil {
		return nil, err
	}
	return NewMachine(e, p, opts...).Run(ctx, src)
}

// Validate checks encryption inputs in the order they are reported
func Validate(plaintext, passphrase, confirmation []byte) error {
	if len(plaintext) == 0 {
		return types.ValidationError{Err: types.ErrEmptyPlaintext}
	}
	if subtle.ConstantTimeCompare(passphrase, confirmation) != 1 {
		return types.ValidationError{Err: types.ErrPassphraseMismatch}
	}
	if len(passphrase) < types.MinPassphraseLength {
		return types.ValidationError{Err: types.ErrPassphraseTooShort}
	}
	return nil
}
