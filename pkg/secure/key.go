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

// Package secure owns the lifetime of derived key material.
//
// A Key is locked against swapping for as long as it exists and is wiped and
// unlocked by Destroy. Use With wherever possible so that release happens on
// every exit path, including panics.
package secure

import (
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/notapipeline/seal/pkg/types"
)

// These functions are referenced as variables to enable them to
// be mocked in tests
var (
	mlock   func(b []byte) error = lockMemory
	munlock func(b []byte) error = unlockMemory

	mcpy func(dst, src []byte) int = func(dst, src []byte) int {
		return copy(dst, src)
	}
)

// Key is a fixed size buffer held in locked memory.
type Key struct {
	buf    []byte
	locked bool
}

// NewKey allocates and locks a buffer of size bytes.
//
// If the buffer cannot be locked it is wiped and a types.SecurityError is
// returned. The caller never receives an unlocked key.
func NewKey(size int) (*Key, error) {
	var k *Key = &Key{
		buf: make([]byte, size),
	}

	if err := mlock(k.buf); err != nil {
		memguard.WipeBytes(k.buf)
		k.buf = nil
		return nil, types.SecurityError{Err: err}
	}
	k.locked = true
	return k, nil
}

// With creates a key, hands it to fn and destroys it when fn returns or panics.
func With(size int, fn func(k *Key) error) (err error) {
	var k *Key
	if k, err = NewKey(size); err != nil {
		return
	}
	defer k.Destroy()
	return fn(k)
}

// Bytes returns the underlying locked buffer. Callers must not retain it
// beyond the lifetime of the key.
func (k *Key) Bytes() []byte {
	if k == nil {
		return nil
	}
	return k.buf
}

func (k *Key) Size() int {
	if k == nil {
		return 0
	}
	return len(k.buf)
}

// IsAlive returns false once Destroy has been called.
func (k *Key) IsAlive() bool {
	return k != nil && k.locked
}

// Move copies src into the key and wipes src.
func (k *Key) Move(src []byte) error {
	defer memguard.WipeBytes(src)
	if !k.IsAlive() {
		return fmt.Errorf("key has been destroyed")
	}
	if len(src) != len(k.buf) {
		return fmt.Errorf("key size mismatch: expected %d bytes, got %d", len(k.buf), len(src))
	}
	if l := mcpy(k.buf, src); l < len(src) {
		return fmt.Errorf("failed to move key into locked memory. %d != %d", l, len(src))
	}
	return nil
}

// Destroy wipes the key and releases the memory lock. It is safe to call more
// than once.
func (k *Key) Destroy() {
	if k == nil || k.buf == nil {
		return
	}
	memguard.WipeBytes(k.buf)
	if k.locked {
		_ = munlock(k.buf)
		k.locked = false
	}
	k.buf = nil
}

// WipeBytes overwrites b with zeros.
func WipeBytes(b []byte) {
	memguard.WipeBytes(b)
}
