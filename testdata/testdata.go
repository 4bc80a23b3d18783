/*
 *   Copyright 2022 Martin Proffitt <mproffitt@choclab.net>
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

package testdata

import (
	"sync/atomic"

	"github.com/notapipeline/seal/pkg/crypto"
	"golang.org/x/crypto/argon2"
)

type TestData struct {
	Passphrase      []byte
	WrongPassphrase []byte
	Plaintext       []byte
	SeedPhrase      []byte
	Password        []byte
	Salt            []byte
}

func New() *TestData {
	return &TestData{
		Passphrase:      []byte("supersecretpass123"),
		WrongPassphrase: []byte("supersecretpass124"),
		Plaintext:       []byte("hello"),
		SeedPhrase: []byte("abandon ability able about above absent " +
			"absorb abstract absurd abuse access accident"),
		Password: []byte("correct horse battery staple"),
		Salt:     []byte("NaCl"),
	}
}

// Argon2 counts calls made through crypto.IDKey
type Argon2 struct {
	calls atomic.Int32
	// Params of the most recent call
	Time, Memory uint32
	Threads      uint8
}

func (a *Argon2) Calls() int {
	return int(a.calls.Load())
}

// CheapArgon2 replaces crypto.IDKey with a minimum cost Argon2id that
// preserves the requested key length and thread count. The returned function
// restores the real provider.
func CheapArgon2() (*Argon2, func()) {
	var (
		a        *Argon2 = &Argon2{}
		original          = crypto.IDKey
	)

	crypto.IDKey = func(password, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte {
		a.calls.Add(1)
		a.Time, a.Memory, a.Threads = time, memory, threads
		return argon2.IDKey(password, salt, 1, 8*uint32(threads), threads, keyLen)
	}

	return a, func() {
		crypto.IDKey = original
	}
}
