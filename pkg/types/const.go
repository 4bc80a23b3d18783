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
package types

// Envelope layout
//
//	| 0  | 4        | Magic      |
//	| 4  | 16       | Salt       |
//	| 20 | 24       | Nonce      |
//	| 44 | variable | Ciphertext |
//	| -16| 16       | Tag        |
const (
	MagicSize  = 4
	SaltSize   = 16
	NonceSize  = 24
	KeySize    = 32
	TagSize    = 16
	HeaderSize = MagicSize + SaltSize + NonceSize

	// MinEnvelopeSize is the smallest byte sequence that can be parsed as an
	// envelope. Anything shorter is rejected before a key is derived.
	MinEnvelopeSize = HeaderSize + TagSize

	MinPassphraseLength = 12
)

// Attempt bounds for the built in profiles
const (
	FileMaxAttempts = 5
	SeedMaxAttempts = 3
)

const (
	ProfileFile = "file"
	ProfileSeed = "seed"
)

// EnvelopeKDF is part of the envelope protocol. Changing any of these values
// makes every existing envelope undecryptable.
var EnvelopeKDF KDFParams = KDFParams{
	Time:    6,
	Memory:  1 << 20, // 1 GiB
	Threads: 4,
	KeyLen:  KeySize,
}

// ExpansionKDF is the stage one derivation of the expansion pipeline.
var ExpansionKDF KDFParams = KDFParams{
	Time:    4,
	Memory:  64 * 1024, // 64 MiB
	Threads: 1,
	KeyLen:  64,
}

// Legacy AES-256-GCM envelope layout
//
//	<salt 16><nonce 12><tag 16><ciphertext>
//
// The ciphertext decrypts to a SHA-256 checksum of the plaintext followed by
// the plaintext.
const (
	LegacyNonceSize    = 12
	LegacyChecksumSize = 32
	LegacyHeaderSize   = SaltSize + LegacyNonceSize + TagSize
	LegacyMinSize      = LegacyHeaderSize + LegacyChecksumSize
)

// LegacyKDF derives the legacy key before it is hashed with SHA-256
var LegacyKDF KDFParams = KDFParams{
	Time:    6,
	Memory:  256 * 1024, // 256 MiB
	Threads: 4,
	KeyLen:  KeySize,
}
