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

// Package expand turns a (password, salt) pair into a long deterministic
// string drawn from a 90 symbol printable alphabet.
//
// The pipeline runs in five stages:
//
//  1. Argon2id (t=4, m=64 MiB, 1 lane, 64 bytes) over the password and a
//     16 byte zero padded copy of the salt
//  2. bit chaining, where every password byte is appended to the state and
//     the state rehashed popcount(byte) + i%7 times with SHA-512
//  3. HMAC-SHA-512 keyed by the chained state over the raw salt
//  4. base-90 encoding of the digest
//  5. extension by HMAC-SHA-512 keyed by the output so far over the stage 4
//     string, repeated until the target length is reached
package expand

import (
	"fmt"
	"math/big"
	"math/bits"
	"strconv"

	"github.com/notapipeline/seal/pkg/crypto"
	"github.com/notapipeline/seal/pkg/secure"
	"github.com/notapipeline/seal/pkg/types"
)

const DefaultLength = 4096

// Alphabet is printable ASCII 33 to 126 without the quote characters and
// the backslash.
var Alphabet string = func() string {
	var b []byte = make([]byte, 0, 90)
	for c := byte(33); c < 127; c++ {
		switch c {
		case '"', '\'', '`', '\\':
			continue
		}
		b = append(b, c)
	}
	return string(b)
}()

// Encoding selects how digests are converted to the alphabet
type Encoding int

const (
	// EncodingCompat only encodes the trailing 8 bytes of each digest.
	// This reproduces outputs generated by earlier releases.
	EncodingCompat Encoding = iota
	// EncodingFull encodes the whole digest
	EncodingFull
)

func (e Encoding) String() string {
	switch e {
	case EncodingCompat:
		return "compat"
	case EncodingFull:
		return "full"
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

type Option func(p *Pipeline)

func WithLength(n int) Option {
	return func(p *Pipeline) {
		p.length = n
	}
}

func WithEncoding(e Encoding) Option {
	return func(p *Pipeline) {
		p.encoding = e
	}
}

type Pipeline struct {
	length   int
	encoding Encoding
}

func New(opts ...Option) *Pipeline {
	var p *Pipeline = &Pipeline{
		length:   DefaultLength,
		encoding: EncodingCompat,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Length() int {
	return p.length
}

func (p *Pipeline) Encoding() Encoding {
	return p.encoding
}

// Expand is shorthand for New(opts...).Expand(password, salt)
func Expand(password, salt []byte, opts ...Option) (string, error) {
	return New(opts...).Expand(password, salt)
}

// Expand runs all five stages. Identical inputs and options always produce
// identical output. If stage one fails no output is produced.
func (p *Pipeline) Expand(password, salt []byte) (string, error) {
	if p.length < 1 {
		return "", types.ValidationError{Err: fmt.Errorf("length must be at least 1, got %d", p.length)}
	}
	switch p.encoding {
	case EncodingCompat, EncodingFull:
	default:
		return "", types.ValidationError{Err: fmt.Errorf("unsupported encoding %s", p.encoding)}
	}

	var padded [types.SaltSize]byte
	copy(padded[:], salt)

	key, err := crypto.DeriveKey(password, padded[:], types.ExpansionKDF)
	if err != nil {
		return "", err
	}
	var state []byte = Chain(key.Bytes(), password)
	key.Destroy()

	var mixed []byte = crypto.HMAC512(state, salt)
	secure.WipeBytes(state)

	var encoded string = p.Encode(mixed)
	secure.WipeBytes(mixed)

	return p.Extend(encoded), nil
}

// Chain folds password into state one byte at a time. The returned slice is
// a new allocation and state is not modified.
func Chain(state, password []byte) []byte {
	var acc []byte = append([]byte{}, state...)
	for i, c := range password {
		var rounds int = bits.OnesCount8(c) + i%7
		acc = append(acc, c)
		for j := 0; j < rounds; j++ {
			var next []byte = crypto.Sum512(append(acc, strconv.Itoa(j)...))
			secure.WipeBytes(acc)
			acc = next
		}
	}
	return acc
}

// Encode converts data to the alphabet, most significant symbol first. Zero
// encodes as the first symbol of the alphabet.
func (p *Pipeline) Encode(data []byte) string {
	if p.encoding == EncodingFull {
		return encodeFull(data)
	}
	return encodeCompat(data)
}

// Extend appends encoded HMAC-SHA-512 blocks to encoded until it reaches the
// pipeline length, then truncates to exactly that length.
func (p *Pipeline) Extend(encoded string) string {
	var (
		original string = encoded
		out      []byte = []byte(encoded)
	)
	for len(out) < p.length {
		out = append(out, p.Encode(crypto.HMAC512(out, []byte(original)))...)
	}
	return string(out[:p.length])
}

func encodeCompat(data []byte) string {
	var num uint64
	for _, b := range data {
		num = num<<8 + uint64(b)
	}
	if num == 0 {
		return Alphabet[:1]
	}

	var (
		base uint64 = uint64(len(Alphabet))
		out  []byte
	)
	for num > 0 {
		out = append(out, Alphabet[num%base])
		num /= base
	}
	reverse(out)
	return string(out)
}

func encodeFull(data []byte) string {
	var (
		num  *big.Int = new(big.Int).SetBytes(data)
		base *big.Int = big.NewInt(int64(len(Alphabet)))
		mod  *big.Int = new(big.Int)
		out  []byte
	)
	if num.Sign() == 0 {
		return Alphabet[:1]
	}
	for num.Sign() > 0 {
		num.DivMod(num, base, mod)
		out = append(out, Alphabet[mod.Int64()])
	}
	reverse(out)
	return string(out)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
