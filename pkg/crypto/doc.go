/*
Package crypto orchestrates the primitives used by seal: Argon2id key
derivation, XChaCha20-Poly1305 authenticated encryption, SHA-512 and
HMAC-SHA-512.

Derived keys are always returned as a *secure.Key. The key memory is locked
before Argon2id runs and the raw derivation output is moved into it and wiped,
so the only copy of the key lives in locked memory. The caller owns the key
and must destroy it before returning:

	package main

	import (
		"fmt"

		"github.com/notapipeline/seal/pkg/crypto"
		"github.com/notapipeline/seal/pkg/types"
	)

	func main() {
		var (
			passphrase = []byte("correct horse battery staple")
			salt, _    = crypto.RandomBytes(types.SaltSize)
			nonce, _   = crypto.RandomBytes(types.NonceSize)
		)

		key, err := crypto.DeriveKey(passphrase, salt, types.EnvelopeKDF)
		if err != nil {
			panic(err)
		}
		defer key.Destroy()

		sealed, err := crypto.Seal(key, nonce, []byte("hello"))
		if err != nil {
			panic(err)
		}

		plaintext, err := crypto.Open(key, nonce, sealed)
		if err != nil {
			panic(err) // crypto.ErrOpen
		}
		fmt.Println(string(plaintext)) // "hello"
	}

The Argon2id cost parameters in types.EnvelopeKDF are part of the envelope
format. They are not configurable.
*/
package crypto
