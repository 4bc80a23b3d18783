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
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/awnumar/memguard"
	"github.com/rs/zerolog/log"

	"github.com/notapipeline/seal/pkg/config"
	"github.com/notapipeline/seal/pkg/envelope"
	"github.com/notapipeline/seal/pkg/tools"
)

// These functions are referenced as variables to enable them to
// be mocked in tests
var (
	getPassword func(title, description, prompt string) ([]byte, error) = func(title, description, prompt string) ([]byte, error) {
		return tools.GetPassword(title, description, prompt)
	}

	getSecret func(title, description, prompt string) ([]byte, error) = func(title, description, prompt string) ([]byte, error) {
		return tools.GetSecret(title, description, prompt)
	}

	readLine func(prompt string) ([]byte, error) = func(prompt string) ([]byte, error) {
		return tools.ReadLine(prompt)
	}

	storedPassphrase func() ([]byte, error) = func() ([]byte, error) {
		return config.StoredPassphrase()
	}

	removeFile func(name string) error = os.Remove

	// lockBuffer panics when the memory lock limit is reached. Only small
	// secrets such as passphrases may be passed to it.
	lockBuffer func(b []byte) *memguard.LockedBuffer = memguard.NewBufferFromBytes

	// nil keeps the machine's own timer
	sleep func(ctx context.Context, d time.Duration) error
)

// newPassphrase asks for a passphrase and its confirmation.
//
// With the keyring enabled the stored passphrase is used for both. The caller
// must destroy both buffers.
func newPassphrase() (passphrase, confirmation *memguard.LockedBuffer, err error) {
	var b []byte
	if cfg.Keyring {
		if b, err = storedPassphrase(); err != nil {
			return nil, nil, err
		}
		passphrase = lockBuffer(b)
		confirmation = lockBuffer(append([]byte{}, passphrase.Bytes()...))
		return passphrase, confirmation, nil
	}

	if b, err = getPassword("Encrypt", "Enter a passphrase to protect the envelope.", "Passphrase:"); err != nil {
		return nil, nil, err
	}
	passphrase = lockBuffer(b)

	if b, err = getPassword("Encrypt", "Enter the passphrase again to confirm.", "Confirm:"); err != nil {
		passphrase.Destroy()
		return nil, nil, err
	}
	confirmation = lockBuffer(b)
	return passphrase, confirmation, nil
}

// passphraseSource prompts on every attempt. A stored passphrase from the
// keyring is offered on the first attempt only.
func passphraseSource() envelope.PassphraseSource {
	var useKeyring bool = cfg.Keyring
	return envelope.PassphraseFunc(func(ctx context.Context, attempt int) ([]byte, error) {
		if useKeyring {
			useKeyring = false
			b, err := storedPassphrase()
			if err == nil {
				return b, nil
			}
			log.Debug().Err(err).Msg("Falling back to prompt")
		}
		var description string = "Enter the passphrase for the envelope."
		if attempt > 1 {
			description = fmt.Sprintf("Attempt %d. Enter the passphrase for the envelope.", attempt)
		}
		return getPassword("Decrypt", description, "Passphrase:")
	})
}

func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	return tools.WriteFile(path, data, 0600)
}

func readInput(r io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(r)
	}
	return os.ReadFile(path)
}
