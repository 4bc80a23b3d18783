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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notapipeline/seal/pkg/tools"
	"github.com/notapipeline/seal/pkg/types"
)

// sealFile encrypts content for the given profile and returns the envelope path
func (s *suite) sealFile(t *testing.T, name string, content []byte, args ...string) string {
	var (
		input      string = s.write(t, name, content)
		passphrase string = string(s.td.Passphrase)
	)
	s.answer(passphrase, passphrase)
	_, _, err := run(nil, append([]string{"encrypt", input}, args...)...)
	require.NoError(t, err)

	// Encrypt flags must not leak into the decrypt under test
	globalCmd = types.GlobalCmd{}
	return input + ".enc"
}

func TestDecryptHelloScenario(t *testing.T) {
	s, teardownSuite := setupSuite(t, "")
	defer teardownSuite(t)

	var path string = s.sealFile(t, "hello.txt", s.td.Plaintext)
	require.Equal(t, 1, s.argon.Calls())

	s.answer(string(s.td.WrongPassphrase), string(s.td.Passphrase))
	out, stderr, err := run(nil, "decrypt", path)
	require.NoError(t, err)

	assert.Equal(t, "hello", out)
	assert.Equal(t, "wrong passphrase or corrupted envelope. Attempts left: 4\n", stderr)
	assert.Equal(t, 3, s.argon.Calls())
	assert.Equal(t, []time.Duration{time.Second}, s.prompts.delays)
	if diff := pretty.Compare([]string{
		"Enter the passphrase for the envelope.",
		"Attempt 2. Enter the passphrase for the envelope.",
	}, s.prompts.descriptions); diff != "" {
		t.Errorf("diff: (-want +got)\n%s", diff)
	}
}

func TestDecryptLockout(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		attempts int
		deleted  bool
	}{
		{
			name:     "file profile aborts",
			attempts: types.FileMaxAttempts,
			deleted:  false,
		},
		{
			name:     "seed profile deletes",
			args:     []string{"--profile", "seed"},
			attempts: types.SeedMaxAttempts,
			deleted:  true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, teardownSuite := setupSuite(t, "")
			defer teardownSuite(t)

			var path string = s.sealFile(t, "seed.txt", s.td.SeedPhrase, test.args...)

			var wrong []string
			for i := 0; i < test.attempts+2; i++ {
				wrong = append(wrong, string(s.td.WrongPassphrase))
			}
			s.answer(wrong...)

			// The profile is found from the envelope magic
			out, stderr, err := run(nil, "decrypt", path)
			assert.Empty(t, out)

			var locked types.LockedError
			require.True(t, errors.As(err, &locked), "expected LockedError, got %v", err)
			assert.Equal(t, test.attempts, locked.Attempts)

			assert.Len(t, s.prompts.descriptions, test.attempts, "no prompt after lockout")
			assert.Equal(t, 1+test.attempts, s.argon.Calls(), "no derivation after lockout")
			assert.Equal(t, test.attempts-1, strings.Count(stderr, "Attempts left"))

			_, statErr := os.Stat(path)
			if test.deleted {
				assert.True(t, errors.Is(statErr, os.ErrNotExist), "envelope must be deleted")
				assert.Contains(t, stderr, "Deleted "+path)
			} else {
				assert.NoError(t, statErr, "envelope must be kept")
			}
		})
	}
}

func TestDecryptLockoutDeleteFails(t *testing.T) {
	s, teardownSuite := setupSuite(t, "")
	defer teardownSuite(t)

	var path string = s.sealFile(t, "seed.txt", s.td.SeedPhrase, "--profile", "seed")
	removeFile = func(name string) error {
		return errors.New("read-only file system")
	}

	s.answer(string(s.td.WrongPassphrase), string(s.td.WrongPassphrase), string(s.td.WrongPassphrase))
	_, _, err := run(nil, "decrypt", path)

	var locked types.LockedError
	assert.True(t, errors.As(err, &locked))
	assert.ErrorContains(t, err, "unable to delete "+path+": read-only file system")
}

func TestDecryptKeyringUsedOnce(t *testing.T) {
	s, teardownSuite := setupSuite(t, "")
	defer teardownSuite(t)

	var path string = s.sealFile(t, "notes.txt", []byte("hello"))

	s.prompts.stored = string(s.td.WrongPassphrase)
	s.answer(string(s.td.Passphrase))
	out, stderr, err := run(nil, "--keyring", "decrypt", path)
	require.NoError(t, err)

	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, s.prompts.storedCalls)
	assert.Len(t, s.prompts.descriptions, 1)
	assert.Contains(t, stderr, "Attempts left: 4")
}

func TestDecryptToFile(t *testing.T) {
	s, teardownSuite := setupSuite(t, "")
	defer teardownSuite(t)

	var (
		path   string = s.sealFile(t, "notes.txt", []byte("hello"), "--format", "armor")
		output string = filepath.Join(s.dir, "plain.txt")
	)

	s.answer(string(s.td.Passphrase))
	out, _, err := run(nil, "decrypt", path, "--output", output)
	require.NoError(t, err)
	assert.Empty(t, out)

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestDecryptRejectsBeforeDerivation(t *testing.T) {
	tests := []struct {
		name     string
		content  []byte
		args     []string
		expected error
	}{
		{
			name:     "too short",
			content:  []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00},
			expected: types.ErrEnvelopeTooShort,
		},
		{
			name:     "magic of another profile",
			content:  append([]byte{0x5E, 0xED, 0xC0, 0xDE}, make([]byte, 61)...),
			args:     []string{"--profile", "file"},
			expected: types.ErrBadMagic,
		},
		{
			name:     "unknown magic",
			content:  append([]byte{0x01, 0x02, 0x03, 0x04}, make([]byte, 61)...),
			expected: types.ErrBadMagic,
		},
		{
			name:     "legacy too short",
			content:  make([]byte, types.LegacyMinSize-1),
			args:     []string{"--legacy"},
			expected: types.ErrEnvelopeTooShort,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, teardownSuite := setupSuite(t, "")
			defer teardownSuite(t)

			var path string = s.write(t, "bad.enc", test.content)
			s.answer(string(s.td.Passphrase))

			_, _, err := run(nil, append([]string{"decrypt", path}, test.args...)...)
			assert.ErrorIs(t, err, test.expected)
			assert.Equal(t, 0, s.argon.Calls())
			assert.Empty(t, s.prompts.descriptions, "no passphrase is asked for")
		})
	}
}

func TestDecryptCancelled(t *testing.T) {
	s, teardownSuite := setupSuite(t, "")
	defer teardownSuite(t)

	var path string = s.sealFile(t, "notes.txt", []byte("hello"))
	s.answer()

	_, _, err := run(nil, "decrypt", path)
	assert.ErrorIs(t, err, tools.ErrCancelled)
	assert.Equal(t, 1, s.argon.Calls())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
