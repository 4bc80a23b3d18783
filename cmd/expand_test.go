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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notapipeline/seal/pkg/expand"
	"github.com/notapipeline/seal/pkg/types"
)

func TestExpandCmd(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		length   int
		encoding expand.Encoding
	}{
		{
			name:     "default length",
			length:   expand.DefaultLength,
			encoding: expand.EncodingCompat,
		},
		{
			name:     "short",
			args:     []string{"--length", "64"},
			length:   64,
			encoding: expand.EncodingCompat,
		},
		{
			name:     "full precision",
			args:     []string{"-l", "200", "--full-precision"},
			length:   200,
			encoding: expand.EncodingFull,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, teardownSuite := setupSuite(t, "")
			defer teardownSuite(t)

			expected, err := expand.Expand(s.td.Password, s.td.Salt,
				expand.WithLength(test.length), expand.WithEncoding(test.encoding))
			require.NoError(t, err)

			s.answer(string(s.td.Password), string(s.td.Salt))
			out, _, err := run(nil, append([]string{"expand"}, test.args...)...)
			require.NoError(t, err)

			assert.Equal(t, expected+"\n", out)
			assert.Len(t, strings.TrimSuffix(out, "\n"), test.length)
			assert.Equal(t, []string{"Enter the password to expand.", "Enter the salt."}, s.prompts.descriptions)
		})
	}
}

func TestExpandCmdSaltPrompt(t *testing.T) {
	s, teardownSuite := setupSuite(t, "")
	defer teardownSuite(t)

	var prompted []string
	orl := readLine
	defer func() {
		readLine = orl
	}()
	readLine = func(prompt string) ([]byte, error) {
		prompted = append(prompted, prompt)
		return []byte("NaCl"), nil
	}

	expected, err := expand.Expand(s.td.Password, s.td.Salt, expand.WithLength(32))
	require.NoError(t, err)

	s.answer(string(s.td.Password))
	out, _, err := run(nil, "expand", "--length", "32", "--salt-prompt")
	require.NoError(t, err)

	assert.Equal(t, expected+"\n", out)
	assert.Equal(t, []string{"Salt: "}, prompted)
	assert.Len(t, s.prompts.descriptions, 1)
}

func TestExpandCmdInvalidLength(t *testing.T) {
	s, teardownSuite := setupSuite(t, "")
	defer teardownSuite(t)

	s.answer(string(s.td.Password), string(s.td.Salt))
	_, _, err := run(nil, "expand", "--length", "0")

	var ve types.ValidationError
	assert.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
	assert.Equal(t, 0, s.argon.Calls())
}

func TestExpandCmdRawInput(t *testing.T) {
	tests := []struct {
		name     string
		password string
		salt     string
	}{
		{
			name:     "empty salt",
			password: "correct horse",
			salt:     "",
		},
		{
			name:     "empty password",
			password: "",
			salt:     "NaCl",
		},
		{
			name:     "whitespace is kept",
			password: "  my pass  ",
			salt:     " NaCl\t",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, teardownSuite := setupSuite(t, "")
			defer teardownSuite(t)

			expected, err := expand.Expand([]byte(test.password), []byte(test.salt), expand.WithLength(64))
			require.NoError(t, err)

			s.answer(test.password, test.salt)
			out, _, err := run(nil, "expand", "--length", "64")
			require.NoError(t, err)
			assert.Equal(t, expected+"\n", out)
		})
	}

	t.Run("padding changes the result", func(t *testing.T) {
		_, teardownSuite := setupSuite(t, "")
		defer teardownSuite(t)

		padded, err := expand.Expand([]byte("  my pass  "), []byte("NaCl"), expand.WithLength(64))
		require.NoError(t, err)
		trimmed, err := expand.Expand([]byte("my pass"), []byte("NaCl"), expand.WithLength(64))
		require.NoError(t, err)
		assert.NotEqual(t, trimmed, padded)
	})
}
