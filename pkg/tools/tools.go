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
package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/twpayne/go-pinentry"
)

var (
	ErrCancelled    = errors.New("cancelled")
	ErrNoPassphrase = errors.New("no passphrase provided")
)

// ReadPassword reads a password from the user via STDIN
func ReadPassword(prompt string) ([]byte, error) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()
	var (
		password string
		err      error
	)
	if password, err = line.PasswordPrompt(prompt); err != nil {
		if err == liner.ErrPromptAborted {
			return nil, ErrCancelled
		}
		return nil, err
	}
	return []byte(password), nil
}

// ReadLine reads a line of text from the user via STDIN
func ReadLine(prompt string) ([]byte, error) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()
	var (
		text string
		err  error
	)
	if text, err = line.Prompt(prompt); err != nil {
		if err == liner.ErrPromptAborted {
			return nil, ErrCancelled
		}
		return nil, err
	}
	return []byte(text), nil
}

// GetPassword gets a password from the user
//
// This is a mockable entry point for testing and wraps the password function.
var GetPassword func(title, description, prompt string) ([]byte, error) = password

// GetSecret gets a value from the user exactly as it was typed
//
// This is a mockable entry point for testing and wraps the secret function.
var GetSecret func(title, description, prompt string) ([]byte, error) = secret

// password reads a secret and strips surrounding whitespace. Empty input is
// rejected.
func password(title, description, prompt string) ([]byte, error) {
	var (
		err error
		b   []byte
	)
	if b, err = secret(title, description, prompt); err != nil {
		return nil, err
	}

	b = []byte(strings.TrimSpace(string(b)))
	if len(b) == 0 {
		return nil, ErrNoPassphrase
	}
	return b, nil
}

// secret asks the user for a value using pinentry if available and falls
// back to stdin if not. The value is returned unmodified and may be empty.
func secret(title, description, prompt string) ([]byte, error) {
	var (
		err    error
		client *pinentry.Client
		value  []byte
	)

	if client, err = GetPinentry(
		pinentry.WithBinaryNameFromGnuPGAgentConf(),
		pinentry.WithDesc(description),
		pinentry.WithGPGTTY(),
		pinentry.WithPrompt(prompt),
		pinentry.WithTitle(title),
	); err != nil {
		if value, err = readPassword(prompt + " "); err != nil {
			return nil, err
		}
		return value, nil
	}

	defer client.Close()
	var pin string
	if pin, _, err = client.GetPIN(); err != nil {
		if pinentry.IsCancelled(err) {
			return nil, ErrCancelled
		}
		return nil, err
	}
	return []byte(pin), nil
}

// GetPinentry gets a pinentry client
//
// This is a mockable entry point for testing and wraps the pinentry client.
var GetPinentry func(options ...pinentry.ClientOption) (c *pinentry.Client, err error) = func(options ...pinentry.ClientOption) (c *pinentry.Client, err error) {
	return pinentry.NewClient(options...)
}

var readPassword func(prompt string) ([]byte, error) = func(prompt string) ([]byte, error) {
	return ReadPassword(prompt)
}

// WriteFile writes data to a temporary file beside path and renames it into
// place so readers never observe a partial file.
func WriteFile(path string, data []byte, perm os.FileMode) (err error) {
	var (
		dir  string = filepath.Dir(path)
		tmp  string = filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
		file *os.File
	)

	if file, err = os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm); err != nil {
		return fmt.Errorf("unable to create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = file.Write(data); err != nil {
		return fmt.Errorf("unable to write %s: %w", tmp, err)
	}
	if err = file.Sync(); err != nil {
		return fmt.Errorf("unable to sync %s: %w", tmp, err)
	}
	if err = file.Close(); err != nil {
		return fmt.Errorf("unable to close %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("unable to rename %s to %s: %w", tmp, path, err)
	}
	return nil
}
