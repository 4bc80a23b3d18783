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

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPlaintext     = errors.New("input is empty")
	ErrPassphraseMismatch = errors.New("passphrases do not match")
	ErrPassphraseTooShort = fmt.Errorf("passphrase must be at least %d characters", MinPassphraseLength)
	ErrEnvelopeTooShort   = errors.New("invalid or too short envelope")
	ErrBadMagic           = errors.New("invalid envelope magic")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
)

// ValidationError is returned for any input that is rejected before key
// material is derived.
type ValidationError struct {
	Err error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Err)
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

// DerivationError is fatal for the operation in progress and never retried.
type DerivationError struct {
	Err error
}

func (e DerivationError) Error() string {
	return fmt.Sprintf("key derivation failed: %s", e.Err)
}

func (e DerivationError) Unwrap() error {
	return e.Err
}

// SecurityError reports a failure to protect key material in memory.
type SecurityError struct {
	Err error
}

func (e SecurityError) Error() string {
	return fmt.Sprintf("failed to lock memory: %s", e.Err)
}

func (e SecurityError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned when the AEAD tag does not verify.
//
// The error carries no information about the passphrase used.
type AuthenticationError struct {
	Attempt   int
	Remaining int
}

func (e AuthenticationError) Error() string {
	return fmt.Sprintf("wrong passphrase or corrupted envelope. Attempts left: %d", e.Remaining)
}

// LockedError is terminal. No further attempts are made against the envelope.
type LockedError struct {
	Attempts int
}

func (e LockedError) Error() string {
	return fmt.Sprintf("too many failed attempts (%d). Aborted", e.Attempts)
}

type UnknownProfileError struct {
	Name string
}

func (e UnknownProfileError) Error() string {
	return fmt.Sprintf("unknown profile %q", e.Name)
}

type InvalidMagicError struct {
	Value string
}

func (e InvalidMagicError) Error() string {
	return fmt.Sprintf("magic must be %d hex encoded bytes: %q", MagicSize, e.Value)
}
