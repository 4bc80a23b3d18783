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
package envelope

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/notapipeline/seal/pkg/crypto"
	"github.com/notapipeline/seal/pkg/secure"
	"github.com/notapipeline/seal/pkg/types"
)

// State of a decrypt attempt machine
//
//	Ready -> Deriving -> Verifying -> Success
//	                              \-> Retry -> Deriving ...
//	                              \-> Locked
type State int

const (
	StateReady State = iota
	StateDeriving
	StateVerifying
	StateSuccess
	StateRetry
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDeriving:
		return "deriving"
	case StateVerifying:
		return "verifying"
	case StateSuccess:
		return "success"
	case StateRetry:
		return "retry"
	case StateLocked:
		return "locked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// PassphraseSource supplies a passphrase for each attempt. attempt starts at 1.
//
// The machine wipes the returned slice once the attempt completes.
type PassphraseSource interface {
	Passphrase(ctx context.Context, attempt int) ([]byte, error)
}

// PassphraseFunc adapts a function to a PassphraseSource
type PassphraseFunc func(ctx context.Context, attempt int) ([]byte, error)

func (f PassphraseFunc) Passphrase(ctx context.Context, attempt int) ([]byte, error) {
	return f(ctx, attempt)
}

type Option func(m *Machine)

// WithTransition registers fn to be called on every state change
func WithTransition(fn func(from, to State)) Option {
	return func(m *Machine) {
		m.onTransition = fn
	}
}

// WithLockout registers the action taken by the calling context when the
// machine locks. fn receives the profile's lockout policy.
func WithLockout(fn func(policy types.LockoutPolicy) error) Option {
	return func(m *Machine) {
		m.onLockout = fn
	}
}

// WithFailure registers fn to be called after every failed attempt
func WithFailure(fn func(err types.AuthenticationError)) Option {
	return func(m *Machine) {
		m.onFailure = fn
	}
}

// WithSleep replaces the delay used between failed attempts
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Machine) {
		m.sleep = fn
	}
}

// Target is a sealed container the machine can make attempts against.
//
// OpenWith must return crypto.ErrOpen when the key does not authenticate the
// container. Any other error ends the run.
type Target interface {
	DeriveKey(passphrase []byte) (*secure.Key, error)
	OpenWith(key *secure.Key) ([]byte, error)
}

// Machine governs bounded retry against a single envelope. The attempt
// counter lives for as long as the machine.
type Machine struct {
	target   Target
	profile  types.Profile
	state    State
	attempts int

	delay        *backoff.ExponentialBackOff
	sleep        func(ctx context.Context, d time.Duration) error
	onTransition func(from, to State)
	onLockout    func(policy types.LockoutPolicy) error
	onFailure    func(err types.AuthenticationError)
}

func NewMachine(t Target, p types.Profile, opts ...Option) *Machine {
	var m *Machine = &Machine{
		target:  t,
		profile: p,
		state:   StateReady,
		sleep:   sleepContext,
	}

	if p.RetryDelay > 0 {
		m.delay = backoff.NewExponentialBackOff()
		m.delay.InitialInterval = p.RetryDelay
		m.delay.RandomizationFactor = 0
		m.delay.Multiplier = 2
		m.delay.MaxInterval = 30 * time.Second
		m.delay.MaxElapsedTime = 0
		m.delay.Reset()
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) State() State {
	return m.state
}

// Attempts is the number of failed attempts so far
func (m *Machine) Attempts() int {
	return m.attempts
}

func (m *Machine) Remaining() int {
	if r := m.profile.MaxAttempts - m.attempts; r > 0 {
		return r
	}
	return 0
}

// Attempt makes one decryption attempt with passphrase.
//
// Returns types.AuthenticationError while attempts remain and
// types.LockedError on the attempt that exhausts them. Once locked, every call
// returns types.LockedError without deriving a key. Derivation and memory
// lock failures are returned as they are and do not count as attempts.
func (m *Machine) Attempt(passphrase []byte) ([]byte, error) {
	switch m.state {
	case StateLocked:
		return nil, types.LockedError{Attempts: m.attempts}
	case StateSuccess:
		return nil, fmt.Errorf("envelope has already been opened")
	}

	m.transition(StateDeriving)
	key, err := m.target.DeriveKey(passphrase)
	if err != nil {
		m.transition(StateReady)
		return nil, err
	}

	m.transition(StateVerifying)
	plaintext, err := m.verify(key)
	switch {
	case err == nil:
		m.transition(StateSuccess)
		return plaintext, nil
	case !errors.Is(err, crypto.ErrOpen):
		m.transition(StateReady)
		return nil, err
	}

	m.attempts++
	if m.attempts >= m.profile.MaxAttempts {
		m.transition(StateLocked)
		return nil, types.LockedError{Attempts: m.attempts}
	}

	m.transition(StateRetry)
	return nil, types.AuthenticationError{
		Attempt:   m.attempts,
		Remaining: m.Remaining(),
	}
}

func (m *Machine) verify(key *secure.Key) ([]byte, error) {
	defer key.Destroy()
	return m.target.OpenWith(key)
}

// Run asks src for passphrases until the envelope opens, the machine locks or
// a fatal error occurs. Cancellation of ctx is observed between attempts.
func (m *Machine) Run(ctx context.Context, src PassphraseSource) ([]byte, error) {
	for {
		if m.state == StateLocked {
			return nil, types.LockedError{Attempts: m.attempts}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		passphrase, err := src.Passphrase(ctx, m.attempts+1)
		if err != nil {
			return nil, err
		}

		var plaintext []byte
		plaintext, err = m.Attempt(passphrase)
		secure.WipeBytes(passphrase)

		var (
			authErr   types.AuthenticationError
			lockedErr types.LockedError
		)
		switch {
		case err == nil:
			return plaintext, nil
		case errors.As(err, &lockedErr):
			if m.onLockout != nil {
				if lerr := m.onLockout(m.profile.Lockout); lerr != nil {
					return nil, errors.Join(err, lerr)
				}
			}
			return nil, err
		case errors.As(err, &authErr):
			if m.onFailure != nil {
				m.onFailure(authErr)
			}
			if err = m.wait(ctx); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
}

func (m *Machine) wait(ctx context.Context) error {
	if m.delay == nil {
		return nil
	}
	var d time.Duration = m.delay.NextBackOff()
	if d == backoff.Stop {
		return nil
	}
	return m.sleep(ctx, d)
}

func (m *Machine) transition(to State) {
	var from State = m.state
	m.state = to
	if m.onTransition != nil && from != to {
		m.onTransition(from, to)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	var t *time.Timer = time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
