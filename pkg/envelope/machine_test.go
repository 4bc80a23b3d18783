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
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notapipeline/seal/pkg/crypto"
	"github.com/notapipeline/seal/pkg/types"
	"github.com/notapipeline/seal/testdata"
)

func noSleep(ctx context.Context, d time.Duration) error {
	return nil
}

func wrong(ctx context.Context, attempt int) ([]byte, error) {
	return []byte(fmt.Sprintf("not the passphrase %d", attempt)), nil
}

func machine(t *testing.T, p types.Profile, opts ...Option) *Machine {
	t.Helper()
	e, err := Parse(seal(t, p), p.Magic)
	require.NoError(t, err)
	return NewMachine(e, p, append([]Option{WithSleep(noSleep)}, opts...)...)
}

func TestMachineLockout(t *testing.T) {
	tests := []struct {
		name    string
		profile types.Profile
		policy  types.LockoutPolicy
	}{
		{
			name:    "file profile",
			profile: types.FileProfile(),
			policy:  types.LockoutAbort,
		},
		{
			name:    "seed profile",
			profile: types.SeedProfile(),
			policy:  types.LockoutDelete,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			argon, restore := testdata.CheapArgon2()
			defer restore()

			var (
				policies []types.LockoutPolicy
				prompts  int
			)
			m := machine(t, test.profile, WithLockout(func(p types.LockoutPolicy) error {
				policies = append(policies, p)
				return nil
			}))
			before := argon.Calls()

			_, err := m.Run(context.Background(), PassphraseFunc(func(ctx context.Context, attempt int) ([]byte, error) {
				prompts++
				return wrong(ctx, attempt)
			}))

			var le types.LockedError
			require.True(t, errors.As(err, &le), "expected LockedError, got %v", err)
			assert.Equal(t, test.profile.MaxAttempts, le.Attempts)
			assert.Equal(t, fmt.Sprintf("too many failed attempts (%d). Aborted", test.profile.MaxAttempts), err.Error())
			assert.Equal(t, test.profile.MaxAttempts, prompts)
			assert.Equal(t, test.profile.MaxAttempts, argon.Calls()-before)
			assert.Equal(t, []types.LockoutPolicy{test.policy}, policies)
			assert.Equal(t, StateLocked, m.State())
			assert.Equal(t, 0, m.Remaining())

			// Locked is terminal, even for the right passphrase
			before = argon.Calls()
			plaintext, err := m.Attempt(td.Passphrase)
			assert.Nil(t, plaintext)
			assert.True(t, errors.As(err, &le))
			assert.Equal(t, before, argon.Calls())

			_, err = m.Run(context.Background(), PassphraseFunc(wrong))
			assert.True(t, errors.As(err, &le))
			assert.Equal(t, before, argon.Calls())
		})
	}
}

func TestMachineAttemptCounter(t *testing.T) {
	_, restore := testdata.CheapArgon2()
	defer restore()

	m := machine(t, types.FileProfile())
	for i := 1; i < types.FileMaxAttempts; i++ {
		_, err := m.Attempt([]byte("incorrect passphrase"))

		var ae types.AuthenticationError
		require.True(t, errors.As(err, &ae), "attempt %d: %v", i, err)
		if diff := pretty.Compare(types.AuthenticationError{Attempt: i, Remaining: types.FileMaxAttempts - i}, ae); diff != "" {
			t.Errorf("attempt %d: diff: (-want +got)\n%s", i, diff)
		}
		assert.Equal(t, StateRetry, m.State())
	}

	_, err := m.Attempt([]byte("incorrect passphrase"))
	assert.ErrorAs(t, err, &types.LockedError{})
	assert.Equal(t, types.FileMaxAttempts, m.Attempts())
}

func TestMachineTransitions(t *testing.T) {
	_, restore := testdata.CheapArgon2()
	defer restore()

	var got []string
	m := machine(t, types.FileProfile(), WithTransition(func(from, to State) {
		got = append(got, from.String()+">"+to.String())
	}))

	_, err := m.Attempt(td.WrongPassphrase)
	require.Error(t, err)
	plaintext, err := m.Attempt(td.Passphrase)
	require.NoError(t, err)
	assert.Equal(t, td.Plaintext, plaintext)

	expected := []string{
		"ready>deriving",
		"deriving>verifying",
		"verifying>retry",
		"retry>deriving",
		"deriving>verifying",
		"verifying>success",
	}
	if diff := pretty.Compare(expected, got); diff != "" {
		t.Errorf("diff: (-want +got)\n%s", diff)
	}

	_, err = m.Attempt(td.Passphrase)
	assert.Error(t, err)
}

func TestMachineDerivationFailureIsFatal(t *testing.T) {
	_, restore := testdata.CheapArgon2()
	defer restore()

	m := machine(t, types.FileProfile())

	crypto.IDKey = func(password, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte {
		panic("cannot allocate memory")
	}

	var prompts int
	_, err := m.Run(context.Background(), PassphraseFunc(func(ctx context.Context, attempt int) ([]byte, error) {
		prompts++
		return append([]byte{}, td.Passphrase...), nil
	}))

	var de types.DerivationError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, 1, prompts)
	assert.Equal(t, 0, m.Attempts())
	assert.Equal(t, StateReady, m.State())
}

func TestMachineWipesPassphrase(t *testing.T) {
	_, restore := testdata.CheapArgon2()
	defer restore()

	var given [][]byte
	m := machine(t, types.SeedProfile())
	_, err := m.Run(context.Background(), PassphraseFunc(func(ctx context.Context, attempt int) ([]byte, error) {
		b, _ := wrong(ctx, attempt)
		given = append(given, b)
		return b, nil
	}))
	require.Error(t, err)

	require.Len(t, given, types.SeedMaxAttempts)
	for i, b := range given {
		for _, c := range b {
			if c != 0 {
				t.Errorf("passphrase %d was not wiped", i)
				break
			}
		}
	}
}

func TestMachineBackoff(t *testing.T) {
	_, restore := testdata.CheapArgon2()
	defer restore()

	var delays []time.Duration
	p := types.FileProfile()
	p.RetryDelay = 100 * time.Millisecond

	m := machine(t, p, WithSleep(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}))
	_, err := m.Run(context.Background(), PassphraseFunc(wrong))
	assert.ErrorAs(t, err, &types.LockedError{})

	// No delay follows the locking attempt
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}, delays)

	p.RetryDelay = 0
	delays = nil
	m = machine(t, p, WithSleep(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}))
	_, _ = m.Run(context.Background(), PassphraseFunc(wrong))
	assert.Empty(t, delays)
}

func TestMachineContext(t *testing.T) {
	_, restore := testdata.CheapArgon2()
	defer restore()

	ctx, cancel := context.WithCancel(context.Background())
	m := machine(t, types.FileProfile())

	_, err := m.Run(ctx, PassphraseFunc(func(ctx context.Context, attempt int) ([]byte, error) {
		cancel()
		return wrong(ctx, attempt)
	}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.Attempts())

	var errPrompt = errors.New("prompt closed")
	m = machine(t, types.FileProfile())
	_, err = m.Run(context.Background(), PassphraseFunc(func(ctx context.Context, attempt int) ([]byte, error) {
		return nil, errPrompt
	}))
	assert.ErrorIs(t, err, errPrompt)
	assert.Equal(t, StateReady, m.State())
}

func TestMachineLockoutHookError(t *testing.T) {
	_, restore := testdata.CheapArgon2()
	defer restore()

	var errRemove = errors.New("permission denied")
	m := machine(t, types.SeedProfile(), WithLockout(func(p types.LockoutPolicy) error {
		return errRemove
	}))

	_, err := m.Run(context.Background(), PassphraseFunc(wrong))
	assert.ErrorIs(t, err, errRemove)
	assert.ErrorAs(t, err, &types.LockedError{})
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "locked", StateLocked.String())
	assert.Equal(t, "State(42)", State(42).String())
}
