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
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// KDFParams are the Argon2id cost parameters. Memory is in KiB.
type KDFParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// Magic - the four byte format discriminator written at offset 0 of every
// envelope.
type Magic [MagicSize]byte

var (
	FileMagic Magic = Magic{0xDE, 0xAD, 0xBE, 0xEF}
	SeedMagic Magic = Magic{0x5E, 0xED, 0xC0, 0xDE}
)

// ParseMagic - convert a hex string such as "deadbeef" into a Magic
func ParseMagic(s string) (m Magic, err error) {
	var b []byte
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if b, err = hex.DecodeString(s); err != nil || len(b) != MagicSize {
		return m, InvalidMagicError{Value: s}
	}
	copy(m[:], b)
	return m, nil
}

func (m Magic) String() string {
	return hex.EncodeToString(m[:])
}

func (m Magic) IsZero() bool {
	return m == Magic{}
}

func (m Magic) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Magic) UnmarshalText(text []byte) (err error) {
	*m, err = ParseMagic(string(text))
	return
}

func (m Magic) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

func (m *Magic) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return m.UnmarshalText([]byte(s))
}

// LockoutPolicy - what the calling context does once an envelope is locked.
type LockoutPolicy int

const (
	// LockoutAbort reports failure and leaves the envelope in place
	LockoutAbort LockoutPolicy = iota
	// LockoutDelete removes the source envelope. Irrecoverable.
	LockoutDelete
)

func (p LockoutPolicy) String() string {
	switch p {
	case LockoutAbort:
		return "abort"
	case LockoutDelete:
		return "delete"
	}
	return fmt.Sprintf("LockoutPolicy(%d)", int(p))
}

func (p LockoutPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *LockoutPolicy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "abort":
		*p = LockoutAbort
	case "delete":
		*p = LockoutDelete
	default:
		return fmt.Errorf("unknown lockout policy %q", text)
	}
	return nil
}

func (p LockoutPolicy) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p *LockoutPolicy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return p.UnmarshalText([]byte(s))
}

// Profile - a deployment profile binds an envelope discriminator to a retry
// bound and lockout behaviour.
type Profile struct {
	Name        string        `yaml:"-"`
	Magic       Magic         `yaml:"magic"`
	MaxAttempts int           `yaml:"max_attempts"`
	Lockout     LockoutPolicy `yaml:"lockout"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// FileProfile is used for general files
func FileProfile() Profile {
	return Profile{
		Name:        ProfileFile,
		Magic:       FileMagic,
		MaxAttempts: FileMaxAttempts,
		Lockout:     LockoutAbort,
		RetryDelay:  time.Second,
	}
}

// SeedProfile is used for seed phrases. Repeated failures are treated as a
// compromise signal and the envelope is deleted.
func SeedProfile() Profile {
	return Profile{
		Name:        ProfileSeed,
		Magic:       SeedMagic,
		MaxAttempts: SeedMaxAttempts,
		Lockout:     LockoutDelete,
		RetryDelay:  time.Second,
	}
}

func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile has no name")
	}
	if p.Magic.IsZero() {
		return fmt.Errorf("profile %q: magic must not be zero", p.Name)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("profile %q: max_attempts must be at least 1, got %d", p.Name, p.MaxAttempts)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("profile %q: retry_delay must not be negative", p.Name)
	}
	switch p.Lockout {
	case LockoutAbort, LockoutDelete:
	default:
		return fmt.Errorf("profile %q: unsupported lockout policy %s", p.Name, p.Lockout)
	}
	return nil
}
