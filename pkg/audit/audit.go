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

// Package audit configures logging and records what happened to an
// envelope. Events never carry key material, passphrases or plaintext.
package audit

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/notapipeline/seal/pkg/types"
)

type Action string

const (
	ActionEncrypt Action = "encrypt"
	ActionDecrypt Action = "decrypt"
	ActionFailed  Action = "failed_attempt"
	ActionLockout Action = "lockout"
	ActionDelete  Action = "delete"
)

// These functions are referenced as variables to enable them to
// be mocked in tests
var (
	journalEnabled func() bool                                             = journal.Enabled
	journalSend    func(string, journal.Priority, map[string]string) error = journal.Send
	output         io.Writer                                               = os.Stderr
)

// Setup configures the global logger. Quiet wins over debug.
func Setup(debug, quiet bool) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()

	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.Disabled)
	case debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Event is a single audit record
type Event struct {
	Action    Action
	Operation string
	Path      string
	Profile   string
	Attempt   int
	Remaining int
	Lockout   types.LockoutPolicy
}

// Trail groups the events of one operation under a shared id
type Trail struct {
	id      string
	path    string
	profile string
}

func NewTrail(path, profile string) *Trail {
	return &Trail{
		id:      uuid.NewString(),
		path:    path,
		profile: profile,
	}
}

func (t *Trail) ID() string {
	return t.id
}

func (t *Trail) event(action Action) Event {
	return Event{
		Action:    action,
		Operation: t.id,
		Path:      t.path,
		Profile:   t.profile,
	}
}

func (t *Trail) Encrypted() {
	Emit(t.event(ActionEncrypt))
}

func (t *Trail) Decrypted(attempts int) {
	e := t.event(ActionDecrypt)
	e.Attempt = attempts
	Emit(e)
}

func (t *Trail) Failed(err types.AuthenticationError) {
	e := t.event(ActionFailed)
	e.Attempt = err.Attempt
	e.Remaining = err.Remaining
	Emit(e)
}

func (t *Trail) Locked(attempts int, policy types.LockoutPolicy) {
	e := t.event(ActionLockout)
	e.Attempt = attempts
	e.Lockout = policy
	Emit(e)
}

func (t *Trail) Deleted() {
	Emit(t.event(ActionDelete))
}

func (e Event) message() string {
	switch e.Action {
	case ActionEncrypt:
		return fmt.Sprintf("Encrypted %s", e.Path)
	case ActionDecrypt:
		return fmt.Sprintf("Decrypted %s", e.Path)
	case ActionFailed:
		return fmt.Sprintf("Failed attempt %d on %s", e.Attempt, e.Path)
	case ActionLockout:
		return fmt.Sprintf("Locked %s after %d attempts", e.Path, e.Attempt)
	case ActionDelete:
		return fmt.Sprintf("Deleted %s", e.Path)
	}
	return string(e.Action)
}

func (e Event) priority() journal.Priority {
	switch e.Action {
	case ActionFailed:
		return journal.PriWarning
	case ActionLockout, ActionDelete:
		return journal.PriCrit
	}
	return journal.PriInfo
}

func (e Event) fields() map[string]string {
	var fields map[string]string = map[string]string{
		"SEAL_ACTION":    string(e.Action),
		"SEAL_OPERATION": e.Operation,
		"SEAL_PATH":      e.Path,
		"SEAL_PROFILE":   e.Profile,
	}
	switch e.Action {
	case ActionFailed:
		fields["SEAL_ATTEMPT"] = strconv.Itoa(e.Attempt)
		fields["SEAL_REMAINING"] = strconv.Itoa(e.Remaining)
	case ActionDecrypt:
		fields["SEAL_ATTEMPT"] = strconv.Itoa(e.Attempt)
	case ActionLockout:
		fields["SEAL_ATTEMPT"] = strconv.Itoa(e.Attempt)
		fields["SEAL_LOCKOUT"] = e.Lockout.String()
	}
	return fields
}

// Emit logs the event and forwards it to journald when available
func Emit(e Event) {
	var entry *zerolog.Event
	switch e.priority() {
	case journal.PriWarning:
		entry = log.Warn()
	case journal.PriCrit:
		entry = log.Error()
	default:
		entry = log.Info()
	}

	fields := e.fields()
	for _, k := range []string{"SEAL_ACTION", "SEAL_OPERATION", "SEAL_PATH", "SEAL_PROFILE", "SEAL_ATTEMPT", "SEAL_REMAINING", "SEAL_LOCKOUT"} {
		if v, ok := fields[k]; ok {
			entry = entry.Str(fieldName(k), v)
		}
	}
	entry.Msg(e.message())

	if !journalEnabled() {
		return
	}
	if err := journalSend(e.message(), e.priority(), fields); err != nil {
		log.Debug().Err(err).Msg("Unable to write to journal")
	}
}

// SEAL_OPERATION -> operation
func fieldName(k string) string {
	return strings.ToLower(strings.TrimPrefix(k, "SEAL_"))
}
