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

	"github.com/awnumar/memguard"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/notapipeline/seal/pkg/audit"
	"github.com/notapipeline/seal/pkg/envelope"
	"github.com/notapipeline/seal/pkg/format"
	"github.com/notapipeline/seal/pkg/legacy"
	"github.com/notapipeline/seal/pkg/types"
)

var decryptFlags types.DecryptCmd = types.DecryptCmd{}

// decryptCmd represents the decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt [file]",
	Short: "Decrypt an envelope",
	Long: `Decrypt opens an envelope and writes the plaintext to stdout or --output.

Armored envelopes and Kubernetes secret manifests are recognised
automatically. The profile is taken from --profile, or found from the
envelope magic.

Each wrong passphrase uses up one attempt. Once the profile's attempts are
exhausted decryption aborts and, if the profile says so, the envelope file is
deleted. A passphrase from the keyring is only tried once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decryptFlags.Input = args[0]
		return decrypt(cmd)
	},
}

func init() {
	decryptCmd.Flags().StringVarP(&decryptFlags.Output, "output", "o", "", "where to write the plaintext (default stdout)")
	decryptCmd.Flags().BoolVar(&decryptFlags.Legacy, "legacy", false, "read the legacy AES-GCM envelope")
	rootCmd.AddCommand(decryptCmd)
}

func decrypt(cmd *cobra.Command) (err error) {
	var (
		data   []byte
		raw    []byte
		meta   format.Metadata
		p      types.Profile
		target envelope.Target
		ctx    context.Context = cmd.Context()
	)

	if ctx == nil {
		ctx = context.Background()
	}

	if data, err = readInput(cmd.InOrStdin(), decryptFlags.Input); err != nil {
		return fmt.Errorf("unable to read %s: %w", decryptFlags.Input, err)
	}

	var f format.Format
	if raw, f, meta, err = format.Decode(data); err != nil {
		return err
	}
	log.Debug().Str("format", string(f)).Str("path", decryptFlags.Input).Msg("Decoded input")

	if p, err = decryptProfile(raw, meta); err != nil {
		return err
	}

	if decryptFlags.Legacy {
		target, err = legacy.Parse(raw)
	} else {
		target, err = envelope.Parse(raw, p.Magic)
	}
	if err != nil {
		return err
	}

	var (
		trail  *audit.Trail      = audit.NewTrail(decryptFlags.Input, p.Name)
		stderr io.Writer         = cmd.ErrOrStderr()
		m      *envelope.Machine = envelope.NewMachine(target, p, machineOptions(trail, p, stderr)...)
	)

	var plaintext []byte
	if plaintext, err = m.Run(ctx, passphraseSource()); err != nil {
		return err
	}
	defer memguard.WipeBytes(plaintext)

	if err = writeOutput(cmd.OutOrStdout(), decryptFlags.Output, plaintext); err != nil {
		return fmt.Errorf("unable to write %s: %w", decryptFlags.Output, err)
	}
	trail.Decrypted(m.Attempts() + 1)
	return nil
}

func machineOptions(trail *audit.Trail, p types.Profile, stderr io.Writer) []envelope.Option {
	var opts []envelope.Option = []envelope.Option{
		envelope.WithFailure(func(err types.AuthenticationError) {
			trail.Failed(err)
			fmt.Fprintln(stderr, err.Error())
		}),
		envelope.WithLockout(func(policy types.LockoutPolicy) error {
			trail.Locked(p.MaxAttempts, policy)
			if policy != types.LockoutDelete || decryptFlags.Input == "-" {
				return nil
			}
			if err := removeFile(decryptFlags.Input); err != nil {
				return fmt.Errorf("unable to delete %s: %w", decryptFlags.Input, err)
			}
			trail.Deleted()
			fmt.Fprintf(stderr, "Deleted %s\n", decryptFlags.Input)
			return nil
		}),
		envelope.WithTransition(func(from, to envelope.State) {
			log.Debug().Stringer("from", from).Stringer("to", to).Msg("Envelope state")
		}),
	}
	if sleep != nil {
		opts = append(opts, envelope.WithSleep(sleep))
	}
	return opts
}

// decryptProfile prefers an explicit --profile, then the profile owning the
// envelope magic, then the profile recorded beside the envelope.
func decryptProfile(raw []byte, meta format.Metadata) (types.Profile, error) {
	if globalCmd.Profile != "" {
		return cfg.Profile(globalCmd.Profile)
	}

	if !decryptFlags.Legacy && len(raw) >= types.MagicSize {
		var magic types.Magic
		copy(magic[:], raw[:types.MagicSize])
		if p, ok := cfg.ProfileFor(magic); ok {
			return p, nil
		}
	}
	return cfg.Profile(meta.Profile)
}
