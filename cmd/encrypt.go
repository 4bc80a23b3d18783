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
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/notapipeline/seal/pkg/audit"
	"github.com/notapipeline/seal/pkg/envelope"
	"github.com/notapipeline/seal/pkg/format"
	"github.com/notapipeline/seal/pkg/legacy"
	"github.com/notapipeline/seal/pkg/types"
)

var encryptFlags types.EncryptCmd = types.EncryptCmd{}

// encryptCmd represents the encrypt command
var encryptCmd = &cobra.Command{
	Use:   "encrypt [file]",
	Short: "Encrypt a file into an envelope",
	Long: `Encrypt reads the file and seals it under a passphrase.

You will be asked for the passphrase twice. It must be at least 12
characters long. The envelope is written to <file>.enc unless --output is
given. Use "-" to read from stdin or write to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encryptFlags.Input = args[0]
		return encrypt(cmd)
	},
}

func init() {
	encryptCmd.Flags().StringVarP(&encryptFlags.Output, "output", "o", "", "where to write the envelope (default <file>.enc)")
	encryptCmd.Flags().StringVarP(&encryptFlags.Format, "format", "f", string(format.Raw), "output format, one of raw, armor, k8s")
	encryptCmd.Flags().BoolVar(&encryptFlags.Legacy, "legacy", false, "write the legacy AES-GCM envelope")
	rootCmd.AddCommand(encryptCmd)
}

func encrypt(cmd *cobra.Command) (err error) {
	var (
		f       format.Format
		p       types.Profile
		data    []byte
		sealed  []byte
		encoded []byte
		output  string = encryptFlags.Output
	)

	if f, err = format.ParseFormat(encryptFlags.Format); err != nil {
		return err
	}
	if p, err = cfg.Profile(""); err != nil {
		return err
	}
	if output == "" {
		output = encryptFlags.Input + ".enc"
		if encryptFlags.Input == "-" {
			output = "-"
		}
	}

	if data, err = readInput(cmd.InOrStdin(), encryptFlags.Input); err != nil {
		return fmt.Errorf("unable to read %s: %w", encryptFlags.Input, err)
	}
	defer memguard.WipeBytes(data)

	passphrase, confirmation, err := newPassphrase()
	if err != nil {
		return err
	}
	defer passphrase.Destroy()
	defer confirmation.Destroy()

	if encryptFlags.Legacy {
		sealed, err = legacy.Encrypt(data, passphrase.Bytes(), confirmation.Bytes())
	} else {
		sealed, err = envelope.Encrypt(data, passphrase.Bytes(), confirmation.Bytes(), p)
	}
	if err != nil {
		return err
	}

	var meta format.Metadata = format.Metadata{
		Profile: p.Name,
		Name:    format.SecretName(encryptFlags.Input),
	}
	if encoded, err = format.Encode(f, sealed, meta); err != nil {
		return err
	}

	if err = writeOutput(cmd.OutOrStdout(), output, encoded); err != nil {
		return fmt.Errorf("unable to write %s: %w", output, err)
	}
	audit.NewTrail(output, p.Name).Encrypted()
	return nil
}
