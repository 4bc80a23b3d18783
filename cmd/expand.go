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

	"github.com/notapipeline/seal/pkg/expand"
	"github.com/notapipeline/seal/pkg/types"
)

var expandFlags types.ExpandCmd = types.ExpandCmd{}

// expandCmd represents the expand command
var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Expand a password into a long deterministic password",
	Long: `Expand turns a password and salt into a printable password of --length
characters. The same password and salt always give the same result. Both
are used exactly as typed and either may be empty.

The salt is read with a hidden prompt unless --salt-prompt is given, in
which case it is echoed as it is typed. Use --full-precision to encode the
whole digest rather than the trailing eight bytes. The two modes give
different passwords.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return expandPassword(cmd)
	},
}

func init() {
	expandCmd.Flags().IntVarP(&expandFlags.Length, "length", "l", expand.DefaultLength, "length of the expanded password")
	expandCmd.Flags().BoolVar(&expandFlags.FullPrecision, "full-precision", false, "encode the full digest")
	expandCmd.Flags().BoolVar(&expandFlags.SaltPrompt, "salt-prompt", false, "echo the salt while it is typed")
	rootCmd.AddCommand(expandCmd)
}

func expandPassword(cmd *cobra.Command) (err error) {
	var (
		password []byte
		salt     []byte
		encoding expand.Encoding = expand.EncodingCompat
	)

	if expandFlags.FullPrecision {
		encoding = expand.EncodingFull
	}

	if password, err = getSecret("Expand", "Enter the password to expand.", "Password:"); err != nil {
		return err
	}
	var pb *memguard.LockedBuffer = lockBuffer(password)
	defer pb.Destroy()

	if expandFlags.SaltPrompt {
		salt, err = readLine("Salt: ")
	} else {
		salt, err = getSecret("Expand", "Enter the salt.", "Salt:")
	}
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(salt)

	var result string
	if result, err = expand.Expand(pb.Bytes(), salt, expand.WithLength(expandFlags.Length), expand.WithEncoding(encoding)); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
	return err
}
