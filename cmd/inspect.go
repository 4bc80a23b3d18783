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
	"io"

	"github.com/hokaccha/go-prettyjson"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/notapipeline/seal/pkg/envelope"
	"github.com/notapipeline/seal/pkg/format"
	"github.com/notapipeline/seal/pkg/types"
)

var inspectFlags types.InspectCmd = types.InspectCmd{}

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Show the header of an envelope",
	Long: `Inspect prints the magic, salt, nonce and sizes of an envelope and the
profile its magic belongs to. No passphrase is needed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inspectFlags.Input = args[0]
		return inspect(cmd)
	},
}

// profilesCmd represents the profiles command
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the envelope profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := cfg.AllProfiles()
		if err != nil {
			return err
		}
		renderProfiles(cmd.OutOrStdout(), profiles)
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectFlags.JSON, "json", false, "print the header as json")
	inspectCmd.Flags().BoolVar(&inspectFlags.NoColor, "no-color", false, "disable colored json")
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(profilesCmd)
}

func inspect(cmd *cobra.Command) (err error) {
	var (
		data     []byte
		raw      []byte
		f        format.Format
		info     *envelope.Info
		profiles []types.Profile
	)

	if data, err = readInput(cmd.InOrStdin(), inspectFlags.Input); err != nil {
		return fmt.Errorf("unable to read %s: %w", inspectFlags.Input, err)
	}
	if raw, f, _, err = format.Decode(data); err != nil {
		return err
	}
	if profiles, err = cfg.AllProfiles(); err != nil {
		return err
	}
	if info, err = envelope.Inspect(raw, profiles); err != nil {
		return err
	}

	if inspectFlags.JSON {
		formatter := prettyjson.NewFormatter()
		formatter.DisabledColor = inspectFlags.NoColor
		var b []byte
		if b, err = formatter.Marshal(info); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Format", f},
		{"Magic", info.Magic},
		{"Profile", info.Profile},
		{"Max attempts", info.MaxAttempts},
		{"Lockout", info.Lockout},
		{"Salt", info.Salt},
		{"Nonce", info.Nonce},
		{"Size", info.Size},
		{"Plaintext size", info.PlaintextSize},
	})
	t.Render()
	return nil
}

func renderProfiles(w io.Writer, profiles []types.Profile) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Magic", "Max attempts", "Lockout", "Retry delay"})
	for _, p := range profiles {
		var marker string = p.Name
		if p.Name == cfg.GlobalCmd.Profile || (cfg.GlobalCmd.Profile == "" && p.Name == types.ProfileFile) {
			marker += " *"
		}
		t.AppendRow(table.Row{marker, p.Magic.String(), p.MaxAttempts, p.Lockout.String(), p.RetryDelay.String()})
	}
	t.Render()
}
