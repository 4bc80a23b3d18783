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
	"log"

	"github.com/spf13/cobra"

	"github.com/notapipeline/seal/pkg/audit"
	"github.com/notapipeline/seal/pkg/config"
	"github.com/notapipeline/seal/pkg/types"
)

var (
	globalCmd types.GlobalCmd = types.GlobalCmd{}
	cfg       *config.Config  = config.New()
	cfgFile   string
)

var fatal func(format string, v ...interface{}) = func(format string, v ...interface{}) {
	log.Fatalf(format, v...)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "seal",
	Short: "Passphrase sealed envelopes",
	Long: `
Seal encrypts files under a passphrase into an authenticated envelope.

Keys are derived with Argon2id and the contents are sealed with
XChaCha20-Poly1305. Decryption is bounded by the envelope profile. After too
many wrong passphrases the attempt is aborted and, for profiles configured to
do so, the envelope is deleted.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fatal("Error: %s", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/seal/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&globalCmd.Profile, "profile", "", "envelope profile to use (default is the configured profile or file)")
	rootCmd.PersistentFlags().BoolVar(&globalCmd.Keyring, "keyring", false, "read the passphrase from the environment, KWallet or the Secret Service")
	rootCmd.PersistentFlags().BoolVar(&globalCmd.Debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&globalCmd.Quiet, "quiet", false, "disable all logging")
}

func loadConfig() (err error) {
	if cfgFile != "" {
		var path string = cfgFile
		config.ConfigPath = func() string {
			return path
		}
	}

	cfg = config.New()
	if err = cfg.Load(); err != nil {
		return err
	}
	cfg.Merge(globalCmd)
	audit.Setup(cfg.Debug, cfg.Quiet)
	return nil
}
