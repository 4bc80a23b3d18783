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

// GlobalCmd holds the flags shared by every command
type GlobalCmd struct {
	Profile string `yaml:"profile" env:"SEAL_PROFILE"`
	Debug   bool   `yaml:"debug" env:"SEAL_DEBUG"`
	Quiet   bool   `yaml:"quiet" env:"SEAL_QUIET"`
	Keyring bool   `yaml:"keyring" env:"SEAL_KEYRING"`
}

// Merge copies any flag that was set on the command line over the loaded
// configuration.
func (g *GlobalCmd) Merge(c *GlobalCmd) {
	if c.Profile != "" {
		g.Profile = c.Profile
	}
	if c.Debug {
		g.Debug = c.Debug
	}
	if c.Quiet {
		g.Quiet = c.Quiet
	}
	if c.Keyring {
		g.Keyring = c.Keyring
	}
}

type EncryptCmd struct {
	Input  string
	Output string
	Format string
	Legacy bool
}

type DecryptCmd struct {
	Input  string
	Output string
	Legacy bool
}

type ExpandCmd struct {
	Length        int
	FullPrecision bool
	SaltPrompt    bool
}

type InspectCmd struct {
	Input   string
	JSON    bool
	NoColor bool
}
