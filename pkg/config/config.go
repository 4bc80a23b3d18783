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
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/notapipeline/seal/pkg/types"
)

// These functions are referenced as variables to enable them to
// be mocked in tests
var (
	ConfigPath func() string   = getConfigPath
	EnvPaths   func() []string = getEnvPaths
)

type Config struct {
	types.GlobalCmd `yaml:",inline"`

	Profiles map[string]types.Profile `yaml:"profiles"`
}

func New() *Config {
	return &Config{
		Profiles: make(map[string]types.Profile),
	}
}

// Load the config file from user local config directory
//
// Any .env files returned by EnvPaths are loaded into the environment first.
// The config file will then be loaded from ~/.config/seal/config.yaml if it
// exists and finally the environment will be checked for overrides.
//
// Users are expected to call `Merge` to override the config with command
// line options.
func (c *Config) Load() (err error) {
	if err = c.loadDotEnv(); err != nil {
		return
	}
	if err = c.loadYaml(); err != nil {
		return
	}
	if err = c.loadEnv(); err != nil {
		return
	}
	return c.Validate()
}

func (c *Config) loadDotEnv() error {
	var files []string
	for _, p := range EnvPaths() {
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return nil
	}

	log.Debug().Strs("files", files).Msg("Loading environment files")
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("unable to load environment files: %w", err)
	}
	return nil
}

func (c *Config) loadYaml() (err error) {
	var (
		cp       string = ConfigPath()
		yamlFile []byte
	)

	if _, err = os.Stat(cp); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if yamlFile, err = os.ReadFile(cp); err != nil {
		return err
	}

	log.Debug().Str("path", cp).Msg("Loading config file")
	if err = yaml.Unmarshal(yamlFile, c); err != nil {
		return fmt.Errorf("invalid config file %s: %w", cp, err)
	}
	return nil
}

func (c *Config) loadEnv() (err error) {
	return env.Parse(c)
}

// Merge command line flags over the loaded configuration
func (c *Config) Merge(cmd types.GlobalCmd) {
	c.GlobalCmd.Merge(&cmd)
}

// Validate every user defined profile after it has been merged with any
// built in profile of the same name.
func (c *Config) Validate() error {
	for name := range c.Profiles {
		if _, err := c.Profile(name); err != nil {
			return err
		}
	}
	if c.GlobalCmd.Profile != "" {
		if _, err := c.Profile(c.GlobalCmd.Profile); err != nil {
			return err
		}
	}
	return nil
}

// Profile returns the named profile.
//
// An empty name selects the configured default, or the file profile when no
// default is configured. Settings for a built in profile override its
// attempt bound, lockout and delay but never its magic.
func (c *Config) Profile(name string) (p types.Profile, err error) {
	if name == "" {
		name = c.GlobalCmd.Profile
	}
	if name == "" {
		name = types.ProfileFile
	}

	builtin, isBuiltin := builtins()[name]
	user, isUser := c.Profiles[name]

	switch {
	case isBuiltin && isUser:
		if !user.Magic.IsZero() && user.Magic != builtin.Magic {
			return p, fmt.Errorf("profile %q: magic of a built in profile cannot be changed", name)
		}
		p = builtin
		if user.MaxAttempts != 0 {
			p.MaxAttempts = user.MaxAttempts
		}
		if user.Lockout != types.LockoutAbort {
			p.Lockout = user.Lockout
		}
		if user.RetryDelay != 0 {
			p.RetryDelay = user.RetryDelay
		}
	case isBuiltin:
		p = builtin
	case isUser:
		p = user
	default:
		return p, types.UnknownProfileError{Name: name}
	}

	p.Name = name
	if err = p.Validate(); err != nil {
		return types.Profile{}, err
	}
	return p, nil
}

// AllProfiles lists built in and user profiles sorted by name
func (c *Config) AllProfiles() ([]types.Profile, error) {
	var names map[string]struct{} = make(map[string]struct{})
	for name := range builtins() {
		names[name] = struct{}{}
	}
	for name := range c.Profiles {
		names[name] = struct{}{}
	}

	var profiles []types.Profile = make([]types.Profile, 0, len(names))
	for name := range names {
		p, err := c.Profile(name)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}

// ProfileFor finds the profile whose magic matches
func (c *Config) ProfileFor(magic types.Magic) (types.Profile, bool) {
	profiles, err := c.AllProfiles()
	if err != nil {
		return types.Profile{}, false
	}
	for _, p := range profiles {
		if p.Magic == magic {
			return p, true
		}
	}
	return types.Profile{}, false
}

func builtins() map[string]types.Profile {
	return map[string]types.Profile{
		types.ProfileFile: types.FileProfile(),
		types.ProfileSeed: types.SeedProfile(),
	}
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "seal")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "seal")
}

func getConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func getEnvPaths() []string {
	return []string{
		".env",
		filepath.Join(configDir(), ".env"),
	}
}
