// SPDX-License-Identifier: Apache-2.0

// Package config resolves builder settings from defaults, an optional TOML
// file and FLAVOR_BUNDLE_* environment variables. Command-line flags are
// applied by the caller on top of the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variables before they are
	// matched against config keys: FLAVOR_BUNDLE_OUTPUT_DIR -> output_dir.
	EnvPrefix = "FLAVOR_BUNDLE_"
	// FileEnv names an explicit config file and disables the search.
	FileEnv = "FLAVOR_BUNDLE_CONFIG"

	LocalFileName = "flavor-bundle.toml"
	AppDirName    = "flavor-bundle"
)

// Config holds the settings shared by the build commands.
type Config struct {
	LogLevel           string `koanf:"log_level"`
	LauncherBin        string `koanf:"launcher_bin"`
	OutputDir          string `koanf:"output_dir"`
	Jobs               int    `koanf:"jobs"`
	KeySeed            string `koanf:"key_seed"`
	PrivateKey         string `koanf:"private_key"`
	PublicKey          string `koanf:"public_key"`
	DefaultInterpreter string `koanf:"default_interpreter"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// Options controls where Load looks for a config file.
type Options struct {
	// WorkDir is searched for flavor-bundle.toml. Defaults to the process
	// working directory.
	WorkDir string
	// File, when set, must exist and replaces the search.
	File string
}

func defaults() map[string]any {
	return map[string]any{
		"log_level":           "info",
		"launcher_bin":        "",
		"output_dir":          "dist",
		"jobs":                runtime.NumCPU(),
		"key_seed":            "",
		"private_key":         "",
		"public_key":          "",
		"default_interpreter": "",
	}
}

// Load resolves the configuration. Later layers win: defaults, config
// file, environment.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load config defaults: %w", err)
	}

	path, err := findFile(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	if c.KeySeed != "" && c.PrivateKey != "" {
		return errors.New("key_seed and private_key are mutually exclusive")
	}
	return nil
}

// findFile returns the config file to load, or "" when there is none.
func findFile(opts Options) (string, error) {
	explicit := opts.File
	if explicit == "" {
		explicit = os.Getenv(FileEnv)
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	dir := opts.WorkDir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	for _, candidate := range []string{
		filepath.Join(dir, LocalFileName),
		filepath.Join(xdg.ConfigHome, AppDirName, "config.toml"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}
