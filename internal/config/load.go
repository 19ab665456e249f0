package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and come with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns the validated Config and the config path that was consulted.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}

	cfg.DataDir = expandTilde(cfg.DataDir)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("config validation: %w", err)
	}

	return cfg, cfgPath, nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.DataDir != "" {
		cfg.DataDir = env.DataDir
	}

	if env.Nick != "" {
		cfg.IRC.Nick = env.Nick
	}

	if env.Password != "" {
		cfg.IRC.Password = env.Password
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.Server != nil {
		cfg.IRC.Server = *cli.Server
	}

	if cli.Nick != nil {
		cfg.IRC.Nick = *cli.Nick
	}

	if cli.Target != nil {
		cfg.IRC.Target = *cli.Target
	}
}
