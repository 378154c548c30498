package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultConfigPath = "./config.yaml"

// Load builds the configuration from env-default tags, then the YAML file,
// then the environment, each overriding the one before. CONFIG_PATH names
// the file; when unset ./config.yaml is read if it exists.
func Load() (*Config, error) {
	path, required := configPath()

	cfg, err := read(path, required)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// configPath reports the YAML file to read and whether it must exist.
func configPath() (string, bool) {
	if p := strings.TrimSpace(os.Getenv("CONFIG_PATH")); p != "" {
		return p, true
	}
	return defaultConfigPath, false
}

func read(path string, required bool) (*Config, error) {
	cfg := &Config{}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	case required || !errors.Is(statErr, fs.ErrNotExist):
		return nil, fmt.Errorf("config file %s: %w", path, statErr)
	default:
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	}
	return cfg, nil
}
