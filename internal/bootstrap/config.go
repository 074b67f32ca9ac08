package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"risk_calculator/internal/config"

	"github.com/joho/godotenv"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig reads .env (when present) into the environment, then loads the
// YAML file. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	var cfg *Config
	if path == "" {
		cfg = config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}
	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *Config) error {
	if cfg.App.StatePath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(cfg.App.StatePath)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("state directory not found: %s", dir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("state path parent is not a directory: %s", dir)
	}
	return nil
}
