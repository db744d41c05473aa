package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const (
	// EnvMode selects development mode when set to "development".
	EnvMode = "SIRIUSU_ENV"
	// EnvBDSDir overrides bds_directory in development mode.
	EnvBDSDir = "BDS_DIR"
)

// IsDevMode reports whether SIRIUSU_ENV asks for development mode.
func IsDevMode() bool {
	return os.Getenv(EnvMode) == "development"
}

// LoadDotEnv loads variables from path into the process environment if the
// file exists. Variables already set are left alone.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load environment variables from %s: %w", path, err)
	}
	return nil
}

// ApplyDevOverrides applies development-only environment overrides.
func (c *Config) ApplyDevOverrides() {
	if dir, ok := os.LookupEnv(EnvBDSDir); ok {
		c.BDSDirectory = dir
	}
}
