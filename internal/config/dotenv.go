// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotEnvName is looked up in the working directory when no env file is given.
const DotEnvName = ".env"

// LoadEnvFile seeds the process environment from a dotenv file. Variables that
// are already set win. An explicit path must exist; the implicit ./.env is
// optional. Returns the file that was applied, or "".
func LoadEnvFile(path string) (string, error) {
	explicit := path != ""
	if !explicit {
		path = DotEnvName
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return "", fmt.Errorf("env file %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}
