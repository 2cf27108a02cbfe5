// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile_ExistingVariablesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamrec.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"STREAMREC_TEST_DOTENV_NEW=from-file\nSTREAMREC_TEST_DOTENV_SET=from-file\n"), 0o600))

	t.Setenv("STREAMREC_TEST_DOTENV_SET", "from-env")
	t.Setenv("STREAMREC_TEST_DOTENV_NEW", "")
	require.NoError(t, os.Unsetenv("STREAMREC_TEST_DOTENV_NEW"))

	applied, err := LoadEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, applied)
	assert.Equal(t, "from-file", os.Getenv("STREAMREC_TEST_DOTENV_NEW"))
	assert.Equal(t, "from-env", os.Getenv("STREAMREC_TEST_DOTENV_SET"))
}

func TestLoadEnvFile_Missing(t *testing.T) {
	_, err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)

	t.Chdir(t.TempDir())
	applied, err := LoadEnvFile("")
	require.NoError(t, err)
	assert.Empty(t, applied)
}
