package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trustledger.env")
	require.NoError(t, os.WriteFile(path, []byte("TL_DOTENV_ONLY=file\nTL_DOTENV_BOTH=file\n"), 0o600))

	t.Setenv(envFileEnv, path)
	t.Setenv("TL_DOTENV_BOTH", "process")
	t.Setenv("TL_DOTENV_ONLY", "")
	require.NoError(t, os.Unsetenv("TL_DOTENV_ONLY"))

	require.NoError(t, LoadEnvFile())
	require.Equal(t, "file", os.Getenv("TL_DOTENV_ONLY"))
	require.Equal(t, "process", os.Getenv("TL_DOTENV_BOTH"))
	require.NoError(t, os.Unsetenv("TL_DOTENV_ONLY"))

	t.Setenv(envFileEnv, filepath.Join(dir, "missing.env"))
	require.NoError(t, LoadEnvFile())
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}
