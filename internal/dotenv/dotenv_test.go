package dotenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	require.NoError(t, LoadFile(filepath.Join(t.TempDir(), "absent.env")))
}

func TestLoadFileParsesPairs(t *testing.T) {
	path := writeEnvFile(t, `
# comment
PLAIN=value
QUOTED="quoted value"
SINGLE='single value'
export EXPORTED=yes
SPACED =  padded
NOEQUALS
=nokey
`)
	for _, key := range []string{"PLAIN", "QUOTED", "SINGLE", "EXPORTED", "SPACED"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	require.NoError(t, LoadFile(path))

	assert.Equal(t, "value", os.Getenv("PLAIN"))
	assert.Equal(t, "quoted value", os.Getenv("QUOTED"))
	assert.Equal(t, "single value", os.Getenv("SINGLE"))
	assert.Equal(t, "yes", os.Getenv("EXPORTED"))
	assert.Equal(t, "padded", os.Getenv("SPACED"))
	_, exists := os.LookupEnv("NOEQUALS")
	assert.False(t, exists)
}

func TestLoadFilePreservesExistingEnv(t *testing.T) {
	path := writeEnvFile(t, "KEEP=from_file\n")
	t.Setenv("KEEP", "from_process")

	require.NoError(t, LoadFile(path))
	assert.Equal(t, "from_process", os.Getenv("KEEP"))
}
