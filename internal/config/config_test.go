package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv points HOME at a temp dir and clears the MERGIN_*
// variables so tests see only what they set themselves.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MERGIN_URL", "")
	t.Setenv("MERGIN_AUTH", "")
	return home
}

// writeUserConfig writes ~/.mergin/config.yml under the given home.
func writeUserConfig(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".mergin")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(content), 0o600))
}

// TestLoadDefaults verifies the built-in tuning with no file and no
// environment.
func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.URL)
	assert.Empty(t, cfg.AuthToken)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 2*time.Second, cfg.RetryMaxDelay)
}

// TestLoadFromFile verifies the user config file layer, including
// partial overrides: unset fields keep their defaults.
func TestLoadFromFile(t *testing.T) {
	home := isolateEnv(t)
	writeUserConfig(t, home, `
url: https://public.cloudmergin.com
auth_token: file-token
request_timeout: 30s
retry:
  attempts: 5
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://public.cloudmergin.com", cfg.URL)
	assert.Equal(t, "file-token", cfg.AuthToken)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.RetryAttempts)
	// Not set in the file, so defaults survive.
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 2*time.Second, cfg.RetryMaxDelay)
}

// TestLoadEnvOverridesFile verifies precedence: environment variables
// win over the user config file.
func TestLoadEnvOverridesFile(t *testing.T) {
	home := isolateEnv(t)
	writeUserConfig(t, home, `
url: https://file.example.com
auth_token: file-token
`)
	t.Setenv("MERGIN_URL", "https://env.example.com")
	t.Setenv("MERGIN_AUTH", "env-token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.URL)
	assert.Equal(t, "env-token", cfg.AuthToken)
}

// TestLoadStripsBearerPrefix verifies that a token pasted together with
// its header scheme is normalized.
func TestLoadStripsBearerPrefix(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MERGIN_AUTH", "Bearer abc.def.ghi")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", cfg.AuthToken)
}

// TestLoadMalformedFile verifies that a broken config file is reported
// instead of being silently skipped.
func TestLoadMalformedFile(t *testing.T) {
	home := isolateEnv(t)
	writeUserConfig(t, home, "url: [unclosed")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file")
}

// TestUserConfigPath verifies the file location under the home dir.
func TestUserConfigPath(t *testing.T) {
	home := isolateEnv(t)

	path, err := UserConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".mergin", "config.yml"), path)
}
