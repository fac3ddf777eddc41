package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadcore.toml")
	body := `
[storage]
driver = "memory"
autosave = true

[history]
max_depth = 50

[blob]
driver = "memory"

[log]
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path, envMap(map[string]string{
		"CADCORE_HISTORY_MAX_DEPTH": "10",
		"CADCORE_LOG_LEVEL":         "debug",
	}))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.True(t, cfg.Storage.Autosave)
	assert.Equal(t, 10, cfg.History.MaxDepth)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 64, cfg.Assets.CacheSize)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":    {"CADCORE_STORAGE_DRIVER": "mongo"},
		"blob":      {"CADCORE_BLOB_DRIVER": "ftp"},
		"depth":     {"CADCORE_HISTORY_MAX_DEPTH": "-1"},
		"notint":    {"CADCORE_ASSET_CACHE_SIZE": "lots"},
		"notbool":   {"CADCORE_AUTOSAVE": "sometimes"},
		"postgres":  {"CADCORE_STORAGE_DRIVER": "postgres"},
		"s3 bucket": {"CADCORE_BLOB_DRIVER": "s3"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load("", envMap(env))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"), envMap(nil))
	require.Error(t, err)
}
