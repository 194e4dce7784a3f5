package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`storage: /games/wow
database: listing.db
jobs: 3
verify: true
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/games/wow", cfg.Storage)
	assert.Equal(t, "listing.db", cfg.Database)
	assert.Equal(t, "extracted", cfg.Output)
	assert.Equal(t, 3, cfg.Jobs)
	assert.True(t, cfg.Verify)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"log level":  "log_level: loud\n",
		"log format": "log_format: xml\n",
		"jobs":       "jobs: 0\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "casc.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
