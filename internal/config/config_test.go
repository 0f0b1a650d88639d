package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "render.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("keeps defaults for missing keys", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `stall_sweeps = 5`))
		require.NoError(t, err)

		want := Default()
		want.StallSweeps = 5
		assert.Equal(t, want, cfg)
	})

	t.Run("reads every section", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
max_sweeps = 50
settle_timeout = "2s"
effect_buffer = 8
log_level = "debug"

[autorouter]
mode = "Remote"
url = "http://router.local/"
timeout = "500ms"
retries = 1
delay = "10ms"

[server]
addr = ":9000"
cors_origins = ["https://a.example", " ", "https://b.example"]
`))
		require.NoError(t, err)

		assert.Equal(t, 50, cfg.MaxSweeps)
		assert.Equal(t, 2*time.Second, cfg.SettleTimeout)
		assert.Equal(t, 8, cfg.EffectBuffer)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, AutorouterConfig{
			Mode:    RouterRemote,
			URL:     "http://router.local",
			Timeout: 500 * time.Millisecond,
			Retries: 1,
			Delay:   10 * time.Millisecond,
		}, cfg.Autorouter)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CorsOrigins)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad durations", func(t *testing.T) {
		_, err := Load(writeConfig(t, `settle_timeout = "soon"`))
		assert.ErrorContains(t, err, "settle_timeout")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv(EnvMaxSweeps, "7")
		t.Setenv(EnvSettleTimeout, "3s")

		cfg, err := Load(writeConfig(t, `max_sweeps = 50`))
		require.NoError(t, err)

		assert.Equal(t, 7, cfg.MaxSweeps)
		assert.Equal(t, 3*time.Second, cfg.SettleTimeout)
	})

	t.Run("bad environment", func(t *testing.T) {
		t.Setenv(EnvMaxSweeps, "many")

		cfg := Default()
		assert.ErrorContains(t, cfg.ApplyEnv(), EnvMaxSweeps)
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	cfg := Default()
	cfg.MaxSweeps = 0
	cfg.EffectBuffer = 0
	cfg.Autorouter.Mode = RouterRemote

	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 3)
	assert.ErrorContains(t, err, "max_sweeps")
	assert.ErrorContains(t, err, "effect_buffer")
	assert.ErrorContains(t, err, "autorouter.url")
}
