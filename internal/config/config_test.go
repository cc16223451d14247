package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load([]string{"-config", filepath.Join(t.TempDir(), "absent.yaml"), "-seed=false"})
	require.Error(t, err, "explicit config path must exist")

	t.Chdir(t.TempDir())
	cfg, err = Load(nil)
	require.NoError(t, err)
	assert.Equal(t, def(), cfg)
	assert.True(t, cfg.Dev())
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLayering(t *testing.T) {
	path := writeYAML(t, `
port: "9000"
env: production
dbUrl: postgres://file
logLevel: warn
corsOrigins: ["https://a.example.com", "https://b.example.com"]
rateLimit: 5
shutdownTimeout: 30s
`)
	t.Setenv("ROSTER_DB_URL", "postgres://env")
	t.Setenv("ROSTER_LOG_LEVEL", "debug")

	cfg, err := Load([]string{"-config", path, "-log-level", "error", "-rate-burst", "3"})
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)            // file
	assert.Equal(t, EnvProduction, cfg.Env)      // file
	assert.Equal(t, "postgres://env", cfg.DBURL) // env over file
	assert.Equal(t, "error", cfg.LogLevel)       // flag over env
	assert.Equal(t, 3, cfg.RateBurst)            // flag over default
	assert.Equal(t, 5.0, cfg.RateLimit)          // file
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.False(t, cfg.Dev())
}

func TestFlagsOnlyOverrideWhenGiven(t *testing.T) {
	path := writeYAML(t, "seed: true\nensureSchema: false\n")
	cfg, err := Load([]string{"-config", path, "-cors-origins", " https://x.example.com , "})
	require.NoError(t, err)
	assert.True(t, cfg.Seed)
	assert.False(t, cfg.EnsureSchema)
	assert.Equal(t, []string{"https://x.example.com"}, cfg.CORSOrigins)
}

func TestValidate(t *testing.T) {
	path := writeYAML(t, "env: staging\ndbDriver: mysql\nrateLimit: -1\n")
	_, err := Load([]string{"-config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "env must be")
	assert.Contains(t, err.Error(), "dbDriver must be")
	assert.Contains(t, err.Error(), "rateLimit")
}

func TestBadInput(t *testing.T) {
	path := writeYAML(t, "port: [1, 2]\n")
	_, err := Load([]string{"-config", path})
	assert.Error(t, err)

	_, err = Load([]string{"-no-such-flag"})
	assert.Error(t, err)

	t.Setenv("ROSTER_RATE_BURST", "lots")
	_, err = Load([]string{"-config", writeYAML(t, "")})
	assert.Error(t, err)
}
