package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, Validate(cfg))
	assert.Equal(t, 6311, cfg.Server.Port)
	assert.Equal(t, "/tmp/Rserv", cfg.Server.Workdir)
	assert.True(t, cfg.Server.LocalOnly)
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "VERBOSE"
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 70000
	assert.Error(t, Validate(cfg))
}

func TestValidateRequiresBucketWhenArchiveEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Archive.Enabled = true
	assert.Error(t, Validate(cfg))

	cfg.Archive.Bucket = "workdir-archive"
	assert.NoError(t, Validate(cfg))
}

func TestLoadFromYAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "server:\n  port: 7000\n  workdir: " + dir + "\nlogging:\n  level: DEBUG\n  format: json\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, dir, cfg.Server.Workdir)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadWithMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv("RSERVED_SERVER_PORT", "8123")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8123, cfg.Server.Port)
}

func TestLoadAppliesEnvOverridesAcrossSections(t *testing.T) {
	t.Setenv("RSERVED_SERVER_LOCAL_ONLY", "false")
	t.Setenv("RSERVED_SERVER_SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("RSERVED_SERVER_INPUT_CEILING", "4096")
	t.Setenv("RSERVED_LEDGER_PATH", "/var/lib/rserved/ledger")
	t.Setenv("RSERVED_ARCHIVE_ENABLED", "true")
	t.Setenv("RSERVED_ARCHIVE_BUCKET", "workdir-archive")
	t.Setenv("RSERVED_TELEMETRY_SAMPLE_RATE", "0.25")
	t.Setenv("RSERVED_TRANSPORT_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Server.LocalOnly)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int32(4096), cfg.Server.InputCeiling)
	assert.Equal(t, "/var/lib/rserved/ledger", cfg.Ledger.Path)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "workdir-archive", cfg.Archive.Bucket)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
	assert.False(t, cfg.Transport.Enabled)
}
