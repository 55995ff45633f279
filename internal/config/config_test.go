package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DataDir:           "/tmp/dirsync",
		StorePath:         "/tmp/dirsync/synced_files.json",
		LogLevel:          "info",
		DeviceName:        "desk",
		HandshakePort:     8080,
		ProbeTimeout:      DefaultProbeTimeout,
		ProbeConcurrency:  DefaultProbeConcurrency,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		SearchConcurrency: DefaultSearchConcurrency,
	}
}

func TestLoadDefaults(t *testing.T) {
	dataDir := t.TempDir()
	v := viper.New()
	v.Set(KeyDataDir, dataDir)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "synced_files.json"), cfg.StorePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.HandshakePort)
	assert.Equal(t, 300*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, 50, cfg.ProbeConcurrency)
	assert.Equal(t, 2*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, time.Duration(0), cfg.ResyncInterval)
	assert.Equal(t, 8, cfg.SearchConcurrency)
	assert.NotEmpty(t, cfg.DeviceName)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DIRSYNC_PROBE_CONCURRENCY", "12")
	t.Setenv("DIRSYNC_RESYNC_INTERVAL", "30s")
	t.Setenv("DIRSYNC_LOG_LEVEL", "DEBUG")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.Set(KeyDataDir, t.TempDir())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.ProbeConcurrency)
	assert.Equal(t, 30*time.Second, cfg.ResyncInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := validConfig()
	cfg.DataDir = dir
	cfg.StorePath = filepath.Join(dir, "store.json")
	cfg.ResyncInterval = 45 * time.Second
	require.NoError(t, cfg.Save(path))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	loaded, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, path, loaded.Path)
	loaded.Path = ""
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, ErrDataDirEmpty},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, ErrInvalidLogLevel},
		{"no device name", func(c *Config) { c.DeviceName = "  " }, ErrDeviceNameMissing},
		{"port zero", func(c *Config) { c.HandshakePort = 0 }, ErrInvalidPort},
		{"port too high", func(c *Config) { c.HandshakePort = 70000 }, ErrInvalidPort},
		{"probe timeout", func(c *Config) { c.ProbeTimeout = 0 }, ErrInvalidTimeout},
		{"handshake timeout", func(c *Config) { c.HandshakeTimeout = -time.Second }, ErrInvalidTimeout},
		{"probe bound", func(c *Config) { c.ProbeConcurrency = 0 }, ErrInvalidBound},
		{"search bound", func(c *Config) { c.SearchConcurrency = -1 }, ErrInvalidBound},
		{"negative resync", func(c *Config) { c.ResyncInterval = -time.Second }, ErrNegativeResync},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = ParseLevel("trace")
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
}

func TestLoadResolvesHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	v := viper.New()
	v.Set(KeyDataDir, "~/some-dirsync-test-dir")
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "some-dirsync-test-dir"), cfg.DataDir)
}
