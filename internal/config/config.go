package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/dirsync/internal/utils"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "DIRSYNC"
	ConfigFileName = "config"

	DefaultLogLevel          = "info"
	DefaultHandshakePort     = 8080
	DefaultProbeTimeout      = 300 * time.Millisecond
	DefaultProbeConcurrency  = 50
	DefaultHandshakeTimeout  = 2 * time.Second
	DefaultSearchConcurrency = 8
	storeFileName            = "synced_files.json"
)

var (
	home, _           = os.UserHomeDir()
	hostname, _       = os.Hostname()
	DefaultDataDir    = filepath.Join(home, ".dirsync")
	DefaultConfigPath = filepath.Join(DefaultDataDir, "config.json")
)

// keys as they appear in the config file and, upper-cased, in DIRSYNC_* env
const (
	KeyDataDir           = "data_dir"
	KeyStorePath         = "store_path"
	KeyLogLevel          = "log_level"
	KeyLogFile           = "log_file"
	KeyDeviceName        = "device_name"
	KeyHandshakePort     = "handshake_port"
	KeyProbeTimeout      = "probe_timeout"
	KeyProbeConcurrency  = "probe_concurrency"
	KeyHandshakeTimeout  = "handshake_timeout"
	KeyResyncInterval    = "resync_interval"
	KeySearchConcurrency = "search_concurrency"
)

var (
	ErrDataDirEmpty      = errors.New("data_dir is required")
	ErrInvalidLogLevel   = errors.New("log_level must be one of debug, info, warn, error")
	ErrInvalidPort       = errors.New("handshake_port must be between 1 and 65535")
	ErrInvalidTimeout    = errors.New("timeouts must be positive")
	ErrInvalidBound      = errors.New("concurrency limits must be positive")
	ErrNegativeResync    = errors.New("resync_interval cannot be negative")
	ErrDeviceNameMissing = errors.New("device_name is required")
)

type Config struct {
	DataDir           string        `json:"data_dir"`
	StorePath         string        `json:"store_path"`
	LogLevel          string        `json:"log_level"`
	LogFile           string        `json:"log_file,omitempty"`
	DeviceName        string        `json:"device_name"`
	HandshakePort     int           `json:"handshake_port"`
	ProbeTimeout      time.Duration `json:"probe_timeout"`
	ProbeConcurrency  int           `json:"probe_concurrency"`
	HandshakeTimeout  time.Duration `json:"handshake_timeout"`
	ResyncInterval    time.Duration `json:"resync_interval"`
	SearchConcurrency int           `json:"search_concurrency"`

	// Path is the config file the values were read from, if any.
	Path string `json:"-"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, DefaultDataDir)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyDeviceName, defaultDeviceName())
	v.SetDefault(KeyHandshakePort, DefaultHandshakePort)
	v.SetDefault(KeyProbeTimeout, DefaultProbeTimeout)
	v.SetDefault(KeyProbeConcurrency, DefaultProbeConcurrency)
	v.SetDefault(KeyHandshakeTimeout, DefaultHandshakeTimeout)
	v.SetDefault(KeyResyncInterval, time.Duration(0))
	v.SetDefault(KeySearchConcurrency, DefaultSearchConcurrency)
}

// Load builds a Config from v, resolves paths and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		DataDir:           v.GetString(KeyDataDir),
		StorePath:         v.GetString(KeyStorePath),
		LogLevel:          strings.ToLower(v.GetString(KeyLogLevel)),
		LogFile:           v.GetString(KeyLogFile),
		DeviceName:        v.GetString(KeyDeviceName),
		HandshakePort:     v.GetInt(KeyHandshakePort),
		ProbeTimeout:      v.GetDuration(KeyProbeTimeout),
		ProbeConcurrency:  v.GetInt(KeyProbeConcurrency),
		HandshakeTimeout:  v.GetDuration(KeyHandshakeTimeout),
		ResyncInterval:    v.GetDuration(KeyResyncInterval),
		SearchConcurrency: v.GetInt(KeySearchConcurrency),
		Path:              v.ConfigFileUsed(),
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths() error {
	if c.DataDir == "" {
		return ErrDataDirEmpty
	}

	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	c.DataDir = dataDir

	if c.StorePath == "" {
		c.StorePath = filepath.Join(c.DataDir, storeFileName)
	} else if c.StorePath, err = utils.ResolvePath(c.StorePath); err != nil {
		return fmt.Errorf("store_path: %w", err)
	}

	if c.LogFile != "" {
		if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
			return fmt.Errorf("log_file: %w", err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrDataDirEmpty
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if strings.TrimSpace(c.DeviceName) == "" {
		return ErrDeviceNameMissing
	}
	if c.HandshakePort < 1 || c.HandshakePort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.HandshakePort)
	}
	if c.ProbeTimeout <= 0 || c.HandshakeTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ProbeConcurrency <= 0 || c.SearchConcurrency <= 0 {
		return ErrInvalidBound
	}
	if c.ResyncInterval < 0 {
		return ErrNegativeResync
	}
	return nil
}

// Save writes the config as JSON. Durations are written as strings so the
// file reads back through viper unchanged.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	out := map[string]any{
		KeyDataDir:           c.DataDir,
		KeyStorePath:         c.StorePath,
		KeyLogLevel:          c.LogLevel,
		KeyDeviceName:        c.DeviceName,
		KeyHandshakePort:     c.HandshakePort,
		KeyProbeTimeout:      c.ProbeTimeout.String(),
		KeyProbeConcurrency:  c.ProbeConcurrency,
		KeyHandshakeTimeout:  c.HandshakeTimeout.String(),
		KeyResyncInterval:    c.ResyncInterval.String(),
		KeySearchConcurrency: c.SearchConcurrency,
	}
	if c.LogFile != "" {
		out[KeyLogFile] = c.LogFile
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("data_dir", c.DataDir),
		slog.String("store", c.StorePath),
		slog.String("device", c.DeviceName),
		slog.Int("port", c.HandshakePort),
		slog.Duration("resync", c.ResyncInterval),
	)
}

// ParseLevel maps a config log level to slog.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, level)
	}
}

func defaultDeviceName() string {
	if hostname != "" {
		return hostname
	}
	return "dirsync"
}
