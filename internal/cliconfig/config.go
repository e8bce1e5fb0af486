package cliconfig

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/authpipe"
	"github.com/MrEthical07/authpipe/refresh"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Store kinds accepted by StoreConfig.Kind.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Endpoint EndpointConfig `yaml:"endpoint"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"AUTHPIPE_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"AUTHPIPE_LOG_FORMAT" env-default:"text"`
}

// StoreConfig selects where credentials persist between runs.
type StoreConfig struct {
	Kind      string        `yaml:"kind"       env:"AUTHPIPE_STORE"        env-default:"memory"`
	FilePath  string        `yaml:"file_path"  env:"AUTHPIPE_STORE_FILE"   env-default:"authpipe-session.json"`
	RedisAddr string        `yaml:"redis_addr" env:"AUTHPIPE_REDIS_ADDR"`
	Prefix    string        `yaml:"prefix"     env:"AUTHPIPE_REDIS_PREFIX" env-default:"authpipe"`
	Profile   string        `yaml:"profile"    env:"AUTHPIPE_PROFILE"      env-default:"default"`
	TTL       time.Duration `yaml:"ttl"        env:"AUTHPIPE_REDIS_TTL"    env-default:"0s"`
}

// EndpointConfig describes the remote token endpoint.
type EndpointConfig struct {
	URL      string `yaml:"url"       env:"AUTHPIPE_REFRESH_URL"`
	Format   string `yaml:"format"    env:"AUTHPIPE_REFRESH_FORMAT" env-default:"json"`
	ClientID string `yaml:"client_id" env:"AUTHPIPE_CLIENT_ID"`
}

type PipelineConfig struct {
	Preset             string        `yaml:"preset"               env:"AUTHPIPE_PRESET"              env-default:"default"`
	ProactiveThreshold time.Duration `yaml:"proactive_threshold"  env:"AUTHPIPE_PROACTIVE_THRESHOLD" env-default:"5s"`
	RequestTimeout     time.Duration `yaml:"request_timeout"      env:"AUTHPIPE_REQUEST_TIMEOUT"     env-default:"30s"`
	RefreshTimeout     time.Duration `yaml:"refresh_timeout"      env:"AUTHPIPE_REFRESH_TIMEOUT"     env-default:"0s"`
	MaxReplayBodyBytes int64         `yaml:"max_replay_body_bytes" env:"AUTHPIPE_MAX_REPLAY_BYTES"   env-default:"10485760"`
	Audit              bool          `yaml:"audit"                env:"AUTHPIPE_AUDIT"               env-default:"false"`
	Metrics            bool          `yaml:"metrics"              env:"AUTHPIPE_METRICS"             env-default:"false"`
}

// Load reads configuration from path, or from the environment alone when path
// and AUTHPIPE_CONFIG are empty. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("AUTHPIPE_CONFIG")
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
		// ReadConfig overlays the environment itself.
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the tools cannot default.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile:
		if strings.TrimSpace(c.Store.FilePath) == "" {
			return errors.New("store file path must not be empty")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("redis store requires AUTHPIPE_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}

	switch refresh.Format(c.Endpoint.Format) {
	case refresh.FormatJSON, refresh.FormatForm:
	default:
		return fmt.Errorf("unknown refresh format %q", c.Endpoint.Format)
	}

	if _, err := c.presetConfig(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) presetConfig() (authpipe.Config, error) {
	switch c.Pipeline.Preset {
	case "", "default":
		return authpipe.DefaultConfig(), nil
	case "strict":
		return authpipe.StrictConfig(), nil
	case "high_throughput":
		return authpipe.HighThroughputConfig(), nil
	default:
		return authpipe.Config{}, fmt.Errorf("unknown pipeline preset %q", c.Pipeline.Preset)
	}
}

// AuthpipeConfig returns the preset with the explicit overrides applied.
func (c *Config) AuthpipeConfig() (authpipe.Config, error) {
	cfg, err := c.presetConfig()
	if err != nil {
		return authpipe.Config{}, err
	}
	cfg.Refresh.ProactiveThreshold = c.Pipeline.ProactiveThreshold
	cfg.Refresh.Timeout = c.Pipeline.RefreshTimeout
	cfg.Transport.RequestTimeout = c.Pipeline.RequestTimeout
	cfg.Transport.MaxReplayBodyBytes = c.Pipeline.MaxReplayBodyBytes
	if c.Pipeline.Audit {
		cfg.Audit.Enabled = true
	}
	if c.Pipeline.Metrics {
		cfg.Metrics.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return authpipe.Config{}, err
	}
	return cfg, nil
}

// Logger builds a logrus logger writing to w.
func (c *Config) Logger(w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// RefreshEndpoint builds the HTTP token endpoint.
func (c *Config) RefreshEndpoint() (*refresh.HTTPEndpoint, error) {
	if c.Endpoint.URL == "" {
		return nil, errors.New("refresh endpoint requires AUTHPIPE_REFRESH_URL")
	}
	return refresh.NewHTTPEndpoint(refresh.HTTPEndpointConfig{
		URL:      c.Endpoint.URL,
		Format:   refresh.Format(c.Endpoint.Format),
		ClientID: c.Endpoint.ClientID,
	})
}
