package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      HTTPServerConfig
	Upload      UploadConfig
	Toolchain   ToolchainConfig
	ThreatCheck ThreatCheckConfig
	Mongo       MongoConfig
	Metrics     MetricsConfig
	Log         LogConfig
	// Modules are extra capability identifiers the toolchain supports.
	Modules []string
}

type HTTPServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type UploadConfig struct {
	Dir           string
	MaxSize       int64
	MaxAge        time.Duration
	SweepSchedule string
}

type ToolchainConfig struct {
	Command string
	Args    []string
	WorkDir string
	Timeout time.Duration
}

type ThreatCheckConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// MongoConfig with an empty URI disables generation history.
type MongoConfig struct {
	URI      string
	Database string
}

type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
}

func Default() *Config {
	return &Config{
		Server: HTTPServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Minute,
			WriteTimeout: 10 * time.Minute,
		},
		Upload: UploadConfig{
			Dir:           filepath.Join(os.TempDir(), "evador"),
			MaxSize:       10 << 20,
			MaxAge:        15 * time.Minute,
			SweepSchedule: "@every 5m",
		},
		Toolchain: ToolchainConfig{
			Timeout: 5 * time.Minute,
		},
		ThreatCheck: ThreatCheckConfig{
			Timeout: 2 * time.Minute,
		},
		Mongo: MongoConfig{
			Database: "evador",
		},
		Metrics: MetricsConfig{
			Addr: ":2112",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional .hcl/.yaml file
// and environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fc, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.merge(fc); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string) (*fileConfig, error) {
	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
			return nil, fmt.Errorf("decode hcl config: %w", err)
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return &fc, nil
}

func (c *Config) applyEnv() error {
	c.Server.Host = getEnv("EVADOR_HOST", c.Server.Host)
	c.Upload.Dir = getEnv("EVADOR_UPLOAD_DIR", c.Upload.Dir)
	c.Upload.SweepSchedule = getEnv("EVADOR_SWEEP_SCHEDULE", c.Upload.SweepSchedule)
	c.Toolchain.Command = getEnv("EVADOR_TOOLCHAIN", c.Toolchain.Command)
	c.ThreatCheck.URL = getEnv("EVADOR_THREATCHECK_URL", c.ThreatCheck.URL)
	c.ThreatCheck.APIKey = getEnv("EVADOR_THREATCHECK_KEY", c.ThreatCheck.APIKey)
	c.Metrics.Addr = getEnv("EVADOR_METRICS_ADDR", c.Metrics.Addr)
	c.Log.Level = getEnv("EVADOR_LOG_LEVEL", c.Log.Level)
	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DB", c.Mongo.Database)

	if v := os.Getenv("EVADOR_MODULES"); v != "" {
		c.Modules = splitList(v)
	}
	if v := os.Getenv("EVADOR_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EVADOR_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("EVADOR_MAX_UPLOAD"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("EVADOR_MAX_UPLOAD: %w", err)
		}
		c.Upload.MaxSize = size
	}
	if v := os.Getenv("EVADOR_TOOLCHAIN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("EVADOR_TOOLCHAIN_TIMEOUT: %w", err)
		}
		c.Toolchain.Timeout = d
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.Upload.Dir == "" {
		errs = append(errs, errors.New("upload dir is required"))
	}
	if c.Upload.MaxSize <= 0 {
		errs = append(errs, errors.New("upload max_size must be positive"))
	}
	if c.Upload.MaxAge <= 0 {
		errs = append(errs, errors.New("upload max_age must be positive"))
	}
	if _, err := cron.ParseStandard(c.Upload.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("upload sweep_schedule: %w", err))
	}
	if c.Toolchain.Timeout <= 0 {
		errs = append(errs, errors.New("toolchain timeout must be positive"))
	}
	if c.ThreatCheck.Timeout <= 0 {
		errs = append(errs, errors.New("threat_check timeout must be positive"))
	}
	if c.Mongo.URI != "" && c.Mongo.Database == "" {
		errs = append(errs, errors.New("mongo database is required when uri is set"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SlogLevel returns the configured log level. Validate rejects unknown names.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", name, err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
