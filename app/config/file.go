package config

import (
	"fmt"
	"time"
)

// fileConfig mirrors the on-disk layout. Every block and attribute is
// optional; zero values keep the defaults.
type fileConfig struct {
	Server      *serverBlock      `hcl:"server,block" yaml:"server"`
	Upload      *uploadBlock      `hcl:"upload,block" yaml:"upload"`
	Toolchain   *toolchainBlock   `hcl:"toolchain,block" yaml:"toolchain"`
	ThreatCheck *threatCheckBlock `hcl:"threat_check,block" yaml:"threat_check"`
	Mongo       *mongoBlock       `hcl:"mongo,block" yaml:"mongo"`
	Metrics     *metricsBlock     `hcl:"metrics,block" yaml:"metrics"`
	Log         *logBlock         `hcl:"log,block" yaml:"log"`
	Modules     []string          `hcl:"modules,optional" yaml:"modules"`
}

type serverBlock struct {
	Host         string `hcl:"host,optional" yaml:"host"`
	Port         int    `hcl:"port,optional" yaml:"port"`
	ReadTimeout  string `hcl:"read_timeout,optional" yaml:"read_timeout"`
	WriteTimeout string `hcl:"write_timeout,optional" yaml:"write_timeout"`
}

type uploadBlock struct {
	Dir           string `hcl:"dir,optional" yaml:"dir"`
	MaxSize       int64  `hcl:"max_size,optional" yaml:"max_size"`
	MaxAge        string `hcl:"max_age,optional" yaml:"max_age"`
	SweepSchedule string `hcl:"sweep_schedule,optional" yaml:"sweep_schedule"`
}

type toolchainBlock struct {
	Command string   `hcl:"command,optional" yaml:"command"`
	Args    []string `hcl:"args,optional" yaml:"args"`
	WorkDir string   `hcl:"work_dir,optional" yaml:"work_dir"`
	Timeout string   `hcl:"timeout,optional" yaml:"timeout"`
}

type threatCheckBlock struct {
	URL     string `hcl:"url,optional" yaml:"url"`
	APIKey  string `hcl:"api_key,optional" yaml:"api_key"`
	Timeout string `hcl:"timeout,optional" yaml:"timeout"`
}

type mongoBlock struct {
	URI      string `hcl:"uri,optional" yaml:"uri"`
	Database string `hcl:"database,optional" yaml:"database"`
}

type metricsBlock struct {
	Addr string `hcl:"addr,optional" yaml:"addr"`
}

type logBlock struct {
	Level string `hcl:"level,optional" yaml:"level"`
}

func (c *Config) merge(fc *fileConfig) error {
	if b := fc.Server; b != nil {
		setString(&c.Server.Host, b.Host)
		if b.Port != 0 {
			c.Server.Port = b.Port
		}
		if err := setDuration(&c.Server.ReadTimeout, "server.read_timeout", b.ReadTimeout); err != nil {
			return err
		}
		if err := setDuration(&c.Server.WriteTimeout, "server.write_timeout", b.WriteTimeout); err != nil {
			return err
		}
	}
	if b := fc.Upload; b != nil {
		setString(&c.Upload.Dir, b.Dir)
		setString(&c.Upload.SweepSchedule, b.SweepSchedule)
		if b.MaxSize != 0 {
			c.Upload.MaxSize = b.MaxSize
		}
		if err := setDuration(&c.Upload.MaxAge, "upload.max_age", b.MaxAge); err != nil {
			return err
		}
	}
	if b := fc.Toolchain; b != nil {
		setString(&c.Toolchain.Command, b.Command)
		setString(&c.Toolchain.WorkDir, b.WorkDir)
		if len(b.Args) > 0 {
			c.Toolchain.Args = b.Args
		}
		if err := setDuration(&c.Toolchain.Timeout, "toolchain.timeout", b.Timeout); err != nil {
			return err
		}
	}
	if b := fc.ThreatCheck; b != nil {
		setString(&c.ThreatCheck.URL, b.URL)
		setString(&c.ThreatCheck.APIKey, b.APIKey)
		if err := setDuration(&c.ThreatCheck.Timeout, "threat_check.timeout", b.Timeout); err != nil {
			return err
		}
	}
	if b := fc.Mongo; b != nil {
		setString(&c.Mongo.URI, b.URI)
		setString(&c.Mongo.Database, b.Database)
	}
	if b := fc.Metrics; b != nil {
		setString(&c.Metrics.Addr, b.Addr)
	}
	if b := fc.Log; b != nil {
		setString(&c.Log.Level, b.Level)
	}
	if len(fc.Modules) > 0 {
		c.Modules = fc.Modules
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
