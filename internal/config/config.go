// Package config loads connpool settings from a YAML file with environment
// overrides.
//
// Priority: defaults, then the settings file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yuku/connpool/internal/pool"
	"github.com/yuku/connpool/internal/sqlconn"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONNPOOL"

// Settings file names picked by SettingsPath.
const (
	ProductSettingFile = "product_setting.yaml"
	DevelopSettingFile = "develop_setting.yaml"
)

// Config is the complete settings file.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`
	Pools   []PoolConfig  `yaml:"pools"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
}

// ServerConfig configures `connpool serve`.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PoolConfig carries every option of one named pool.
type PoolConfig struct {
	Name    string `yaml:"name"`
	Driver  string `yaml:"driver"`
	Dialect string `yaml:"dialect"`
	// DSN bypasses the connection fields when set.
	DSN            string            `yaml:"dsn"`
	Host           string            `yaml:"host"`
	User           string            `yaml:"user"`
	Password       string            `yaml:"password"`
	Database       string            `yaml:"database"`
	Port           int               `yaml:"port"`
	Charset        string            `yaml:"charset"`
	CursorType     pool.CursorType   `yaml:"cursor_type"`
	Params         map[string]string `yaml:"params"`
	ConnectTimeout time.Duration     `yaml:"connect_timeout"`

	MaxPoolSize        int     `yaml:"max_pool_size"`
	EnableAutoResize   bool    `yaml:"enable_auto_resize"`
	AutoResizeScale    float64 `yaml:"auto_resize_scale"`
	PoolResizeBoundary int     `yaml:"pool_resize_boundary"`
	DeferConnectPool   bool    `yaml:"defer_connect_pool"`
}

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Server:  ServerConfig{ListenAddr: ":8080", ShutdownTimeout: 10 * time.Second},
	}
}

// DefaultPoolConfig returns the options a pool gets for every field the
// settings file leaves out.
func DefaultPoolConfig() PoolConfig {
	p := basePoolConfig()
	p.Port = sqlconn.DefaultPort(p.Driver)
	return p
}

// basePoolConfig leaves Port unset so it can follow the decoded driver.
func basePoolConfig() PoolConfig {
	return PoolConfig{
		Driver:             sqlconn.DriverMySQL,
		Host:               "localhost",
		Charset:            "utf8mb4",
		CursorType:         pool.CursorDict,
		MaxPoolSize:        pool.DefaultMaxPoolSize,
		EnableAutoResize:   true,
		AutoResizeScale:    pool.DefaultAutoResizeScale,
		PoolResizeBoundary: pool.DefaultResizeBoundary,
	}
}

// UnmarshalYAML decodes a pool entry on top of the defaults.
func (p *PoolConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain PoolConfig
	decoded := plain(basePoolConfig())
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	*p = PoolConfig(decoded)
	if p.Port == 0 && p.DSN == "" {
		p.Port = sqlconn.DefaultPort(p.Driver)
	}
	return nil
}

// PoolOptions returns the pool manager settings of p.
func (p PoolConfig) PoolOptions() pool.Config {
	return pool.Config{
		MaxPoolSize:      p.MaxPoolSize,
		EnableAutoResize: p.EnableAutoResize,
		AutoResizeScale:  p.AutoResizeScale,
		ResizeBoundary:   p.PoolResizeBoundary,
		DeferConnect:     p.DeferConnectPool,
		CursorType:       p.CursorType,
	}
}

// SQL returns the connection settings of p.
func (p PoolConfig) SQL() sqlconn.Config {
	return sqlconn.Config{
		Driver:         p.Driver,
		Dialect:        sqlconn.Dialect(p.Dialect),
		DSN:            p.DSN,
		Host:           p.Host,
		User:           p.User,
		Password:       p.Password,
		Database:       p.Database,
		Port:           p.Port,
		Charset:        p.Charset,
		Params:         p.Params,
		ConnectTimeout: p.ConnectTimeout,
	}
}

// Validate checks p without contacting the database.
func (p PoolConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: pool name cannot be empty", pool.ErrConfiguration)
	}
	if err := p.PoolOptions().Validate(); err != nil {
		return fmt.Errorf("pool %s: %w", p.Name, err)
	}
	if err := p.SQL().Validate(); err != nil {
		return fmt.Errorf("pool %s: %w", p.Name, err)
	}
	return nil
}

// Validate checks every pool and rejects duplicate names.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Pools))
	var errs []error
	for _, p := range c.Pools {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate pool name %s", pool.ErrConfiguration, p.Name))
		}
		seen[p.Name] = true
	}
	return errors.Join(errs...)
}

// Pool returns the pool named name.
func (c Config) Pool(name string) (PoolConfig, bool) {
	for _, p := range c.Pools {
		if p.Name == name {
			return p, true
		}
	}
	return PoolConfig{}, false
}

// SettingsPath picks the settings file: the explicit path when given, else
// $CONNPOOL_CONFIG, else the production file when $IS_PRODUCTION is a
// non-zero integer, else the development file.
func SettingsPath(explicit string) string {
	return settingsPath(explicit, os.Getenv)
}

func settingsPath(explicit string, getenv func(string) string) string {
	if explicit != "" {
		return explicit
	}
	if path := getenv(EnvPrefix + "_CONFIG"); path != "" {
		return path
	}
	if n, err := strconv.Atoi(strings.TrimSpace(getenv("IS_PRODUCTION"))); err == nil && n != 0 {
		return ProductSettingFile
	}
	return DevelopSettingFile
}

// Load reads the settings file at path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(data, os.Getenv)
}

// Parse decodes settings from data, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	return load(data, os.Getenv)
}

func load(data []byte, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	applyEnv(&cfg, getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&cfg.Logging.Level, EnvPrefix+"_LOG_LEVEL")
	set(&cfg.Logging.Format, EnvPrefix+"_LOG_FORMAT")
	set(&cfg.Server.ListenAddr, EnvPrefix+"_LISTEN_ADDR")

	for i := range cfg.Pools {
		p := &cfg.Pools[i]
		prefix := EnvPrefix + "_" + envName(p.Name) + "_"
		set(&p.Host, prefix+"HOST")
		set(&p.User, prefix+"USER")
		set(&p.Password, prefix+"PASSWORD")
		set(&p.Database, prefix+"DATABASE")
		set(&p.DSN, prefix+"DSN")
	}
}

// envName turns a pool name into an environment variable segment.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
