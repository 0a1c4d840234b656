// Package config loads djcore's YAML configuration file and applies
// environment overrides on top of it.
//
// Usage:
//
//	cfg, err := config.Load("djcore.yaml")
//	if err != nil { ... }
//	eng := engine.New(cfg.EngineOptions(log)...)
//	settings := core.NewSettings(eng)
//	if err := cfg.ApplyTo(settings); err != nil { ... }
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/engine"
	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/filestore"
	"github.com/koustreak/djcore/internal/logger"
)

// Environment variables that override the file.
const (
	EnvHost      = "DJ_HOST"
	EnvUser      = "DJ_USER"
	EnvPass      = "DJ_PASS"
	EnvPort      = "DJ_PORT"
	EnvDatabase  = "DJ_DATABASE"
	EnvAccessKey = "DJ_AWS_ACCESS_KEY_ID"
	EnvSecretKey = "DJ_AWS_SECRET_ACCESS_KEY"
)

// Config is the root of the configuration file.
type Config struct {
	Database Database         `yaml:"database"`
	Log      logger.Config    `yaml:"log"`
	External filestore.Config `yaml:"external"`
	Server   Server           `yaml:"server"`
}

// Database describes the connection the core opens.
type Database struct {
	Type     string `yaml:"type"` // mysql, postgres
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	TLS      string `yaml:"tls"` // preferred, required, forbidden

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
}

// Server configures the HTTP console.
type Server struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns the configuration used when no file is given: a local
// MySQL server on its default port. Port 0 leaves the port to the database
// type.
func Default() *Config {
	return &Config{
		Database: Database{
			Type:           "mysql",
			Host:           "localhost",
			TLS:            "preferred",
			ConnectTimeout: 10 * time.Second,
		},
		Log: logger.Config{
			Level:      "info",
			Format:     "json",
			TimeFormat: "rfc3339",
		},
		External: filestore.Config{
			Provider: filestore.ProviderMinIO,
			Location: "attachments",
		},
		Server: Server{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConfiguration, "failed to read "+path, err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.ErrKindConfiguration, "invalid configuration file", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		EnvHost:      &c.Database.Host,
		EnvUser:      &c.Database.User,
		EnvPass:      &c.Database.Password,
		EnvDatabase:  &c.Database.Name,
		EnvAccessKey: &c.External.AccessKey,
		EnvSecretKey: &c.External.SecretKey,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errs.Wrap(errs.ErrKindConfiguration, EnvPort+" is not a number", err)
		}
		c.Database.Port = port
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := core.ParseDatabaseType(c.Database.Type); err != nil {
		return errs.Wrap(errs.ErrKindConfiguration, "database.type", err)
	}
	if _, err := core.ParseTLSMode(c.Database.TLS); err != nil {
		return errs.Wrap(errs.ErrKindConfiguration, "database.tls", err)
	}
	if c.Database.Host == "" {
		return errs.New(errs.ErrKindConfiguration, "database.host is required")
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return errs.New(errs.ErrKindConfiguration, fmt.Sprintf("database.port %d is out of range", c.Database.Port))
	}
	if c.Database.ConnectTimeout < 0 || c.Database.QueryTimeout < 0 {
		return errs.New(errs.ErrKindConfiguration, "database timeouts must not be negative")
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return errs.New(errs.ErrKindConfiguration, "log.format must be json or console, got "+c.Log.Format)
	}
	if c.External.Bucket != "" && c.External.Endpoint == "" {
		return errs.New(errs.ErrKindConfiguration, "external.endpoint is required when external.bucket is set")
	}
	return nil
}

// ExternalEnabled reports whether an attachment store is configured.
func (c *Config) ExternalEnabled() bool {
	return c.External.Bucket != ""
}

// ApplyTo copies the database section into a settings record.
func (c *Config) ApplyTo(s *core.Settings) error {
	tls, err := core.ParseTLSMode(c.Database.TLS)
	if err != nil {
		return errs.Wrap(errs.ErrKindConfiguration, "database.tls", err)
	}
	fields := map[string]any{
		core.FieldDatabaseType: c.Database.Type,
		core.FieldHostname:     c.Database.Host,
		core.FieldUsername:     c.Database.User,
		core.FieldPassword:     c.Database.Password,
		core.FieldDatabaseName: c.Database.Name,
		core.FieldUseTLS:       tls,
	}
	if c.Database.Port != 0 {
		fields[core.FieldPort] = c.Database.Port
	}
	return s.Update(fields)
}

// EngineOptions returns the engine options this configuration implies.
func (c *Config) EngineOptions(log *logger.Logger) []engine.Option {
	opts := []engine.Option{
		engine.WithConnectTimeout(c.Database.ConnectTimeout),
		engine.WithQueryTimeout(c.Database.QueryTimeout),
	}
	if log != nil {
		opts = append(opts, engine.WithLogger(log))
	}
	return opts
}
