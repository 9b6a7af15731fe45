package whatifcli

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/drone/envsubst/v2"
	"github.com/grafana/alloy/syntax"
	"github.com/grafana/alloy/syntax/alloytypes"
	"github.com/lib/pq"
)

var (
	_ syntax.Defaulter = (*Config)(nil)
	_ syntax.Validator = (*Config)(nil)
	_ syntax.Defaulter = (*ConnectionConfig)(nil)
)

// Config is the content of a --config.file. Example:
//
//	connection {
//	  host     = "db.internal"
//	  database = "tpch"
//	  user     = "analyst"
//	  password = "${DB_PASSWORD}"
//	}
//	timeout = "30s"
type Config struct {
	// DataSourceName is a postgres:// URL. It takes precedence over the
	// connection block.
	DataSourceName alloytypes.Secret `alloy:"data_source_name,attr,optional"`
	Connection     ConnectionConfig  `alloy:"connection,block,optional"`

	// EngineVersion skips server version detection.
	EngineVersion string        `alloy:"engine_version,attr,optional"`
	Timeout       time.Duration `alloy:"timeout,attr,optional"`
	Output        string        `alloy:"output,attr,optional"`
}

// ConnectionConfig describes the server by its parts. Unset fields fall back
// to the DB_HOST, DB_PORT, DB_USER, DB_PASSWORD and DB_NAME environment
// variables.
type ConnectionConfig struct {
	Host     string            `alloy:"host,attr,optional"`
	Port     int               `alloy:"port,attr,optional"`
	User     string            `alloy:"user,attr,optional"`
	Password alloytypes.Secret `alloy:"password,attr,optional"`
	Database string            `alloy:"database,attr,optional"`
	SSLMode  string            `alloy:"sslmode,attr,optional"`
}

const (
	defaultTimeout = 30 * time.Second
	defaultOutput  = string(outputText)
)

// DefaultConfig returns the configuration used without --config.file.
func DefaultConfig() Config {
	var c Config
	c.SetToDefault()
	return c
}

// SetToDefault implements syntax.Defaulter.
func (c *Config) SetToDefault() {
	*c = Config{
		Timeout: defaultTimeout,
		Output:  defaultOutput,
	}
	c.Connection.SetToDefault()
}

func (c *ConnectionConfig) SetToDefault() {
	*c = ConnectionConfig{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     5432,
		User:     envOr("DB_USER", "postgres"),
		Password: alloytypes.Secret(os.Getenv("DB_PASSWORD")),
		Database: envOr("DB_NAME", "tpch"),
		SSLMode:  "disable",
	}
	if p, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil {
		c.Port = p
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// Validate implements syntax.Validator.
func (c *Config) Validate() error {
	if c.DataSourceName != "" {
		if _, err := pq.ParseURL(string(c.DataSourceName)); err != nil {
			return fmt.Errorf("invalid data_source_name: %w", err)
		}
	} else {
		if c.Connection.Host == "" {
			return errors.New("connection host must not be empty")
		}
		if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
			return fmt.Errorf("connection port %d out of range", c.Connection.Port)
		}
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if _, err := parseOutputFormat(c.Output); err != nil {
		return err
	}
	return nil
}

// DSN returns the connection URL.
func (c *Config) DSN() string {
	if c.DataSourceName != "" {
		return string(c.DataSourceName)
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Connection.Host, strconv.Itoa(c.Connection.Port)),
		Path:   "/" + c.Connection.Database,
	}
	if c.Connection.Password != "" {
		u.User = url.UserPassword(c.Connection.User, string(c.Connection.Password))
	} else if c.Connection.User != "" {
		u.User = url.User(c.Connection.User)
	}
	if c.Connection.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.Connection.SSLMode}}.Encode()
	}
	return u.String()
}

// LoadConfig reads the config file at path, expanding ${VAR} references from
// the environment first. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		return cfg, cfg.Validate()
	}

	bb, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	expanded, err := envsubst.Eval(string(bb), os.Getenv)
	if err != nil {
		return Config{}, fmt.Errorf("expanding environment variables in %s: %w", path, err)
	}

	var cfg Config
	if err := syntax.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
	}
	return cfg, nil
}
