// Package config loads P21 connection settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/p21-erp-client/pkg/logging"
	"github.com/Sternrassler/p21-erp-client/pkg/pagination"
	"github.com/Sternrassler/p21-erp-client/pkg/session"
	"github.com/Sternrassler/p21-erp-client/pkg/transport"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. P21_ENDPOINT.
const EnvPrefix = "P21"

// Config keys.
const (
	KeyEndpoint           = "endpoint"
	KeyUsername           = "username"
	KeyPassword           = "password"
	KeyInsecureSkipVerify = "insecure_skip_verify"
	KeyTimeout            = "timeout"
	KeyPageSize           = "page_size"
	KeyRedisAddr          = "redis_addr"
	KeyTokenTTL           = "token_ttl"
	KeyLogLevel           = "log_level"
	KeyLogPretty          = "log_pretty"
)

// Config holds everything needed to open a session and scan tables.
type Config struct {
	Endpoint           string        `mapstructure:"endpoint"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"`
	PageSize           int           `mapstructure:"page_size"`
	// RedisAddr enables the shared Redis token store when set.
	RedisAddr string        `mapstructure:"redis_addr"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	LogLevel  string        `mapstructure:"log_level"`
	LogPretty bool          `mapstructure:"log_pretty"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyTimeout, transport.DefaultConfig().Timeout)
	v.SetDefault(KeyPageSize, pagination.DefaultPageSize)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyInsecureSkipVerify, false)
	v.SetDefault(KeyLogPretty, false)
}

// New returns a viper instance with defaults and environment binding. When
// file is empty, $HOME/.p21/config.yml is used if present.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".p21"))
		v.SetConfigType("yml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		KeyEndpoint, KeyUsername, KeyPassword, KeyInsecureSkipVerify, KeyTimeout,
		KeyPageSize, KeyRedisAddr, KeyTokenTTL, KeyLogLevel, KeyLogPretty,
	} {
		_ = v.BindEnv(key)
	}

	return v
}

// Load reads file (optional) and the environment.
func Load(file string) (*Config, error) {
	v := New(file)
	if err := Read(v, file != ""); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Read reads the config file of v. A missing default file is not an error;
// a missing explicit file is.
func Read(v *viper.Viper, explicit bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// FromViper decodes v into a Config.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Username = strings.TrimSpace(cfg.Username)
	return &cfg, nil
}

// Validate checks the settings needed before a session can open.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return &session.ConfigurationError{Field: KeyEndpoint, Err: session.ErrMissingEndpoint}
	}
	if c.Username == "" {
		return &session.ConfigurationError{Field: KeyUsername, Err: session.ErrMissingCredentials}
	}
	if c.PageSize <= 0 {
		return &session.ConfigurationError{Field: KeyPageSize, Err: fmt.Errorf("must be > 0 (got %d)", c.PageSize)}
	}
	if c.Timeout <= 0 {
		return &session.ConfigurationError{Field: KeyTimeout, Err: fmt.Errorf("must be > 0 (got %s)", c.Timeout)}
	}
	return nil
}

// Credentials returns the session credentials.
func (c *Config) Credentials() session.Credentials {
	return session.Credentials{Username: c.Username, Password: c.Password}
}

// TransportConfig returns the HTTP transport settings.
func (c *Config) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.Timeout = c.Timeout
	cfg.InsecureSkipVerify = c.InsecureSkipVerify
	return cfg
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Pretty = c.LogPretty
	return cfg
}
