package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the server configuration, loaded from a config file and
// environment variables prefixed with EMBER_.
type Config struct {
	Host string
	Port int
	Env  string

	LogLevel  string
	LogFormat string

	MaxHeaderBytes int
	MaxBodyBytes   int64
	MaxConnections int
	BufferSize     int
	PoolCapacity   int
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Production reports whether the server runs in the production env.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Level parses the configured log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// New loads configuration from ember.{yaml,json} in the working
// directory, then overlays EMBER_* environment variables. A missing
// config file is not an error.
func New() (*Config, error) {
	v := viper.New()

	v.SetConfigName("ember")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.ember")

	v.SetEnvPrefix("ember")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v), nil
}

// FromViper builds a Config from an existing viper instance, applying
// the same defaults as New.
func FromViper(v *viper.Viper) *Config {
	setDefaults(v)
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("port", 8080)
	v.SetDefault("env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("limits.max_header_bytes", 64*1024)
	v.SetDefault("limits.max_body_bytes", 10*1024*1024)
	v.SetDefault("limits.max_connections", 100000)
	v.SetDefault("buffers.size", 8*1024)
	v.SetDefault("buffers.pool_capacity", 1024)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Host:           v.GetString("host"),
		Port:           v.GetInt("port"),
		Env:            v.GetString("env"),
		LogLevel:       v.GetString("log.level"),
		LogFormat:      v.GetString("log.format"),
		MaxHeaderBytes: v.GetInt("limits.max_header_bytes"),
		MaxBodyBytes:   v.GetInt64("limits.max_body_bytes"),
		MaxConnections: v.GetInt("limits.max_connections"),
		BufferSize:     v.GetInt("buffers.size"),
		PoolCapacity:   v.GetInt("buffers.pool_capacity"),
	}
}
