// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/canonical/sqlmatch/internal/expr"
)

// Drivers understood by the store package.
const (
	DriverSQLite = "sqlite3"
	DriverDqlite = "dqlite"
	DriverPgx    = "pgx"
)

// Config is the configuration of the sqlmatch tool, read from sqlmatch.yaml.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Render   RenderConfig   `mapstructure:"render"`
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	// DSN is the sqlite3 file name or the postgres connection string.
	DSN string `mapstructure:"dsn"`

	// Dqlite node settings.
	Dir     string   `mapstructure:"dir"`
	Address string   `mapstructure:"address"`
	Cluster []string `mapstructure:"cluster"`
	Name    string   `mapstructure:"name"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RenderConfig holds the output settings.
type RenderConfig struct {
	// Dialect overrides the dialect implied by the database driver.
	Dialect string `mapstructure:"dialect"`
	Format  string `mapstructure:"format"`
}

var configNames = []string{"sqlmatch.yaml", "sqlmatch.yml"}

// LoadConfig reads the configuration with the precedence
// env > config file > defaults. Flags are applied by the caller.
//
// It returns the configuration and the path of the file read, which is empty
// when no file was found.
func LoadConfig(explicitPath string) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SQLMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, path, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, path, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, path, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", ":memory:")
	v.SetDefault("database.dir", "")
	v.SetDefault("database.address", "127.0.0.1:9001")
	v.SetDefault("database.cluster", []string{})
	v.SetDefault("database.name", "sqlmatch")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("render.dialect", "")
	v.SetDefault("render.format", "text")
}

// findConfigFile returns explicitPath if it exists, or the first config file
// found in the working directory.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}
	for _, name := range configNames {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// Validate checks the values that cannot be checked by unmarshaling.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPgx:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	case DriverDqlite:
		if c.Database.Dir == "" {
			return fmt.Errorf("database.dir is required for driver %s", c.Database.Driver)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if _, err := c.Dialect(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	switch c.Render.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format %q", c.Render.Format)
	}
	return nil
}

// Dialect returns the configured dialect, or the one spoken by the database
// driver when none is set.
func (c *Config) Dialect() (expr.Dialect, error) {
	if c.Render.Dialect != "" {
		return expr.DialectByName(c.Render.Dialect)
	}
	return DriverDialect(c.Database.Driver)
}

// DriverDialect returns the dialect spoken by a database driver.
func DriverDialect(driver string) (expr.Dialect, error) {
	switch driver {
	case DriverSQLite, DriverDqlite:
		return expr.SQLite, nil
	case DriverPgx:
		return expr.Postgres, nil
	}
	return expr.Dialect{}, fmt.Errorf("unknown database driver %q", driver)
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}
