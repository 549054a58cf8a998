// Package config loads the process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config contains the storage engine configuration parameters. Every
// variable carries the ACMED_ prefix, e.g. ACMED_DB_TYPE.
type Config struct {
	DB  DB  `envPrefix:"DB_"`
	Log Log `envPrefix:"LOG_"`
}

// DB contains backing-store parameters.
type DB struct {
	Type       string `env:"TYPE" envDefault:"badgerv2"`
	DataSource string `env:"DATASOURCE" envDefault:"./db"`
	Database   string `env:"DATABASE"`
	ValueDir   string `env:"VALUEDIR"`
}

// Log contains logger parameters.
type Log struct {
	Format string `env:"FORMAT" envDefault:"text"`
	Level  string `env:"LEVEL" envDefault:"info"`
}

// New loads the configuration from environment variables.
func New() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ACMED_"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
