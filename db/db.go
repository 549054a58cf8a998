// Package db opens the process-wide backing store used by the acmed storage
// layer. The handle is an explicitly constructed nosql.DB, established on
// first use and safe for concurrent use by all entity stores.
package db

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/smallstep/nosql"
)

// Config represents the JSON attributes used for configuring the acmed
// backing store.
type Config struct {
	Type       string `json:"type"`
	DataSource string `json:"dataSource"`
	Database   string `json:"database,omitempty"`
	ValueDir   string `json:"valueDir,omitempty"`
}

// New opens a backing store for the given configuration. Supported types are
// the drivers compiled into smallstep/nosql: badger, badgerv2, bbolt, mysql
// and postgresql. The returned handle must be closed on shutdown.
func New(c *Config) (nosql.DB, error) {
	if c == nil {
		return nil, errors.New("db configuration cannot be nil")
	}

	var opts []nosql.Option
	if c.Database != "" {
		opts = append(opts, nosql.WithDatabase(c.Database))
	}
	if c.ValueDir != "" {
		opts = append(opts, nosql.WithValueDir(c.ValueDir))
	}

	db, err := nosql.New(strings.ToLower(c.Type), c.DataSource, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %s database", c.Type)
	}
	return db, nil
}
