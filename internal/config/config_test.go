package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "badgerv2", cfg.DB.Type)
	require.Equal(t, "./db", cfg.DB.DataSource)
	require.Equal(t, "text", cfg.Log.Format)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestNew_environment(t *testing.T) {
	t.Setenv("ACMED_DB_TYPE", "mysql")
	t.Setenv("ACMED_DB_DATASOURCE", "user:pass@tcp(localhost:3306)/")
	t.Setenv("ACMED_DB_DATABASE", "acmed")
	t.Setenv("ACMED_LOG_FORMAT", "json")
	t.Setenv("ACMED_LOG_LEVEL", "debug")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "mysql", cfg.DB.Type)
	require.Equal(t, "user:pass@tcp(localhost:3306)/", cfg.DB.DataSource)
	require.Equal(t, "acmed", cfg.DB.Database)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "debug", cfg.Log.Level)
}
