package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_nilConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestNew_unsupportedType(t *testing.T) {
	_, err := New(&Config{Type: "parchment", DataSource: "/tmp/acmed-test"})
	require.Error(t, err)
}
