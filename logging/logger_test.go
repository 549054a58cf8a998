package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := map[string]struct {
		opts    Options
		wantErr bool
	}{
		"ok/defaults":     {opts: Options{}},
		"ok/text":         {opts: Options{Format: "text", Level: "debug"}},
		"ok/json":         {opts: Options{Format: "JSON", Level: "warn"}},
		"fail/bad-format": {opts: Options{Format: "common"}, wantErr: true},
		"fail/bad-level":  {opts: Options{Level: "loud"}, wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			l, err := New("acmed", tc.opts)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, l.GetImpl())
		})
	}
}

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := parseLevel(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := parseLevel("loud")
	require.Error(t, err)
}
