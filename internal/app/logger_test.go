package app

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerFormats(t *testing.T) {
	_, ok := NewLogger(&Config{AppEnv: "production"}).Handler().(*slog.JSONHandler)
	require.True(t, ok, "production logs as JSON")

	_, ok = NewLogger(&Config{AppEnv: "development", LogFormat: "json"}).Handler().(*slog.JSONHandler)
	require.True(t, ok)

	_, ok = NewLogger(&Config{AppEnv: "development", LogFormat: "pretty"}).Handler().(*slog.TextHandler)
	require.True(t, ok)

	require.NotNil(t, NewLogger(nil))
}
