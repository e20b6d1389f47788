package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Settings{Level: "debug", Format: "json"}, &buf, false)
	require.NoError(t, err)

	logger.Debug().Str("session_key", "s1").Msg("hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "s1", line["session_key"])
	require.Equal(t, "debug", line["level"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Settings{Level: "WARN", Format: "json"}, &buf, false)
	require.NoError(t, err)
	logger.Info().Msg("dropped")
	require.Zero(t, buf.Len())
}

func TestNewLogger_TextWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(DefaultSettings(), &buf, false)
	require.NoError(t, err)
	logger.Info().Msg("plain")
	require.Contains(t, buf.String(), "plain")
	require.NotContains(t, buf.String(), "\x1b[")
}

func TestNewLogger_RejectsBadSettings(t *testing.T) {
	_, err := NewLogger(Settings{Level: "loud"}, &bytes.Buffer{}, false)
	require.Error(t, err)
	_, err = NewLogger(Settings{Format: "xml"}, &bytes.Buffer{}, false)
	require.Error(t, err)
}
