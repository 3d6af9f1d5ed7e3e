package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup(Options{Level: "debug", Output: &buf})
	require.NoError(t, err)

	routerLog := WithComponent(log, "router")
	routerLog.Debug().Str("route_id", "r1").Msg("registered")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "router", line["component"])
	assert.Equal(t, "r1", line["route_id"])
	assert.Equal(t, "registered", line["message"])
	assert.Contains(t, line, zerolog.TimestampFieldName)
}

func TestSetupLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup(Options{Level: "WARN", Output: &buf})
	require.NoError(t, err)

	log.Info().Msg("quiet")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestSetupConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup(Options{Format: FormatConsole, Output: &buf})
	require.NoError(t, err)

	log.Info().Str("event", "window:open").Msg("emitted")
	out := buf.String()
	assert.Contains(t, out, "emitted")
	assert.Contains(t, out, "window:open")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestSetupErrors(t *testing.T) {
	_, err := Setup(Options{Level: "chatty"})
	assert.Error(t, err)

	_, err = Setup(Options{Format: "xml"})
	assert.Error(t, err)
}
