package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/config"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/engine"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event"
)

func TestParseFlags(t *testing.T) {
	opts, _, done := parseFlags([]string{"-c", "deskbus.yaml", "-log-level", "debug", "-diag", ":7070", "-script", "app.lua", "-app-id", "notes"})
	require.False(t, done)
	assert.Equal(t, options{
		ConfigPath: "deskbus.yaml",
		LogLevel:   "debug",
		DiagListen: ":7070",
		Script:     "app.lua",
		AppID:      "notes",
	}, opts)

	_, code, done := parseFlags([]string{"-bogus"})
	assert.True(t, done)
	assert.Equal(t, 2, code)

	_, code, done = parseFlags([]string{"-version"})
	assert.True(t, done)
	assert.Equal(t, 0, code)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\nnamespace: file\n"), 0o600))
	t.Setenv("DESKBUS_NAMESPACE", "env")

	cfg, err := loadConfig(options{ConfigPath: path, LogLevel: "debug", DiagListen: ":0"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "env", cfg.Namespace)
	assert.True(t, cfg.Diag.Enabled)
	assert.Equal(t, ":0", cfg.Diag.Listen)

	_, err = loadConfig(options{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestRunScript(t *testing.T) {
	cfg := config.Default()
	cfg.Middleware.Logging.Enabled = false
	eng, err := engine.New(cfg)
	require.NoError(t, err)
	defer eng.Close()

	script := filepath.Join(t.TempDir(), "app.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
		app.on("ping", function(data)
			app.emit("pong", { n = data.n })
		end)
	`), 0o600))

	pongs := make(chan event.Event, 1)
	_, err = eng.Bus().OnFunc("app:notes:pong", func(ctx context.Context, ev event.Event) error {
		pongs <- ev
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runScript(ctx, eng, options{Script: script, AppID: "notes"}, zerolog.Nop())
	}()

	deadline := time.After(2 * time.Second)
	for eng.Bus().ListenerCount("app:notes:ping") == 0 {
		select {
		case <-deadline:
			t.Fatal("script never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	require.NoError(t, eng.Emit(context.Background(), "app:notes:ping", map[string]any{"n": 7}))

	select {
	case ev := <-pongs:
		assert.Equal(t, map[string]any{"n": 7.0}, ev.Payload)
		assert.Equal(t, "notes", ev.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong")
	}

	cancel()
	require.NoError(t, <-done)
}
