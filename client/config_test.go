package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ARENA_CONFIG", "")
	t.Setenv("ARENA_SERVER_URL", "")
	t.Setenv("ARENA_USERNAME", "")
	t.Setenv("ARENA_RECONNECT_DELAY_MS", "")
	t.Setenv("ARENA_DEBUG_ADDR", "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 3*time.Second, cfg.Server.ReconnectDelay())
	assert.Equal(t, 100*time.Millisecond, cfg.Input.MoveRepeat())
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	t.Setenv("ARENA_SERVER_URL", "ws://env.example/ws")
	path := writeConfig(t, `
server:
  url: ws://game.example:9000/ws
  username: alice
world:
  width: 4096
view:
  zoom: 1.5
input:
  move_repeat_ms: 50
log:
  level: info
  console: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://game.example:9000/ws", cfg.Server.URL, "file wins over env")
	assert.Equal(t, "alice", cfg.Server.Username)
	assert.Equal(t, 4096.0, cfg.World.Width)
	assert.Equal(t, 2048.0, cfg.World.Height)
	assert.Equal(t, 1.5, cfg.View.Zoom)
	assert.Equal(t, 50*time.Millisecond, cfg.Input.MoveRepeat())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Console)
	assert.Equal(t, 60, cfg.Frame.FPS)
}

func TestLoadConfigEnvFallback(t *testing.T) {
	t.Setenv("ARENA_SERVER_URL", "ws://env.example/ws")
	t.Setenv("ARENA_USERNAME", "envuser")
	t.Setenv("ARENA_RECONNECT_DELAY_MS", "500")
	t.Setenv("ARENA_DEBUG_ADDR", ":6060")
	path := writeConfig(t, "world:\n  map_url: /maps/big.png\n")
	t.Setenv("ARENA_CONFIG", path)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "ws://env.example/ws", cfg.Server.URL)
	assert.Equal(t, "envuser", cfg.Server.Username)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.ReconnectDelay())
	assert.Equal(t, ":6060", cfg.Debug.Addr)
	assert.Equal(t, "/maps/big.png", cfg.World.MapURL)
}

func TestLoadConfigInvalidEnvIgnored(t *testing.T) {
	t.Setenv("ARENA_CONFIG", "")
	t.Setenv("ARENA_RECONNECT_DELAY_MS", "soon")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultReconnectDelay, cfg.Server.ReconnectDelay())
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("ARENA_CONFIG", "")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "view:\n  zoom: 5\n"))
	assert.ErrorContains(t, err, "view.zoom")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Server.URL = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.View.Width = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Frame.FPS = -1
	assert.Error(t, bad.Validate())
}
