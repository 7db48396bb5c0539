package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
poll_event_capacity: 128
poll_timeout_ms: 100
debug_port: 6060
log_path: log
log_level: INFO
log_expire_day: 7
`

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfigValid(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "config.yaml", validYAML)

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.PollEventCapacity)
	assert.Equal(t, 100, cfg.PollTimeoutMS)
	assert.Equal(t, 6060, cfg.DebugPort)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoadConfigRejectsUnknownLogLevel(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "config.yaml", `
poll_event_capacity: 128
poll_timeout_ms: 100
log_level: bogus
`)
	_, err := LoadConfig(p)
	assert.Error(t, err)
}

func TestLoadConfigRejectsZeroPollTimeout(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "config.yaml", `
poll_event_capacity: 128
poll_timeout_ms: 0
log_level: INFO
`)
	_, err := LoadConfig(p)
	assert.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	name := "config.yaml"
	writeConfig(t, dir, name, validYAML)

	reloaded := make(chan *Config, 1)
	require.NoError(t, Watch(dir, name, func(c *Config) {
		reloaded <- c
	}))

	time.Sleep(50 * time.Millisecond) // let the watcher register before we write
	writeConfig(t, dir, name, `
poll_event_capacity: 256
poll_timeout_ms: 200
log_level: WARN
`)

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 256, cfg.PollEventCapacity)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
