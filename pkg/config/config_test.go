package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/pathsock/pkg/core"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.ListenAddress = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Engine.LocalIA = " "
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Socket.SendTimeoutMS = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Peers = []Peer{{IA: "1-ff00:0:111", Host: "", Port: 30100}}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Peers = []Peer{{IA: "1-ff00:0:111", Host: "10.0.0.2", Port: 0}}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Peers = []Peer{{IA: "1-ff00:0:111", Host: "10.0.0.2", Port: 30100, LossRate: 1.5}}
	assert.Error(t, cfg.Validate())
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
engine:
  listenAddress: "127.0.0.1:31000"
  localIA: "1-ff00:0:120"
  ttl: 32
socket:
  sendTimeoutMS: 1500
  pollIntervalMS: 20
  sourcePort: 31000
peers:
  - ia: "1-ff00:0:121"
    host: "10.0.1.2"
    port: 31000
    latencyMS: 12
    bandwidthKbps: 50000
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:31000", cfg.Engine.ListenAddress)
	assert.Equal(t, "1-ff00:0:120", cfg.Engine.LocalIA)
	assert.Equal(t, 32, cfg.Engine.TTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.SendTimeout())
	assert.Equal(t, 20*time.Millisecond, cfg.PollInterval())

	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, core.Address{IA: "1-ff00:0:121", Host: "10.0.1.2", Port: 31000},
		cfg.Peers[0].Address())
	assert.Equal(t, 12*time.Millisecond, cfg.Peers[0].Metadata().Latency)
	assert.Equal(t, uint64(50000), cfg.Peers[0].Metadata().BandwidthKbps)
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
  "engine": {"listenAddress": "127.0.0.1:31001", "localIA": "1-ff00:0:120"},
  "logging": {"level": "warn"}
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	assert.Equal(t, "127.0.0.1:31001", cfg.Engine.ListenAddress)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromFileUnsupported(t *testing.T) {
	cfg := DefaultConfig()
	err := LoadFromFile("config.toml", cfg)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PATHSOCK_LISTEN_ADDRESS", "127.0.0.1:32000")
	t.Setenv("PATHSOCK_LOCAL_IA", "1-ff00:0:130")
	t.Setenv("PATHSOCK_SEND_TIMEOUT_MS", "750")
	t.Setenv("PATHSOCK_LOG_LEVEL", "error")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, "127.0.0.1:32000", cfg.Engine.ListenAddress)
	assert.Equal(t, "1-ff00:0:130", cfg.Engine.LocalIA)
	assert.Equal(t, 750, cfg.Socket.SendTimeoutMS)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Peers = []Peer{{IA: "1-ff00:0:121", Host: "10.0.1.2", Port: 31000}}
	require.NoError(t, cfg.SaveToFile(path))

	reloaded := DefaultConfig()
	require.NoError(t, LoadFromFile(path, reloaded))
	assert.Equal(t, cfg.Peers, reloaded.Peers)
	assert.Equal(t, cfg.Engine.ListenAddress, reloaded.Engine.ListenAddress)
}
