package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
nats:
  url: nats://broker:4222
client_id: alice
`))
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "alice", cfg.ClientID)
	assert.Equal(t, "CHATKIT", cfg.NATS.Stream)
	assert.Equal(t, "chatkit", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 200, cfg.Messages.WindowLimit)
	assert.Equal(t, 10*time.Second, cfg.Typing.HeartbeatInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Release.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Release.MaxDelay)
	assert.Equal(t, 2.0, cfg.Release.Multiplier)
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
nats:
  url: nats://broker:4222
  stream: CHAT_PROD
  subject_prefix: chat.prod
messages:
  window_limit: 50
typing:
  heartbeat_interval: 5s
  inactivity_timeout: 8s
release:
  initial_delay: 100ms
  max_delay: 10s
  multiplier: 1.5
`))
	require.NoError(t, err)

	assert.Equal(t, "CHAT_PROD", cfg.NATS.Stream)
	assert.Equal(t, "chat.prod", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 50, cfg.Messages.WindowLimit)
	assert.Equal(t, 5*time.Second, cfg.Typing.HeartbeatInterval)
	assert.Equal(t, 8*time.Second, cfg.Typing.InactivityTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Release.InitialDelay)
	assert.Equal(t, 1.5, cfg.Release.Multiplier)
}

func TestParse_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed yaml", "nats: ["},
		{
			"inactivity not above heartbeat",
			"typing:\n  heartbeat_interval: 10s\n  inactivity_timeout: 10s\n",
		},
		{
			"max delay below initial delay",
			"release:\n  initial_delay: 10s\n  max_delay: 1s\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nats:\n  url: nats://file:4222\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://file:4222", cfg.NATS.URL)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
