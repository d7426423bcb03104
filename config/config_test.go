package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("COLLAB_USER_ID", "12")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, int64(12), cfg.UserID)
	assert.Equal(t, TransportStomp, cfg.PushTransport)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.DedupWindow)
	assert.Equal(t, 5*time.Minute, cfg.AdminCooldown)
	assert.False(t, cfg.ExactDedupOnly)
	assert.False(t, cfg.ReadReceipts)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigDedupAndReceiptSwitches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collabsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user_id: 3\nread_receipts: true\n"), 0o600))
	t.Setenv("EXACT_DEDUP_ONLY", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.ExactDedupOnly)
	assert.True(t, cfg.ReadReceipts)

	t.Setenv("READ_RECEIPTS", "false")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.ReadReceipts)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collabsync.yaml")
	body := []byte("user_id: 3\npush_transport: nats\ndedup_window: 2s\napi_url: http://localhost:8080/api/\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("DEDUP_WINDOW", "750ms")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cfg.UserID)
	assert.Equal(t, TransportNats, cfg.PushTransport)
	assert.Equal(t, 750*time.Millisecond, cfg.DedupWindow)
	assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	assert.Error(t, cfg.Validate())

	cfg.UserID = 1
	cfg.PushTransport = "carrier-pigeon"
	assert.ErrorContains(t, cfg.Validate(), "unknown push transport")

	cfg.PushTransport = TransportRedis
	assert.ErrorContains(t, cfg.Validate(), "REDIS_ENABLED")

	cfg.RedisEnabled = true
	cfg.ServerTimezone = "Mars/Olympus"
	assert.ErrorContains(t, cfg.Validate(), "SERVER_TIMEZONE")

	cfg.ServerTimezone = "Asia/Manila"
	assert.NoError(t, cfg.Validate())
}
