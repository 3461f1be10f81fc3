package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:50051", cfg.ServerEndpointAddr)
	assert.Equal(t, time.Minute, cfg.RequestTimeout)
	assert.Equal(t, 11<<20, cfg.MaxMessageBytes)
	assert.Empty(t, cfg.UserID)
}

func TestLoad_JSONOverlay(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"server_endpoint_addr": "triage.example:443",
		"request_timeout":      "15s",
		"user_id":              "dr-lee",
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "triage.example:443", cfg.ServerEndpointAddr)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "dr-lee", cfg.UserID)
	assert.Equal(t, 11<<20, cfg.MaxMessageBytes, "absent fields keep defaults")
}

func TestLoad_NumericDuration(t *testing.T) {
	path := writeTempJSON(t, map[string]any{"request_timeout": int64(2 * time.Second)})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
