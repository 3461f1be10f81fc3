package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/cytoguard/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent
// fields leave the defaults alone.
type JsonConfig struct {
	ServerEndpointAddr string          `json:"server_endpoint_addr"`
	RequestTimeout     *timex.Duration `json:"request_timeout"`
	MaxMessageBytes    int             `json:"max_message_bytes"`
	UserID             string          `json:"user_id"`
}

func parseJson(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.MaxMessageBytes > 0 {
		cfg.MaxMessageBytes = jc.MaxMessageBytes
	}
	if jc.UserID != "" {
		cfg.UserID = jc.UserID
	}
	return nil
}
