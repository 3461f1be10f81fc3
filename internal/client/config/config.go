package config

import "time"

// Config holds runtime settings for the cytoguard CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the triage gRPC endpoint.
//   - RequestTimeout: deadline applied to each RPC.
//   - MaxMessageBytes: largest message sent or received; must fit an upload.
//   - UserID: identity sent when a session is created; empty means anonymous.
type Config struct {
	ServerEndpointAddr string
	RequestTimeout     time.Duration
	MaxMessageBytes    int
	UserID             string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RequestTimeout = time.Minute
	c.MaxMessageBytes = 11 << 20
	c.UserID = ""
}

// Load applies defaults and then the JSON file at path, if any.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		return cfg, nil
	}
	if err := parseJson(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
