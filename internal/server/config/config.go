// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/inference"
	"github.com/dmitrijs2005/cytoguard/internal/report"
	"github.com/dmitrijs2005/cytoguard/internal/validation"
)

// Config holds runtime settings for the cytoguard server.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the public gRPC endpoint.
//   - MetricsAddr: bind address for the Prometheus endpoint; empty disables it.
//   - DatabaseDSN: PostgreSQL DSN (pgx) for the durable audit trail; empty keeps
//     the audit log in memory only.
//   - TempBaseDir: parent of per-session store directories; empty means os.TempDir().
//   - SessionTimeout / SweepInterval: idle timeout and how often it is enforced.
//   - MaxUploadBytes: upload size ceiling.
//   - KDFIterations: PBKDF2 rounds, never below 100 000.
//   - ModelURL / ModelTimeout / ClassMapping: the model collaborator.
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint: report
//     archive; an empty bucket disables archiving.
//   - LogLevel / LogFormat: slog level and "json" or "text".
type Config struct {
	EndpointAddrGRPC string
	MetricsAddr      string
	DatabaseDSN      string
	TempBaseDir      string
	SessionTimeout   time.Duration
	SweepInterval    time.Duration
	MaxUploadBytes   int64
	KDFIterations    int
	ModelURL         string
	ModelTimeout     time.Duration
	ClassMapping     inference.ClassMapping
	S3RootUser       string
	S3RootPassword   string
	S3Bucket         string
	S3Region         string
	S3BaseEndpoint   string
	LogLevel         string
	LogFormat        string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.MetricsAddr = ":9090"
	c.DatabaseDSN = ""
	c.TempBaseDir = ""
	c.SessionTimeout = 2 * time.Hour
	c.SweepInterval = 1 * time.Minute
	c.MaxUploadBytes = validation.DefaultMaxSize
	c.KDFIterations = 100_000
	c.ModelURL = "http://127.0.0.1:8501/predict"
	c.ModelTimeout = 30 * time.Second
	c.ClassMapping = inference.DefaultMapping()
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = ""
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// ReportArchive returns the S3 settings for archiving reports.
func (c *Config) ReportArchive() report.S3Config {
	return report.S3Config{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
	}
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
