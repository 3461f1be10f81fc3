package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/flagx"
	"github.com/dmitrijs2005/cytoguard/internal/inference"
	"github.com/dmitrijs2005/cytoguard/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept both "90s"
// strings and integer nanoseconds. Fields left out of the file keep their
// current value.
type JsonConfig struct {
	EndpointAddrGRPC string                  `json:"endpoint_addr_grpc"`
	MetricsAddr      *string                 `json:"metrics_addr"`
	DatabaseDSN      string                  `json:"database_dsn"`
	TempBaseDir      string                  `json:"temp_base_dir"`
	SessionTimeout   timex.Duration          `json:"session_timeout"`
	SweepInterval    timex.Duration          `json:"sweep_interval"`
	MaxUploadBytes   int64                   `json:"max_upload_bytes"`
	KDFIterations    int                     `json:"kdf_iterations"`
	ModelURL         string                  `json:"model_url"`
	ModelTimeout     timex.Duration          `json:"model_timeout"`
	ClassMapping     *inference.ClassMapping `json:"class_mapping"`
	S3RootUser       string                  `json:"s3_root_user"`
	S3RootPassword   string                  `json:"s3_root_password"`
	S3Bucket         string                  `json:"s3_bucket"`
	S3Region         string                  `json:"s3_region"`
	S3BaseEndpoint   string                  `json:"s3_base_endpoint"`
	LogLevel         string                  `json:"log_level"`
	LogFormat        string                  `json:"log_format"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// $CYTOGUARD_CONFIG) onto config. Without a file nothing changes. An
// unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFilePath()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	if c.MetricsAddr != nil {
		config.MetricsAddr = *c.MetricsAddr
	}
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.TempBaseDir, c.TempBaseDir)
	setDuration(&config.SessionTimeout, c.SessionTimeout)
	setDuration(&config.SweepInterval, c.SweepInterval)
	if c.MaxUploadBytes > 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
	if c.KDFIterations > 0 {
		config.KDFIterations = c.KDFIterations
	}
	setString(&config.ModelURL, c.ModelURL)
	setDuration(&config.ModelTimeout, c.ModelTimeout)
	if c.ClassMapping != nil {
		config.ClassMapping = *c.ClassMapping
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
