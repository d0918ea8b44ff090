// Package config handles configuration for the reference API server,
// including defaults, a JSON or YAML file overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the reference API server.
//
// An empty DatabaseDSN keeps metadata in memory; BlobDriver selects "memory"
// or "s3". Setting ClientCAFile (with TLSCertFile/TLSKeyFile) requires
// clients to present a certificate signed by one of its CAs.
type Config struct {
	HTTPAddr      string
	DatabaseDSN   string
	SecretKey     string
	TokenValidity time.Duration
	MaxUploadSize int64

	TLSCertFile  string
	TLSKeyFile   string
	ClientCAFile string

	BlobDriver     string
	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string

	// IssueTokenFor, when set, makes the server print a token for that user
	// and exit instead of serving.
	IssueTokenFor string

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8065"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.TokenValidity = 24 * time.Hour
	c.MaxUploadSize = 100 << 20
	c.BlobDriver = "memory"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "share"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional config file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
