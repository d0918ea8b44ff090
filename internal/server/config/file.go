package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophshare/internal/flagx"
	"github.com/dmitrijs2005/gophshare/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. TokenValidity accepts "12h" or
// integer nanoseconds.
type FileConfig struct {
	HTTPAddr       string         `json:"http_addr" yaml:"http_addr"`
	DatabaseDSN    string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey      string         `json:"secret_key" yaml:"secret_key"`
	TokenValidity  timex.Duration `json:"token_validity" yaml:"token_validity"`
	MaxUploadSize  int64          `json:"max_upload_size" yaml:"max_upload_size"`
	TLSCertFile    string         `json:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile     string         `json:"tls_key_file" yaml:"tls_key_file"`
	ClientCAFile   string         `json:"client_ca_file" yaml:"client_ca_file"`
	BlobDriver     string         `json:"blob_driver" yaml:"blob_driver"`
	S3RootUser     string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket       string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	LogLevel       string         `json:"log_level" yaml:"log_level"`
	LogFormat      string         `json:"log_format" yaml:"log_format"`
}

// parseFile overlays config with the file named by -c/-config, if any.
// It panics when the file cannot be read or decoded.
func parseFile(config *Config) {
	path := flagx.ConfigPath(os.Args[1:])
	if path == "" {
		return
	}
	if err := LoadFile(config, path); err != nil {
		panic(err)
	}
}

// LoadFile overlays config with the non-empty values found in path, read as
// YAML for .yaml/.yml and as JSON otherwise.
func LoadFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for dst, v := range map[*string]string{
		&config.HTTPAddr:       fc.HTTPAddr,
		&config.DatabaseDSN:    fc.DatabaseDSN,
		&config.SecretKey:      fc.SecretKey,
		&config.TLSCertFile:    fc.TLSCertFile,
		&config.TLSKeyFile:     fc.TLSKeyFile,
		&config.ClientCAFile:   fc.ClientCAFile,
		&config.BlobDriver:     fc.BlobDriver,
		&config.S3RootUser:     fc.S3RootUser,
		&config.S3RootPassword: fc.S3RootPassword,
		&config.S3Bucket:       fc.S3Bucket,
		&config.S3Region:       fc.S3Region,
		&config.S3BaseEndpoint: fc.S3BaseEndpoint,
		&config.LogLevel:       fc.LogLevel,
		&config.LogFormat:      fc.LogFormat,
	} {
		if v != "" {
			*dst = v
		}
	}
	if fc.TokenValidity.Duration > 0 {
		config.TokenValidity = fc.TokenValidity.Duration
	}
	if fc.MaxUploadSize > 0 {
		config.MaxUploadSize = fc.MaxUploadSize
	}
	return nil
}
