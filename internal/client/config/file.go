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

// FileConfig is the on-disk form of Config. Intervals use timex.Duration so
// they may be written as "90s" or as integer nanoseconds.
type FileConfig struct {
	GroupID         string         `json:"group_id" yaml:"group_id"`
	BucketDriver    string         `json:"bucket_driver" yaml:"bucket_driver"`
	DatabasePath    string         `json:"database_path" yaml:"database_path"`
	RedisAddr       string         `json:"redis_addr" yaml:"redis_addr"`
	RedisPrefix     string         `json:"redis_prefix" yaml:"redis_prefix"`
	CredentialsDir  string         `json:"credentials_dir" yaml:"credentials_dir"`
	IdentityFile    string         `json:"identity_file" yaml:"identity_file"`
	SealPassphrase  string         `json:"seal_passphrase" yaml:"seal_passphrase"`
	CAFile          string         `json:"ca_file" yaml:"ca_file"`
	TransferTimeout timex.Duration `json:"transfer_timeout" yaml:"transfer_timeout"`
	OrphanTTL       timex.Duration `json:"orphan_ttl" yaml:"orphan_ttl"`
	BridgeAddr      string         `json:"bridge_addr" yaml:"bridge_addr"`
	BridgeToken     string         `json:"bridge_token" yaml:"bridge_token"`
	MetricsAddr     string         `json:"metrics_addr" yaml:"metrics_addr"`
	LogLevel        string         `json:"log_level" yaml:"log_level"`
	LogFormat       string         `json:"log_format" yaml:"log_format"`
}

// parseFile overlays cfg with the file named by -c/-config. It panics on
// read or decode errors, as the rest of the startup path does.
func parseFile(cfg *Config) {
	path := flagx.ConfigPath(os.Args[1:])
	if path == "" {
		return
	}
	if err := LoadFile(cfg, path); err != nil {
		panic(err)
	}
}

// LoadFile overlays cfg with the non-empty values found in path. Files
// ending in .yaml or .yml are read as YAML, anything else as JSON.
func LoadFile(cfg *Config, path string) error {
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

	fc.apply(cfg)
	return nil
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.GroupID, fc.GroupID)
	setString(&cfg.BucketDriver, fc.BucketDriver)
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.RedisAddr, fc.RedisAddr)
	setString(&cfg.RedisPrefix, fc.RedisPrefix)
	setString(&cfg.CredentialsDir, fc.CredentialsDir)
	setString(&cfg.IdentityFile, fc.IdentityFile)
	setString(&cfg.SealPassphrase, fc.SealPassphrase)
	setString(&cfg.CAFile, fc.CAFile)
	setString(&cfg.BridgeAddr, fc.BridgeAddr)
	setString(&cfg.BridgeToken, fc.BridgeToken)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)

	if fc.TransferTimeout.Duration > 0 {
		cfg.TransferTimeout = fc.TransferTimeout.Duration
	}
	if fc.OrphanTTL.Duration > 0 {
		cfg.OrphanTTL = fc.OrphanTTL.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
