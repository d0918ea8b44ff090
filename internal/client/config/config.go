package config

import "time"

// Config holds runtime settings for the share coordinator.
//
// Units: TransferTimeout and OrphanTTL are time.Duration values.
type Config struct {
	GroupID string

	// Bucket store: "sqlite" (DatabasePath) or "redis" (RedisAddr, RedisPrefix).
	BucketDriver string
	DatabasePath string
	RedisAddr    string
	RedisPrefix  string

	// Credential store: age-encrypted files in CredentialsDir.
	CredentialsDir string
	IdentityFile   string

	// SealPassphrase, when set, encrypts registry and manifest records.
	SealPassphrase string

	// CAFile adds trusted roots for the API server certificate.
	CAFile string

	TransferTimeout time.Duration
	OrphanTTL       time.Duration

	BridgeAddr  string
	BridgeToken string
	MetricsAddr string

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.GroupID = "group.gophshare"
	c.BucketDriver = "sqlite"
	c.DatabasePath = "gophshare.db"
	c.RedisAddr = "127.0.0.1:6379"
	c.RedisPrefix = "gophshare"
	c.CredentialsDir = "secrets"
	c.IdentityFile = "identity.age"
	c.TransferTimeout = 2 * time.Minute
	c.OrphanTTL = 24 * time.Hour
	c.BridgeAddr = "127.0.0.1:50061"
	c.MetricsAddr = ""
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig applies defaults and then the config file named by -c/-config,
// if any. Command-line flags are bound on top by the caller (see BindFlags).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	return cfg
}
