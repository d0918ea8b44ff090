package config

import (
	"github.com/spf13/pflag"
)

// BindFlags registers persistent flags for every Config field. Current
// values of cfg become the flag defaults, so flags given on the command
// line override both defaults and the config file.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.GroupID, "group", "g", c.GroupID, "application group the requests belong to")
	fs.StringVar(&c.BucketDriver, "bucket", c.BucketDriver, "bucket store driver: sqlite or redis")
	fs.StringVarP(&c.DatabasePath, "db", "d", c.DatabasePath, "sqlite database path")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis address for the redis bucket")
	fs.StringVar(&c.RedisPrefix, "redis-prefix", c.RedisPrefix, "key prefix in redis")
	fs.StringVar(&c.CredentialsDir, "secrets-dir", c.CredentialsDir, "directory of encrypted secrets")
	fs.StringVar(&c.IdentityFile, "identity", c.IdentityFile, "age identity file for the secrets")
	fs.StringVar(&c.SealPassphrase, "seal-passphrase", c.SealPassphrase, "passphrase encrypting persisted records")
	fs.StringVar(&c.CAFile, "ca", c.CAFile, "PEM file with extra trusted server roots")
	fs.DurationVar(&c.TransferTimeout, "timeout", c.TransferTimeout, "per transfer timeout")
	fs.DurationVar(&c.OrphanTTL, "orphan-ttl", c.OrphanTTL, "age after which idle requests are reclaimed")
	fs.StringVarP(&c.BridgeAddr, "bridge", "a", c.BridgeAddr, "host bridge gRPC address")
	fs.StringVar(&c.BridgeToken, "bridge-token", c.BridgeToken, "shared token required from bridge callers (empty disables)")
	fs.StringVar(&c.MetricsAddr, "metrics", c.MetricsAddr, "address to expose /metrics on (empty disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text or json")
}
