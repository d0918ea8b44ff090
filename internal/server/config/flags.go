package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/gophshare/internal/flagx"
)

var knownFlags = []string{
	"-a", "-d", "-s", "-t", "-m", "-u", "-p", "-b", "-g", "-e",
	"-blob", "-tls-cert", "-tls-key", "-client-ca", "-issue-token", "-log-level", "-log-format",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string          HTTP bind address (e.g., ":8065")
//	-d string          PostgreSQL DSN (empty keeps metadata in memory)
//	-s string          JWT HMAC secret key
//	-t duration        token validity (e.g., "24h")
//	-m int             maximum upload size in bytes
//	-u / -p string     S3 root user / password
//	-b string          S3 bucket name
//	-g string          S3 region
//	-e string          S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-blob string       blob store: memory or s3
//	-tls-cert/-tls-key server certificate and key (PEM)
//	-client-ca string  CA bundle; enables mutual TLS
//	-issue-token user  print a token for user and exit
//	-log-level / -log-format
//
// os.Args is first filtered with flagx.FilterArgs so -c/-config and unknown
// arguments do not trip the parser.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.TokenValidity, "t", config.TokenValidity, "token validity")
	fs.Int64Var(&config.MaxUploadSize, "m", config.MaxUploadSize, "maximum upload size in bytes")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.BlobDriver, "blob", config.BlobDriver, "blob store driver: memory or s3")

	fs.StringVar(&config.TLSCertFile, "tls-cert", config.TLSCertFile, "TLS certificate file")
	fs.StringVar(&config.TLSKeyFile, "tls-key", config.TLSKeyFile, "TLS key file")
	fs.StringVar(&config.ClientCAFile, "client-ca", config.ClientCAFile, "CA bundle for client certificates")

	fs.StringVar(&config.IssueTokenFor, "issue-token", config.IssueTokenFor, "print a token for this user and exit")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format: text or json")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
