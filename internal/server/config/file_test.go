package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_JSON(t *testing.T) {
	path := writeTemp(t, "server.json", `{
		"database_dsn": "postgres://u:p@db/share",
		"secret_key": "k",
		"token_validity": 3600000000000,
		"max_upload_size": 1024,
		"client_ca_file": "/etc/ca.pem"
	}`)

	var c Config
	c.LoadDefaults()
	require.NoError(t, LoadFile(&c, path))

	assert.Equal(t, "postgres://u:p@db/share", c.DatabaseDSN)
	assert.Equal(t, "k", c.SecretKey)
	assert.Equal(t, time.Hour, c.TokenValidity)
	assert.Equal(t, int64(1024), c.MaxUploadSize)
	assert.Equal(t, "/etc/ca.pem", c.ClientCAFile)
	assert.Equal(t, ":8065", c.HTTPAddr, "absent keys keep their value")
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeTemp(t, "server.yml", "s3_bucket: uploads\ns3_region: eu-west-1\nlog_format: text\n")

	var c Config
	c.LoadDefaults()
	require.NoError(t, LoadFile(&c, path))

	assert.Equal(t, "uploads", c.S3Bucket)
	assert.Equal(t, "eu-west-1", c.S3Region)
	assert.Equal(t, "text", c.LogFormat)
}

func TestLoadFile_Errors(t *testing.T) {
	var c Config

	err := LoadFile(&c, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	err = LoadFile(&c, writeTemp(t, "bad.json", "{"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
}
