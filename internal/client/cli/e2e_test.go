package cli

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/logging"
	"github.com/dmitrijs2005/gophshare/internal/server"
	srvconfig "github.com/dmitrijs2005/gophshare/internal/server/config"
	"github.com/dmitrijs2005/gophshare/internal/tlsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startAPIServer runs the reference server with mutual TLS, trusting
// clientCA for client certificates. It returns the base URL and the path of
// the server certificate.
func startAPIServer(t *testing.T, c *srvconfig.Config, clientCA string) (string, string) {
	t.Helper()
	bundle, err := tlsx.SelfSigned("localhost", time.Hour)
	require.NoError(t, err)
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certPath, bundle.CertPEM, 0o600))
	require.NoError(t, os.WriteFile(keyPath, bundle.KeyPEM, 0o600))

	c.TLSCertFile, c.TLSKeyFile, c.ClientCAFile = certPath, keyPath, clientCA

	app, err := server.NewApp(context.Background(), c, logging.Discard())
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = app.Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return "https://" + lis.Addr().String(), certPath
}

func TestSend_AgainstAPIServer(t *testing.T) {
	cfg := testConfig(t)
	clientCert := filepath.Join(t.TempDir(), "device.pem")
	_, err := run(t, cfg, "cert", "generate", "device-cert", "--cn", "device-1", "--out", clientCert)
	require.NoError(t, err)

	sc := &srvconfig.Config{}
	sc.LoadDefaults()
	sc.LogLevel = "error"
	url, serverCert := startAPIServer(t, sc, clientCert)
	cfg.CAFile = serverCert

	sc.IssueTokenFor = "user-1"
	tok, err := server.IssueToken(sc)
	require.NoError(t, err)

	for k, v := range map[string]string{
		common.PrefServerURL:       url,
		common.PrefToken:           tok,
		common.PrefCurrentUserID:   "user-1",
		common.PrefCertificateName: "device-cert",
	} {
		_, err := run(t, cfg, "prefs", "set", k, v)
		require.NoError(t, err)
	}

	out, err := run(t, cfg, "send", "--channel", "town-square", "-m", "release notes",
		writeFile(t, "notes.txt", "v1.2.0"), writeFile(t, "logo.png", "\x89PNG\r\n\x1a\n"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "created")

	t.Run("wrong user is refused", func(t *testing.T) {
		_, err := run(t, cfg, "prefs", "set", common.PrefCurrentUserID, "user-2")
		require.NoError(t, err)

		out, err := run(t, cfg, "send", "--channel", "town-square", "-m", "as someone else")
		require.ErrorIs(t, err, errRequestFailed)
		assert.Contains(t, out, "failed")
	})

	t.Run("missing client certificate is refused", func(t *testing.T) {
		_, err := run(t, cfg, "prefs", "set", common.PrefCurrentUserID, "user-1")
		require.NoError(t, err)
		_, err = run(t, cfg, "prefs", "unset", common.PrefCertificateName)
		require.NoError(t, err)

		_, err = run(t, cfg, "send", "--channel", "town-square", writeFile(t, "c.txt", "c"))
		require.ErrorIs(t, err, errRequestFailed)
	})
}
