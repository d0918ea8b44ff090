package credentials

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/dmitrijs2005/gophshare/internal/common"
)

// LoadClientCertificate resolves name to a PEM bundle holding a certificate
// chain and its private key. Any failure, including an absent secret, is
// reported as common.ErrCredentialUnavailable.
func LoadClientCertificate(ctx context.Context, r Resolver, name string) (*tls.Certificate, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no certificate configured", common.ErrCredentialUnavailable)
	}

	bundle, err := r.GetSecret(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrCredentialUnavailable, err)
	}
	if bundle == nil {
		return nil, fmt.Errorf("%w: secret %q not found", common.ErrCredentialUnavailable, name)
	}
	defer common.WipeByteArray(bundle)

	cert, err := tls.X509KeyPair(bundle, bundle)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %w", common.ErrCredentialUnavailable, name, err)
	}
	return &cert, nil
}
