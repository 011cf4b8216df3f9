package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/walkabout/corebe/internal/oauth2client"
	"github.com/walkabout/corebe/internal/secretstore"
)

// SecretResolvingProvider fills in the resource's client secret from a
// SecretStore before delegating to the next provider.
// The store is read once, on the first acquisition, to avoid I/O during
// application startup.
type SecretResolvingProvider struct {
	next  oauth2client.AccessTokenProvider
	store secretstore.SecretStore

	secret func() (string, error)
}

// Compile-time check to ensure SecretResolvingProvider implements oauth2client.AccessTokenProvider
var _ oauth2client.AccessTokenProvider = (*SecretResolvingProvider)(nil)

// NewSecretResolvingProvider creates a SecretResolvingProvider.
// No I/O is performed until the first ObtainAccessToken call.
func NewSecretResolvingProvider(next oauth2client.AccessTokenProvider, store secretstore.SecretStore) (*SecretResolvingProvider, error) {
	if next == nil {
		return nil, fmt.Errorf("missing access token provider")
	}
	if store == nil {
		return nil, fmt.Errorf("missing secret store")
	}

	p := &SecretResolvingProvider{
		next:  next,
		store: store,
	}
	p.secret = sync.OnceValues(p.readSecret)

	return p, nil
}

// readSecret performs the one-time secret lookup.
func (p *SecretResolvingProvider) readSecret() (string, error) {
	// OnceValues has no context; the result is shared by every later caller
	// and must not depend on the first caller's cancellation.
	secret, err := p.store.Read(context.Background())
	if err != nil {
		return "", fmt.Errorf("failed to read client secret: %w", err)
	}
	return secret, nil
}

// ObtainAccessToken resolves the client secret when the resource has none and
// delegates to the next provider.
func (p *SecretResolvingProvider) ObtainAccessToken(ctx context.Context, resource oauth2client.ResourceDescriptor, req *oauth2client.TokenRequest) (*oauth2client.AccessToken, error) {
	if resource.ClientSecret == "" {
		secret, err := p.secret()
		if err != nil {
			return nil, err
		}
		resource.ClientSecret = secret
	}
	return p.next.ObtainAccessToken(ctx, resource, req)
}
