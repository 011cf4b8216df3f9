package oauth2client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// ClientCredentialsStrategy implements the client credentials grant.
// Token responses are passed through Normalize, so envelope-wrapped tokens
// look like standard ones to the rest of the package.
type ClientCredentialsStrategy struct {
	client *http.Client
}

// Compile-time check to ensure ClientCredentialsStrategy implements GrantStrategy
var _ GrantStrategy = (*ClientCredentialsStrategy)(nil)

// NewClientCredentialsStrategy creates a client credentials strategy.
func NewClientCredentialsStrategy(opts ...StrategyOption) *ClientCredentialsStrategy {
	cfg := newStrategyConfig(opts)
	return &ClientCredentialsStrategy{client: cfg.httpClient}
}

// Supports reports whether the resource uses the client credentials grant.
func (s *ClientCredentialsStrategy) Supports(resource ResourceDescriptor) bool {
	return resource.GrantType == GrantTypeClientCredentials
}

// ObtainAccessToken requests a token with the resource's client id and secret.
func (s *ClientCredentialsStrategy) ObtainAccessToken(ctx context.Context, resource ResourceDescriptor, _ *TokenRequest) (*AccessToken, error) {
	form := url.Values{"grant_type": {string(GrantTypeClientCredentials)}}
	if len(resource.Scopes) > 0 {
		form.Set("scope", strings.Join(resource.Scopes, " "))
	}

	raw, err := retrieveToken(ctx, s.client, resource, form)
	if err != nil {
		return nil, err
	}
	token := Normalize(raw)
	if token == nil || token.Value == "" {
		return nil, ErrMissingTokenValue
	}
	return token, nil
}
