package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// AccessTokenProvider exchanges a resource's credentials for a token.
type AccessTokenProvider interface {
	ObtainAccessToken(ctx context.Context, resource ResourceDescriptor, req *TokenRequest) (*AccessToken, error)
}

// GrantStrategy is an AccessTokenProvider for a single OAuth2 grant type.
type GrantStrategy interface {
	AccessTokenProvider

	// Supports reports whether the strategy applies to the resource.
	Supports(resource ResourceDescriptor) bool
}

// TokenRefresher is implemented by strategies whose grant issues refresh
// tokens.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, resource ResourceDescriptor, refreshToken string) (*AccessToken, error)
}

// StrategyOption configures the built-in grant strategies.
type StrategyOption func(*strategyConfig)

type strategyConfig struct {
	httpClient *http.Client
}

// WithHTTPClient sets the client used to reach token endpoints.
// The default client has a 30 second timeout.
func WithHTTPClient(client *http.Client) StrategyOption {
	return func(c *strategyConfig) {
		c.httpClient = client
	}
}

func newStrategyConfig(opts []StrategyOption) *strategyConfig {
	cfg := &strategyConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		// Bounds acquisitions that run detached from the caller's context.
		cfg.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return cfg
}

// Chain tries grant strategies in order.
type Chain struct {
	strategies []GrantStrategy
}

// Compile-time check to ensure Chain implements AccessTokenProvider
var _ AccessTokenProvider = (*Chain)(nil)

// NewChain returns a chain over the given strategies.
func NewChain(strategies ...GrantStrategy) *Chain {
	return &Chain{strategies: strategies}
}

// DefaultChain returns the authorization code, implicit, password and client
// credentials strategies, in that order, sharing the given options.
func DefaultChain(opts ...StrategyOption) *Chain {
	return NewChain(
		NewAuthorizationCodeStrategy(opts...),
		NewImplicitStrategy(),
		NewPasswordStrategy(opts...),
		NewClientCredentialsStrategy(opts...),
	)
}

// ObtainAccessToken returns the token of the first strategy that supports the
// resource and succeeds. A RedirectRequiredError stops the chain immediately.
// When the pending request carries a previous token with a refresh token,
// strategies that can refresh try that first. Callers only ask for a token
// once the previous one is no longer usable to them, so its expiry is not
// rechecked here.
func (c *Chain) ObtainAccessToken(ctx context.Context, resource ResourceDescriptor, req *TokenRequest) (*AccessToken, error) {
	var failures []error
	for _, strategy := range c.strategies {
		if !strategy.Supports(resource) {
			continue
		}

		token, err := c.obtain(ctx, strategy, resource, req)
		if err != nil {
			var redirect *RedirectRequiredError
			if errors.As(err, &redirect) {
				return nil, err
			}
			failures = append(failures, err)
			continue
		}
		if token == nil || token.Value == "" {
			failures = append(failures, ErrMissingTokenValue)
			continue
		}
		return token, nil
	}

	if len(failures) == 0 {
		return nil, &AcquisitionError{
			ResourceID: resource.ID,
			Reason:     fmt.Sprintf("grant type %q", resource.GrantType),
			Err:        ErrNoApplicableStrategy,
		}
	}
	return nil, &AcquisitionError{
		ResourceID: resource.ID,
		Err:        errors.Join(failures...),
	}
}

func (c *Chain) obtain(ctx context.Context, strategy GrantStrategy, resource ResourceDescriptor, req *TokenRequest) (*AccessToken, error) {
	if refresher, ok := strategy.(TokenRefresher); ok && req != nil {
		if existing := req.ExistingToken; existing != nil && existing.RefreshToken != "" {
			token, err := refresher.RefreshAccessToken(ctx, resource, existing.RefreshToken)
			if err == nil && token != nil && token.Value != "" {
				return token, nil
			}
			// Fall through to a full grant; the refresh token may have been revoked.
		}
	}
	return strategy.ObtainAccessToken(ctx, resource, req)
}
