package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// AuthorizationCodeStrategy implements the authorization code grant.
// Without an authorization code it asks for a user redirect; with one it
// exchanges the code for a token.
type AuthorizationCodeStrategy struct {
	client *http.Client
}

// Compile-time checks to ensure AuthorizationCodeStrategy implements GrantStrategy and TokenRefresher
var (
	_ GrantStrategy  = (*AuthorizationCodeStrategy)(nil)
	_ TokenRefresher = (*AuthorizationCodeStrategy)(nil)
)

// NewAuthorizationCodeStrategy creates an authorization code strategy.
func NewAuthorizationCodeStrategy(opts ...StrategyOption) *AuthorizationCodeStrategy {
	cfg := newStrategyConfig(opts)
	return &AuthorizationCodeStrategy{client: cfg.httpClient}
}

func (s *AuthorizationCodeStrategy) Supports(resource ResourceDescriptor) bool {
	return resource.GrantType == GrantTypeAuthorizationCode
}

func (s *AuthorizationCodeStrategy) ObtainAccessToken(ctx context.Context, resource ResourceDescriptor, req *TokenRequest) (*AccessToken, error) {
	code := ""
	if req != nil {
		code = req.AuthorizationCode
		if code == "" {
			code = req.Parameters.Get("code")
		}
	}
	if code == "" {
		return nil, authorizationRedirect(resource, req)
	}

	if req.StateKey == "" {
		return nil, errors.New("authorization code received without a state key")
	}
	if req.PreservedState == nil {
		return nil, errors.New("no preserved state for state key, possible CSRF attack")
	}

	cfg := resource.oauth2Config()
	if uri, ok := req.PreservedState.(string); ok && uri != "" && uri != NoPreservedState {
		cfg.RedirectURL = uri
	}
	token, err := cfg.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return fromOAuth2Token(token), nil
}

// RefreshAccessToken trades a refresh token for a new access token.
func (s *AuthorizationCodeStrategy) RefreshAccessToken(ctx context.Context, resource ResourceDescriptor, refreshToken string) (*AccessToken, error) {
	return refresh(s.clientContext(ctx), resource, refreshToken)
}

func (s *AuthorizationCodeStrategy) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

// ImplicitStrategy implements the implicit grant. The token arrives in the
// redirect back from the authorization endpoint; until then it asks for a
// user redirect.
type ImplicitStrategy struct{}

// Compile-time check to ensure ImplicitStrategy implements GrantStrategy
var _ GrantStrategy = (*ImplicitStrategy)(nil)

// NewImplicitStrategy creates an implicit grant strategy.
func NewImplicitStrategy() *ImplicitStrategy {
	return &ImplicitStrategy{}
}

func (s *ImplicitStrategy) Supports(resource ResourceDescriptor) bool {
	return resource.GrantType == GrantTypeImplicit
}

func (s *ImplicitStrategy) ObtainAccessToken(_ context.Context, resource ResourceDescriptor, req *TokenRequest) (*AccessToken, error) {
	if req != nil && req.Parameters.Get(fieldAccessToken) != "" {
		if req.StateKey != "" && req.PreservedState == nil {
			return nil, errors.New("no preserved state for state key, possible CSRF attack")
		}
		return tokenFromParameters(req.Parameters)
	}
	return nil, authorizationRedirect(resource, req, oauth2.SetAuthURLParam("response_type", "token"))
}

// tokenFromParameters reads a token from redirect parameters.
func tokenFromParameters(params url.Values) (*AccessToken, error) {
	fields := make(map[string]any, len(params))
	for key := range params {
		fields[key] = params.Get(key)
	}
	return tokenFromFields(fields, time.Now())
}

// PasswordStrategy implements the resource owner password credentials grant
// using the resource's username and password.
type PasswordStrategy struct {
	client *http.Client
}

// Compile-time checks to ensure PasswordStrategy implements GrantStrategy and TokenRefresher
var (
	_ GrantStrategy  = (*PasswordStrategy)(nil)
	_ TokenRefresher = (*PasswordStrategy)(nil)
)

// NewPasswordStrategy creates a resource owner password strategy.
func NewPasswordStrategy(opts ...StrategyOption) *PasswordStrategy {
	cfg := newStrategyConfig(opts)
	return &PasswordStrategy{client: cfg.httpClient}
}

func (s *PasswordStrategy) Supports(resource ResourceDescriptor) bool {
	return resource.GrantType == GrantTypePassword
}

func (s *PasswordStrategy) ObtainAccessToken(ctx context.Context, resource ResourceDescriptor, _ *TokenRequest) (*AccessToken, error) {
	if resource.Username == "" {
		return nil, errors.New("password grant requires a username")
	}
	token, err := resource.oauth2Config().PasswordCredentialsToken(s.clientContext(ctx), resource.Username, resource.Password)
	if err != nil {
		return nil, fmt.Errorf("requesting password grant token: %w", err)
	}
	return fromOAuth2Token(token), nil
}

// RefreshAccessToken trades a refresh token for a new access token.
func (s *PasswordStrategy) RefreshAccessToken(ctx context.Context, resource ResourceDescriptor, refreshToken string) (*AccessToken, error) {
	return refresh(s.clientContext(ctx), resource, refreshToken)
}

func (s *PasswordStrategy) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

// refresh uses golang.org/x/oauth2's refresh flow. ctx must carry the HTTP
// client under oauth2.HTTPClient.
func refresh(ctx context.Context, resource ResourceDescriptor, refreshToken string) (*AccessToken, error) {
	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	token, err := resource.oauth2Config().TokenSource(ctx, expired).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	return fromOAuth2Token(token), nil
}

// authorizationRedirect builds the redirect to the authorization endpoint with
// a fresh state key. The URI the user started from is preserved so the flow
// can return there.
func authorizationRedirect(resource ResourceDescriptor, req *TokenRequest, opts ...oauth2.AuthCodeOption) error {
	stateKey := uuid.NewString()
	cfg := resource.oauth2Config()

	var preserve any
	if req != nil && req.CurrentURI != "" {
		preserve = req.CurrentURI
		cfg.RedirectURL = req.CurrentURI
	}

	redirectURI := cfg.AuthCodeURL(stateKey, opts...)

	params := url.Values{}
	if parsed, err := url.Parse(redirectURI); err == nil {
		params = parsed.Query()
	}
	return &RedirectRequiredError{
		RedirectURI:     redirectURI,
		RequestParams:   params,
		StateKey:        stateKey,
		StateToPreserve: preserve,
	}
}
