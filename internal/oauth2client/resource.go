package oauth2client

import (
	"net/url"
	"slices"

	"golang.org/x/oauth2"
)

// GrantType identifies an OAuth2 grant.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeImplicit          GrantType = "implicit"
	GrantTypePassword          GrantType = "password"
	GrantTypeClientCredentials GrantType = "client_credentials"
)

// ResourceDescriptor describes a protected resource and the credentials used
// to obtain tokens for it. Treat it as immutable once an Interceptor holds it.
type ResourceDescriptor struct {
	ID           string
	TokenURL     string
	ClientID     string
	ClientSecret string
	GrantType    GrantType
	Scopes       []string

	// AuthStyle selects how client credentials reach the token endpoint.
	// Zero means HTTP basic auth.
	AuthStyle oauth2.AuthStyle

	// AuthURL and RedirectURL are used by the interactive grants only.
	AuthURL     string
	RedirectURL string

	// Username and Password are used by the resource owner password grant.
	Username string
	Password string
}

func (r ResourceDescriptor) clone() ResourceDescriptor {
	r.Scopes = slices.Clone(r.Scopes)
	return r
}

// oauth2Config builds the golang.org/x/oauth2 configuration for the resource.
func (r ResourceDescriptor) oauth2Config() *oauth2.Config {
	style := r.AuthStyle
	if style == oauth2.AuthStyleAutoDetect {
		style = oauth2.AuthStyleInHeader
	}
	return &oauth2.Config{
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   r.AuthURL,
			TokenURL:  r.TokenURL,
			AuthStyle: style,
		},
		RedirectURL: r.RedirectURL,
		Scopes:      slices.Clone(r.Scopes),
	}
}

// TokenRequest carries the per-attempt parameters of a token acquisition.
type TokenRequest struct {
	// Parameters are request parameters received from an interactive
	// redirect (for example code, state, or an implicit access_token).
	Parameters url.Values

	// StateKey correlates this request with a prior redirect.
	StateKey string

	// PreservedState is the state stored under StateKey during the redirect.
	// It is filled in by the Interceptor before the grant strategies run.
	PreservedState any

	// AuthorizationCode is the code returned by the authorization endpoint.
	AuthorizationCode string

	// CurrentURI is the URI the user should return to after a redirect.
	CurrentURI string

	// ExistingToken mirrors the client context's cached token, so strategies
	// can refresh it instead of starting over.
	ExistingToken *AccessToken
}
