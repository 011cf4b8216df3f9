package oauth2client

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Transport is an http.RoundTripper that runs an Interceptor on every request
// before handing it to Base.
type Transport struct {
	// Base is the underlying transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	Interceptor *Interceptor
}

// Compile-time check that Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)

// NewTransport creates a Transport. base defaults to http.DefaultTransport.
func NewTransport(interceptor *Interceptor, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		Base:        base,
		Interceptor: interceptor,
	}
}

// RoundTrip clones the request, attaches the token and forwards the clone.
// No request is sent when the token cannot be attached.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	closeBody := func() {
		if req.Body != nil {
			_ = req.Body.Close()
		}
	}

	if t.Interceptor == nil {
		closeBody()
		return nil, fmt.Errorf("oauth2client: Interceptor is nil")
	}

	reqClone := req.Clone(req.Context())
	if err := t.Interceptor.Apply(reqClone); err != nil {
		closeBody()
		return nil, fmt.Errorf("oauth2client: attaching access token: %w", err)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(reqClone)
}

// TokenSource returns an oauth2.TokenSource backed by the interceptor.
// Tokens carry the interceptor's token type.
func (i *Interceptor) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, interceptor: i}
}

type tokenSource struct {
	ctx         context.Context
	interceptor *Interceptor
}

// Token implements oauth2.TokenSource.
func (s *tokenSource) Token() (*oauth2.Token, error) {
	token, err := s.interceptor.GetToken(s.ctx)
	if err != nil {
		return nil, err
	}
	converted := token.OAuth2Token()
	converted.TokenType = s.interceptor.tokenType
	return converted, nil
}
