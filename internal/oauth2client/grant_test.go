package oauth2client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// tokenServer serves a token endpoint that records the last form it received.
func tokenServer(t *testing.T, status int, contentType, body string) (*httptest.Server, *url.Values, *http.Header) {
	t.Helper()
	form := &url.Values{}
	header := &http.Header{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		*form = r.PostForm
		*header = r.Header.Clone()
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, form, header
}

func clientCredentialsResource(tokenURL string) ResourceDescriptor {
	return ResourceDescriptor{
		ID:           "sabre",
		TokenURL:     tokenURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		GrantType:    GrantTypeClientCredentials,
	}
}

func TestClientCredentialsStrategy(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		value       string
	}{
		{
			name:        "standard response",
			contentType: "application/json",
			body:        `{"access_token":"abc","token_type":"Bearer","expires_in":3600}`,
			value:       "abc",
		},
		{
			name:        "enveloped response",
			contentType: "application/json;charset=UTF-8",
			body:        `{"data":{"access_token":"wrapped","token_type":"Bearer","expires_in":3600}}`,
			value:       "wrapped",
		},
		{
			name:        "form encoded response",
			contentType: "application/x-www-form-urlencoded",
			body:        `access_token=form&token_type=bearer&expires_in=60`,
			value:       "form",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, form, header := tokenServer(t, http.StatusOK, tt.contentType, tt.body)
			strategy := NewClientCredentialsStrategy(WithHTTPClient(srv.Client()))

			token, err := strategy.ObtainAccessToken(context.Background(), clientCredentialsResource(srv.URL), &TokenRequest{})

			require.NoError(t, err)
			assert.Equal(t, tt.value, token.Value)
			assert.False(t, token.ExpiresAt.IsZero())
			assert.Equal(t, "client_credentials", form.Get("grant_type"))
			assert.Empty(t, form.Get("client_secret"), "secret travels in the basic auth header by default")

			req := &http.Request{Header: *header}
			user, pass, ok := req.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "client-id", user)
			assert.Equal(t, "client-secret", pass)
		})
	}
}

func TestClientCredentialsStrategyAuthInParams(t *testing.T) {
	srv, form, header := tokenServer(t, http.StatusOK, "application/json", `{"access_token":"abc"}`)
	resource := clientCredentialsResource(srv.URL)
	resource.AuthStyle = oauth2.AuthStyleInParams
	resource.Scopes = []string{"read", "write"}

	_, err := NewClientCredentialsStrategy(WithHTTPClient(srv.Client())).ObtainAccessToken(context.Background(), resource, nil)

	require.NoError(t, err)
	assert.Equal(t, "client-id", form.Get("client_id"))
	assert.Equal(t, "client-secret", form.Get("client_secret"))
	assert.Equal(t, "read write", form.Get("scope"))
	assert.Empty(t, header.Get("Authorization"))
}

func TestClientCredentialsStrategyErrors(t *testing.T) {
	t.Run("error response", func(t *testing.T) {
		srv, _, _ := tokenServer(t, http.StatusUnauthorized, "application/json", `{"error":"invalid_client","error_description":"bad secret"}`)

		_, err := NewClientCredentialsStrategy(WithHTTPClient(srv.Client())).ObtainAccessToken(context.Background(), clientCredentialsResource(srv.URL), nil)

		var rErr *oauth2.RetrieveError
		require.ErrorAs(t, err, &rErr)
		assert.Equal(t, "invalid_client", rErr.ErrorCode)
		assert.Equal(t, "bad secret", rErr.ErrorDescription)
		assert.Equal(t, http.StatusUnauthorized, rErr.Response.StatusCode)
	})

	t.Run("response without token or envelope", func(t *testing.T) {
		srv, _, _ := tokenServer(t, http.StatusOK, "application/json", `{"status":"ok"}`)

		_, err := NewClientCredentialsStrategy(WithHTTPClient(srv.Client())).ObtainAccessToken(context.Background(), clientCredentialsResource(srv.URL), nil)

		assert.ErrorIs(t, err, ErrMissingTokenValue)
	})

	t.Run("missing token URL", func(t *testing.T) {
		_, err := NewClientCredentialsStrategy().ObtainAccessToken(context.Background(), clientCredentialsResource(""), nil)
		assert.Error(t, err)
	})
}

func TestChainFirstSupportingStrategyWins(t *testing.T) {
	password := &fakeStrategy{grantType: GrantTypePassword, token: &AccessToken{Value: "password"}}
	first := &fakeStrategy{grantType: GrantTypeClientCredentials, token: &AccessToken{Value: "first"}}
	second := &fakeStrategy{grantType: GrantTypeClientCredentials, token: &AccessToken{Value: "second"}}

	token, err := NewChain(password, first, second).ObtainAccessToken(context.Background(), ResourceDescriptor{ID: "sabre", GrantType: GrantTypeClientCredentials}, &TokenRequest{})

	require.NoError(t, err)
	assert.Equal(t, "first", token.Value)
	assert.Zero(t, password.calls)
	assert.Zero(t, second.calls)
}

func TestChainFallsThroughFailingStrategies(t *testing.T) {
	failing := &fakeStrategy{grantType: GrantTypeClientCredentials, err: errors.New("boom")}
	empty := &fakeStrategy{grantType: GrantTypeClientCredentials, token: &AccessToken{}}
	working := &fakeStrategy{grantType: GrantTypeClientCredentials, token: &AccessToken{Value: "ok"}}
	resource := ResourceDescriptor{ID: "sabre", GrantType: GrantTypeClientCredentials}

	token, err := NewChain(failing, empty, working).ObtainAccessToken(context.Background(), resource, &TokenRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", token.Value)

	_, err = NewChain(failing, empty).ObtainAccessToken(context.Background(), resource, &TokenRequest{})
	var acquisition *AcquisitionError
	require.ErrorAs(t, err, &acquisition)
	assert.Equal(t, "sabre", acquisition.ResourceID)
	assert.ErrorIs(t, err, ErrMissingTokenValue)
	assert.ErrorContains(t, err, "boom")
}

func TestChainWithoutApplicableStrategy(t *testing.T) {
	_, err := NewChain(&fakeStrategy{grantType: GrantTypePassword}).ObtainAccessToken(context.Background(), ResourceDescriptor{ID: "sabre", GrantType: GrantTypeClientCredentials}, &TokenRequest{})

	var acquisition *AcquisitionError
	require.ErrorAs(t, err, &acquisition)
	assert.ErrorIs(t, err, ErrNoApplicableStrategy)
	assert.Contains(t, err.Error(), "sabre")
}

func TestChainStopsOnRedirect(t *testing.T) {
	redirecting := &fakeStrategy{grantType: GrantTypeAuthorizationCode, err: &RedirectRequiredError{StateKey: "k1"}}
	next := &fakeStrategy{grantType: GrantTypeAuthorizationCode, token: &AccessToken{Value: "never"}}

	_, err := NewChain(redirecting, next).ObtainAccessToken(context.Background(), ResourceDescriptor{GrantType: GrantTypeAuthorizationCode}, &TokenRequest{})

	var redirect *RedirectRequiredError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, "k1", redirect.StateKey)
	assert.Zero(t, next.calls)
}

func TestDefaultChainClientCredentials(t *testing.T) {
	srv, _, _ := tokenServer(t, http.StatusOK, "application/json", `{"data":{"access_token":"abc","token_type":"Bearer"}}`)

	token, err := DefaultChain(WithHTTPClient(srv.Client())).ObtainAccessToken(context.Background(), clientCredentialsResource(srv.URL), &TokenRequest{})

	require.NoError(t, err)
	assert.Equal(t, "abc", token.Value)
}

func TestAuthorizationCodeStrategyRedirects(t *testing.T) {
	resource := ResourceDescriptor{
		ID:        "sabre",
		AuthURL:   "https://auth.example.com/authorize",
		TokenURL:  "https://auth.example.com/token",
		ClientID:  "client-id",
		GrantType: GrantTypeAuthorizationCode,
	}

	_, err := NewAuthorizationCodeStrategy().ObtainAccessToken(context.Background(), resource, &TokenRequest{CurrentURI: "https://app.example.com/callback"})

	var redirect *RedirectRequiredError
	require.ErrorAs(t, err, &redirect)
	assert.NotEmpty(t, redirect.StateKey)
	assert.Equal(t, "https://app.example.com/callback", redirect.StateToPreserve)
	assert.Equal(t, redirect.StateKey, redirect.RequestParams.Get("state"))
	assert.Equal(t, "code", redirect.RequestParams.Get("response_type"))
	assert.Equal(t, "client-id", redirect.RequestParams.Get("client_id"))
}

func TestAuthorizationCodeStrategyExchange(t *testing.T) {
	srv, form, _ := tokenServer(t, http.StatusOK, "application/json", `{"access_token":"from-code","token_type":"Bearer","expires_in":3600}`)
	resource := ResourceDescriptor{ID: "sabre", TokenURL: srv.URL, ClientID: "client-id", GrantType: GrantTypeAuthorizationCode}
	strategy := NewAuthorizationCodeStrategy(WithHTTPClient(srv.Client()))

	_, err := strategy.ObtainAccessToken(context.Background(), resource, &TokenRequest{AuthorizationCode: "c0de"})
	assert.ErrorContains(t, err, "state key")

	_, err = strategy.ObtainAccessToken(context.Background(), resource, &TokenRequest{AuthorizationCode: "c0de", StateKey: "k1"})
	assert.ErrorContains(t, err, "CSRF")

	token, err := strategy.ObtainAccessToken(context.Background(), resource, &TokenRequest{
		Parameters:     url.Values{"code": {"c0de"}},
		StateKey:       "k1",
		PreservedState: "https://app.example.com/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "from-code", token.Value)
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "c0de", form.Get("code"))
	assert.Equal(t, "https://app.example.com/callback", form.Get("redirect_uri"))
}

func TestImplicitStrategy(t *testing.T) {
	resource := ResourceDescriptor{AuthURL: "https://auth.example.com/authorize", ClientID: "client-id", GrantType: GrantTypeImplicit}
	strategy := NewImplicitStrategy()

	_, err := strategy.ObtainAccessToken(context.Background(), resource, &TokenRequest{})
	var redirect *RedirectRequiredError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, "token", redirect.RequestParams.Get("response_type"))
	assert.Nil(t, redirect.StateToPreserve)

	token, err := strategy.ObtainAccessToken(context.Background(), resource, &TokenRequest{
		Parameters:     url.Values{"access_token": {"implicit"}, "token_type": {"Bearer"}, "expires_in": {"600"}},
		StateKey:       "k1",
		PreservedState: NoPreservedState,
	})
	require.NoError(t, err)
	assert.Equal(t, "implicit", token.Value)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), token.ExpiresAt, 5*time.Second)
}

func TestPasswordStrategy(t *testing.T) {
	srv, form, _ := tokenServer(t, http.StatusOK, "application/json", `{"access_token":"pw","token_type":"Bearer","refresh_token":"r1"}`)
	resource := ResourceDescriptor{ID: "sabre", TokenURL: srv.URL, ClientID: "client-id", GrantType: GrantTypePassword, Username: "agent", Password: "s3cret"}
	strategy := NewPasswordStrategy(WithHTTPClient(srv.Client()))

	token, err := strategy.ObtainAccessToken(context.Background(), resource, nil)
	require.NoError(t, err)
	assert.Equal(t, "pw", token.Value)
	assert.Equal(t, "r1", token.RefreshToken)
	assert.Equal(t, "password", form.Get("grant_type"))
	assert.Equal(t, "agent", form.Get("username"))

	resource.Username = ""
	_, err = strategy.ObtainAccessToken(context.Background(), resource, nil)
	assert.ErrorContains(t, err, "username")
}

func TestChainRefreshesExpiredToken(t *testing.T) {
	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		grants = append(grants, r.PostForm.Get("grant_type"))
		assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "refreshed", "token_type": "Bearer", "expires_in": 3600})
	}))
	defer srv.Close()

	resource := ResourceDescriptor{ID: "sabre", TokenURL: srv.URL, ClientID: "client-id", GrantType: GrantTypePassword, Username: "agent"}
	req := &TokenRequest{ExistingToken: &AccessToken{Value: "old", RefreshToken: "r1", ExpiresAt: time.Now().Add(-time.Minute)}}

	token, err := DefaultChain(WithHTTPClient(srv.Client())).ObtainAccessToken(context.Background(), resource, req)

	require.NoError(t, err)
	assert.Equal(t, "refreshed", token.Value)
	assert.Equal(t, []string{"refresh_token"}, grants)
}

func TestInterceptorRefreshesTokenInsideLeeway(t *testing.T) {
	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		grants = append(grants, r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "refreshed", "token_type": "Bearer", "refresh_token": "r2", "expires_in": 3600})
	}))
	defer srv.Close()

	resource := ResourceDescriptor{ID: "sabre", TokenURL: srv.URL, ClientID: "client-id", GrantType: GrantTypePassword, Username: "agent"}
	cc := NewClientContext()
	// Not expired yet, but within the leeway.
	cc.SetAccessToken(&AccessToken{Value: "old", RefreshToken: "r1", ExpiresAt: time.Now().Add(30 * time.Second)})

	interceptor, err := NewInterceptor(cc, resource,
		WithProvider(DefaultChain(WithHTTPClient(srv.Client()))),
		WithExpiryLeeway(time.Minute),
	)
	require.NoError(t, err)

	token, err := interceptor.GetToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "refreshed", token.Value)
	assert.Equal(t, []string{"refresh_token"}, grants)
}
