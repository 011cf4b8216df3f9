package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkabout/corebe/internal/oauth2client"
)

type stubProvider struct {
	token *oauth2client.AccessToken
	err   error
	calls atomic.Int32
}

func (p *stubProvider) ObtainAccessToken(context.Context, oauth2client.ResourceDescriptor, *oauth2client.TokenRequest) (*oauth2client.AccessToken, error) {
	p.calls.Add(1)
	return p.token, p.err
}

func newInterceptor(t *testing.T, provider oauth2client.AccessTokenProvider, opts ...oauth2client.Option) *oauth2client.Interceptor {
	t.Helper()
	resource := oauth2client.ResourceDescriptor{ID: "sabre", GrantType: oauth2client.GrantTypeClientCredentials}
	interceptor, err := oauth2client.NewInterceptor(oauth2client.NewClientContext(), resource, append([]oauth2client.Option{oauth2client.WithProvider(provider)}, opts...)...)
	require.NoError(t, err)
	return interceptor
}

func TestProxyForwardsWithToken(t *testing.T) {
	var gotPath, gotAuth, gotCustom string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"airports":[]}`)
	}))
	defer upstream.Close()

	provider := &stubProvider{token: &oauth2client.AccessToken{Value: "T1", ExpiresAt: time.Now().Add(time.Hour)}}
	p, err := New(newInterceptor(t, provider), WithBaseURL(upstream.URL+"/v1"))
	require.NoError(t, err)

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/lists/utilities/airports", nil)
		req.Header.Set("Authorization", "Bearer client-supplied")
		req.Header.Set("X-Api-Key", "kept")
		rec := httptest.NewRecorder()

		p.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"airports":[]}`, rec.Body.String())
	}

	assert.Equal(t, "/v1/lists/utilities/airports", gotPath)
	assert.Equal(t, "Bearer T1", gotAuth)
	assert.Equal(t, "kept", gotCustom)
	assert.Equal(t, int32(1), provider.calls.Load(), "token reused across requests")
}

func TestProxyTokenFailure(t *testing.T) {
	var upstreamCalls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
	}))
	defer upstream.Close()

	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{name: "acquisition error", err: errors.New("invalid_client"), status: http.StatusBadGateway, msg: "access token acquisition failed"},
		{name: "redirect required", err: &oauth2client.RedirectRequiredError{StateKey: "k1"}, status: http.StatusUnauthorized, msg: "interactive authorization required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(newInterceptor(t, &stubProvider{err: tt.err}), WithBaseURL(upstream.URL))
			require.NoError(t, err)
			rec := httptest.NewRecorder()

			p.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/offers/shop", nil))

			assert.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.msg, body.Error)
		})
	}
	assert.Zero(t, upstreamCalls.Load(), "nothing is sent upstream without a token")
}

func TestProxyLocalEndpoints(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "corebe_token_cache_hits_total 0\n")
	})
	p, err := New(newInterceptor(t, &stubProvider{}), WithBaseURL("https://api.example.com"), WithMetricsHandler(metricsHandler))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "corebe_token_cache_hits_total")
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, WithBaseURL("https://api.example.com"))
	assert.Error(t, err)

	_, err = New(newInterceptor(t, &stubProvider{}), WithBaseURL("not a url"))
	assert.Error(t, err)

	_, err = New(newInterceptor(t, &stubProvider{}))
	assert.Error(t, err, "base URL is required")
}

func TestStartAndShutdown(t *testing.T) {
	p, err := New(newInterceptor(t, &stubProvider{}), WithBaseURL("https://api.example.com"))
	require.NoError(t, err)

	errCh, err := p.Start(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	_, open := <-errCh
	assert.False(t, open, "error channel closes after graceful shutdown")
}

func TestShutdownWithoutStart(t *testing.T) {
	p := &Proxy{}
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
