package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkabout/corebe/internal/oauth2client"
)

type memoryStore struct {
	mu     sync.Mutex
	secret string
	err    error
	reads  int
}

func (s *memoryStore) Read(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return s.secret, s.err
}

func (s *memoryStore) Write(_ context.Context, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
	return nil
}

type capturingProvider struct {
	resources []oauth2client.ResourceDescriptor
}

func (p *capturingProvider) ObtainAccessToken(_ context.Context, resource oauth2client.ResourceDescriptor, _ *oauth2client.TokenRequest) (*oauth2client.AccessToken, error) {
	p.resources = append(p.resources, resource)
	return &oauth2client.AccessToken{Value: "T"}, nil
}

func TestSecretResolvingProvider(t *testing.T) {
	store := &memoryStore{secret: "s3cret"}
	next := &capturingProvider{}
	p, err := NewSecretResolvingProvider(next, store)
	require.NoError(t, err)
	assert.Zero(t, store.reads, "no I/O on construction")

	for range 3 {
		token, err := p.ObtainAccessToken(context.Background(), oauth2client.ResourceDescriptor{ID: "sabre"}, &oauth2client.TokenRequest{})
		require.NoError(t, err)
		assert.Equal(t, "T", token.Value)
	}

	assert.Equal(t, 1, store.reads, "secret read once")
	require.Len(t, next.resources, 3)
	for _, r := range next.resources {
		assert.Equal(t, "s3cret", r.ClientSecret)
	}
}

func TestSecretResolvingProviderKeepsConfiguredSecret(t *testing.T) {
	store := &memoryStore{secret: "from-store"}
	next := &capturingProvider{}
	p, err := NewSecretResolvingProvider(next, store)
	require.NoError(t, err)

	_, err = p.ObtainAccessToken(context.Background(), oauth2client.ResourceDescriptor{ClientSecret: "inline"}, nil)
	require.NoError(t, err)

	assert.Zero(t, store.reads)
	assert.Equal(t, "inline", next.resources[0].ClientSecret)
}

func TestSecretResolvingProviderReadError(t *testing.T) {
	errStore := errors.New("keyring locked")
	next := &capturingProvider{}
	p, err := NewSecretResolvingProvider(next, &memoryStore{err: errStore})
	require.NoError(t, err)

	_, err = p.ObtainAccessToken(context.Background(), oauth2client.ResourceDescriptor{}, nil)
	assert.ErrorIs(t, err, errStore)
	assert.Empty(t, next.resources, "next provider not called without a secret")
}

func TestNewSecretResolvingProviderValidation(t *testing.T) {
	_, err := NewSecretResolvingProvider(nil, &memoryStore{})
	assert.Error(t, err)

	_, err = NewSecretResolvingProvider(&capturingProvider{}, nil)
	assert.Error(t, err)
}
