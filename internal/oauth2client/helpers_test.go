package oauth2client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeProvider is an AccessTokenProvider returning canned results.
type fakeProvider struct {
	mu       sync.Mutex
	token    *AccessToken
	err      error
	delay    time.Duration
	requests []*TokenRequest

	calls atomic.Int32
}

func (p *fakeProvider) ObtainAccessToken(ctx context.Context, _ ResourceDescriptor, req *TokenRequest) (*AccessToken, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return p.token, p.err
}

// fakeStrategy is a GrantStrategy for a fixed grant type.
type fakeStrategy struct {
	grantType GrantType
	token     *AccessToken
	err       error
	calls     int
}

func (s *fakeStrategy) Supports(resource ResourceDescriptor) bool {
	return resource.GrantType == s.grantType
}

func (s *fakeStrategy) ObtainAccessToken(context.Context, ResourceDescriptor, *TokenRequest) (*AccessToken, error) {
	s.calls++
	return s.token, s.err
}

// recordingObserver counts Observer callbacks.
type recordingObserver struct {
	hits         atomic.Int32
	acquisitions atomic.Int32
	failures     atomic.Int32
}

func (o *recordingObserver) TokenCacheHit(string) {
	o.hits.Add(1)
}

func (o *recordingObserver) TokenAcquired(_ string, _ time.Duration, err error) {
	o.acquisitions.Add(1)
	if err != nil {
		o.failures.Add(1)
	}
}
