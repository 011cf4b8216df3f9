package oauth2client

import "sync"

// ClientContext is the mutable state shared by every request issued through
// one client: the cached token, the pending token request, and state
// preserved across interactive redirects.
//
// It performs no I/O. It is safe for concurrent use.
type ClientContext struct {
	mu          sync.RWMutex
	accessToken *AccessToken
	request     *TokenRequest
	preserved   map[string]any
}

// NewClientContext returns a context with an empty pending token request.
func NewClientContext() *ClientContext {
	return NewClientContextWithRequest(&TokenRequest{})
}

// NewClientContextWithRequest returns a context holding req as its pending
// token request. req may be nil.
func NewClientContextWithRequest(req *TokenRequest) *ClientContext {
	return &ClientContext{
		request:   req,
		preserved: make(map[string]any),
	}
}

// AccessToken returns the cached token, or nil.
func (c *ClientContext) AccessToken() *AccessToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken replaces the cached token. The pending token request sees
// the new token as its ExistingToken. A nil token clears the cache.
func (c *ClientContext) SetAccessToken(token *AccessToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
	if c.request != nil {
		c.request.ExistingToken = token
	}
}

// AccessTokenRequest returns the pending token request, or nil.
func (c *ClientContext) AccessTokenRequest() *TokenRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.request
}

// SetAccessTokenRequest replaces the pending token request.
func (c *ClientContext) SetAccessTokenRequest(req *TokenRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = req
}

// SetPreservedState stores state under key for a later RemovePreservedState.
func (c *ClientContext) SetPreservedState(key string, state any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preserved == nil {
		c.preserved = make(map[string]any)
	}
	c.preserved[key] = state
}

// RemovePreservedState deletes the state stored under key and returns it.
// It returns nil when nothing is stored.
func (c *ClientContext) RemovePreservedState(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.preserved[key]
	delete(c.preserved, key)
	return state
}
