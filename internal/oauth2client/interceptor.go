package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTokenType prefixes the token value in the request header.
	DefaultTokenType = "Bearer"

	// DefaultHeader is the request header the token is written to.
	DefaultHeader = "Authorization"

	// NoPreservedState is stored for a redirect that carried a state key but
	// no state of its own.
	NoPreservedState = "NONE"
)

// Observer receives token lifecycle events, for example to record metrics.
type Observer interface {
	// TokenCacheHit is called when a cached token is reused.
	TokenCacheHit(resourceID string)

	// TokenAcquired is called after every acquisition attempt.
	TokenAcquired(resourceID string, duration time.Duration, err error)
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithTokenType sets the label written before the token value.
func WithTokenType(tokenType string) Option {
	return func(i *Interceptor) {
		i.tokenType = tokenType
	}
}

// WithHeader sets the request header the token is written to.
func WithHeader(header string) Option {
	return func(i *Interceptor) {
		i.header = header
	}
}

// WithProvider replaces the default grant strategy chain.
func WithProvider(provider AccessTokenProvider) Option {
	return func(i *Interceptor) {
		i.provider = provider
	}
}

// WithExpiryLeeway treats tokens as expired this long before their expiry.
func WithExpiryLeeway(leeway time.Duration) Option {
	return func(i *Interceptor) {
		i.expiryLeeway = leeway
	}
}

// WithLogger sets the logger for acquisition events. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

// WithObserver registers an Observer.
func WithObserver(observer Observer) Option {
	return func(i *Interceptor) {
		i.observer = observer
	}
}

// Interceptor attaches the token of one protected resource to outbound
// requests, acquiring a new token whenever the cached one is missing or
// expired.
type Interceptor struct {
	clientContext *ClientContext
	resource      ResourceDescriptor
	provider      AccessTokenProvider

	tokenType    string
	header       string
	expiryLeeway time.Duration
	now          func() time.Time

	logger   *slog.Logger
	observer Observer

	// flight collapses concurrent acquisitions into one.
	flight singleflight.Group
}

// NewInterceptor creates an Interceptor for resource backed by clientContext.
// Without WithProvider, tokens are obtained through DefaultChain.
func NewInterceptor(clientContext *ClientContext, resource ResourceDescriptor, opts ...Option) (*Interceptor, error) {
	if clientContext == nil {
		return nil, fmt.Errorf("missing client context")
	}

	i := &Interceptor{
		clientContext: clientContext,
		resource:      resource.clone(),
		tokenType:     DefaultTokenType,
		header:        DefaultHeader,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.header == "" {
		return nil, fmt.Errorf("header name cannot be empty")
	}
	if i.provider == nil {
		i.provider = DefaultChain()
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}

	return i, nil
}

// Resource returns a copy of the resource the interceptor serves.
func (i *Interceptor) Resource() ResourceDescriptor {
	return i.resource.clone()
}

// Header returns the name of the header the token is written to.
func (i *Interceptor) Header() string {
	return i.header
}

// Apply writes the resource's token into req's header.
// The request must not be sent when Apply returns an error.
func (i *Interceptor) Apply(req *http.Request) error {
	value, err := i.headerValue(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set(i.header, value)
	return nil
}

// headerValue formats "<token type> <token value>".
func (i *Interceptor) headerValue(ctx context.Context) (string, error) {
	token, err := i.GetToken(ctx)
	if err != nil {
		return "", err
	}
	if token.Value == "" {
		return "", &AcquisitionError{ResourceID: i.resource.ID, Err: ErrMissingTokenValue}
	}
	return fmt.Sprintf("%s %s", i.tokenType, token.Value), nil
}

// GetToken returns the cached token when it is still valid and acquires a new
// one otherwise. Concurrent callers share one acquisition. A caller whose ctx
// ends stops waiting; the acquisition itself carries on for the others.
//
// When acquisition needs a user redirect, the cached token is cleared, the
// redirect's state is preserved under its state key, and the
// *RedirectRequiredError is returned.
func (i *Interceptor) GetToken(ctx context.Context) (*AccessToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if token := i.clientContext.AccessToken(); i.valid(token) {
		i.cacheHit()
		return token, nil
	}

	// The acquisition outlives any single waiter; the token endpoint client
	// timeout bounds it.
	detached := context.WithoutCancel(ctx)
	ch := i.flight.DoChan(i.resource.ID, func() (any, error) {
		// Another flight may have stored a token since the check above.
		if token := i.clientContext.AccessToken(); i.valid(token) {
			i.cacheHit()
			return token, nil
		}

		token, err := i.AcquireAccessToken(detached)
		if err != nil {
			var redirect *RedirectRequiredError
			if errors.As(err, &redirect) {
				i.preserveRedirect(redirect)
			}
			return nil, err
		}
		return token, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*AccessToken), nil
	}
}

// preserveRedirect clears the cached token and stores the redirect's state.
func (i *Interceptor) preserveRedirect(redirect *RedirectRequiredError) {
	i.clientContext.SetAccessToken(nil)
	if redirect.StateKey == "" {
		return
	}
	state := redirect.StateToPreserve
	if state == nil {
		state = NoPreservedState
	}
	i.clientContext.SetPreservedState(redirect.StateKey, state)
}

// AcquireAccessToken obtains a new token from the provider and caches it.
//
// It fails with *AcquisitionError when the client context holds no pending
// token request, and with *ContractViolationError when the provider returns
// neither an error nor a token with a value. On failure the cached token is
// left as it was.
func (i *Interceptor) AcquireAccessToken(ctx context.Context) (token *AccessToken, err error) {
	req := i.clientContext.AccessTokenRequest()
	if req == nil {
		return nil, &AcquisitionError{
			ResourceID: i.resource.ID,
			Reason:     fmt.Sprintf("cannot find valid context on request for resource '%s'", i.resource.ID),
			Err:        ErrNoTokenRequest,
		}
	}

	if req.StateKey != "" {
		req.PreservedState = i.clientContext.RemovePreservedState(req.StateKey)
	}
	if existing := i.clientContext.AccessToken(); existing != nil {
		// Exposes the stale token to the request for strategies that refresh.
		i.clientContext.SetAccessToken(existing)
	}

	start := i.now()
	defer func() {
		if i.observer != nil {
			i.observer.TokenAcquired(i.resource.ID, i.now().Sub(start), err)
		}
	}()

	token, err = i.provider.ObtainAccessToken(ctx, i.resource.clone(), req)
	if err != nil {
		i.logger.WarnContext(ctx, "access token acquisition failed", "resource", i.resource.ID, "error", err)
		return nil, wrapAcquisitionError(i.resource.ID, err)
	}
	if token == nil || token.Value == "" {
		err = &ContractViolationError{ResourceID: i.resource.ID}
		i.logger.ErrorContext(ctx, "access token provider broke its contract", "resource", i.resource.ID)
		return nil, err
	}

	i.clientContext.SetAccessToken(token)

	attrs := []any{"resource", i.resource.ID}
	if !token.ExpiresAt.IsZero() {
		attrs = append(attrs, "expires_at", token.ExpiresAt.Format(time.RFC3339))
	}
	i.logger.InfoContext(ctx, "obtained new access token", attrs...)

	return token, nil
}

// wrapAcquisitionError keeps the typed errors of this package and wraps
// anything else in an AcquisitionError.
func wrapAcquisitionError(resourceID string, err error) error {
	var (
		redirect    *RedirectRequiredError
		acquisition *AcquisitionError
		violation   *ContractViolationError
	)
	if errors.As(err, &redirect) || errors.As(err, &acquisition) || errors.As(err, &violation) {
		return err
	}
	return &AcquisitionError{ResourceID: resourceID, Err: err}
}

func (i *Interceptor) valid(token *AccessToken) bool {
	return token != nil && token.Value != "" && !token.expiresWithin(i.now(), i.expiryLeeway)
}

func (i *Interceptor) cacheHit() {
	if i.observer != nil {
		i.observer.TokenCacheHit(i.resource.ID)
	}
}
