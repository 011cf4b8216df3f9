package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/walkabout/corebe/internal/oauth2client"
)

// Option configures a Proxy.
type Option func(*config)

type config struct {
	baseURL        string
	metricsHandler http.Handler
	transport      http.RoundTripper
}

// WithBaseURL sets the upstream API every request is forwarded to.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(c *config) {
		c.metricsHandler = h
	}
}

// WithTransport sets the transport used below the token transport.
// Defaults to http.DefaultTransport.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.transport = transport
	}
}

// Proxy represents the forward proxy server
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// New creates a forward proxy that attaches the interceptor's token to every
// request sent upstream.
func New(interceptor *oauth2client.Interceptor, opts ...Option) (*Proxy, error) {
	if interceptor == nil {
		return nil, fmt.Errorf("missing token interceptor")
	}

	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	upstream, err := url.Parse(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL: %q must be absolute", cfg.baseURL)
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			// Callers never choose the upstream credentials.
			pr.Out.Header.Del(oauth2client.DefaultHeader)
			pr.Out.Header.Del(interceptor.Header())
		},
		// FlushInterval: -1 disables automatic periodic flushing, flushing only when the backend flushes.
		FlushInterval: -1,
		Transport:     oauth2client.NewTransport(interceptor, cfg.transport),
		ErrorHandler:  handleUpstreamError,
	}

	logger := slog.Default()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	if cfg.metricsHandler != nil {
		mux.Handle("GET /metrics", cfg.metricsHandler)
	}

	// Everything else goes upstream
	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		Tracing,
		Logging(logger),
		Recovery,
	))

	return &Proxy{mux: mux}, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// handleUpstreamError maps token and transport failures to JSON errors.
// Nothing is sent upstream when the token could not be attached.
func handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var (
		redirect    *oauth2client.RedirectRequiredError
		acquisition *oauth2client.AcquisitionError
		violation   *oauth2client.ContractViolationError
	)
	switch {
	case errors.As(err, &redirect):
		slog.WarnContext(ctx, "upstream requires interactive authorization", "error", err)
		writeJSONError(ctx, w, "interactive authorization required", http.StatusUnauthorized)
	case errors.As(err, &acquisition), errors.As(err, &violation):
		slog.ErrorContext(ctx, "access token acquisition failed", "error", err)
		writeJSONError(ctx, w, "access token acquisition failed", http.StatusBadGateway)
	case errors.Is(err, context.Canceled):
		slog.DebugContext(ctx, "client canceled request", "error", err)
		w.WriteHeader(http.StatusBadGateway)
	default:
		slog.ErrorContext(ctx, "upstream request failed", "error", err)
		writeJSONError(ctx, w, "upstream request failed", http.StatusBadGateway)
	}
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request
		WriteTimeout: 2 * time.Minute,  // Inbound: Write entire response, including token acquisition and upstream time
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
