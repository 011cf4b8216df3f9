package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/walkabout/corebe/internal/metrics"
	"github.com/walkabout/corebe/internal/oauth2client"
	"github.com/walkabout/corebe/internal/proxy"
)

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg         *Config
	interceptor *oauth2client.Interceptor
	proxy       *proxy.Proxy
}

// New creates a new App instance.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tokenMetrics, err := metrics.NewTokenMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	// I/O deferred to first acquisition
	interceptor, err := newInterceptor(cfg, tokenMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create token interceptor: %w", err)
	}

	proxyServer, err := proxy.New(interceptor,
		proxy.WithBaseURL(cfg.Upstream.BaseURL),
		proxy.WithMetricsHandler(metrics.Handler(registry)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:         cfg,
		interceptor: interceptor,
		proxy:       proxyServer,
	}, nil
}

// Token returns a valid access token for the configured resource, acquiring
// one if necessary.
func (a *App) Token(ctx context.Context) (*oauth2client.AccessToken, error) {
	return a.interceptor.GetToken(ctx)
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "address", address, "upstream", a.cfg.Upstream.BaseURL)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address, "resource", a.cfg.Resource.ID)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// newInterceptor wires the client context, grant strategies and secret store
// for the configured resource. No I/O is performed.
func newInterceptor(cfg *Config, observer oauth2client.Observer) (*oauth2client.Interceptor, error) {
	store, err := cfg.Secret.NewSecretStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret store: %w", err)
	}

	chain := oauth2client.DefaultChain(oauth2client.WithHTTPClient(&http.Client{Timeout: cfg.Resource.Timeout}))
	provider, err := NewSecretResolvingProvider(chain, store)
	if err != nil {
		return nil, err
	}

	return oauth2client.NewInterceptor(
		oauth2client.NewClientContext(),
		cfg.Resource.Descriptor(),
		oauth2client.WithProvider(provider),
		oauth2client.WithHeader(cfg.Resource.Header),
		oauth2client.WithTokenType(cfg.Resource.TokenType),
		oauth2client.WithExpiryLeeway(cfg.Resource.ExpiryLeeway),
		oauth2client.WithLogger(slog.Default().With("component", "oauth2client")),
		oauth2client.WithObserver(observer),
	)
}
