// Package rest serves the fragment repository over an HTTP/JSON API.
//
// Successful responses use the envelope {"status":"ok", ...}; failures use
// {"status":"error","error":{"code":<http status>,"message":...}}. Error
// categories from pkg/errs map to status codes in statusFor.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/internal/ratelimiter"
	"github.com/marmos91/fragments/pkg/auth"
	"github.com/marmos91/fragments/pkg/fragment"
	"github.com/marmos91/fragments/pkg/metrics"
)

// HTTPAdapter implements the adapter.Adapter interface for the fragments
// REST API.
//
// Architecture:
// HTTPAdapter owns the TCP listener and an http.Server whose handler is the
// router built by Handler. Every request passes through the middleware chain
// (metrics, logging, authentication, rate limiting, body limit) before a
// handler translates it into fragment.Repository calls.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. http.Server.Shutdown stops the listener and waits for in-flight
//     requests (up to ShutdownTimeout)
//  3. Request contexts are cancelled
//  4. Remaining connections are force-closed after the timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() may be called multiple times.
type HTTPAdapter struct {
	// config holds the server configuration (port, limits, timeouts)
	config HTTPConfig

	// repo is the shared fragment repository, injected by SetRepository
	repo *fragment.Repository

	// authenticator resolves the caller of every /v1 request
	authenticator auth.Authenticator

	// limiter enforces per-owner request rates; nil when rate limiting is off
	limiter *ratelimiter.Keyed

	// metrics records request counts and latencies
	metrics metrics.HTTPMetrics

	// boundPort is the port actually bound, for Port() after Serve with port 0
	boundPort atomic.Int32

	// started is set when Serve begins; Stop without Serve returns at once
	started atomic.Bool

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown signals that graceful shutdown has been initiated
	shutdown chan struct{}

	// done is closed when Serve returns
	done chan struct{}

	// shutdownCtx is the base context of every request; cancelled during
	// shutdown so long conversions abort
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// HTTPConfig holds configuration parameters for the HTTP adapter.
//
// Default values (applied by New if zero):
//   - Port: 8080
//   - MaxBodyBytes: 5 MiB
//   - ReadTimeout: 30s
//   - WriteTimeout: 60s
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
//   - RateLimit: disabled
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on. If 0, defaults to 8080.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// APIURL is the public base URL used to build Location headers.
	// Empty means "http://<request Host>".
	APIURL string `mapstructure:"api_url" yaml:"api_url" validate:"omitempty,url"`

	// MaxBodyBytes caps the size of POST and PUT bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes" validate:"min=0"`

	// ReadTimeout is the maximum duration for reading a complete request.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout is the maximum duration for writing a response,
	// conversion included.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// IdleTimeout closes keep-alive connections idle for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum duration to wait for in-flight
	// requests during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// RateLimit bounds requests per authenticated owner.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures the per-owner token bucket.
// A zero RequestsPerSecond disables rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             uint `mapstructure:"burst" yaml:"burst"`
}

// DefaultMaxBodyBytes is the body limit applied when none is configured.
const DefaultMaxBodyBytes = 5 << 20

// applyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) applyDefaults() {
	// Note: Enabled defaults are handled in pkg/config so that an explicit
	// false in the configuration file is preserved.

	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerSecond
	}
}

// validate checks that the configuration is usable.
func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("invalid timeouts: read=%v write=%v idle=%v: must be >= 0",
			c.ReadTimeout, c.WriteTimeout, c.IdleTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.APIURL != "" {
		u, err := url.Parse(c.APIURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid api_url %q: must be an absolute URL", c.APIURL)
		}
	}
	return nil
}

// New creates a new HTTPAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetRepository() to inject
// the fragment repository, then Serve() to start accepting requests.
//
// Parameters:
//   - config: Server configuration (port, limits, timeouts)
//   - authenticator: Resolves the caller of every /v1 request
//   - httpMetrics: Optional metrics collector (nil for no metrics)
//
// Panics if config validation fails or authenticator is nil.
func New(config HTTPConfig, authenticator auth.Authenticator, httpMetrics metrics.HTTPMetrics) *HTTPAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}
	if authenticator == nil {
		panic("invalid HTTP config: authenticator is required")
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	var limiter *ratelimiter.Keyed
	if config.RateLimit.RequestsPerSecond > 0 {
		limiter = ratelimiter.NewKeyed(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst, 10*time.Minute)
		logger.Debug("HTTP rate limit: %d req/s per owner (burst %d)",
			config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	} else {
		logger.Debug("HTTP rate limit: unlimited")
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	a := &HTTPAdapter{
		config:         config,
		authenticator:  authenticator,
		limiter:        limiter,
		metrics:        httpMetrics,
		shutdown:       make(chan struct{}),
		done:           make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
	a.boundPort.Store(int32(config.Port))
	return a
}

// SetRepository injects the shared fragment repository.
func (a *HTTPAdapter) SetRepository(repo *fragment.Repository) {
	a.repo = repo
	logger.Debug("HTTP repository configured")
}

// Serve starts the HTTP server and blocks until the context is cancelled,
// Stop() is called, or the server fails.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener fails to start or shutdown is not graceful
func (a *HTTPAdapter) Serve(ctx context.Context) error {
	if a.repo == nil {
		return errors.New("HTTP adapter: repository not set")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on port %d: %w", a.config.Port, err)
	}
	return a.serve(ctx, listener)
}

// serve runs the server on an already bound listener.
func (a *HTTPAdapter) serve(ctx context.Context, listener net.Listener) error {
	a.started.Store(true)
	defer close(a.done)

	server := &http.Server{
		Handler:           a.Handler(),
		ReadTimeout:       a.config.ReadTimeout,
		ReadHeaderTimeout: a.config.ReadTimeout,
		WriteTimeout:      a.config.WriteTimeout,
		IdleTimeout:       a.config.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return a.shutdownCtx },
	}

	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		a.boundPort.Store(int32(addr.Port))
	}
	logger.Info("HTTP server listening on port %d", a.Port())
	logger.Debug("HTTP config: max_body_bytes=%d read_timeout=%v write_timeout=%v idle_timeout=%v",
		a.config.MaxBodyBytes, a.config.ReadTimeout, a.config.WriteTimeout, a.config.IdleTimeout)

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	if a.limiter != nil {
		go a.limiter.Run(sweepCtx, time.Minute)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("HTTP shutdown signal received: %v", ctx.Err())
		a.initiateShutdown()
		return a.gracefulShutdown(server)

	case <-a.shutdown:
		return a.gracefulShutdown(server)

	case err := <-serveErr:
		a.initiateShutdown()
		a.cancelRequests()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// initiateShutdown signals the server to begin graceful shutdown.
// Safe to call multiple times and from multiple goroutines.
func (a *HTTPAdapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")
		close(a.shutdown)
	})
}

// gracefulShutdown waits for in-flight requests to complete or timeout.
//
// Returns:
//   - nil if all requests completed gracefully
//   - error if the shutdown timeout was exceeded (connections were force-closed)
func (a *HTTPAdapter) gracefulShutdown(server *http.Server) error {
	logger.Info("HTTP graceful shutdown: waiting for in-flight requests (timeout: %v)",
		a.config.ShutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()

	err := server.Shutdown(ctx)

	// Abort anything still running (conversions, store calls)
	a.cancelRequests()

	if err != nil {
		logger.Warn("HTTP shutdown timeout exceeded after %v - forcing closure", a.config.ShutdownTimeout)
		if cerr := server.Close(); cerr != nil {
			logger.Debug("Error force-closing HTTP server: %v", cerr)
		}
		return fmt.Errorf("HTTP shutdown timeout: %w", err)
	}

	logger.Info("HTTP graceful shutdown complete")
	return nil
}

// Stop initiates graceful shutdown of the HTTP server and waits for Serve
// to return or ctx to expire.
//
// Safe to call multiple times, concurrently with Serve(), and before Serve().
func (a *HTTPAdapter) Stop(ctx context.Context) error {
	a.initiateShutdown()

	if !a.started.Load() {
		a.cancelRequests()
		return nil
	}

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		logger.Warn("HTTP shutdown context cancelled: %v", ctx.Err())
		return ctx.Err()
	}
}

// Protocol returns "HTTP".
func (a *HTTPAdapter) Protocol() string {
	return "HTTP"
}

// Port returns the configured port, or the bound port once Serve is running.
func (a *HTTPAdapter) Port() int {
	return int(a.boundPort.Load())
}
