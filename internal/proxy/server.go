package proxy

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jedarden/llm-router/internal/config"
	"github.com/jedarden/llm-router/internal/logging"
	"github.com/jedarden/llm-router/internal/secrets"
)

// Options configure a gateway server.
type Options struct {
	Env        *config.Env
	Loader     *config.Loader
	Store      *config.Store
	IgnoreAuth bool
	Version    string
}

// Server is the gateway's HTTP front end plus its background workers.
type Server struct {
	opts       Options
	breaker    *CircuitBreaker
	handler    http.Handler
	httpServer *http.Server
}

// NewServer wires the middleware chain and the dispatch pipeline.
func NewServer(opts Options) *Server {
	env := opts.Env
	breaker := NewCircuitBreaker(env.FallbackCircuitFailures, env.FallbackCircuitCooldownMs)
	metrics := NewMetrics(prometheus.DefaultRegisterer, breaker)
	dispatcher := NewDispatcher(NewAdapter(env), breaker, env, metrics)

	handler := &Handler{
		Store:      opts.Store,
		Resolver:   config.NewResolver(),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Env:        env,
		Version:    opts.Version,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler)

	masterKey := func() string {
		if env.MasterKey != "" {
			return env.MasterKey
		}
		return opts.Store.Snapshot().Config.MasterKey
	}
	gate := &AuthGate{IgnoreAuth: opts.IgnoreAuth, MasterKey: masterKey}

	cors := NewCORSPolicy(env.AllowedOrigins)
	allowlist := NewIPAllowlist(env.AllowedIPs)

	chain := gate.Middleware(mux)
	outer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowlist.Allows(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"Forbidden"}` + "\n"))
			return
		}
		if r.Method == http.MethodOptions {
			cors.Preflight(w, r)
			return
		}
		cors.Apply(w, r)
		chain.ServeHTTP(w, r)
	})

	s := &Server{opts: opts, breaker: breaker, handler: outer}
	s.httpServer = &http.Server{
		Addr:              env.Listen,
		Handler:           outer,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: streamed completions can legitimately run for
		// minutes.
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Handler exposes the full middleware chain, for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully. The config watcher runs alongside the listener.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer logging.DisableDebugLogging()

	snap := s.opts.Store.Snapshot()
	masterKey := s.opts.Env.MasterKey
	if masterKey != "" {
		log.Printf("[llm-router] master key from env (%s)", secrets.MaskAPIKey(masterKey))
	} else if snap.Config.MasterKey == "" && !s.opts.IgnoreAuth {
		log.Printf("[llm-router] Warning: no master key configured; routed requests will be rejected (use --ignore-auth for local mode)")
	}
	if masterKey == "" {
		masterKey = snap.Config.MasterKey
	}
	if masterKey != "" && !secrets.IsPotentialSecret(masterKey) {
		log.Printf("[llm-router] Warning: master key looks guessable; use a long random value")
	}
	for _, warning := range snap.Config.Warnings() {
		log.Printf("[llm-router] Warning: %s", warning)
	}

	config.StartWatcher(ctx, s.opts.Loader, s.opts.Store,
		time.Duration(s.opts.Env.ConfigPollMs)*time.Millisecond)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("[llm-router] listening on %s (%d providers)", s.opts.Env.Listen, snap.Config.EnabledProviders())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen on %s: %w", s.opts.Env.Listen, err)
		}
		return nil
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			log.Printf("[llm-router] received %s, shutting down", sig)
		case <-ctx.Done():
		}

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
