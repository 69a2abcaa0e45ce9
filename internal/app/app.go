// Package app wires all IdeaSpark subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithAnalyst, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ideaspark/ideaspark/internal/analysis"
	"github.com/ideaspark/ideaspark/internal/auth"
	"github.com/ideaspark/ideaspark/internal/capture"
	"github.com/ideaspark/ideaspark/internal/config"
	"github.com/ideaspark/ideaspark/internal/health"
	"github.com/ideaspark/ideaspark/internal/ideastore"
	"github.com/ideaspark/ideaspark/internal/observe"
	"github.com/ideaspark/ideaspark/internal/resilience"
	"github.com/ideaspark/ideaspark/internal/transcript"
	"github.com/ideaspark/ideaspark/pkg/provider/embeddings"
	"github.com/ideaspark/ideaspark/pkg/provider/image"
	"github.com/ideaspark/ideaspark/pkg/provider/llm"
)

// shutdownGrace is how long Run waits for in-flight HTTP requests after the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// imagePatchTimeout bounds the detached illustration task spawned by
// manual idea entry.
const imagePatchTimeout = 2 * time.Minute

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM         llm.Provider
	LLMFallback llm.Provider
	Image       image.Provider
	Embeddings  embeddings.Provider
}

// App owns all subsystem lifetimes for the IdeaSpark server.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store    ideastore.Store
	pinger   health.Pinger
	analyst  analysis.Analyst
	verifier auth.Verifier

	// issuer mints tokens for the development token endpoint. Nil unless
	// auth.dev_tokens is enabled and the JWT verifier came from config.
	issuer *auth.JWT
	metrics  *observe.Metrics
	gateway  *capture.Gateway
	server   *http.Server

	// captureCfg holds the speech-recognition settings handed to clients.
	// It is an atomic pointer so a config reload can swap it while requests
	// are in flight.
	captureCfg atomic.Pointer[config.CaptureConfig]

	// imageTasks tracks detached illustration patches spawned by manual
	// idea entry, so shutdown can wait for them.
	imageTasks sync.WaitGroup

	// llmHealth reports LLM backend availability for the readiness probe.
	// Nil when no failover group is in play (a single backend has no
	// breaker state to report).
	llmHealth func() error

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a record store instead of creating one from config.
func WithStore(s ideastore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithAnalyst injects an analyst instead of building one from the LLM provider.
func WithAnalyst(an analysis.Analyst) Option {
	return func(a *App) { a.analyst = an }
}

// WithVerifier injects a credential verifier instead of the config JWT verifier.
func WithVerifier(v auth.Verifier) Option {
	return func(a *App) { a.verifier = v }
}

// WithMetrics injects a metrics instance instead of the default provider's.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	a.captureCfg.Store(&cfg.Capture)

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initAnalyst(); err != nil {
		return nil, fmt.Errorf("app: init analyst: %w", err)
	}
	if err := a.initAuth(); err != nil {
		return nil, fmt.Errorf("app: init auth: %w", err)
	}

	a.gateway = capture.NewGateway(capture.GatewayConfig{
		Verifier:       a.verifier,
		Store:          a.store,
		Analyst:        a.analyst,
		Images:         providers.Image,
		OriginPatterns: cfg.Server.AllowedOrigins,
		Metrics:        a.metrics,
	})

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// SetCaptureSettings replaces the speech-recognition settings served to
// clients. Called by main when a config reload changes the capture section;
// connected clients pick the new settings up on their next settings fetch.
func (a *App) SetCaptureSettings(c config.CaptureConfig) {
	a.captureCfg.Store(&c)
}

// initStore connects the Postgres record store, or falls back to the
// in-memory store when no DSN is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	var embed embeddings.Provider
	if a.providers.Embeddings != nil {
		embed = observe.InstrumentEmbedder(a.providers.Embeddings, a.cfg.Providers.Embeddings.Name, a.metrics)
	}

	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured, using in-memory store")
		a.store = ideastore.NewMemStore(embed)
		return nil
	}

	pg, err := ideastore.NewPostgres(ctx, dsn, embed)
	if err != nil {
		return err
	}
	a.store = pg
	a.pinger = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// initAnalyst builds the extraction/mutation service on the configured LLM,
// with failover to the fallback backend when one is present.
func (a *App) initAnalyst() error {
	if a.analyst != nil {
		return nil
	}
	if a.providers.LLM == nil {
		return errors.New("an LLM provider is required")
	}

	backend := a.providers.LLM
	if a.providers.LLMFallback != nil {
		fb := resilience.NewLLMFallback(backend, a.cfg.Providers.LLM.Name, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, from, to resilience.State) {
					slog.Info("llm backend state change", "backend", name, "from", from, "to", to)
				},
			},
		})
		fb.AddFallback(a.cfg.Providers.LLMFallback.Name, a.providers.LLMFallback)
		backend = fb
		a.llmHealth = fb.Healthy
	}

	corrector := transcript.NewCorrector(transcript.DomainVocabulary())
	a.analyst = analysis.NewLLMAnalyst(backend, analysis.WithCorrector(corrector))
	return nil
}

// initAuth builds the JWT verifier from config unless one was injected.
func (a *App) initAuth() error {
	if a.verifier != nil {
		return nil
	}
	if a.cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	j := auth.NewJWT(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL)
	a.verifier = j
	if a.cfg.Auth.DevTokens {
		slog.Warn("development token endpoint enabled, do not run this in production")
		a.issuer = j
	}
	return nil
}

// Run serves HTTP until ctx is cancelled, then drains active capture
// sessions and in-flight requests. It returns nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		a.gateway.Wait()
		a.imageTasks.Wait()
		return nil
	})

	slog.Info("ideaspark server running", "addr", a.cfg.Server.ListenAddr)
	return g.Wait()
}

// Shutdown tears down the remaining subsystems in order. Run must have
// returned before Shutdown is called. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
