// Package app wires all Parley subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and watches the config file, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithLLM, WithStore,
// etc.). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/dialogue"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/internal/server"
	"github.com/MrWong99/parley/internal/store"
	"github.com/MrWong99/parley/internal/store/postgres"
	"github.com/MrWong99/parley/internal/transcript"
	"github.com/MrWong99/parley/pkg/provider/llm"
)

// errServerClosed ends the run group once the HTTP server has stopped.
var errServerClosed = errors.New("app: http server closed")

// shutdownGrace bounds the HTTP server drain when Run's context ends.
const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	configPath string
	registry   *config.Registry
	level      *slog.LevelVar
	clock      clock.Clock
	metrics    *observe.Metrics

	llm        llm.Provider
	llmName    string
	providers  *resilience.LLMFallback
	store      store.Store
	dialogue   *dialogue.Client
	vocabulary *transcript.Vocabulary
	interviews *Interviews
	server     *server.Server
	http       *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLLM injects the primary LLM provider instead of creating it from the
// registry. The config's fallback entry is ignored.
func WithLLM(name string, p llm.Provider) Option {
	return func(a *App) {
		a.llmName = name
		a.llm = p
	}
}

// WithStore injects a session store instead of creating one from config.
// The caller keeps ownership; Shutdown does not close it.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRegistry replaces the provider registry. The default registry holds
// every built-in provider (see [RegisterProviders]).
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithConfigPath enables hot reload: Run watches path and applies log level,
// vocabulary and interview default changes without restart.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLogLevel lets config reloads change the level of the process logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithClock injects the clock used by dialogue retries and interview timers.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithMetrics injects the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together.
//
// A missing LLM credential is reported as [config.ErrConfigurationMissing]
// before anything else is constructed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.clock == nil {
		a.clock = clock.New()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. LLM providers ─────────────────────────────────────────────────
	if err := a.initLLM(); err != nil {
		return nil, fmt.Errorf("app: init llm: %w", err)
	}

	// ── 2. Dialogue client ───────────────────────────────────────────────
	a.dialogue = dialogue.New(a.providers, dialogue.Config{
		Difficulty:  cfg.Interview.Difficulty,
		MaxAttempts: cfg.LLM.MaxAttempts,
		Backoff:     cfg.LLM.Backoff,
		Timeout:     cfg.LLM.Timeout,
		Clock:       a.clock,
		Metrics:     a.metrics,
	})

	// ── 3. Session store ─────────────────────────────────────────────────
	if a.store == nil {
		s, err := OpenStore(ctx, cfg.Storage)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: init storage: %w", err)
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	}

	// ── 4. Vocabulary correction ─────────────────────────────────────────
	a.vocabulary = transcript.NewVocabulary(cfg.Vocabulary)

	// ── 5. Interviews ────────────────────────────────────────────────────
	a.interviews = NewInterviews(InterviewsConfig{
		Config:    cfg,
		Dialogue:  a.dialogue,
		Store:     a.store,
		Corrector: a.vocabulary,
		Metrics:   a.metrics,
		Clock:     a.clock,
	})

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		Store:    a.store,
		Launcher: a.interviews,
		Health:   health.New(health.StoreChecker(a.store), health.ProviderChecker(a.providers)),
		Metrics:  a.metrics,
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init server: %w", err)
	}
	a.server = srv
	a.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("app initialised",
		"llm", a.llmName,
		"storage", cfg.Storage.Backend,
		"vocabulary_topics", a.vocabulary.Topics(),
	)
	return a, nil
}

func (a *App) initLLM() error {
	if a.llm != nil {
		a.providers = resilience.NewLLMFallback(a.llm, a.llmName, fallbackConfig(a.metrics))
		return nil
	}
	if err := config.RequireSecrets(a.cfg); err != nil {
		return err
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
		RegisterProviders(a.registry)
	}
	group, err := buildLLM(a.cfg.LLM, a.registry, a.metrics)
	if err != nil {
		return err
	}
	a.providers = group
	a.llmName = a.cfg.LLM.Primary.Name
	return nil
}

// OpenStore opens the session store selected by cfg.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.StorageFile:
		return store.NewFileStore(cfg.Dir)
	case config.StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	case config.StorageMemory, "":
		return store.NewMemStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// Store returns the session store.
func (a *App) Store() store.Store { return a.store }

// Interviews returns the live interview manager.
func (a *App) Interviews() *Interviews { return a.interviews }

// Handler returns the HTTP handler served by Run.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and, when a config path was
// given, watches the config file. It blocks until ctx is cancelled or the
// listener fails. Live interviews are not touched; call Shutdown for that.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.http.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.http.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.http.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.http.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			// Unblocks the other members when Shutdown ran first.
			return errServerClosed
		}
		return fmt.Errorf("app: serve http: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		if err := a.http.Shutdown(sctx); err != nil {
			slog.Warn("http server shutdown", "err", err)
		}
		return nil
	})

	if a.configPath != "" {
		g.Go(func() error {
			w, err := config.NewWatcher(a.configPath, a.applyConfig)
			if err != nil {
				slog.Warn("config hot reload disabled", "path", a.configPath, "err", err)
				return nil
			}
			<-gctx.Done()
			w.Stop()
			return nil
		})
	}

	slog.Info("app running")
	if err := g.Wait(); err != nil && !errors.Is(err, errServerClosed) {
		return err
	}
	return ctx.Err()
}

// applyConfig applies the hot-reloadable part of a config change.
func (a *App) applyConfig(old, new *config.Config) {
	diff := config.Diff(old, new)
	if !diff.Changed() {
		return
	}
	if diff.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if len(diff.VocabularyTopics) > 0 {
		a.vocabulary.Update(new.Vocabulary)
		slog.Info("vocabulary reloaded", "topics", diff.VocabularyTopics)
	}
	if diff.InterviewChanged || diff.SpeechChanged {
		a.interviews.SetConfig(new)
		slog.Info("interview defaults reloaded; running interviews keep their settings")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown cancels live interviews without persisting them, stops the HTTP
// server and closes the session store. It is safe to call more than once;
// later calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		var errs []error
		if err := a.interviews.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: http shutdown: %w", err))
		}
		if err := a.closeAll(); err != nil {
			errs = append(errs, err)
		}
		a.stopErr = errors.Join(errs...)
	})
	return a.stopErr
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("app: closer error", "index", i, "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// SlogLevel maps a configured log level to its slog level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
