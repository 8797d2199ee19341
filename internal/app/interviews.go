package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/dialogue"
	"github.com/MrWong99/parley/internal/interview"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/speech"
	"github.com/MrWong99/parley/internal/store"
)

// DefaultInitTimeout bounds how long speech engine initialisation may take
// when an interview starts (for the browser bridge this includes waiting for
// the page's hello frame).
const DefaultInitTimeout = 10 * time.Second

// ErrShuttingDown is returned by [Interviews.Launch] after Shutdown.
var ErrShuttingDown = errors.New("app: shutting down")

// InterviewInfo describes a live interview.
type InterviewInfo struct {
	ID         uuid.UUID
	Topic      string
	Difficulty string
	StartedAt  time.Time
	State      interview.State
}

// InterviewsConfig holds the dependencies of an [Interviews] manager.
type InterviewsConfig struct {
	// Config supplies the interview and speech defaults. It can be replaced
	// later with [Interviews.SetConfig].
	Config *config.Config

	Dialogue  *dialogue.Client
	Store     store.Store
	Corrector interview.Corrector
	Metrics   *observe.Metrics
	Clock     clock.Clock

	// InitTimeout is the speech initialisation bound. Zero means
	// [DefaultInitTimeout].
	InitTimeout time.Duration
}

// Interviews starts and tracks the live interviews of the process. Each
// interview owns its speech channels and runs its scheduler in its own
// goroutine until it finishes or is cancelled.
//
// All exported methods are safe for concurrent use.
type Interviews struct {
	deps InterviewsConfig
	cfg  atomic.Pointer[config.Config]

	mu     sync.Mutex
	live   map[uuid.UUID]*liveInterview
	closed bool
	wg     sync.WaitGroup
}

type liveInterview struct {
	sched  *interview.Scheduler
	cancel context.CancelFunc
	info   InterviewInfo
}

// NewInterviews creates a manager with no live interviews.
func NewInterviews(cfg InterviewsConfig) *Interviews {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	m := &Interviews{deps: cfg, live: make(map[uuid.UUID]*liveInterview)}
	m.cfg.Store(cfg.Config)
	return m
}

// SetConfig replaces the defaults used for interviews started from now on.
// Running interviews keep their settings.
func (m *Interviews) SetConfig(cfg *config.Config) { m.cfg.Store(cfg) }

// Settings resolves req against the configured defaults.
func (m *Interviews) Settings(req interview.Request) interview.Settings {
	ic := m.cfg.Load().Interview
	s := interview.Settings{
		Topic:      ic.Topic,
		Difficulty: ic.Difficulty,
		Duration:   time.Duration(ic.DurationMinutes) * time.Minute,
		AutoListen: ic.AutoListen,
		Analyze:    ic.Analyze,
		Context:    session.ContextWindow{MaxUtterances: ic.ContextUtterances},
	}
	if req.Topic != "" {
		s.Topic = req.Topic
	}
	if req.Difficulty != "" {
		s.Difficulty = req.Difficulty
	}
	if req.Duration > 0 {
		s.Duration = req.Duration
	}
	if req.AutoListen != nil {
		s.AutoListen = *req.AutoListen
	}
	return s
}

// Launch initialises the speech channels on synth and rec, starts a
// scheduler and returns it running. The interview stops when ctx is
// cancelled, when it finishes, or on [Interviews.Shutdown].
//
// A synthesizer that cannot be initialised fails the launch. A recognizer
// that cannot be initialised only disables voice answers: listening then
// reports the cause on a banner and typed answers still work.
func (m *Interviews) Launch(ctx context.Context, req interview.Request, synth speech.Synthesizer, rec speech.Recognizer) (*interview.Scheduler, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrShuttingDown
	}

	cfg := m.cfg.Load()
	settings := m.Settings(req)

	initCtx, cancelInit := context.WithTimeout(ctx, m.deps.InitTimeout)
	defer cancelInit()

	out := speech.NewOutput(synth, speech.OutputConfig{Language: cfg.Speech.Language, Rate: cfg.Speech.Rate})
	if err := out.Initialize(initCtx); err != nil {
		return nil, fmt.Errorf("app: start interview: %w", err)
	}

	var sched *interview.Scheduler
	in := speech.NewInput(rec, speech.InputConfig{
		Language:    cfg.Speech.Language,
		StopTimeout: cfg.Speech.StopTimeout,
		Clock:       m.deps.Clock,
		OnCaption: func(caption string) {
			sched.UpdateCaption(caption)
		},
	})
	var input interview.Input = in
	if err := in.Initialize(initCtx); err != nil {
		slog.Warn("app: voice answers unavailable, typed answers only", "err", err)
		input = unavailableInput{err: err}
	}

	sched, err := interview.New(interview.Config{
		Settings:  settings,
		Dialogue:  m.deps.Dialogue.WithDifficulty(settings.Difficulty),
		Output:    out,
		Input:     input,
		Store:     m.deps.Store,
		Corrector: m.deps.Corrector,
		Clock:     m.deps.Clock,
		Metrics:   m.deps.Metrics,
	})
	if err != nil {
		_ = out.Shutdown(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("app: start interview: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	li := &liveInterview{
		sched:  sched,
		cancel: cancel,
		info: InterviewInfo{
			ID:         sched.ID(),
			Topic:      settings.Topic,
			Difficulty: settings.Difficulty,
			StartedAt:  sched.Session().StartedAt,
		},
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		_ = out.Shutdown(context.WithoutCancel(ctx))
		return nil, ErrShuttingDown
	}
	m.live[li.info.ID] = li
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx, li, out, in)
	return sched, nil
}

func (m *Interviews) run(ctx context.Context, li *liveInterview, out *speech.Output, in *speech.Input) {
	defer m.wg.Done()
	defer li.cancel()

	err := li.sched.Run(ctx)

	cleanup := context.WithoutCancel(ctx)
	if err := out.Shutdown(cleanup); err != nil {
		slog.Debug("app: speech output shutdown", "interview_id", li.info.ID, "err", err)
	}
	if err := in.Shutdown(cleanup); err != nil {
		slog.Debug("app: speech input shutdown", "interview_id", li.info.ID, "err", err)
	}

	m.mu.Lock()
	delete(m.live, li.info.ID)
	m.mu.Unlock()

	switch {
	case err == nil:
		slog.Info("interview finished", "interview_id", li.info.ID, "topic", li.info.Topic)
	case errors.Is(err, context.Canceled):
		slog.Info("interview cancelled, session discarded", "interview_id", li.info.ID)
	default:
		slog.Warn("interview stopped", "interview_id", li.info.ID, "err", err)
	}
}

// Active returns the live interviews, oldest first.
func (m *Interviews) Active() []InterviewInfo {
	m.mu.Lock()
	infos := make([]InterviewInfo, 0, len(m.live))
	for _, li := range m.live {
		info := li.info
		info.State = li.sched.State()
		infos = append(infos, info)
	}
	m.mu.Unlock()

	slices.SortFunc(infos, func(a, b InterviewInfo) int { return a.StartedAt.Compare(b.StartedAt) })
	return infos
}

// Len returns the number of live interviews.
func (m *Interviews) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Shutdown cancels every live interview without persisting it and waits for
// their goroutines to exit. No new interviews can be launched afterwards.
func (m *Interviews) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, li := range m.live {
		li.cancel()
	}
	n := len(m.live)
	m.mu.Unlock()

	if n > 0 {
		slog.Info("cancelling live interviews", "count", n)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("app: waiting for interviews: %w", ctx.Err())
	}
}

// unavailableInput stands in for a recognizer that failed to initialise.
type unavailableInput struct{ err error }

func (u unavailableInput) Start(context.Context) error { return u.err }

func (unavailableInput) Stop(context.Context) (string, error) { return "", nil }
