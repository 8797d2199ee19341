// Package interview runs one spoken mock interview: the turn scheduler that
// decides whether the interviewer is speaking, the candidate is answering or
// the model is thinking, and that owns the speak queue and the session
// transcript for the interview's lifetime.
//
// A [Scheduler] is a single event loop. [Scheduler.Run] drives it; the other
// methods post commands to the loop and return once the loop has handled
// them. Speech playback, recognition shutdown, dialogue calls and
// persistence all run off the loop and report back as internal events, so
// the loop never blocks on them.
package interview

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/MrWong99/parley/internal/dialogue"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/store"
)

var (
	// ErrBusy is returned when a command is not valid in the current state,
	// e.g. listening while the interviewer speaks.
	ErrBusy = errors.New("interview: not possible in the current turn state")

	// ErrEnding is returned for commands issued after End was requested.
	ErrEnding = errors.New("interview: interview is ending")

	// ErrNotRunning is returned when the event loop is not running.
	ErrNotRunning = errors.New("interview: scheduler not running")

	// ErrEmptyAnswer is returned by Submit for blank text.
	ErrEmptyAnswer = errors.New("interview: empty answer")
)

// DefaultBannerTTL is how long transient banners stay visible.
const DefaultBannerTTL = 5 * time.Second

// Dialogue produces interviewer replies and the session analysis.
// *dialogue.Client implements it.
type Dialogue interface {
	Exchange(ctx context.Context, topic, userText, conversation string) (string, error)
	Analyze(ctx context.Context, topic, transcript string) (dialogue.Scorecard, error)
}

// Output plays system utterances. *speech.Output implements it.
type Output interface {
	Speak(ctx context.Context, text string) <-chan error
	Stop(clearPending bool)
}

// Input captures the candidate's spoken answer. *speech.Input implements it.
type Input interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (string, error)
}

// Corrector rewrites a recognised answer before it is recorded, e.g. to fix
// misheard technical terms.
type Corrector interface {
	Correct(topic, text string) string
}

// Settings are the per-interview options.
type Settings struct {
	Topic      string
	Difficulty string

	// Duration ends the interview automatically once elapsed. Zero disables
	// the limit.
	Duration time.Duration

	// AutoListen starts listening when the interviewer finishes speaking and
	// nothing else is queued.
	AutoListen bool

	// Analyze requests a scored assessment before the session is persisted.
	Analyze bool

	// Context selects the utterances sent as grounding with each answer.
	Context session.ContextWindow
}

// Request carries the options a client asks for when starting an
// interview. Empty fields fall back to the configured defaults.
type Request struct {
	Topic      string
	Difficulty string
	Duration   time.Duration
	AutoListen *bool
}

// Config wires a [Scheduler] to its collaborators.
type Config struct {
	Settings

	Dialogue  Dialogue
	Output    Output
	Input     Input
	Store     store.Store
	Corrector Corrector

	// Greeting, Closing and Filler produce the locally generated utterances.
	// Nil uses the dialogue package defaults.
	Greeting func(topic, difficulty string) string
	Closing  func(topic string) string
	Filler   func(topic string, n int) string

	// BannerTTL is the lifetime of transient banners. Zero means
	// [DefaultBannerTTL].
	BannerTTL time.Duration

	// EventBuffer is the capacity of the Events channel. Zero means 64.
	EventBuffer int

	Clock   clock.Clock
	Metrics *observe.Metrics
}

// Scheduler is the turn-taking state machine of one interview.
type Scheduler struct {
	cfg    Config
	rec    *session.Recorder
	events chan Event

	cmds     chan command
	internal chan any
	done     chan struct{}

	state    atomic.Int32
	started  atomic.Bool
	finished atomic.Bool

	// Everything below is owned by the loop goroutine.
	l loopState
}

// New creates a scheduler for one interview. The session is opened
// immediately; call [Scheduler.Run] to start it.
func New(cfg Config) (*Scheduler, error) {
	switch {
	case cfg.Dialogue == nil:
		return nil, errors.New("interview: Dialogue is required")
	case cfg.Output == nil:
		return nil, errors.New("interview: Output is required")
	case cfg.Input == nil:
		return nil, errors.New("interview: Input is required")
	case cfg.Store == nil:
		return nil, errors.New("interview: Store is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("interview: topic is required")
	}
	if cfg.Difficulty == "" {
		cfg.Difficulty = dialogue.DefaultDifficulty
	}
	if cfg.Greeting == nil {
		cfg.Greeting = dialogue.Greeting
	}
	if cfg.Closing == nil {
		cfg.Closing = dialogue.Closing
	}
	if cfg.Filler == nil {
		cfg.Filler = dialogue.Filler
	}
	if cfg.BannerTTL <= 0 {
		cfg.BannerTTL = DefaultBannerTTL
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	return &Scheduler{
		cfg:      cfg,
		rec:      session.NewRecorder(cfg.Topic, cfg.Clock.Now()),
		events:   make(chan Event, cfg.EventBuffer),
		cmds:     make(chan command),
		internal: make(chan any, 16),
		done:     make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Scheduler) ID() uuid.UUID { return s.rec.ID() }

// Settings returns the interview settings.
func (s *Scheduler) Settings() Settings { return s.cfg.Settings }

// State returns the current turn state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Session returns a snapshot of the transcript so far.
func (s *Scheduler) Session() session.Session { return s.rec.Snapshot() }

// Finished reports whether the session was sealed and persisted.
func (s *Scheduler) Finished() bool { return s.finished.Load() }

// Events returns the event stream. It must be drained while the scheduler
// runs and is closed when [Scheduler.Run] returns.
func (s *Scheduler) Events() <-chan Event { return s.events }

// Done is closed when [Scheduler.Run] returns.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Listen starts capturing the candidate's answer. It fails with [ErrBusy]
// unless the scheduler is idle with nothing left to say, or while a previous
// answer window is still closing. Listening again while listening is a
// no-op.
func (s *Scheduler) Listen(ctx context.Context) error {
	return s.do(ctx, command{kind: cmdListen})
}

// StopListening ends the answer window. A non-empty transcript is sent to the
// dialogue backend; an empty one returns the scheduler to idle. Calling it
// when not listening is a no-op.
func (s *Scheduler) StopListening(ctx context.Context) error {
	return s.do(ctx, command{kind: cmdStopListening})
}

// Submit records a typed answer as if it had been spoken. An open listening
// window is discarded.
func (s *Scheduler) Submit(ctx context.Context, text string) error {
	return s.do(ctx, command{kind: cmdSubmit, text: text})
}

// UpdateCaption shows the live transcript of the open answer window. Wire it
// to the input's caption callback.
func (s *Scheduler) UpdateCaption(text string) {
	if s.started.Load() {
		s.notify(captionUpdate{text: text})
	}
}

// SetAutoListen toggles auto-listen for the following turns.
func (s *Scheduler) SetAutoListen(ctx context.Context, enabled bool) error {
	return s.do(ctx, command{kind: cmdAutoListen, enabled: enabled})
}

// End finishes the interview: pending work is cancelled, the closing line is
// spoken, the optional analysis runs and the session is persisted and
// sealed. End returns once that is done. If persisting fails the error wraps
// [store.ErrStorage], the session stays open, and calling End again retries
// persistence only. End after a successful finish returns nil.
func (s *Scheduler) End(ctx context.Context) error {
	if s.finished.Load() {
		return nil
	}
	reply := make(chan error, 1)
	if err := s.post(ctx, command{kind: cmdEnd, reply: reply}); err != nil {
		if s.finished.Load() {
			return nil
		}
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		if s.finished.Load() {
			return nil
		}
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cmdKind int

const (
	cmdListen cmdKind = iota
	cmdStopListening
	cmdSubmit
	cmdAutoListen
	cmdEnd
)

type command struct {
	kind    cmdKind
	text    string
	enabled bool
	reply   chan error
}

// do posts c and waits for the loop's verdict.
func (s *Scheduler) do(ctx context.Context, c command) error {
	c.reply = make(chan error, 1)
	if err := s.post(ctx, c); err != nil {
		return err
	}
	select {
	case err := <-c.reply:
		return err
	case <-s.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) post(ctx context.Context, c command) error {
	select {
	case s.cmds <- c:
		return nil
	case <-s.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notify delivers an internal event from a worker goroutine to the loop.
func (s *Scheduler) notify(ev any) {
	select {
	case s.internal <- ev:
	case <-s.done:
	}
}

// Run drives the interview until it finishes or ctx is cancelled. It returns
// nil after the session was persisted. Cancelling ctx tears the interview
// down without persisting it and returns ctx's error. Run may be called
// once.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("interview: Run called twice")
	}
	defer close(s.done)
	defer close(s.events)
	defer s.stopBannerTimers()

	ctx = observe.WithInterview(ctx, s.rec.ID())
	s.l = loopState{ctx: ctx, log: observe.Logger(ctx).With("topic", s.cfg.Topic)}
	s.l.log.Info("interview: started", "difficulty", s.cfg.Difficulty, "auto_listen", s.cfg.AutoListen)
	s.cfg.Metrics.ActiveInterviews.Add(ctx, 1)
	defer s.cfg.Metrics.ActiveInterviews.Add(context.WithoutCancel(ctx), -1)

	var deadline <-chan time.Time
	if s.cfg.Duration > 0 {
		t := s.cfg.Clock.Timer(s.cfg.Duration)
		defer t.Stop()
		deadline = t.C
	}

	s.l.autoListen = s.cfg.AutoListen
	s.emit(Event{Kind: EventStateChanged, State: Idle})
	s.enqueue(s.cfg.Greeting(s.cfg.Topic, s.cfg.Difficulty), false)
	s.drain()

	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return ctx.Err()

		case c := <-s.cmds:
			s.handleCommand(c)

		case ev := <-s.internal:
			s.handleInternal(ev)

		case <-deadline:
			deadline = nil
			if s.l.phase != phaseRunning {
				continue
			}
			s.l.log.Info("interview: duration elapsed, ending", "duration", s.cfg.Duration)
			s.banner("Time is up. Wrapping up the interview.", "", true)
			s.beginEnd(nil)
		}

		if s.l.phase == phaseDone {
			return nil
		}
	}
}
