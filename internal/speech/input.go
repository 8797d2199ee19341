package speech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultStopTimeout bounds [Input.Stop] when none is configured.
const DefaultStopTimeout = 2 * time.Second

// InputConfig configures an [Input].
type InputConfig struct {
	// Language is the BCP 47 recognition language.
	Language string

	// StopTimeout bounds how long Stop waits for the engine to flush and
	// close its result stream. Zero means [DefaultStopTimeout].
	StopTimeout time.Duration

	// OnCaption, if set, receives the live caption after every result.
	OnCaption func(caption string)

	// Clock is used for the stop timeout. Nil means the wall clock.
	Clock clock.Clock
}

// Input is the speech input channel. A listening window runs from
// [Input.Start] to [Input.Stop]; Stop returns everything recognised in
// between as one trimmed transcript.
//
// All methods are safe for concurrent use.
type Input struct {
	rec Recognizer
	cfg InputConfig

	mu        sync.Mutex
	listening bool
	gen       uint64
	finals    []string
	interim   string
	err       error
	closed    chan struct{}
}

// NewInput creates an input channel on rec.
func NewInput(rec Recognizer, cfg InputConfig) *Input {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Input{rec: rec, cfg: cfg}
}

// Initialize initialises the recognition engine.
func (in *Input) Initialize(ctx context.Context) error {
	if err := in.rec.Initialize(ctx); err != nil {
		return fmt.Errorf("speech: initialize recognizer: %w", err)
	}
	return nil
}

// Listening reports whether a listening window is open.
func (in *Input) Listening() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.listening
}

// Start opens a listening window and clears the previous transcript. Calling
// Start while already listening is a no-op.
func (in *Input) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.listening {
		in.mu.Unlock()
		return nil
	}
	in.mu.Unlock()

	results, err := in.rec.Start(ctx, in.cfg.Language)
	if err != nil {
		return fmt.Errorf("speech: start recognition: %w", err)
	}

	in.mu.Lock()
	in.gen++
	gen := in.gen
	in.listening = true
	in.finals = nil
	in.interim = ""
	in.err = nil
	closed := make(chan struct{})
	in.closed = closed
	in.mu.Unlock()

	go in.consume(gen, results, closed)
	return nil
}

// Stop closes the listening window and returns the final transcript. It
// waits at most the configured stop timeout for the engine to flush; after
// that the text gathered so far is returned. An empty transcript means no
// answer was given and is not an error. A non-nil error reports a
// recognition failure seen during the window; the transcript is still valid.
func (in *Input) Stop(ctx context.Context) (string, error) {
	in.mu.Lock()
	if !in.listening {
		in.mu.Unlock()
		return "", nil
	}
	closed := in.closed
	in.mu.Unlock()

	timer := in.cfg.Clock.Timer(in.cfg.StopTimeout)
	defer timer.Stop()

	// The engine's Stop may stall on a dead peer; it shares the timeout with
	// the flush and is cancelled when Stop returns.
	stopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := in.rec.Stop(stopCtx); err != nil && stopCtx.Err() == nil {
			slog.Warn("speech: stop recognition", "err", err)
		}
	}()

wait:
	for closed != nil || stopped != nil {
		select {
		case <-closed:
			closed = nil
		case <-stopped:
			stopped = nil
		case <-timer.C:
			slog.Debug("speech: recognizer did not stop in time, using partial transcript", "timeout", in.cfg.StopTimeout)
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	text := in.captionLocked()
	err := in.err
	in.listening = false
	in.gen++
	in.finals = nil
	in.interim = ""
	in.err = nil
	return text, err
}

// Caption returns the live transcript of the open listening window:
// finalised text followed by the current interim hypothesis.
func (in *Input) Caption() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.captionLocked()
}

// Shutdown stops any open window and releases the engine.
func (in *Input) Shutdown(ctx context.Context) error {
	if in.Listening() {
		_, _ = in.Stop(ctx)
	}
	return in.rec.Shutdown(ctx)
}

func (in *Input) captionLocked() string {
	parts := make([]string, 0, len(in.finals)+1)
	parts = append(parts, in.finals...)
	if in.interim != "" {
		parts = append(parts, in.interim)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// consume folds results into the window identified by gen. Results that
// arrive after the window was closed are discarded.
func (in *Input) consume(gen uint64, results <-chan Transcript, closed chan struct{}) {
	defer close(closed)
	for t := range results {
		in.mu.Lock()
		if in.gen != gen {
			in.mu.Unlock()
			continue
		}
		switch {
		case t.Err != nil:
			if in.err == nil {
				in.err = t.Err
			}
		case t.Final:
			if s := strings.TrimSpace(t.Text); s != "" {
				in.finals = append(in.finals, s)
			}
			in.interim = ""
		default:
			in.interim = strings.TrimSpace(t.Text)
		}
		caption := in.captionLocked()
		in.mu.Unlock()

		if t.Err == nil && in.cfg.OnCaption != nil {
			in.cfg.OnCaption(caption)
		}
	}
}
