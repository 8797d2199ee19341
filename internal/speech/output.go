package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultRate is the speaking rate used when none is configured.
const DefaultRate = 0.9

// OutputConfig configures an [Output].
type OutputConfig struct {
	// Language is the BCP 47 tag used for voice selection.
	Language string

	// Rate is the speaking rate. Zero means [DefaultRate].
	Rate float64

	// OnSpeakStart, if set, is called when an utterance starts playing.
	OnSpeakStart func(text string)
}

// Output is the speech output channel. It plays at most one utterance at a
// time: text passed to [Output.Speak] while another utterance is in flight
// waits in an internal FIFO and is played afterwards, in call order.
//
// All methods are safe for concurrent use.
type Output struct {
	synth Synthesizer
	cfg   OutputConfig

	mu      sync.Mutex
	voice   Voice
	ready   bool
	pending []*speakJob
	current *speakJob
	running bool
}

type speakJob struct {
	ctx    context.Context
	cancel context.CancelFunc
	text   string
	done   chan error
}

func (j *speakJob) resolve(err error) {
	j.done <- err
	close(j.done)
}

// NewOutput creates an output channel on synth. Call [Output.Initialize]
// before speaking.
func NewOutput(synth Synthesizer, cfg OutputConfig) *Output {
	if cfg.Rate == 0 {
		cfg.Rate = DefaultRate
	}
	return &Output{synth: synth, cfg: cfg}
}

// Initialize initialises the engine and selects a voice with [SelectVoice].
func (o *Output) Initialize(ctx context.Context) error {
	if err := o.synth.Initialize(ctx); err != nil {
		return fmt.Errorf("speech: initialize synthesizer: %w", err)
	}
	voices, err := o.synth.Voices(ctx)
	if err != nil {
		return fmt.Errorf("speech: list voices: %w", err)
	}
	v, err := SelectVoice(voices, o.cfg.Language)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.voice = v
	o.ready = true
	o.mu.Unlock()

	slog.Debug("speech: voice selected", "voice", v.Name, "lang", v.Language, "rate", o.cfg.Rate)
	return nil
}

// Voice returns the selected voice.
func (o *Output) Voice() Voice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.voice
}

// Speak queues text for playback and returns its completion. The channel
// yields exactly one value: nil when playback finished, an error wrapping
// [ErrSynthesis] or an engine sentinel on failure, or [ErrCanceled] when the
// utterance was stopped or dropped.
func (o *Output) Speak(ctx context.Context, text string) <-chan error {
	jctx, cancel := context.WithCancel(ctx)
	job := &speakJob{ctx: jctx, cancel: cancel, text: text, done: make(chan error, 1)}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.ready {
		cancel()
		job.resolve(fmt.Errorf("%w: output not initialised", ErrSynthesisUnsupported))
		return job.done
	}
	o.pending = append(o.pending, job)
	if !o.running {
		o.running = true
		go o.drain()
	}
	return job.done
}

// Speaking reports whether an utterance is currently playing.
func (o *Output) Speaking() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// Pending returns the number of utterances waiting behind the current one.
func (o *Output) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Stop cancels the utterance in flight. Queued text is dropped only when
// clearPending is true; otherwise playback continues with the next entry.
func (o *Output) Stop(clearPending bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		o.current.cancel()
	}
	if !clearPending {
		return
	}
	for _, job := range o.pending {
		job.cancel()
		job.resolve(ErrCanceled)
	}
	o.pending = nil
}

// Shutdown drops everything queued and releases the engine.
func (o *Output) Shutdown(ctx context.Context) error {
	o.Stop(true)
	return o.synth.Shutdown(ctx)
}

// drain plays queued jobs until the queue is empty. Only one drain goroutine
// runs at a time, which is what keeps playback single-utterance.
func (o *Output) drain() {
	for {
		o.mu.Lock()
		if len(o.pending) == 0 {
			o.running = false
			o.mu.Unlock()
			return
		}
		job := o.pending[0]
		o.pending = o.pending[1:]
		o.current = job
		voice := o.voice
		o.mu.Unlock()

		err := o.play(job, voice)

		o.mu.Lock()
		o.current = nil
		o.mu.Unlock()

		job.cancel()
		job.resolve(err)
	}
}

func (o *Output) play(job *speakJob, voice Voice) error {
	if job.ctx.Err() != nil {
		return ErrCanceled
	}
	if o.cfg.OnSpeakStart != nil {
		o.cfg.OnSpeakStart(job.text)
	}
	err := o.synth.Speak(job.ctx, SpeakRequest{Text: job.text, Voice: voice, Rate: o.cfg.Rate})
	switch {
	case err == nil:
		return nil
	case job.ctx.Err() != nil:
		return ErrCanceled
	case errors.Is(err, ErrSynthesisUnsupported), errors.Is(err, ErrNoVoiceAvailable), errors.Is(err, ErrSynthesis):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
}
