// Package mock provides test doubles for the speech engine interfaces.
//
// Synthesizer completes utterances immediately unless Hold is set, in which
// case each utterance plays until the test calls [Synthesizer.Finish] or
// [Synthesizer.Fail]. Recognizer hands out a result channel the test feeds
// with [Recognizer.Partial] and [Recognizer.Final].
//
// Example:
//
//	synth := &mock.Synthesizer{Hold: true}
//	out := speech.NewOutput(synth, speech.OutputConfig{})
//	_ = out.Initialize(ctx)
//	done := out.Speak(ctx, "hello")
//	<-synth.Started()
//	synth.Finish()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/internal/speech"
)

var (
	_ speech.Synthesizer = (*Synthesizer)(nil)
	_ speech.Recognizer  = (*Recognizer)(nil)
)

// DefaultVoices is returned by [Synthesizer.Voices] when VoiceList is nil.
var DefaultVoices = []speech.Voice{
	{ID: "v1", Name: "Basic English", Language: "en-US"},
	{ID: "v2", Name: "Neural English", Language: "en-US"},
}

// Synthesizer is a mock implementation of [speech.Synthesizer].
type Synthesizer struct {
	// VoiceList is returned by Voices. Nil means [DefaultVoices]; use an
	// empty non-nil slice to simulate a host without voices.
	VoiceList []speech.Voice

	// InitErr, if non-nil, is returned by Initialize.
	InitErr error

	// SpeakErr, if non-nil, is returned by every Speak call that is not held.
	SpeakErr error

	// Hold makes Speak block until Finish, Fail or context cancellation.
	Hold bool

	once     sync.Once
	started  chan string
	outcomes chan error

	mu          sync.Mutex
	spoken      []string
	requests    []speech.SpeakRequest
	active      int
	maxActive   int
	cancelled   []string
	shutdownCnt int
}

func (s *Synthesizer) init() {
	s.once.Do(func() {
		s.started = make(chan string, 128)
		s.outcomes = make(chan error, 128)
	})
}

// Initialize returns InitErr.
func (s *Synthesizer) Initialize(context.Context) error {
	s.init()
	return s.InitErr
}

// Voices returns VoiceList or [DefaultVoices].
func (s *Synthesizer) Voices(context.Context) ([]speech.Voice, error) {
	if s.VoiceList == nil {
		return DefaultVoices, nil
	}
	return s.VoiceList, nil
}

// Speak records req and completes according to Hold and SpeakErr.
func (s *Synthesizer) Speak(ctx context.Context, req speech.SpeakRequest) error {
	s.init()
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.mu.Unlock()

	s.started <- req.Text

	var err error
	if s.Hold {
		select {
		case err = <-s.outcomes:
		case <-ctx.Done():
			err = ctx.Err()
		}
	} else {
		err = s.SpeakErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	switch {
	case ctx.Err() != nil:
		s.cancelled = append(s.cancelled, req.Text)
	case err == nil:
		s.spoken = append(s.spoken, req.Text)
	}
	return err
}

// Shutdown counts the call.
func (s *Synthesizer) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownCnt++
	return nil
}

// Started yields the text of every utterance as playback begins.
func (s *Synthesizer) Started() <-chan string {
	s.init()
	return s.started
}

// Finish completes the held utterance successfully.
func (s *Synthesizer) Finish() {
	s.init()
	s.outcomes <- nil
}

// Fail completes the held utterance with err.
func (s *Synthesizer) Fail(err error) {
	s.init()
	s.outcomes <- err
}

// Spoken returns the texts that played to completion, in order.
func (s *Synthesizer) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// Cancelled returns the texts whose playback was cancelled.
func (s *Synthesizer) Cancelled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cancelled...)
}

// Requests returns every request passed to Speak.
func (s *Synthesizer) Requests() []speech.SpeakRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.SpeakRequest(nil), s.requests...)
}

// MaxConcurrent returns the highest number of simultaneous Speak calls seen.
func (s *Synthesizer) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

// Recognizer is a mock implementation of [speech.Recognizer].
type Recognizer struct {
	// InitErr, if non-nil, is returned by Initialize.
	InitErr error

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// IgnoreStop leaves the result channel open on Stop, simulating an
	// engine that never acknowledges.
	IgnoreStop bool

	// BlockStop makes Stop wait until its context is cancelled, simulating
	// a peer that stopped reading.
	BlockStop bool

	mu        sync.Mutex
	results   chan speech.Transcript
	starts    int
	stops     int
	languages []string
	startedCh chan struct{}
	once      sync.Once
}

func (r *Recognizer) init() {
	r.once.Do(func() { r.startedCh = make(chan struct{}, 128) })
}

// Initialize returns InitErr.
func (r *Recognizer) Initialize(context.Context) error { return r.InitErr }

// Start opens a new result channel unless StartErr is set.
func (r *Recognizer) Start(_ context.Context, language string) (<-chan speech.Transcript, error) {
	r.init()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.languages = append(r.languages, language)
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	r.results = make(chan speech.Transcript, 64)
	r.startedCh <- struct{}{}
	return r.results, nil
}

// Stop closes the result channel unless IgnoreStop or BlockStop is set.
func (r *Recognizer) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stops++
	block := r.BlockStop
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results != nil && !r.IgnoreStop {
		close(r.results)
		r.results = nil
	}
	return nil
}

// Shutdown is a no-op.
func (r *Recognizer) Shutdown(context.Context) error { return nil }

// Started yields once per successful Start.
func (r *Recognizer) Started() <-chan struct{} {
	r.init()
	return r.startedCh
}

// Partial delivers an interim result on the open channel.
func (r *Recognizer) Partial(text string) { r.send(speech.Transcript{Text: text}) }

// Final delivers a final result on the open channel.
func (r *Recognizer) Final(text string) { r.send(speech.Transcript{Text: text, Final: true}) }

// Error delivers a recognition failure on the open channel.
func (r *Recognizer) Error(err error) { r.send(speech.Transcript{Err: err}) }

func (r *Recognizer) send(t speech.Transcript) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results != nil {
		r.results <- t
	}
}

// Starts returns the number of Start calls.
func (r *Recognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

// Stops returns the number of Stop calls.
func (r *Recognizer) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

// Languages returns the language passed to each Start call.
func (r *Recognizer) Languages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.languages...)
}
