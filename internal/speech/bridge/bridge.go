// Package bridge runs speech synthesis and recognition in a browser page
// connected over a WebSocket. The page owns the Web Speech APIs; the server
// drives them with small JSON frames and receives completion and transcript
// frames back.
//
// A [Bridge] serves one connection. Its [Bridge.Synthesizer] and
// [Bridge.Recognizer] views implement the speech engine interfaces, and
// frames the bridge does not understand are forwarded on [Bridge.Control]
// for the application to interpret.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/parley/internal/speech"
)

// ErrClosed is returned once the connection has gone away.
var ErrClosed = errors.New("bridge: connection closed")

// Bridge multiplexes speech traffic and application frames over one
// WebSocket connection. All methods are safe for concurrent use.
type Bridge struct {
	conn    *websocket.Conn
	control chan Message

	hello     chan struct{}
	helloOnce sync.Once
	done      chan struct{}

	mu          sync.Mutex
	synthesis   bool
	recognition bool
	voices      []speech.Voice
	nextID      uint64
	inflight    map[uint64]chan error
	results     chan speech.Transcript

	synth *Synthesizer
	rec   *Recognizer
}

// New wraps an accepted connection. Call [Bridge.Run] to start reading.
func New(conn *websocket.Conn) *Bridge {
	b := &Bridge{
		conn:     conn,
		control:  make(chan Message, 16),
		hello:    make(chan struct{}),
		done:     make(chan struct{}),
		inflight: make(map[uint64]chan error),
	}
	b.synth = &Synthesizer{b: b}
	b.rec = &Recognizer{b: b}
	return b
}

// Synthesizer returns the bridge's [speech.Synthesizer] view.
func (b *Bridge) Synthesizer() *Synthesizer { return b.synth }

// Recognizer returns the bridge's [speech.Recognizer] view.
func (b *Bridge) Recognizer() *Recognizer { return b.rec }

// Control yields application frames (anything that is not speech traffic).
// It is closed when [Bridge.Run] returns.
func (b *Bridge) Control() <-chan Message { return b.control }

// Done is closed when [Bridge.Run] returns.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Send writes v as a JSON text frame.
func (b *Bridge) Send(ctx context.Context, v any) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	if err := wsjson.Write(ctx, b.conn, v); err != nil {
		return fmt.Errorf("bridge: write: %w", err)
	}
	return nil
}

// Close closes the connection with a normal closure status.
func (b *Bridge) Close(reason string) error {
	return b.conn.Close(websocket.StatusNormalClosure, reason)
}

// Run reads frames until the connection fails or ctx is cancelled. On
// return every pending utterance fails with [ErrClosed], the open
// recognition stream is closed and the control channel is closed.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.teardown()

	for {
		var msg Message
		if err := wsjson.Read(ctx, b.conn, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bridge: read: %w", err)
		}
		if err := b.dispatch(ctx, msg); err != nil {
			return err
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, msg Message) error {
	switch msg.Type {
	case TypeHello:
		b.mu.Lock()
		b.synthesis = msg.Synthesis
		b.recognition = msg.Recognition
		b.voices = msg.Voices
		b.mu.Unlock()
		b.helloOnce.Do(func() { close(b.hello) })

	case TypeVoices:
		b.mu.Lock()
		b.voices = msg.Voices
		b.mu.Unlock()

	case TypeSpeakEnd, TypeSpeakError:
		var err error
		if msg.Type == TypeSpeakError {
			err = synthesisError(msg.Error)
		}
		b.mu.Lock()
		ch, ok := b.inflight[msg.ID]
		delete(b.inflight, msg.ID)
		b.mu.Unlock()
		if ok {
			ch <- err
		}

	case TypePartial, TypeFinal:
		b.deliver(speech.Transcript{Text: msg.Text, Final: msg.Type == TypeFinal})

	case TypeListenError:
		b.deliver(speech.Transcript{Err: recognitionError(msg.Error)})

	case TypeListenEnd:
		b.mu.Lock()
		if b.results != nil {
			close(b.results)
			b.results = nil
		}
		b.mu.Unlock()

	default:
		select {
		case b.control <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Bridge) deliver(t speech.Transcript) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.results == nil {
		return
	}
	select {
	case b.results <- t:
	default:
		slog.Warn("bridge: transcript buffer full, dropping result", "final", t.Final)
	}
}

func (b *Bridge) teardown() {
	close(b.done)
	b.mu.Lock()
	for id, ch := range b.inflight {
		ch <- ErrClosed
		delete(b.inflight, id)
	}
	if b.results != nil {
		close(b.results)
		b.results = nil
	}
	b.mu.Unlock()
	close(b.control)
}

// awaitHello blocks until the page has announced its capabilities.
func (b *Bridge) awaitHello(ctx context.Context) error {
	select {
	case <-b.hello:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Synthesizer is the [speech.Synthesizer] view of a [Bridge].
type Synthesizer struct{ b *Bridge }

var _ speech.Synthesizer = (*Synthesizer)(nil)

// Initialize waits for the page's hello frame.
func (s *Synthesizer) Initialize(ctx context.Context) error {
	if err := s.b.awaitHello(ctx); err != nil {
		return err
	}
	s.b.mu.Lock()
	ok := s.b.synthesis
	s.b.mu.Unlock()
	if !ok {
		return fmt.Errorf("bridge: %w", speech.ErrSynthesisUnsupported)
	}
	return nil
}

// Voices returns the voices the page last announced.
func (s *Synthesizer) Voices(context.Context) ([]speech.Voice, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return append([]speech.Voice(nil), s.b.voices...), nil
}

// Speak sends a speak frame and waits for its speak_end. Cancelling ctx
// sends a cancel frame.
func (s *Synthesizer) Speak(ctx context.Context, req speech.SpeakRequest) error {
	b := s.b
	done := make(chan error, 1)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.inflight[id] = done
	b.mu.Unlock()

	forget := func() {
		b.mu.Lock()
		delete(b.inflight, id)
		b.mu.Unlock()
	}

	err := b.Send(ctx, Message{Type: TypeSpeak, ID: id, Text: req.Text, Voice: req.Voice.ID, Rate: req.Rate})
	if err != nil {
		forget()
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		forget()
		// The utterance context is already cancelled; the cancel frame gets a
		// context of its own.
		if err := b.Send(context.WithoutCancel(ctx), Message{Type: TypeCancel, ID: id}); err != nil {
			slog.Debug("bridge: send cancel", "id", id, "err", err)
		}
		return ctx.Err()
	}
}

// Shutdown is a no-op; the connection is owned by the [Bridge].
func (s *Synthesizer) Shutdown(context.Context) error { return nil }

// Recognizer is the [speech.Recognizer] view of a [Bridge].
type Recognizer struct{ b *Bridge }

var _ speech.Recognizer = (*Recognizer)(nil)

// Initialize waits for the page's hello frame.
func (r *Recognizer) Initialize(ctx context.Context) error {
	if err := r.b.awaitHello(ctx); err != nil {
		return err
	}
	r.b.mu.Lock()
	ok := r.b.recognition
	r.b.mu.Unlock()
	if !ok {
		return fmt.Errorf("bridge: %w", speech.ErrRecognitionUnsupported)
	}
	return nil
}

// Start asks the page to begin continuous recognition.
func (r *Recognizer) Start(ctx context.Context, language string) (<-chan speech.Transcript, error) {
	b := r.b
	results := make(chan speech.Transcript, 64)
	b.mu.Lock()
	if b.results != nil {
		close(b.results)
	}
	b.results = results
	b.mu.Unlock()

	if err := b.Send(ctx, Message{Type: TypeListenStart, Lang: language}); err != nil {
		b.mu.Lock()
		if b.results == results {
			close(results)
			b.results = nil
		}
		b.mu.Unlock()
		return nil, err
	}
	return results, nil
}

// Stop asks the page to end recognition. The page answers with its last
// results and a listen_end frame.
func (r *Recognizer) Stop(ctx context.Context) error {
	return r.b.Send(ctx, Message{Type: TypeListenStop})
}

// Shutdown is a no-op; the connection is owned by the [Bridge].
func (r *Recognizer) Shutdown(context.Context) error { return nil }
