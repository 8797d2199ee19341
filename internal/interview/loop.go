package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/MrWong99/parley/internal/dialogue"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/speech"
	"github.com/MrWong99/parley/internal/store"
)

type phase int

const (
	phaseRunning phase = iota
	phaseClosing
	phaseAnalyzing
	phasePersisting
	phaseAwaitRetry
	phaseDone
)

type queued struct {
	text   string
	filler bool
}

// loopState is only touched by the Run goroutine.
type loopState struct {
	ctx context.Context
	log *slog.Logger

	phase phase
	queue []queued

	speaking       bool
	speakingFiller bool
	closing        bool
	speakStarted   time.Time

	autoListen    bool
	voiceDisabled bool
	stopping      bool
	listenGen     uint64
	listenStarted time.Time

	turnGen    uint64
	turnCancel context.CancelFunc

	fillers      int
	bannerSeq    int
	bannerTimers []*clock.Timer
	persistent   []int

	endWaiters []chan error
}

// Internal events posted by worker goroutines.
type (
	speakDone struct {
		err error
	}
	listenDone struct {
		gen  uint64
		text string
		err  error
	}
	replyDone struct {
		gen  uint64
		text string
		err  error
	}
	analysisDone struct {
		card dialogue.Scorecard
		err  error
	}
	persistDone struct {
		err error
	}
	bannerExpired struct {
		id int
	}
	captionUpdate struct {
		text string
	}
)

func (s *Scheduler) handleCommand(c command) {
	var err error
	switch c.kind {
	case cmdListen:
		err = s.cmdListen()
	case cmdStopListening:
		err = s.cmdStopListening()
	case cmdSubmit:
		err = s.cmdSubmit(c.text)
	case cmdAutoListen:
		err = s.cmdAutoListen(c.enabled)
	case cmdEnd:
		s.beginEnd(c.reply)
		return
	}
	if c.reply != nil {
		c.reply <- err
	}
}

func (s *Scheduler) handleInternal(ev any) {
	switch ev := ev.(type) {
	case speakDone:
		s.onSpeakDone(ev)
	case listenDone:
		s.onListenDone(ev)
	case replyDone:
		s.onReply(ev)
	case analysisDone:
		s.onAnalysis(ev)
	case persistDone:
		s.onPersisted(ev)
	case bannerExpired:
		s.emit(Event{Kind: EventBannerCleared, Banner: Banner{ID: ev.id}})
	case captionUpdate:
		if s.State() == Listening && !s.l.stopping {
			s.emit(Event{Kind: EventCaption, Caption: ev.text})
		}
	}
}

// idle reports whether nothing is playing, queued, captured or computed.
func (s *Scheduler) idle() bool {
	return s.State() == Idle && !s.l.speaking && len(s.l.queue) == 0
}

func (s *Scheduler) cmdListen() error {
	if s.l.phase != phaseRunning {
		return ErrEnding
	}
	if s.State() == Listening {
		if s.l.stopping {
			return ErrBusy
		}
		return nil
	}
	if !s.idle() {
		return ErrBusy
	}
	return s.startListening()
}

func (s *Scheduler) startListening() error {
	if err := s.cfg.Input.Start(s.l.ctx); err != nil {
		s.recognitionFailed(err)
		return err
	}
	s.l.listenGen++
	s.l.stopping = false
	s.l.listenStarted = s.cfg.Clock.Now()
	s.setState(Listening)
	return nil
}

func (s *Scheduler) cmdStopListening() error {
	if s.State() != Listening || s.l.stopping {
		return nil
	}
	s.l.stopping = true
	s.cfg.Metrics.ListenDuration.Record(s.l.ctx, s.cfg.Clock.Since(s.l.listenStarted).Seconds())

	gen := s.l.listenGen
	ctx := s.l.ctx
	go func() {
		text, err := s.cfg.Input.Stop(ctx)
		s.notify(listenDone{gen: gen, text: text, err: err})
	}()
	return nil
}

func (s *Scheduler) onListenDone(ev listenDone) {
	if ev.gen != s.l.listenGen || s.l.phase != phaseRunning {
		s.l.log.Debug("interview: discarding stale transcript", "gen", ev.gen)
		return
	}
	s.l.stopping = false

	text := strings.TrimSpace(ev.text)
	if ev.err != nil {
		if text == "" {
			s.recognitionFailed(ev.err)
			return
		}
		s.l.log.Warn("interview: recognition error, keeping partial answer", "err", ev.err)
	}
	if text != "" && s.cfg.Corrector != nil {
		text = strings.TrimSpace(s.cfg.Corrector.Correct(s.cfg.Topic, text))
	}
	if text == "" {
		s.setState(Idle)
		s.drain()
		return
	}
	s.answer(text)
}

// discardListening closes an open answer window without using its text.
func (s *Scheduler) discardListening() {
	if s.State() != Listening {
		return
	}
	s.l.listenGen++
	s.l.stopping = false
	ctx := s.l.ctx
	go func() {
		if _, err := s.cfg.Input.Stop(ctx); err != nil {
			slog.Debug("interview: discarded listening window", "err", err)
		}
	}()
}

func (s *Scheduler) cmdSubmit(text string) error {
	if s.l.phase != phaseRunning {
		return ErrEnding
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyAnswer
	}
	switch {
	case s.State() == Listening:
		s.discardListening()
	case !s.idle():
		return ErrBusy
	}
	s.answer(text)
	return nil
}

func (s *Scheduler) cmdAutoListen(enabled bool) error {
	if enabled && s.l.voiceDisabled {
		return fmt.Errorf("%w: voice input is unavailable", ErrBusy)
	}
	s.l.autoListen = enabled
	s.l.log.Debug("interview: auto-listen toggled", "enabled", enabled)
	return nil
}

// answer records the candidate's answer and asks the dialogue backend for
// the interviewer's reply.
func (s *Scheduler) answer(text string) {
	conversation := s.cfg.Context.Context(s.rec.Snapshot().Utterances)
	s.appendUtterance(session.User, text)

	s.l.turnGen++
	gen := s.l.turnGen
	ctx, cancel := context.WithCancel(s.l.ctx)
	s.l.turnCancel = cancel
	s.setState(Thinking)

	go func() {
		defer cancel()
		reply, err := s.cfg.Dialogue.Exchange(ctx, s.cfg.Topic, text, conversation)
		s.notify(replyDone{gen: gen, text: reply, err: err})
	}()
}

func (s *Scheduler) onReply(ev replyDone) {
	if ev.gen != s.l.turnGen || s.l.phase != phaseRunning {
		s.l.log.Debug("interview: discarding stale reply", "gen", ev.gen)
		return
	}
	s.l.turnCancel = nil

	if ev.err != nil {
		s.l.fillers++
		s.cfg.Metrics.FillerUtterances.Add(s.l.ctx, 1)
		s.l.log.Warn("interview: dialogue failed, using filler", "err", ev.err)
		s.emit(Event{Kind: EventError, Err: ev.err})
		s.enqueue(s.cfg.Filler(s.cfg.Topic, s.l.fillers-1), true)
	} else {
		s.enqueue(ev.text, false)
	}
	s.setState(Idle)
	s.drain()
}

func (s *Scheduler) enqueue(text string, filler bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.l.queue = append(s.l.queue, queued{text: text, filler: filler})
}

// drain starts the next queued utterance if nothing else holds the turn.
func (s *Scheduler) drain() {
	if s.l.phase != phaseRunning || s.l.speaking || len(s.l.queue) == 0 {
		return
	}
	if st := s.State(); st != Idle && st != Speaking {
		return
	}
	next := s.l.queue[0]
	s.l.queue = s.l.queue[1:]
	s.speak(next)
}

// speak plays one system utterance. It is recorded in the session as soon
// as playback starts.
func (s *Scheduler) speak(q queued) {
	s.appendUtterance(session.System, q.text)
	s.l.speaking = true
	s.l.speakingFiller = q.filler
	s.l.speakStarted = s.cfg.Clock.Now()
	s.setState(Speaking)

	done := s.cfg.Output.Speak(s.l.ctx, q.text)
	go func() {
		s.notify(speakDone{err: <-done})
	}()
}

func (s *Scheduler) onSpeakDone(ev speakDone) {
	s.l.speaking = false
	s.cfg.Metrics.SpeakDuration.Record(s.l.ctx, s.cfg.Clock.Since(s.l.speakStarted).Seconds())
	filler := s.l.speakingFiller
	s.l.speakingFiller = false

	if ev.err != nil && !errors.Is(ev.err, speech.ErrCanceled) {
		s.cfg.Metrics.RecordSpeechError(s.l.ctx, "synthesis")
		s.l.log.Warn("interview: playback failed", "err", ev.err, "filler", filler)
		s.emit(Event{Kind: EventError, Err: ev.err})
		s.banner("The interviewer's voice could not be played. The text is shown in the transcript.", "", true)
	}

	switch s.l.phase {
	case phaseClosing:
		if s.l.closing {
			s.afterClosing()
		} else {
			s.speakClosing()
		}
		return
	case phaseRunning:
	default:
		return
	}

	if len(s.l.queue) > 0 {
		s.drain()
		return
	}
	if ev.err == nil && s.l.autoListen && !s.l.voiceDisabled {
		if err := s.startListening(); err != nil {
			s.l.log.Debug("interview: auto-listen failed", "err", err)
		}
		return
	}
	s.setState(Idle)
}

// recognitionFailed surfaces a recognition error and returns to idle.
// Errors that make listening impossible also disable voice input.
func (s *Scheduler) recognitionFailed(err error) {
	s.l.stopping = false
	s.cfg.Metrics.RecordSpeechError(s.l.ctx, "recognition")
	s.emit(Event{Kind: EventError, Err: err})

	switch {
	case errors.Is(err, speech.ErrRecognitionPermissionDenied):
		s.l.voiceDisabled = true
		s.l.autoListen = false
		s.l.log.Warn("interview: microphone permission denied", "err", err)
		s.banner("Microphone access was denied.",
			"Allow microphone access for this site in your browser settings and reload, or type your answers instead.", false)
	case errors.Is(err, speech.ErrRecognitionUnsupported):
		s.l.voiceDisabled = true
		s.l.autoListen = false
		s.l.log.Warn("interview: speech recognition unsupported", "err", err)
		s.banner("Speech recognition is not supported in this browser.",
			"Use a Chromium based browser such as Chrome or Edge, or type your answers instead.", false)
	default:
		s.l.log.Warn("interview: recognition failed", "err", err)
		s.banner("Sorry, I couldn't hear that. Please try again.", "", true)
	}
	s.setState(Idle)
	s.drain()
}

// beginEnd starts or joins the end sequence. reply, when non-nil, receives
// the outcome once the session is persisted or persisting failed.
func (s *Scheduler) beginEnd(reply chan error) {
	if reply != nil {
		s.l.endWaiters = append(s.l.endWaiters, reply)
	}
	switch s.l.phase {
	case phaseRunning:
	case phaseAwaitRetry:
		s.l.log.Info("interview: retrying persistence")
		s.persist()
		return
	default:
		return
	}

	s.l.phase = phaseClosing
	s.l.log.Info("interview: ending", "utterances", s.rec.Len())

	s.l.turnGen++
	if s.l.turnCancel != nil {
		s.l.turnCancel()
		s.l.turnCancel = nil
	}
	s.discardListening()
	s.l.queue = nil

	if s.l.speaking {
		// The closing line follows the completion of the cancelled utterance.
		s.cfg.Output.Stop(true)
		return
	}
	s.speakClosing()
}

func (s *Scheduler) speakClosing() {
	closing := s.cfg.Closing(s.cfg.Topic)
	s.appendUtterance(session.System, closing)
	s.l.speaking = true
	s.l.speakStarted = s.cfg.Clock.Now()
	s.l.closing = true
	s.setState(Speaking)

	done := s.cfg.Output.Speak(s.l.ctx, closing)
	go func() {
		s.notify(speakDone{err: <-done})
	}()
}

func (s *Scheduler) afterClosing() {
	snap := s.rec.Snapshot()
	if !s.cfg.Analyze || !hasAnswer(snap.Utterances) {
		s.setState(Idle)
		s.persist()
		return
	}

	s.l.phase = phaseAnalyzing
	s.setState(Thinking)
	transcript := session.ContextWindow{}.Render(snap.Utterances)
	ctx := s.l.ctx
	go func() {
		card, err := s.cfg.Dialogue.Analyze(ctx, s.cfg.Topic, transcript)
		s.notify(analysisDone{card: card, err: err})
	}()
}

func hasAnswer(utts []session.Utterance) bool {
	for _, u := range utts {
		if u.Speaker == session.User {
			return true
		}
	}
	return false
}

func (s *Scheduler) onAnalysis(ev analysisDone) {
	if s.l.phase != phaseAnalyzing {
		return
	}
	if ev.err != nil {
		s.l.log.Warn("interview: analysis failed, persisting without it", "err", ev.err)
		s.emit(Event{Kind: EventError, Err: ev.err})
		s.banner("The interview analysis could not be generated.", "", true)
	} else if err := s.rec.Attach(ev.card.Analysis()); err != nil {
		s.l.log.Error("interview: attach analysis", "err", err)
	}
	s.setState(Idle)
	s.persist()
}

func (s *Scheduler) persist() {
	s.l.phase = phasePersisting
	snap := s.rec.Snapshot()
	ctx := s.l.ctx
	go func() {
		s.notify(persistDone{err: s.cfg.Store.Persist(ctx, snap)})
	}()
}

func (s *Scheduler) onPersisted(ev persistDone) {
	if ev.err != nil {
		err := ev.err
		if !errors.Is(err, store.ErrStorage) {
			err = fmt.Errorf("%w: %w", store.ErrStorage, err)
		}
		err = fmt.Errorf("interview: persist session: %w", err)
		s.cfg.Metrics.RecordPersist(s.l.ctx, "error")
		s.l.log.Error("interview: persist failed, waiting for retry", "err", err)
		s.l.phase = phaseAwaitRetry
		s.emit(Event{Kind: EventError, Err: err})
		s.banner("The interview could not be saved.", "Check the storage backend and end the interview again to retry.", false)
		s.resolveEnd(err)
		return
	}

	final := s.rec.Seal()
	s.finished.Store(true)
	s.cfg.Metrics.RecordPersist(s.l.ctx, "ok")
	s.l.log.Info("interview: finished", "utterances", len(final.Utterances), "analysed", final.Analysis != nil)
	for _, id := range s.l.persistent {
		s.emit(Event{Kind: EventBannerCleared, Banner: Banner{ID: id}})
	}
	s.l.persistent = nil
	s.emit(Event{Kind: EventFinished, Session: &final})
	s.l.phase = phaseDone
	s.resolveEnd(nil)
}

func (s *Scheduler) resolveEnd(err error) {
	for _, w := range s.l.endWaiters {
		w <- err
	}
	s.l.endWaiters = nil
}

// teardown abandons the interview without persisting it.
func (s *Scheduler) teardown() {
	s.l.log.Info("interview: torn down", "phase", s.l.phase, "utterances", s.rec.Len())
	if s.l.turnCancel != nil {
		s.l.turnCancel()
	}
	s.discardListening()
	s.l.queue = nil
	s.cfg.Output.Stop(true)
	s.resolveEnd(s.l.ctx.Err())
}

func (s *Scheduler) stopBannerTimers() {
	for _, t := range s.l.bannerTimers {
		t.Stop()
	}
	s.l.bannerTimers = nil
}

func (s *Scheduler) appendUtterance(speaker session.Speaker, text string) {
	u := session.Utterance{Text: text, Speaker: speaker, CreatedAt: s.cfg.Clock.Now()}
	if err := s.rec.Append(u); err != nil {
		s.l.log.Error("interview: append utterance", "err", err)
		return
	}
	s.emit(Event{Kind: EventUtterance, Utterance: u})
}

func (s *Scheduler) setState(next State) {
	prev := s.State()
	if prev == next {
		return
	}
	s.state.Store(int32(next))
	s.cfg.Metrics.RecordTransition(s.l.ctx, prev.String(), next.String())
	s.l.log.Debug("interview: turn state", "from", prev, "to", next)
	s.emit(Event{Kind: EventStateChanged, State: next})
}

// banner shows a notice. Transient banners are cleared after BannerTTL.
func (s *Scheduler) banner(message, remediation string, transient bool) {
	s.l.bannerSeq++
	b := Banner{ID: s.l.bannerSeq, Message: message, Remediation: remediation, Transient: transient}
	if transient {
		b.TTL = s.cfg.BannerTTL
		id := b.ID
		s.l.bannerTimers = append(s.l.bannerTimers, s.cfg.Clock.AfterFunc(b.TTL, func() {
			s.notify(bannerExpired{id: id})
		}))
	} else {
		s.l.persistent = append(s.l.persistent, b.ID)
	}
	s.emit(Event{Kind: EventBanner, Banner: b})
}

// emit delivers ev to the event stream, blocking while the buffer is full.
func (s *Scheduler) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.l.ctx.Done():
	}
}
