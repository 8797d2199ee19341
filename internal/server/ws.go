package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/internal/interview"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/speech/bridge"
	"github.com/MrWong99/parley/internal/store"
)

// Control frame types sent by the page. They share the connection with the
// speech bridge frames.
const (
	ControlListen     = "listen"
	ControlStop       = "stop"
	ControlSubmit     = "submit"
	ControlEnd        = "end"
	ControlAutoListen = "auto_listen"
)

// Frame types sent by the server in addition to the interview event kinds
// ("state", "caption", "utterance", "banner", "banner_cleared", "error",
// "finished").
const (
	FrameStarted  = "started"
	FrameRejected = "rejected"
	FrameFailed   = "failed"
)

// Frame is one server-to-page interview frame.
type Frame struct {
	Type string `json:"type"`

	SessionID  string `json:"session_id,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`

	State     string `json:"state,omitempty"`
	Text      string `json:"text,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	Banner   *BannerFrame  `json:"banner,omitempty"`
	BannerID int           `json:"banner_id,omitempty"`
	Command  string        `json:"command,omitempty"`
	Error    string        `json:"error,omitempty"`
	Session  *store.Record `json:"session,omitempty"`
}

// BannerFrame is the wire form of [interview.Banner].
type BannerFrame struct {
	ID          int    `json:"id"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
	Transient   bool   `json:"transient"`
	TTLMillis   int64  `json:"ttl_ms,omitempty"`
}

// eventFrame converts a scheduler event to its frame.
func eventFrame(ev interview.Event) Frame {
	f := Frame{Type: ev.Kind.String()}
	switch ev.Kind {
	case interview.EventStateChanged:
		f.State = ev.State.String()
	case interview.EventCaption:
		f.Text = ev.Caption
	case interview.EventUtterance:
		f.Text = ev.Utterance.Text
		f.Sender = store.SenderInterviewer
		if ev.Utterance.Speaker == session.User {
			f.Sender = store.SenderUser
		}
		f.Timestamp = ev.Utterance.CreatedAt.UTC().Format(time.RFC3339Nano)
	case interview.EventBanner:
		b := ev.Banner
		f.Banner = &BannerFrame{
			ID:          b.ID,
			Message:     b.Message,
			Remediation: b.Remediation,
			Transient:   b.Transient,
			TTLMillis:   b.TTL.Milliseconds(),
		}
	case interview.EventBannerCleared:
		f.BannerID = ev.Banner.ID
	case interview.EventError:
		if ev.Err != nil {
			f.Error = ev.Err.Error()
		}
	case interview.EventFinished:
		if ev.Session != nil {
			rec := store.Encode(*ev.Session)
			f.Session = &rec
		}
	}
	return f
}

// parseRequest reads the interview options from the query string.
func parseRequest(q url.Values) (interview.Request, error) {
	req := interview.Request{
		Topic:      q.Get("topic"),
		Difficulty: q.Get("difficulty"),
	}
	if raw := q.Get("duration"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			return req, fmt.Errorf("invalid duration %q: want whole minutes", raw)
		}
		req.Duration = time.Duration(minutes) * time.Minute
	}
	if raw := q.Get("auto_listen"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return req, fmt.Errorf("invalid auto_listen %q", raw)
		}
		req.AutoListen = &v
	}
	return req, nil
}

// interview upgrades the connection and runs one interview over it. The
// interview is torn down without persisting when the page disconnects.
func (s *Server) interview(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := observe.Logger(r.Context())
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		log.Warn("server: websocket accept", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	b := bridge.New(conn)
	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug("server: bridge stopped", "err", err)
		}
		cancel()
	}()

	sched, err := s.cfg.Launcher.Launch(ctx, req, b.Synthesizer(), b.Recognizer())
	if err != nil {
		log.Warn("server: launch interview", "err", err)
		_ = b.Send(ctx, Frame{Type: FrameFailed, Error: err.Error()})
		_ = b.Close("interview could not start")
		<-bridgeDone
		return
	}

	log = log.With("interview_id", sched.ID().String())
	settings := sched.Settings()
	if err := b.Send(ctx, Frame{Type: FrameStarted, SessionID: sched.ID().String(), Topic: settings.Topic, Difficulty: settings.Difficulty}); err != nil {
		log.Debug("server: send started", "err", err)
	}

	go s.control(ctx, b, sched)

	// Keep draining after a failed send so the scheduler never blocks on
	// its event channel.
	for ev := range sched.Events() {
		if err := b.Send(ctx, eventFrame(ev)); err != nil {
			log.Debug("server: send event", "kind", ev.Kind.String(), "err", err)
		}
	}

	if sched.Finished() {
		_ = b.Close("interview finished")
	} else {
		_ = conn.Close(websocket.StatusGoingAway, "interview stopped")
	}
	<-bridgeDone
}

// control applies the page's control frames to the scheduler. Rejected
// commands are answered with a rejected frame.
func (s *Server) control(ctx context.Context, b *bridge.Bridge, sched *interview.Scheduler) {
	for msg := range b.Control() {
		var err error
		switch msg.Type {
		case ControlListen:
			err = sched.Listen(ctx)
		case ControlStop:
			err = sched.StopListening(ctx)
		case ControlSubmit:
			err = sched.Submit(ctx, msg.Text)
		case ControlAutoListen:
			err = sched.SetAutoListen(ctx, msg.Enabled != nil && *msg.Enabled)
		case ControlEnd:
			// End waits for the closing line to finish playing, which needs
			// the bridge to keep reading.
			go func() {
				if err := sched.End(ctx); err != nil {
					reject(ctx, b, msg.Type, err)
				}
			}()
		default:
			err = fmt.Errorf("unknown frame type %q", msg.Type)
		}
		if err != nil {
			reject(ctx, b, msg.Type, err)
		}
	}
}

func reject(ctx context.Context, b *bridge.Bridge, command string, err error) {
	if ctx.Err() != nil {
		return
	}
	_ = b.Send(ctx, Frame{Type: FrameRejected, Command: command, Error: err.Error()})
}
