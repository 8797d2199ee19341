package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/interview"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/speech/console"
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run a typed interview in the terminal",
	Long: `Run an interview in the terminal. The interviewer's lines are printed and
answers are typed, one per line. Type /end to finish and save the session;
Ctrl+C abandons it without saving.`,
	RunE: runPractice,
}

func init() {
	f := practiceCmd.Flags()
	f.String("topic", "", "interview topic (default interview.topic)")
	f.String("difficulty", "", "interview difficulty (default interview.difficulty)")
	f.Duration("duration", 0, "planned interview length (default interview.duration_minutes)")
	f.Duration("pacing", 30*time.Millisecond, "per-character delay that simulates speaking time")
	f.Bool("analyze", false, "score the session when it ends")
}

const endCommand = "/end"

func runPractice(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if analyze, _ := f.GetBool("analyze"); analyze {
		cfg.Interview.Analyze = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = application.Shutdown(sctx)
	}()

	topic, _ := f.GetString("topic")
	difficulty, _ := f.GetString("difficulty")
	duration, _ := f.GetDuration("duration")
	pacing, _ := f.GetDuration("pacing")
	autoListen := false

	out := cmd.OutOrStdout()
	sched, err := application.Interviews().Launch(ctx,
		interview.Request{Topic: topic, Difficulty: difficulty, Duration: duration, AutoListen: &autoListen},
		console.NewSynthesizer(out, console.WithPacing(pacing)),
		console.Recognizer{},
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Practice interview on %s (%s). Type your answers; %s finishes.\n\n",
		sched.Settings().Topic, sched.Settings().Difficulty, endCommand)

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(out, sched.Events())
	}()
	go readAnswers(ctx, cmd.InOrStdin(), out, sched)

	select {
	case <-sched.Done():
		<-printed
		return nil
	case <-ctx.Done():
		fmt.Fprintln(out, "\nInterview abandoned; nothing was saved.")
		return nil
	}
}

// readAnswers submits each typed line. End of input finishes the interview.
func readAnswers(ctx context.Context, in io.Reader, out io.Writer, sched *interview.Scheduler) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == endCommand {
			break
		}
		err := sched.Submit(ctx, line)
		switch {
		case err == nil:
		case errors.Is(err, interview.ErrBusy):
			fmt.Fprintln(out, "(the interviewer is still talking; try again in a moment)")
		case errors.Is(err, interview.ErrEnding), errors.Is(err, interview.ErrNotRunning):
			return
		default:
			fmt.Fprintf(out, "(could not send answer: %v)\n", err)
		}
	}

	fmt.Fprintln(out, "Wrapping up...")
	if err := sched.End(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(out, "Could not save the session: %v\n", err)
	}
}

func printEvents(out io.Writer, events <-chan interview.Event) {
	for ev := range events {
		switch ev.Kind {
		case interview.EventBanner:
			if ev.Banner.Remediation != "" {
				fmt.Fprintf(out, "! %s %s\n", ev.Banner.Message, ev.Banner.Remediation)
			} else {
				fmt.Fprintf(out, "! %s\n", ev.Banner.Message)
			}
		case interview.EventStateChanged:
			if ev.State == interview.Thinking {
				fmt.Fprintln(out, "...")
			}
		case interview.EventFinished:
			printSummary(out, ev.Session)
		}
	}
}

func printSummary(out io.Writer, s *session.Session) {
	if s == nil {
		return
	}
	fmt.Fprintf(out, "\nSession %s saved with %d messages.\n", s.ID, len(s.Utterances))
	a := s.Analysis
	if a == nil {
		return
	}
	fmt.Fprintf(out, "Score: %.0f/100\n", a.Score)
	if a.OverallAssessment != "" {
		fmt.Fprintln(out, a.OverallAssessment)
	}
	printList(out, "Strengths", a.Strengths)
	printList(out, "Improvements", a.Improvements)
	printList(out, "Feedback", a.Feedback)
}

func printList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(out, "  - %s\n", it)
	}
}
