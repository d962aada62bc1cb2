package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/tuimer/internal/config"
	"github.com/verte-zerg/tuimer/internal/countdown"
	"github.com/verte-zerg/tuimer/internal/model"
)

var runLabel string

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run DURATION",
		Short: "Run a single timer without the TUI",
		Long: "Run a single timer without the TUI. DURATION accepts seconds (90), " +
			"minutes and seconds (1:30) or a Go duration (1m30s).",
		Args: cobra.ExactArgs(1),
		RunE: runHeadlessCmd,
	}
	addAlarmFlags(cmd)
	cmd.Flags().StringVar(&runLabel, "label", "", "timer label used in notifications and history")
	return cmd
}

func runHeadlessCmd(cmd *cobra.Command, args []string) error {
	secs, err := countdown.ParseSeconds(args[0])
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", args[0], err)
	}
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := resolveConfig(cmd, fileCfg)
	if err != nil {
		return err
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := newStatusLine(cmd.OutOrStdout())
	spec := model.TimerSpec{Label: runLabel, Seconds: secs}
	h, err := newHeadless(a.options(spec, nil), a.deps(), a.notifier.Pending, out, cancel)
	if err != nil {
		return err
	}
	defer h.ctrl.Close()

	h.report()
	if secs == 0 {
		out.Done()
		return nil
	}
	h.ctrl.Start()
	a.loop.ScheduleRepeating(h.report, countdown.DefaultInterval)

	if err := a.loop.Run(ctx); err != nil && !h.fired {
		a.log.WithField("remaining", h.ctrl.State().RemainingSeconds).Info("interrupted")
	}
	out.Done()
	return nil
}

// headless drives one controller without the TUI and calls done once the
// alarm is over.
type headless struct {
	ctrl    *countdown.Controller
	pending func() int
	out     *statusLine
	done    func()
	fired   bool
}

func newHeadless(opts countdown.Options, deps countdown.Deps, pending func() int, out *statusLine, done func()) (*headless, error) {
	h := &headless{pending: pending, out: out, done: done}
	next := opts.OnAlarm
	opts.OnAlarm = func(rec model.AlarmRecord) {
		h.fired = true
		if next != nil {
			next(rec)
		}
	}
	ctrl, err := countdown.New(opts, deps)
	if err != nil {
		return nil, err
	}
	h.ctrl = ctrl
	return h, nil
}

func (h *headless) report() {
	st := h.ctrl.State()
	h.out.Show(statusText(st))
	if h.finished(st) {
		h.done()
	}
}

// finished reports whether the timer fired, the sound stopped and no
// notification is still waiting for delivery.
func (h *headless) finished(st countdown.State) bool {
	if !h.fired || st.Alarming {
		return false
	}
	return h.pending == nil || h.pending() == 0
}

func statusText(st countdown.State) string {
	text := fmt.Sprintf("%s  %s", st.Label, countdown.FormatTime(st.RemainingSeconds))
	if st.Alarming {
		text += "  ALARM"
	}
	return text
}

// statusLine rewrites one line on a terminal and prints one line per update
// otherwise.
type statusLine struct {
	w     io.Writer
	tty   bool
	width int
	last  string
}

func newStatusLine(w io.Writer) *statusLine {
	s := &statusLine{w: w}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.tty = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			s.width = width
		}
	}
	return s
}

func (s *statusLine) Show(text string) {
	if text == s.last {
		return
	}
	s.last = text
	if !s.tty {
		s.write(text + "\n")
		return
	}
	if w := runewidth.StringWidth(text); s.width > 0 && w < s.width {
		text += strings.Repeat(" ", s.width-w-1)
	}
	s.write("\r" + text)
}

func (s *statusLine) Done() {
	if s.tty {
		s.write("\n")
	}
}

func (s *statusLine) write(text string) {
	if _, err := io.WriteString(s.w, text); err != nil {
		// Best-effort status output.
		_ = err
	}
}
