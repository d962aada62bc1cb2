// Package main provides the CLI entrypoint for tuimer.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/tuimer/internal/audio"
	"github.com/verte-zerg/tuimer/internal/config"
	"github.com/verte-zerg/tuimer/internal/countdown"
	"github.com/verte-zerg/tuimer/internal/logs"
	"github.com/verte-zerg/tuimer/internal/model"
	"github.com/verte-zerg/tuimer/internal/notify"
	"github.com/verte-zerg/tuimer/internal/schedule"
	"github.com/verte-zerg/tuimer/internal/store"
	"github.com/verte-zerg/tuimer/internal/tui"
)

const (
	defaultVolume       = 1.0
	defaultAlarmTimeout = 15
	defaultNotifyDelay  = 2
	defaultNotifyTitle  = "Timer finished"
	defaultNotifyBody   = "{label} is up"
	defaultLogLevel     = "info"
	defaultLoopBuffer   = 16
)

var defaultTimers = []int{10, 40, 110}

var (
	timersSeconds []int
	alarmSound    string
	alarmVolume   float64
	alarmMute     bool
	alarmTimeout  int
	alarmRecord   bool
	notifyOff     bool
	notifyDelay   int
	logLevel      string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tuimer",
		Short:         "TUI countdown timers with alarm sound and notifications",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE:          runTimersCmd,
	}

	addAlarmFlags(rootCmd)
	rootCmd.Flags().IntSliceVar(&timersSeconds, "timers", defaultTimers, "timer durations in seconds")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newFormatCmd())

	return rootCmd
}

func addAlarmFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&alarmSound, "sound", "", "WAV file played when a timer finishes (default: built-in tone)")
	cmd.Flags().Float64Var(&alarmVolume, "volume", defaultVolume, "alarm volume (0-1)")
	cmd.Flags().BoolVar(&alarmMute, "mute", false, "do not play the alarm sound")
	cmd.Flags().IntVar(&alarmTimeout, "alarm-timeout", defaultAlarmTimeout, "seconds before the alarm sound stops by itself")
	cmd.Flags().BoolVar(&notifyOff, "no-notify", false, "do not show desktop notifications")
	cmd.Flags().IntVar(&notifyDelay, "notify-delay", defaultNotifyDelay, "seconds between the alarm and the notification")
	cmd.Flags().BoolVar(&alarmRecord, "history", false, "record finished timers in the alarm history")
	cmd.Flags().StringVar(&logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
}

// app holds the collaborators shared by every timer of one command.
type app struct {
	cfg      model.Config
	log      *logrus.Logger
	loop     *schedule.Loop
	audio    countdown.AudioPlayer
	notifier *notify.Service
	store    *store.Store
	closers  []func()
}

func runTimersCmd(cmd *cobra.Command, _ []string) error {
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

	logPath := config.DefaultLogPath()
	if fileCfg.Log.File != nil && *fileCfg.Log.File != "" {
		logPath = *fileCfg.Log.File
	}
	logFile, err := logs.OpenFile(logPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logFile.Close(); cerr != nil {
			logErrf("failed to close log: %v\n", cerr)
		}
	}()

	a, err := newApp(cfg, logFile)
	if err != nil {
		return err
	}
	defer a.close()

	m, err := tui.NewModel(a.loop, a.factory, cfg.Timers, logrus.NewEntry(a.log))
	if err != nil {
		return err
	}
	defer m.Close()

	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newApp(cfg model.Config, logOut io.Writer) (*app, error) {
	logger, err := logs.NewLogger("tuimer", logOut, logLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger, loop: schedule.New(defaultLoopBuffer)}
	a.closers = append(a.closers, a.loop.Close)

	if !cfg.Mute {
		if err := audio.Init(audio.DefaultMode); err != nil {
			logger.WithError(err).Warn("alarm sound disabled")
		} else {
			a.audio = audio.Player{}
		}
	}

	channel := notify.DefaultChannel
	channel.Sound = cfg.NotifySound
	n, err := notify.NewService(notify.Config{
		Enabled: cfg.Notify,
		Channel: channel,
	}, logrus.NewEntry(logger))
	if err != nil {
		a.close()
		return nil, err
	}
	a.notifier = n
	a.closers = append(a.closers, n.Close)

	if cfg.RecordAlarms {
		st, err := store.Open(config.DefaultDBPath())
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open db: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, func() {
			if cerr := st.Close(); cerr != nil {
				logger.WithError(cerr).Warn("failed to close db")
			}
		})
	}
	return a, nil
}

// factory builds a controller bound to the shared loop, audio and notifier.
func (a *app) factory(spec model.TimerSpec, onAlarm func(model.AlarmRecord)) (*countdown.Controller, error) {
	return countdown.New(a.options(spec, onAlarm), a.deps())
}

func (a *app) deps() countdown.Deps {
	deps := countdown.Deps{
		Scheduler: a.loop,
		Audio:     a.audio,
		Logger:    logrus.NewEntry(a.log),
	}
	if a.notifier != nil {
		deps.Notifier = a.notifier
	}
	return deps
}

func (a *app) options(spec model.TimerSpec, onAlarm func(model.AlarmRecord)) countdown.Options {
	label := spec.Label
	if label == "" {
		label = countdown.FormatTime(spec.Seconds)
	}
	return countdown.Options{
		Label:          label,
		InitialSeconds: spec.Seconds,
		Asset:          a.cfg.Sound,
		Volume:         &a.cfg.Volume,
		AlarmTimeout:   a.cfg.AlarmTimeout,
		Notification: countdown.Notification{
			Title: expandLabel(a.cfg.NotifyTitle, label),
			Body:  expandLabel(a.cfg.NotifyBody, label),
			Delay: a.cfg.NotifyDelay,
		},
		OnAlarm: func(rec model.AlarmRecord) {
			a.record(rec)
			if onAlarm != nil {
				onAlarm(rec)
			}
		},
	}
}

func (a *app) record(rec model.AlarmRecord) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := a.store.InsertAlarm(ctx, rec); err != nil {
		a.log.WithError(err).Warn("failed to record alarm")
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func resolveConfig(cmd *cobra.Command, fileCfg config.FileConfig) (model.Config, error) {
	applyStringConfig(cmd, "sound", &alarmSound, fileCfg.Alarm.Sound)
	applyFloatConfig(cmd, "volume", &alarmVolume, fileCfg.Alarm.Volume)
	applyBoolConfig(cmd, "mute", &alarmMute, fileCfg.Alarm.Mute)
	applyIntConfig(cmd, "alarm-timeout", &alarmTimeout, fileCfg.Alarm.Timeout)
	applyBoolConfig(cmd, "history", &alarmRecord, fileCfg.Alarm.Record)
	applyIntConfig(cmd, "notify-delay", &notifyDelay, fileCfg.Notify.Delay)
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	if fileCfg.Notify.Enabled != nil && !cmd.Flags().Changed("no-notify") {
		notifyOff = !*fileCfg.Notify.Enabled
	}

	timers, err := resolveTimers(cmd, fileCfg.Timers)
	if err != nil {
		return model.Config{}, err
	}

	cfg := model.Config{
		Timers:       timers,
		Sound:        alarmSound,
		Volume:       alarmVolume,
		Mute:         alarmMute,
		AlarmTimeout: time.Duration(alarmTimeout) * time.Second,
		Notify:       !notifyOff,
		NotifyTitle:  defaultNotifyTitle,
		NotifyBody:   defaultNotifyBody,
		NotifyDelay:  time.Duration(notifyDelay) * time.Second,
		RecordAlarms: alarmRecord,
	}
	if v := fileCfg.Notify.Title; v != nil {
		cfg.NotifyTitle = *v
	}
	if v := fileCfg.Notify.Body; v != nil {
		cfg.NotifyBody = *v
	}
	if v := fileCfg.Notify.Sound; v != nil {
		cfg.NotifySound = *v
	}
	return cfg, nil
}

// resolveTimers prefers --timers, then [timers] from the config file.
// Config labels only apply to config seconds.
func resolveTimers(cmd *cobra.Command, fileTimers config.TimersConfig) ([]model.TimerSpec, error) {
	seconds := timersSeconds
	var labels []string
	if !cmd.Flags().Changed("timers") && len(fileTimers.Seconds) > 0 {
		seconds = fileTimers.Seconds
		labels = fileTimers.Labels
	}
	specs := make([]model.TimerSpec, 0, len(seconds))
	for i, secs := range seconds {
		if secs < 0 {
			return nil, fmt.Errorf("timer durations must be >= 0, got %d", secs)
		}
		spec := model.TimerSpec{Seconds: secs}
		if i < len(labels) {
			spec.Label = labels[i]
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func validateConfig(cfg model.Config) error {
	if cfg.Volume < 0 || cfg.Volume > 1 {
		return fmt.Errorf("--volume must be between 0 and 1")
	}
	if cfg.AlarmTimeout <= 0 {
		return fmt.Errorf("--alarm-timeout must be > 0")
	}
	if cfg.NotifyDelay <= 0 {
		return fmt.Errorf("--notify-delay must be > 0")
	}
	return nil
}

func expandLabel(template, label string) string {
	return strings.ReplaceAll(template, "{label}", label)
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
