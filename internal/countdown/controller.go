// Package countdown implements the per-timer lifecycle: countdown progression,
// start/pause/reset/stop transitions and the alarm sequence fired at zero.
package countdown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/tuimer/internal/model"
)

const (
	DefaultInterval          = time.Second
	DefaultAlarmTimeout      = 15 * time.Second
	DefaultNotificationDelay = 2 * time.Second
	DefaultVolume            = 1.0

	// upper bound for a single collaborator call made during the alarm sequence
	alarmCallTimeout = 5 * time.Second
)

var (
	ErrNegativeDuration = errors.New("initial seconds must be >= 0")
	ErrNoScheduler      = errors.New("scheduler is required")
)

// Options configures one timer.
type Options struct {
	Label          string
	InitialSeconds int
	Interval       time.Duration
	Asset          string
	// Volume in [0, 1]. Nil plays at DefaultVolume.
	Volume         *float64
	AlarmTimeout   time.Duration
	Notification   Notification
	OnAlarm        func(model.AlarmRecord)
	Now            func() time.Time
}

// Deps are the collaborators a controller drives. Audio and Notifier may be
// nil, which disables that part of the alarm.
type Deps struct {
	Scheduler Scheduler
	Audio     AudioPlayer
	Notifier  Notifier
	Logger    *logrus.Entry
}

// State is a snapshot of a timer.
type State struct {
	Label            string
	InitialSeconds   int
	RemainingSeconds int
	Running          bool
	Alarming         bool
	Expanded         bool
	HasTick          bool
}

// Controller owns one timer. It is not safe for concurrent use: every method
// and every scheduler callback must run on the same goroutine.
type Controller struct {
	opts   Options
	volume float64
	sched  Scheduler
	audio  AudioPlayer
	notify Notifier
	log    *logrus.Entry

	remaining int
	running   bool
	expanded  bool

	tick    Handle
	tickGen uint64

	alarm        AudioSession
	alarmTimeout Handle
}

// New builds an idle controller with remaining time set to InitialSeconds.
func New(opts Options, deps Deps) (*Controller, error) {
	if opts.InitialSeconds < 0 {
		return nil, fmt.Errorf("invalid timer %q: %w", opts.Label, ErrNegativeDuration)
	}
	if deps.Scheduler == nil {
		return nil, ErrNoScheduler
	}
	if opts.Label == "" {
		opts.Label = FormatTime(opts.InitialSeconds)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.AlarmTimeout <= 0 {
		opts.AlarmTimeout = DefaultAlarmTimeout
	}
	if opts.Notification.Title == "" {
		opts.Notification.Title = "Timer finished"
	}
	if opts.Notification.Body == "" {
		opts.Notification.Body = fmt.Sprintf("%s is up", opts.Label)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	volume := DefaultVolume
	if opts.Volume != nil {
		volume = *opts.Volume
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		opts:      opts,
		volume:    volume,
		sched:     deps.Scheduler,
		audio:     deps.Audio,
		notify:    deps.Notifier,
		log:       logger.WithField("timer", opts.Label),
		remaining: opts.InitialSeconds,
	}, nil
}

// Label returns the timer label.
func (c *Controller) Label() string {
	return c.opts.Label
}

// State returns a snapshot of the timer.
func (c *Controller) State() State {
	return State{
		Label:            c.opts.Label,
		InitialSeconds:   c.opts.InitialSeconds,
		RemainingSeconds: c.remaining,
		Running:          c.running,
		Alarming:         c.alarm != nil,
		Expanded:         c.expanded,
		HasTick:          c.tick != 0,
	}
}

// Start begins counting down. It does nothing when already running or when
// there is no time left to count.
func (c *Controller) Start() {
	if c.running {
		return
	}
	if c.remaining <= 0 {
		c.log.Debug("start ignored: nothing left to count")
		return
	}
	c.tickGen++
	gen := c.tickGen
	c.tick = c.sched.ScheduleRepeating(func() { c.onTick(gen) }, c.opts.Interval)
	c.running = true
	c.log.WithField("remaining", c.remaining).Debug("started")
}

// Pause stops counting and keeps the remaining time.
func (c *Controller) Pause() {
	if !c.running {
		return
	}
	c.cancelTick()
	c.log.WithField("remaining", c.remaining).Debug("paused")
}

// Reset stops counting and restores the initial time. A playing alarm keeps
// playing until Stop or its timeout.
func (c *Controller) Reset() {
	c.cancelTick()
	c.remaining = c.opts.InitialSeconds
	c.log.Debug("reset")
}

// Stop stops counting, restores the initial time and silences the alarm.
func (c *Controller) Stop() {
	c.cancelTick()
	c.remaining = c.opts.InitialSeconds
	c.silence()
	c.log.Debug("stopped")
}

// Close releases every scheduled callback and the alarm sound.
func (c *Controller) Close() {
	c.cancelTick()
	c.silence()
}

// SetExpanded switches the full-screen presentation.
func (c *Controller) SetExpanded(expanded bool) {
	c.expanded = expanded
}

// ToggleExpanded flips the full-screen presentation and returns the new value.
func (c *Controller) ToggleExpanded() bool {
	c.expanded = !c.expanded
	return c.expanded
}

func (c *Controller) cancelTick() {
	if c.tick != 0 {
		c.sched.Cancel(c.tick)
		c.tick = 0
	}
	c.running = false
}

func (c *Controller) onTick(gen uint64) {
	// a tick posted before its handle was cancelled may still arrive
	if !c.running || gen != c.tickGen {
		return
	}
	prev := c.remaining
	if prev > 1 {
		c.remaining = prev - 1
		return
	}
	c.remaining = 0
	c.cancelTick()
	c.fireAlarm()
}

func (c *Controller) fireAlarm() {
	record := model.AlarmRecord{
		Label:          c.opts.Label,
		InitialSeconds: c.opts.InitialSeconds,
		FiredAt:        c.opts.Now(),
	}
	c.log.Info("timer reached zero")

	if c.alarm == nil {
		record.Sounded = c.playAlarm()
	}
	record.Notified = c.sendNotification()

	if c.opts.OnAlarm != nil {
		c.opts.OnAlarm(record)
	}
}

func (c *Controller) playAlarm() bool {
	if c.audio == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), alarmCallTimeout)
	defer cancel()

	session, err := c.audio.Load(ctx, c.opts.Asset)
	if err != nil {
		c.log.WithError(err).Warn("failed to load alarm sound")
		return false
	}
	if err := session.SetVolume(c.volume); err != nil {
		c.log.WithError(err).Warn("failed to set alarm volume")
	}
	if err := session.SetLooping(true); err != nil {
		c.log.WithError(err).Warn("failed to enable alarm looping")
	}
	if err := session.Play(); err != nil {
		c.log.WithError(err).Warn("failed to play alarm sound")
		if uerr := session.Unload(); uerr != nil {
			c.log.WithError(uerr).Debug("failed to unload alarm sound")
		}
		return false
	}
	c.alarm = session
	c.alarmTimeout = c.sched.ScheduleOnce(func() { c.expireAlarm(session) }, c.opts.AlarmTimeout)
	return true
}

func (c *Controller) expireAlarm(session AudioSession) {
	if c.alarm != session {
		return
	}
	c.alarmTimeout = 0
	c.log.Debug("alarm timed out")
	c.releaseAlarm(false)
}

func (c *Controller) silence() {
	if c.alarmTimeout != 0 {
		c.sched.Cancel(c.alarmTimeout)
		c.alarmTimeout = 0
	}
	if c.alarm != nil {
		c.releaseAlarm(true)
	}
}

func (c *Controller) releaseAlarm(stop bool) {
	session := c.alarm
	c.alarm = nil
	if stop {
		if err := session.Stop(); err != nil {
			c.log.WithError(err).Warn("failed to stop alarm sound")
		}
	}
	if err := session.Unload(); err != nil {
		c.log.WithError(err).Warn("failed to unload alarm sound")
	}
}

func (c *Controller) sendNotification() bool {
	if c.notify == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), alarmCallTimeout)
	defer cancel()

	perm, err := c.notify.CheckPermission(ctx)
	if err != nil {
		c.log.WithError(err).Warn("failed to check notification permission")
		return false
	}
	if !perm.Allowed() {
		c.log.WithField("permission", perm).Debug("notification skipped")
		return false
	}
	n := c.opts.Notification
	if n.Delay <= 0 {
		n.Delay = DefaultNotificationDelay
	}
	id, err := c.notify.Schedule(ctx, n)
	if err != nil {
		c.log.WithError(err).Warn("failed to schedule notification")
		return false
	}
	c.log.WithField("notification", id).Debug("notification scheduled")
	return true
}
