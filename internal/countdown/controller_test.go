package countdown

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/tuimer/internal/model"
)

type fakeScheduler struct {
	next      Handle
	repeating map[Handle]func()
	once      map[Handle]func()
	cancelled []Handle
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		repeating: map[Handle]func(){},
		once:      map[Handle]func(){},
	}
}

func (s *fakeScheduler) ScheduleRepeating(fn func(), _ time.Duration) Handle {
	s.next++
	s.repeating[s.next] = fn
	return s.next
}

func (s *fakeScheduler) ScheduleOnce(fn func(), _ time.Duration) Handle {
	s.next++
	s.once[s.next] = fn
	return s.next
}

func (s *fakeScheduler) Cancel(h Handle) {
	delete(s.repeating, h)
	delete(s.once, h)
	s.cancelled = append(s.cancelled, h)
}

func (s *fakeScheduler) tick(n int) {
	for i := 0; i < n; i++ {
		fns := make([]func(), 0, len(s.repeating))
		for _, fn := range s.repeating {
			fns = append(fns, fn)
		}
		for _, fn := range fns {
			fn()
		}
	}
}

func (s *fakeScheduler) fireOnce() {
	for h, fn := range s.once {
		delete(s.once, h)
		fn()
	}
}

func (s *fakeScheduler) onlyRepeating(t *testing.T) func() {
	t.Helper()
	if len(s.repeating) != 1 {
		t.Fatalf("expected exactly 1 repeating callback, got %d", len(s.repeating))
	}
	for _, fn := range s.repeating {
		return fn
	}
	return nil
}

type fakeSession struct {
	volume  float64
	looping bool
	plays   int
	stops   int
	unloads int
	playErr error
}

func (s *fakeSession) SetVolume(v float64) error  { s.volume = v; return nil }
func (s *fakeSession) SetLooping(loop bool) error { s.looping = loop; return nil }
func (s *fakeSession) Play() error                { s.plays++; return s.playErr }
func (s *fakeSession) Stop() error                { s.stops++; return nil }
func (s *fakeSession) Unload() error              { s.unloads++; return nil }

type fakeAudio struct {
	sessions []*fakeSession
	assets   []string
	loadErr  error
	playErr  error
}

func (a *fakeAudio) Load(_ context.Context, asset string) (AudioSession, error) {
	a.assets = append(a.assets, asset)
	if a.loadErr != nil {
		return nil, a.loadErr
	}
	s := &fakeSession{playErr: a.playErr}
	a.sessions = append(a.sessions, s)
	return s, nil
}

type fakeNotifier struct {
	perm      Permission
	permErr   error
	scheduled []Notification
}

func (n *fakeNotifier) CheckPermission(context.Context) (Permission, error) {
	return n.perm, n.permErr
}

func (n *fakeNotifier) Schedule(_ context.Context, notification Notification) (string, error) {
	n.scheduled = append(n.scheduled, notification)
	return "alarm", nil
}

type harness struct {
	sched  *fakeScheduler
	audio  *fakeAudio
	notify *fakeNotifier
	alarms []model.AlarmRecord
	ctrl   *Controller
}

func newHarness(t *testing.T, initial int) *harness {
	t.Helper()
	h := &harness{
		sched:  newFakeScheduler(),
		audio:  &fakeAudio{},
		notify: &fakeNotifier{perm: PermissionGranted},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	ctrl, err := New(Options{
		InitialSeconds: initial,
		Asset:          "alarm.wav",
		OnAlarm:        func(r model.AlarmRecord) { h.alarms = append(h.alarms, r) },
		Now:            func() time.Time { return time.Unix(100, 0) },
	}, Deps{
		Scheduler: h.sched,
		Audio:     h.audio,
		Notifier:  h.notify,
		Logger:    logrus.NewEntry(logger),
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	h.ctrl = ctrl
	return h
}

func TestResetRestoresInitial(t *testing.T) {
	for _, initial := range []int{0, 1, 7, 40, 110} {
		h := newHarness(t, initial)
		h.ctrl.Reset()
		assertIdle(t, h.ctrl, initial)

		h.ctrl.Start()
		h.sched.tick(3)
		h.ctrl.Reset()
		assertIdle(t, h.ctrl, initial)
		if len(h.sched.repeating) != 0 {
			t.Fatalf("initial %d: expected tick cancelled on reset", initial)
		}

		h.ctrl.Start()
		h.sched.tick(2)
		h.ctrl.Pause()
		h.ctrl.Reset()
		assertIdle(t, h.ctrl, initial)
	}
}

func TestStartThenPauseKeepsRemaining(t *testing.T) {
	h := newHarness(t, 40)
	h.ctrl.Start()
	if !h.ctrl.State().Running || !h.ctrl.State().HasTick {
		t.Fatalf("expected running with a recorded tick handle")
	}
	h.ctrl.Pause()
	st := h.ctrl.State()
	if st.RemainingSeconds != 40 || st.Running || st.HasTick {
		t.Fatalf("unexpected state after start+pause: %+v", st)
	}
}

func TestCountdownReachesZeroAndAlarmsOnce(t *testing.T) {
	h := newHarness(t, 10)
	h.ctrl.Start()
	stale := h.sched.onlyRepeating(t)
	h.sched.tick(10)

	st := h.ctrl.State()
	if st.RemainingSeconds != 0 {
		t.Fatalf("expected 0 remaining, got %d", st.RemainingSeconds)
	}
	if st.Running || st.HasTick {
		t.Fatalf("expected tick cancelled at zero: %+v", st)
	}
	if !st.Alarming {
		t.Fatalf("expected alarm in progress")
	}
	if len(h.alarms) != 1 {
		t.Fatalf("expected 1 alarm, got %d", len(h.alarms))
	}
	if len(h.sched.repeating) != 0 {
		t.Fatalf("expected no repeating callbacks left")
	}

	// a tick already in flight when the handle was cancelled
	stale()
	h.sched.tick(3)
	if len(h.alarms) != 1 || len(h.notify.scheduled) != 1 || len(h.audio.sessions) != 1 {
		t.Fatalf("alarm triggered more than once: alarms=%d notifications=%d sessions=%d",
			len(h.alarms), len(h.notify.scheduled), len(h.audio.sessions))
	}
	if h.ctrl.State().RemainingSeconds != 0 {
		t.Fatalf("expected countdown to stay at 0")
	}

	s := h.audio.sessions[0]
	if s.volume != 1 || !s.looping || s.plays != 1 {
		t.Fatalf("unexpected alarm playback: %+v", s)
	}
	if h.audio.assets[0] != "alarm.wav" {
		t.Fatalf("unexpected asset %q", h.audio.assets[0])
	}
	n := h.notify.scheduled[0]
	if n.Delay != DefaultNotificationDelay || n.Title == "" || n.Body == "" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	rec := h.alarms[0]
	if rec.InitialSeconds != 10 || rec.Label != "0:10" || !rec.Sounded || !rec.Notified {
		t.Fatalf("unexpected alarm record: %+v", rec)
	}
	if !rec.FiredAt.Equal(time.Unix(100, 0)) {
		t.Fatalf("unexpected fired time: %v", rec.FiredAt)
	}
}

func TestPauseAndResume(t *testing.T) {
	h := newHarness(t, 40)
	h.ctrl.Start()
	h.sched.tick(5)
	h.ctrl.Pause()

	st := h.ctrl.State()
	if st.RemainingSeconds != 35 || st.Running {
		t.Fatalf("unexpected state after pause: %+v", st)
	}
	if len(h.alarms) != 0 {
		t.Fatalf("expected no alarm yet")
	}

	h.ctrl.Start()
	h.sched.tick(34)
	if len(h.alarms) != 0 || h.ctrl.State().RemainingSeconds != 1 {
		t.Fatalf("expected 1 second left without alarm, got %+v", h.ctrl.State())
	}
	h.sched.tick(1)
	if len(h.alarms) != 1 {
		t.Fatalf("expected exactly 1 alarm, got %d", len(h.alarms))
	}
}

func TestStopBeforeFirstTick(t *testing.T) {
	h := newHarness(t, 40)
	h.ctrl.Start()
	h.ctrl.Stop()
	assertIdle(t, h.ctrl, 40)
	if len(h.sched.repeating) != 0 {
		t.Fatalf("expected tick cancelled")
	}
	if len(h.audio.sessions) != 0 {
		t.Fatalf("expected no audio activity")
	}

	// stopping twice, or with nothing scheduled, is harmless
	h.ctrl.Stop()
	assertIdle(t, h.ctrl, 40)
}

func TestStopSilencesAlarm(t *testing.T) {
	h := newHarness(t, 2)
	h.ctrl.Start()
	h.sched.tick(2)
	if !h.ctrl.State().Alarming {
		t.Fatalf("expected alarm")
	}

	h.ctrl.Stop()
	s := h.audio.sessions[0]
	if s.stops != 1 || s.unloads != 1 {
		t.Fatalf("expected stop+unload, got %+v", s)
	}
	if len(h.sched.once) != 0 {
		t.Fatalf("expected alarm timeout cancelled")
	}
	st := h.ctrl.State()
	if st.Alarming || st.RemainingSeconds != 2 {
		t.Fatalf("unexpected state after stop: %+v", st)
	}
}

func TestResetKeepsAlarmPlaying(t *testing.T) {
	h := newHarness(t, 1)
	h.ctrl.Start()
	h.sched.tick(1)
	h.ctrl.Reset()
	if !h.ctrl.State().Alarming {
		t.Fatalf("expected reset to leave the alarm alone")
	}
	if h.audio.sessions[0].stops != 0 {
		t.Fatalf("expected no stop on reset")
	}
}

func TestAlarmTimeoutUnloads(t *testing.T) {
	h := newHarness(t, 1)
	h.ctrl.Start()
	h.sched.tick(1)
	if len(h.sched.once) != 1 {
		t.Fatalf("expected alarm timeout scheduled, got %d", len(h.sched.once))
	}
	h.sched.fireOnce()

	s := h.audio.sessions[0]
	if s.unloads != 1 {
		t.Fatalf("expected unload on timeout, got %d", s.unloads)
	}
	if h.ctrl.State().Alarming {
		t.Fatalf("expected alarm cleared after timeout")
	}
	h.ctrl.Stop()
	if s.unloads != 1 || s.stops != 0 {
		t.Fatalf("expected stop after timeout to leave session alone, got %+v", s)
	}
}

func TestAlarmTimeoutIgnoresReplacedSession(t *testing.T) {
	h := newHarness(t, 1)
	h.ctrl.Start()
	h.sched.tick(1)
	var expire func()
	for _, fn := range h.sched.once {
		expire = fn
	}
	h.ctrl.Stop()
	h.ctrl.Start()
	h.sched.tick(1)

	expire()
	if !h.ctrl.State().Alarming {
		t.Fatalf("old timeout must not unload the new alarm")
	}
	if h.audio.sessions[1].unloads != 0 {
		t.Fatalf("expected second session untouched")
	}
}

func TestStaleTickIgnored(t *testing.T) {
	h := newHarness(t, 10)
	h.ctrl.Start()
	old := h.sched.onlyRepeating(t)
	h.ctrl.Pause()
	h.ctrl.Start()
	old()
	if got := h.ctrl.State().RemainingSeconds; got != 10 {
		t.Fatalf("stale tick changed remaining to %d", got)
	}
	h.sched.tick(1)
	if got := h.ctrl.State().RemainingSeconds; got != 9 {
		t.Fatalf("expected 9 remaining, got %d", got)
	}
}

func TestPermissionDeniedSkipsNotification(t *testing.T) {
	h := newHarness(t, 1)
	h.notify.perm = PermissionDenied
	h.ctrl.Start()
	h.sched.tick(1)
	if len(h.notify.scheduled) != 0 {
		t.Fatalf("expected no notification")
	}
	if len(h.audio.sessions) != 1 || h.audio.sessions[0].plays != 1 {
		t.Fatalf("expected alarm audio regardless of permission")
	}
	if h.alarms[0].Notified {
		t.Fatalf("expected record to show no notification")
	}
}

func TestProvisionalPermissionNotifies(t *testing.T) {
	h := newHarness(t, 1)
	h.notify.perm = PermissionProvisional
	h.ctrl.Start()
	h.sched.tick(1)
	if len(h.notify.scheduled) != 1 {
		t.Fatalf("expected notification with provisional permission")
	}
}

func TestPermissionErrorSkipsNotification(t *testing.T) {
	h := newHarness(t, 1)
	h.notify.permErr = errors.New("no bus")
	h.ctrl.Start()
	h.sched.tick(1)
	if len(h.notify.scheduled) != 0 {
		t.Fatalf("expected no notification")
	}
}

func TestAudioFailureStillReachesZero(t *testing.T) {
	h := newHarness(t, 3)
	h.audio.loadErr = errors.New("missing asset")
	h.ctrl.Start()
	h.sched.tick(5)

	st := h.ctrl.State()
	if st.RemainingSeconds != 0 || st.Running || st.Alarming {
		t.Fatalf("unexpected state: %+v", st)
	}
	if len(h.notify.scheduled) != 1 {
		t.Fatalf("expected notification despite audio failure")
	}
	if h.alarms[0].Sounded {
		t.Fatalf("expected record to show silent alarm")
	}
	if len(h.sched.once) != 0 {
		t.Fatalf("expected no alarm timeout without audio")
	}
}

func TestPlayFailureUnloadsSession(t *testing.T) {
	h := newHarness(t, 1)
	h.audio.playErr = errors.New("device busy")
	h.ctrl.Start()
	h.sched.tick(1)
	if h.ctrl.State().Alarming {
		t.Fatalf("expected no alarm when playback fails")
	}
	if h.audio.sessions[0].unloads != 1 {
		t.Fatalf("expected failed session unloaded")
	}
}

func TestStartAtZeroIsNoop(t *testing.T) {
	h := newHarness(t, 0)
	h.ctrl.Start()
	st := h.ctrl.State()
	if st.Running || st.HasTick {
		t.Fatalf("expected start at zero to do nothing: %+v", st)
	}

	h = newHarness(t, 1)
	h.ctrl.Start()
	h.sched.tick(1)
	h.ctrl.Start()
	if h.ctrl.State().Running {
		t.Fatalf("expected start after alarm to do nothing until reset")
	}
}

func TestDoubleStartKeepsOneTick(t *testing.T) {
	h := newHarness(t, 10)
	h.ctrl.Start()
	h.ctrl.Start()
	if len(h.sched.repeating) != 1 {
		t.Fatalf("expected 1 repeating callback, got %d", len(h.sched.repeating))
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	h := newHarness(t, 1)
	h.ctrl.Start()
	h.sched.tick(1)
	h.ctrl.Close()
	if len(h.sched.repeating) != 0 || len(h.sched.once) != 0 {
		t.Fatalf("expected nothing scheduled after close")
	}
	if h.audio.sessions[0].unloads != 1 {
		t.Fatalf("expected alarm unloaded on close")
	}
}

func TestNilCollaboratorsAreOptional(t *testing.T) {
	sched := newFakeScheduler()
	ctrl, err := New(Options{InitialSeconds: 1, Label: "tea"}, Deps{Scheduler: sched})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	ctrl.Start()
	sched.tick(1)
	if ctrl.State().RemainingSeconds != 0 {
		t.Fatalf("expected zero")
	}
	if ctrl.Label() != "tea" {
		t.Fatalf("unexpected label %q", ctrl.Label())
	}
}

func TestAlarmVolume(t *testing.T) {
	quiet := 0.25
	cases := []struct {
		name   string
		volume *float64
		want   float64
	}{
		{name: "unset", want: DefaultVolume},
		{name: "explicit", volume: &quiet, want: 0.25},
	}
	for _, tc := range cases {
		sched := newFakeScheduler()
		audio := &fakeAudio{}
		ctrl, err := New(Options{InitialSeconds: 1, Volume: tc.volume}, Deps{Scheduler: sched, Audio: audio})
		if err != nil {
			t.Fatalf("%s: new controller: %v", tc.name, err)
		}
		ctrl.Start()
		sched.tick(1)
		if len(audio.sessions) != 1 {
			t.Fatalf("%s: expected one session, got %d", tc.name, len(audio.sessions))
		}
		if got := audio.sessions[0].volume; got != tc.want {
			t.Fatalf("%s: expected volume %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Options{InitialSeconds: -1}, Deps{Scheduler: newFakeScheduler()}); !errors.Is(err, ErrNegativeDuration) {
		t.Fatalf("expected ErrNegativeDuration, got %v", err)
	}
	if _, err := New(Options{InitialSeconds: 1}, Deps{}); !errors.Is(err, ErrNoScheduler) {
		t.Fatalf("expected ErrNoScheduler, got %v", err)
	}
}

func TestToggleExpanded(t *testing.T) {
	h := newHarness(t, 5)
	if !h.ctrl.ToggleExpanded() || !h.ctrl.State().Expanded {
		t.Fatalf("expected expanded")
	}
	h.ctrl.Start()
	h.ctrl.SetExpanded(false)
	st := h.ctrl.State()
	if st.Expanded || !st.Running {
		t.Fatalf("expanded flag must not affect the countdown: %+v", st)
	}
}

func assertIdle(t *testing.T, c *Controller, initial int) {
	t.Helper()
	st := c.State()
	if st.RemainingSeconds != initial || st.Running || st.HasTick {
		t.Fatalf("expected idle at %d, got %+v", initial, st)
	}
}
