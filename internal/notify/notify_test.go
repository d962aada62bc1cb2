package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/tuimer/internal/countdown"
)

type sent struct {
	channel Channel
	title   string
	body    string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
	done chan struct{}
	err  error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{done: make(chan struct{}, 8)}
}

func (r *recordingSender) Send(ch Channel, title, body string) error {
	r.mu.Lock()
	r.sent = append(r.sent, sent{channel: ch, title: title, body: body})
	r.mu.Unlock()
	r.done <- struct{}{}
	return r.err
}

type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (m *manualTimer) Stop() bool {
	if m.stopped || m.fired {
		return false
	}
	m.stopped = true
	return true
}

type manualClock struct {
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Stopper {
	t := &manualTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) fire(i int) {
	t := c.timers[i]
	if t.stopped || t.fired {
		return
	}
	t.fired = true
	t.fn()
}

func newTestService(t *testing.T, enabled bool, display bool) (*Service, *recordingSender, *manualClock) {
	t.Helper()
	sender := newRecordingSender()
	clock := &manualClock{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc, err := NewService(Config{
		Enabled:   enabled,
		Sender:    sender,
		AfterFunc: clock.AfterFunc,
		Display:   func() bool { return display },
	}, logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, sender, clock
}

func TestCheckPermission(t *testing.T) {
	ctx := context.Background()

	svc, _, _ := newTestService(t, false, true)
	if p, err := svc.CheckPermission(ctx); err != nil || p != countdown.PermissionDenied {
		t.Fatalf("expected denied when disabled, got %v %v", p, err)
	}

	svc, _, _ = newTestService(t, true, true)
	if p, err := svc.CheckPermission(ctx); err != nil || p != countdown.PermissionGranted {
		t.Fatalf("expected granted, got %v %v", p, err)
	}

	svc, _, _ = newTestService(t, true, false)
	if p, err := svc.CheckPermission(ctx); err != nil || p != countdown.PermissionProvisional {
		t.Fatalf("expected provisional without display, got %v %v", p, err)
	}

	svc.Close()
	if p, _ := svc.CheckPermission(ctx); p != countdown.PermissionDenied {
		t.Fatalf("expected denied after close, got %v", p)
	}
}

func TestScheduleDeliversAfterDelay(t *testing.T) {
	svc, sender, clock := newTestService(t, true, true)
	id, err := svc.Schedule(context.Background(), countdown.Notification{
		Title: "Timer finished",
		Body:  "tea is up",
		Delay: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if id == "" {
		t.Fatalf("expected notification id")
	}
	if len(clock.timers) != 1 || clock.timers[0].delay != 2*time.Second {
		t.Fatalf("expected one timer with 2s delay")
	}
	if svc.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", svc.Pending())
	}

	clock.fire(0)
	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(sender.sent))
	}
	got := sender.sent[0]
	if got.title != "Timer finished" || got.body != "tea is up" || got.channel.Name != "default" {
		t.Fatalf("unexpected delivery: %+v", got)
	}
	if svc.Pending() != 0 {
		t.Fatalf("expected nothing pending")
	}
}

func TestCancelPending(t *testing.T) {
	svc, sender, clock := newTestService(t, true, true)
	id, err := svc.Schedule(context.Background(), countdown.Notification{Title: "a", Body: "b", Delay: time.Second})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !svc.Cancel(id) {
		t.Fatalf("expected cancel to drop pending notification")
	}
	if svc.Cancel(id) {
		t.Fatalf("expected second cancel to be a no-op")
	}
	clock.fire(0)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 0 {
		t.Fatalf("expected no delivery after cancel")
	}
}

func TestScheduleAfterClose(t *testing.T) {
	svc, _, _ := newTestService(t, true, true)
	if _, err := svc.Schedule(context.Background(), countdown.Notification{}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	svc.Close()
	if svc.Pending() != 0 {
		t.Fatalf("expected pending dropped on close")
	}
	if _, err := svc.Schedule(context.Background(), countdown.Notification{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSendErrorIsAbsorbed(t *testing.T) {
	svc, sender, clock := newTestService(t, true, true)
	sender.err = errors.New("no notification daemon")
	if _, err := svc.Schedule(context.Background(), countdown.Notification{Title: "x"}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	clock.fire(0)
	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for delivery attempt")
	}
}
