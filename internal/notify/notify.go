// Package notify schedules desktop notifications for finished timers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/panjf2000/ants"
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/tuimer/internal/countdown"
)

var ErrClosed = errors.New("notification service is closed")

// Importance mirrors the urgency levels desktop notifiers understand.
type Importance int

const (
	ImportanceDefault Importance = iota
	ImportanceHigh
	ImportanceMax
)

// Channel is the default presentation for every notification.
type Channel struct {
	Name       string
	Importance Importance
	Sound      bool
	Icon       string
}

// DefaultChannel plays a sound at maximum importance.
var DefaultChannel = Channel{Name: "default", Importance: ImportanceMax, Sound: true}

// Sender delivers one notification immediately.
type Sender interface {
	Send(ch Channel, title, body string) error
}

// Stopper cancels a pending delivery.
type Stopper interface {
	Stop() bool
}

// Config configures a Service.
type Config struct {
	Enabled bool
	Channel Channel
	Workers int

	// Sender and AfterFunc default to beeep and time.AfterFunc.
	Sender    Sender
	AfterFunc func(d time.Duration, f func()) Stopper
	// Display reports whether a graphical session is present; without one
	// permission is provisional.
	Display func() bool
}

// Service schedules notifications. It is safe for concurrent use.
type Service struct {
	enabled   bool
	channel   Channel
	sender    Sender
	afterFunc func(time.Duration, func()) Stopper
	display   func() bool
	pool      *ants.Pool
	log       *logrus.Entry

	mu      sync.Mutex
	seq     int
	pending map[string]Stopper
	closed  bool
	wg      sync.WaitGroup
}

var _ countdown.Notifier = (*Service)(nil)

// NewService configures the notification channel once for the process.
func NewService(cfg Config, logger *logrus.Entry) (*Service, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Channel.Name == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Sender == nil {
		cfg.Sender = beeepSender{}
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }
	}
	if cfg.Display == nil {
		cfg.Display = hasDisplay
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification pool: %w", err)
	}
	return &Service{
		enabled:   cfg.Enabled,
		channel:   cfg.Channel,
		sender:    cfg.Sender,
		afterFunc: cfg.AfterFunc,
		display:   cfg.Display,
		pool:      pool,
		log:       logger.WithField("channel", cfg.Channel.Name),
		pending:   map[string]Stopper{},
	}, nil
}

// CheckPermission reports whether notifications may be shown.
func (s *Service) CheckPermission(ctx context.Context) (countdown.Permission, error) {
	if err := ctx.Err(); err != nil {
		return countdown.PermissionDenied, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || !s.enabled {
		return countdown.PermissionDenied, nil
	}
	if !s.display() {
		return countdown.PermissionProvisional, nil
	}
	return countdown.PermissionGranted, nil
}

// Schedule delivers n after n.Delay and returns its identifier.
func (s *Service) Schedule(ctx context.Context, n countdown.Notification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	s.seq++
	id := fmt.Sprintf("alarm-%d", s.seq)
	s.wg.Add(1)
	s.pending[id] = s.afterFunc(n.Delay, func() {
		defer s.wg.Done()
		if !s.take(id) {
			return
		}
		s.wg.Add(1)
		if err := s.pool.Submit(func() {
			defer s.wg.Done()
			s.deliver(id, n)
		}); err != nil {
			s.wg.Done()
			s.log.WithError(err).Warn("failed to submit notification")
		}
	})
	return id, nil
}

// Cancel drops a pending notification. It reports whether one was dropped.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	stopper, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok && stopper.Stop() {
		s.wg.Done()
		return true
	}
	return false
}

// Pending returns the number of notifications not yet delivered.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels pending notifications, waits for in-flight deliveries and
// releases the worker pool.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.pending
	s.pending = map[string]Stopper{}
	s.mu.Unlock()

	for _, stopper := range pending {
		if stopper.Stop() {
			s.wg.Done()
		}
	}
	s.wg.Wait()
	s.pool.Release()
}

func (s *Service) take(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

func (s *Service) deliver(id string, n countdown.Notification) {
	if err := s.sender.Send(s.channel, n.Title, n.Body); err != nil {
		s.log.WithError(err).WithField("notification", id).Warn("failed to send notification")
		return
	}
	s.log.WithField("notification", id).Debug("notification sent")
}

type beeepSender struct{}

func (beeepSender) Send(ch Channel, title, body string) error {
	if ch.Sound && ch.Importance >= ImportanceHigh {
		return beeep.Alert(title, body, ch.Icon)
	}
	return beeep.Notify(title, body, ch.Icon)
}

func hasDisplay() bool {
	if runtime.GOOS != "linux" {
		return true
	}
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}
