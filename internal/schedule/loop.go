// Package schedule delivers delayed and repeating callbacks onto a single
// owner goroutine.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/verte-zerg/tuimer/internal/countdown"
)

const defaultBuffer = 16

// Loop schedules callbacks and posts them to C when due. The owner reads C
// and runs each callback; callbacks never run on the timer goroutines.
type Loop struct {
	mu      sync.Mutex
	next    countdown.Handle
	timers  map[countdown.Handle]chan struct{}
	out     chan func()
	done    chan struct{}
	closing sync.Once
}

var _ countdown.Scheduler = (*Loop)(nil)

// New creates a loop. buffer sizes the callback channel.
func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Loop{
		timers: map[countdown.Handle]chan struct{}{},
		out:    make(chan func(), buffer),
		done:   make(chan struct{}),
	}
}

// C returns the channel of due callbacks.
func (l *Loop) C() <-chan func() {
	return l.out
}

// Done is closed once the loop is closed.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// ScheduleRepeating posts fn every interval until cancelled.
func (l *Loop) ScheduleRepeating(fn func(), interval time.Duration) countdown.Handle {
	h, stop := l.register()
	if h == 0 {
		return 0
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !l.post(fn, stop) {
					return
				}
			case <-stop:
				return
			case <-l.done:
				return
			}
		}
	}()
	return h
}

// ScheduleOnce posts fn after delay unless cancelled first.
func (l *Loop) ScheduleOnce(fn func(), delay time.Duration) countdown.Handle {
	h, stop := l.register()
	if h == 0 {
		return 0
	}
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			l.post(fn, stop)
			l.forget(h)
		case <-stop:
		case <-l.done:
		}
	}()
	return h
}

// Cancel stops future posts for h. A callback already posted to C is not
// recalled.
func (l *Loop) Cancel(h countdown.Handle) {
	l.mu.Lock()
	stop, ok := l.timers[h]
	delete(l.timers, h)
	l.mu.Unlock()
	if ok {
		close(stop)
	}
}

// Pending returns the number of live handles.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// Run executes posted callbacks on the calling goroutine until ctx is done
// or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-l.out:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		}
	}
}

// Close cancels every handle. Scheduling after Close returns the zero Handle.
func (l *Loop) Close() {
	l.closing.Do(func() {
		l.mu.Lock()
		l.timers = map[countdown.Handle]chan struct{}{}
		close(l.done)
		l.mu.Unlock()
	})
}

func (l *Loop) register() (countdown.Handle, chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		return 0, nil
	default:
	}
	l.next++
	stop := make(chan struct{})
	l.timers[l.next] = stop
	return l.next, stop
}

func (l *Loop) forget(h countdown.Handle) {
	l.mu.Lock()
	delete(l.timers, h)
	l.mu.Unlock()
}

func (l *Loop) post(fn func(), stop <-chan struct{}) bool {
	select {
	case l.out <- fn:
		return true
	case <-stop:
		return false
	case <-l.done:
		return false
	}
}
