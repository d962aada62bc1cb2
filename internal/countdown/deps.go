package countdown

import (
	"context"
	"time"
)

// Handle identifies a scheduled callback. The zero Handle means "none".
type Handle uint64

// Scheduler runs callbacks later. Implementations must deliver callbacks on
// the goroutine that owns the controllers using them.
type Scheduler interface {
	ScheduleRepeating(fn func(), interval time.Duration) Handle
	ScheduleOnce(fn func(), delay time.Duration) Handle
	Cancel(h Handle)
}

// AudioPlayer loads alarm sounds.
type AudioPlayer interface {
	Load(ctx context.Context, asset string) (AudioSession, error)
}

// AudioSession is one loaded sound.
type AudioSession interface {
	SetVolume(v float64) error
	SetLooping(loop bool) error
	Play() error
	Stop() error
	Unload() error
}

// Permission is the notification permission state.
type Permission int

const (
	PermissionDenied Permission = iota
	PermissionGranted
	PermissionProvisional
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionProvisional:
		return "provisional"
	default:
		return "denied"
	}
}

// Allowed reports whether notifications may be scheduled.
func (p Permission) Allowed() bool {
	return p == PermissionGranted || p == PermissionProvisional
}

// Notification is a local notification request.
type Notification struct {
	Title string
	Body  string
	Delay time.Duration
}

// Notifier schedules local notifications.
type Notifier interface {
	CheckPermission(ctx context.Context) (Permission, error)
	Schedule(ctx context.Context, n Notification) (string, error)
}
