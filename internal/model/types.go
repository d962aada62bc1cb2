// Package model defines shared data structures.
package model

import "time"

// TimerSpec describes one timer on the screen.
type TimerSpec struct {
	Label   string
	Seconds int
}

// Config defines the resolved settings for the timer screen.
type Config struct {
	Timers []TimerSpec

	Sound        string
	Volume       float64
	Mute         bool
	AlarmTimeout time.Duration

	Notify       bool
	NotifyTitle  string
	NotifyBody   string
	NotifyDelay  time.Duration
	NotifySound  bool
	RecordAlarms bool
}

// AlarmRecord captures one timer reaching zero.
type AlarmRecord struct {
	ID             int64
	Label          string
	InitialSeconds int
	FiredAt        time.Time
	Sounded        bool
	Notified       bool
}

// HistoryConfig defines filters for the alarm history.
type HistoryConfig struct {
	Label string
	Since *time.Time
	Last  int
}

// LabelSummary aggregates alarms per timer label.
type LabelSummary struct {
	Label     string
	Alarms    int
	Sounded   int
	Notified  int
	LastFired time.Time
}
