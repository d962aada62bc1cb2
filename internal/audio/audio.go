// Package audio plays alarm sounds through the system speaker.
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/verte-zerg/tuimer/internal/countdown"
)

var (
	ErrNotInitialized = errors.New("audio output is not initialized")
	ErrUnloaded       = errors.New("sound is unloaded")
)

// Mode is the process-wide output configuration.
type Mode struct {
	SampleRate beep.SampleRate
	Buffer     time.Duration
}

// DefaultMode is a 44.1kHz output with a 100ms buffer.
var DefaultMode = Mode{SampleRate: 44100, Buffer: 100 * time.Millisecond}

var (
	initOnce sync.Once
	initErr  error
	mode     = DefaultMode
	ready    bool
)

// Init opens the speaker. Only the first call has an effect; later calls
// return the first result.
func Init(m Mode) error {
	initOnce.Do(func() {
		if m.SampleRate <= 0 {
			m.SampleRate = DefaultMode.SampleRate
		}
		if m.Buffer <= 0 {
			m.Buffer = DefaultMode.Buffer
		}
		if err := speaker.Init(m.SampleRate, m.SampleRate.N(m.Buffer)); err != nil {
			initErr = fmt.Errorf("failed to init speaker: %w", err)
			return
		}
		mode = m
		ready = true
	})
	return initErr
}

// Player loads alarm sounds. An empty asset selects the built-in tone.
type Player struct{}

var _ countdown.AudioPlayer = Player{}

// Load decodes asset into memory at the speaker sample rate.
func (Player) Load(ctx context.Context, asset string) (countdown.AudioSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format := beep.Format{SampleRate: mode.SampleRate, NumChannels: 2, Precision: 2}
	buffer := beep.NewBuffer(format)
	if asset == "" {
		buffer.Append(&sliceStreamer{samples: alarmTone(mode.SampleRate)})
		return &Session{buffer: buffer, volume: 1}, nil
	}

	f, err := os.Open(asset)
	if err != nil {
		return nil, fmt.Errorf("failed to open sound: %w", err)
	}
	streamer, srcFormat, err := wav.Decode(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to decode sound: %w", err)
	}
	defer streamer.Close()
	var src beep.Streamer = streamer
	if srcFormat.SampleRate != format.SampleRate {
		src = beep.Resample(4, srcFormat.SampleRate, format.SampleRate, streamer)
	}
	buffer.Append(src)
	if buffer.Len() == 0 {
		return nil, fmt.Errorf("failed to decode sound: %s is empty", asset)
	}
	return &Session{buffer: buffer, volume: 1}, nil
}

// Session is one loaded sound. Its methods must be called from one goroutine.
type Session struct {
	buffer  *beep.Buffer
	volume  float64
	looping bool
	ctrl    *beep.Ctrl
	gain    *effects.Volume
}

var _ countdown.AudioSession = (*Session)(nil)

// SetVolume sets the volume in the range 0..1.
func (s *Session) SetVolume(v float64) error {
	if s.buffer == nil {
		return ErrUnloaded
	}
	s.volume = v
	if s.gain != nil {
		level, silent := volumeLevel(v)
		speaker.Lock()
		s.gain.Volume = level
		s.gain.Silent = silent
		speaker.Unlock()
	}
	return nil
}

// SetLooping controls whether the next Play repeats forever.
func (s *Session) SetLooping(loop bool) error {
	if s.buffer == nil {
		return ErrUnloaded
	}
	s.looping = loop
	return nil
}

// Play starts playback from the beginning.
func (s *Session) Play() error {
	if s.buffer == nil {
		return ErrUnloaded
	}
	if !ready {
		return ErrNotInitialized
	}
	s.halt()
	var src beep.Streamer = s.buffer.Streamer(0, s.buffer.Len())
	if s.looping {
		src = beep.Loop(-1, s.buffer.Streamer(0, s.buffer.Len()))
	}
	level, silent := volumeLevel(s.volume)
	s.gain = &effects.Volume{Streamer: src, Base: 2, Volume: level, Silent: silent}
	s.ctrl = &beep.Ctrl{Streamer: s.gain}
	speaker.Play(s.ctrl)
	return nil
}

// Stop halts playback. The sound stays loaded.
func (s *Session) Stop() error {
	if s.buffer == nil {
		return ErrUnloaded
	}
	s.halt()
	return nil
}

// Unload halts playback and releases the samples. Unloading twice is a no-op.
func (s *Session) Unload() error {
	s.halt()
	s.buffer = nil
	return nil
}

func (s *Session) halt() {
	if s.ctrl == nil {
		return
	}
	speaker.Lock()
	s.ctrl.Streamer = nil
	s.ctrl.Paused = true
	speaker.Unlock()
	s.ctrl = nil
	s.gain = nil
}

// volumeLevel maps a 0..1 linear volume onto a base-2 gain.
func volumeLevel(v float64) (float64, bool) {
	if v <= 0 || math.IsNaN(v) {
		return 0, true
	}
	if v > 1 {
		v = 1
	}
	return math.Log2(v), false
}
