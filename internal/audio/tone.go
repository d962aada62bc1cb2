package audio

import (
	"math"
	"time"

	"github.com/faiface/beep"
)

const (
	toneFreq = 880.0
	toneAmp  = 0.6
)

// one second of beep-beep followed by silence
var tonePattern = []struct {
	on  bool
	dur time.Duration
}{
	{true, 150 * time.Millisecond},
	{false, 100 * time.Millisecond},
	{true, 150 * time.Millisecond},
	{false, 600 * time.Millisecond},
}

func alarmTone(sr beep.SampleRate) [][2]float64 {
	total := 0
	for _, seg := range tonePattern {
		total += sr.N(seg.dur)
	}
	samples := make([][2]float64, 0, total)
	i := 0
	for _, seg := range tonePattern {
		n := sr.N(seg.dur)
		for j := 0; j < n; j++ {
			v := 0.0
			if seg.on {
				v = toneAmp * math.Sin(2*math.Pi*toneFreq*float64(i)/float64(sr))
			}
			samples = append(samples, [2]float64{v, v})
			i++
		}
	}
	return samples
}

type sliceStreamer struct {
	samples [][2]float64
	pos     int
}

func (s *sliceStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := copy(samples, s.samples[s.pos:])
	s.pos += n
	return n, true
}

func (s *sliceStreamer) Err() error {
	return nil
}
