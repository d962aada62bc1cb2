package countdown

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxMinutes keeps m*60+59 within int.
const maxMinutes = (math.MaxInt - 59) / 60

// FormatTime renders seconds as M:SS. Negative input gets a leading minus.
func FormatTime(seconds int) string {
	abs := uint64(seconds)
	if seconds < 0 {
		// negate in uint64 so math.MinInt keeps its magnitude
		abs = -abs
	}
	minutes := abs / 60
	secs := abs % 60
	if seconds < 0 {
		return fmt.Sprintf("-%d:%02d", minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// ParseSeconds accepts "90", "1:30" or a Go duration such as "1m30s".
func ParseSeconds(input string) (int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, fmt.Errorf("duration is empty")
	}
	if n, err := strconv.Atoi(input); err == nil {
		if n < 0 {
			return 0, ErrNegativeDuration
		}
		return n, nil
	}
	if mins, secs, ok := strings.Cut(input, ":"); ok {
		m, err := strconv.Atoi(mins)
		if err != nil || m < 0 || m > maxMinutes {
			return 0, fmt.Errorf("invalid minutes in %q", input)
		}
		s, err := strconv.Atoi(secs)
		if err != nil || s < 0 || s >= 60 {
			return 0, fmt.Errorf("invalid seconds in %q", input)
		}
		return m*60 + s, nil
	}
	d, err := time.ParseDuration(input)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", input)
	}
	if d < 0 {
		return 0, ErrNegativeDuration
	}
	return int(d / time.Second), nil
}
