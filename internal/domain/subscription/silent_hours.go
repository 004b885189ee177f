package subscription

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SilentWindow is a daily HH:MM-HH:MM interval in minutes since midnight.
// It may wrap past midnight. Equal bounds disable the window.
type SilentWindow struct {
	start   int
	end     int
	enabled bool
}

func ParseSilentHours(raw string) (SilentWindow, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SilentWindow{}, nil
	}

	startRaw, endRaw, ok := strings.Cut(trimmed, "-")
	if !ok {
		return SilentWindow{}, fmt.Errorf("%w: %q", ErrInvalidSilentHours, raw)
	}
	start, err := parseClock(startRaw)
	if err != nil {
		return SilentWindow{}, fmt.Errorf("%w: %q", ErrInvalidSilentHours, raw)
	}
	end, err := parseClock(endRaw)
	if err != nil {
		return SilentWindow{}, fmt.Errorf("%w: %q", ErrInvalidSilentHours, raw)
	}

	return SilentWindow{start: start, end: end, enabled: start != end}, nil
}

func (w SilentWindow) Enabled() bool {
	return w.enabled
}

// Contains evaluates the wall clock of t in t's own location.
func (w SilentWindow) Contains(t time.Time) bool {
	if !w.enabled {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	if w.start < w.end {
		return minute >= w.start && minute < w.end
	}
	return minute >= w.start || minute < w.end
}

func (w SilentWindow) String() string {
	if !w.enabled {
		return ""
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.start/60, w.start%60, w.end/60, w.end%60)
}

func parseClock(raw string) (int, error) {
	hourRaw, minuteRaw, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("missing colon in %q", raw)
	}
	hour, err := strconv.Atoi(hourRaw)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(minuteRaw)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour*60 + minute, nil
}
