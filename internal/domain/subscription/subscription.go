package subscription

import (
	"fmt"
	"strings"
	"time"
)

// Option holds the per-user settings that apply across all targets.
type Option struct {
	NotificationLevel int
	Muted             bool
	SilentHours       string
	AllowBroadcast    bool
}

type Subscription struct {
	UserID  string
	Targets []Target
	Option  Option
}

func (s Subscription) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrSubscriberRequired
	}
	if err := ValidateLevel(s.Option.NotificationLevel); err != nil {
		return err
	}
	if _, err := ParseSilentHours(s.Option.SilentHours); err != nil {
		return err
	}
	for _, target := range s.Targets {
		if err := target.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Suppressed reports whether nothing should reach the user at now.
// An unparsable silent-hours value is treated as no window.
func (s Subscription) Suppressed(now time.Time) bool {
	if s.Option.Muted {
		return true
	}
	window, err := ParseSilentHours(s.Option.SilentHours)
	if err != nil {
		return false
	}
	return window.Contains(now)
}

func ValidateLevel(level int) error {
	if level < 0 || level > 5 {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	return nil
}

// EffectiveLevel is the larger of the global and target level.
func EffectiveLevel(global int, target *int) int {
	if target != nil && *target > global {
		return *target
	}
	return global
}
