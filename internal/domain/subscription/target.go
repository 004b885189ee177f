package subscription

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrUnknownTargetKind   = errors.New("unknown subscription target kind")
	ErrInvalidSilentHours  = errors.New("invalid silent hours window")
	ErrInvalidLevel        = errors.New("notification level out of range")
	ErrSubscriberRequired  = errors.New("subscriber user id is required")
	ErrTargetValueRequired = errors.New("subscription target requires an id or name")
)

// TargetKind is the closed set of things a subscriber can follow.
type TargetKind int

const (
	KindPlay TargetKind = iota + 1
	KindActor
	KindEvent
	KindKeyword
)

func (k TargetKind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindActor:
		return "actor"
	case KindEvent:
		return "event"
	case KindKeyword:
		return "keyword"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func ParseTargetKind(raw string) (TargetKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "play":
		return KindPlay, nil
	case "actor":
		return KindActor, nil
	case "event":
		return KindEvent, nil
	case "keyword":
		return KindKeyword, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTargetKind, raw)
	}
}

// Target is one followed play, actor, event or keyword. Level is nil when
// the target inherits the subscriber's global level.
type Target struct {
	Kind          TargetKind
	TargetID      string
	Name          string
	CityFilter    string
	Level         *int
	IncludeEvents []string
	ExcludeEvents []string
}

func (t Target) Validate() error {
	if _, err := ParseTargetKind(t.Kind.String()); err != nil {
		return err
	}
	if strings.TrimSpace(t.TargetID) == "" && strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: %s target", ErrTargetValueRequired, t.Kind)
	}
	if t.Level != nil {
		if err := ValidateLevel(*t.Level); err != nil {
			return err
		}
	}
	return nil
}

// Candidate is the view of a change that targets are matched against.
type Candidate struct {
	EventID   string
	PlayID    string
	City      string
	Title     string
	CastNames []string
}

// Matches reports whether the target follows the candidate change.
func (t Target) Matches(c Candidate) bool {
	switch t.Kind {
	case KindEvent:
		return idEquals(t.TargetID, c.EventID) && t.cityAllows(c.City)
	case KindPlay:
		return idEquals(t.TargetID, c.PlayID) && t.cityAllows(c.City)
	case KindActor:
		name := strings.TrimSpace(t.Name)
		if name == "" || !slices.Contains(c.CastNames, name) {
			return false
		}
		if len(t.IncludeEvents) > 0 && !slices.Contains(t.IncludeEvents, c.EventID) {
			return false
		}
		return !slices.Contains(t.ExcludeEvents, c.EventID)
	case KindKeyword:
		keyword := strings.ToLower(strings.TrimSpace(t.Name))
		return keyword != "" && strings.Contains(strings.ToLower(c.Title), keyword)
	default:
		return false
	}
}

func (t Target) cityAllows(city string) bool {
	filter := strings.TrimSpace(t.CityFilter)
	if filter == "" {
		return true
	}
	return strings.EqualFold(filter, strings.TrimSpace(city))
}

func idEquals(targetID string, candidate string) bool {
	targetID = strings.TrimSpace(targetID)
	return targetID != "" && targetID == strings.TrimSpace(candidate)
}
