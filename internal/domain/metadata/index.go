package metadata

import (
	"sort"
	"strings"
	"time"
)

// SlotLayout is the wall-clock key format of one session.
const SlotLayout = "2006-01-02 15:04"

// DefaultRank is assigned when a role's position cannot be resolved.
const DefaultRank = 999

type Credit struct {
	Artist string `json:"artist"`
	Role   string `json:"role"`
}

// Session is one performance listed by the metadata feed. Start carries
// the wall clock in the venue's time zone.
type Session struct {
	Start   time.Time `json:"start"`
	Musical string    `json:"musical"`
	City    string    `json:"city"`
	Theatre string    `json:"theatre"`
	Cast    []Credit  `json:"cast"`
}

func (s Session) Slot() string {
	return s.Start.Format(SlotLayout)
}

// Index is an immutable lookup view over a set of sessions. It is rebuilt
// as a whole on refresh and shared by concurrent readers.
type Index struct {
	refreshedAt time.Time
	sessions    []Session
	bySlot      map[string]int
	byMusical   map[string][]int
	roleOrder   map[string][]string
}

func NewIndex(sessions []Session, refreshedAt time.Time) *Index {
	ordered := make([]Session, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start.Before(ordered[j].Start)
	})

	ix := &Index{
		refreshedAt: refreshedAt,
		sessions:    make([]Session, 0, len(ordered)),
		bySlot:      make(map[string]int, len(ordered)),
		byMusical:   make(map[string][]int),
		roleOrder:   make(map[string][]string),
	}
	seenRoles := make(map[string]map[string]struct{})

	for _, session := range ordered {
		musical := strings.TrimSpace(session.Musical)
		if musical == "" || session.Start.IsZero() {
			continue
		}
		session.Musical = musical
		session.City = NormalizeCity(session.City)

		key := slotKey(session.Slot(), musical)
		if existing, ok := ix.bySlot[key]; ok {
			ix.sessions[existing] = session
			continue
		}

		pos := len(ix.sessions)
		ix.sessions = append(ix.sessions, session)
		ix.bySlot[key] = pos
		ix.byMusical[musical] = append(ix.byMusical[musical], pos)

		roles := seenRoles[musical]
		if roles == nil {
			roles = make(map[string]struct{})
			seenRoles[musical] = roles
		}
		for _, credit := range session.Cast {
			role := strings.TrimSpace(credit.Role)
			if role == "" {
				continue
			}
			if _, ok := roles[role]; ok {
				continue
			}
			roles[role] = struct{}{}
			ix.roleOrder[musical] = append(ix.roleOrder[musical], role)
		}
	}
	return ix
}

// EmptyIndex is the view used before the first load completes.
func EmptyIndex() *Index {
	return NewIndex(nil, time.Time{})
}

func (ix *Index) RefreshedAt() time.Time {
	return ix.refreshedAt
}

func (ix *Index) Len() int {
	return len(ix.sessions)
}

// Sessions returns a copy of all indexed sessions in start order.
func (ix *Index) Sessions() []Session {
	out := make([]Session, len(ix.sessions))
	copy(out, ix.sessions)
	return out
}

// Stale reports whether the index is older than ttl at now.
func (ix *Index) Stale(now time.Time, ttl time.Duration) bool {
	if ix.refreshedAt.IsZero() {
		return true
	}
	return now.Sub(ix.refreshedAt) >= ttl
}

// Exact finds the session of musical starting at the same wall-clock minute.
func (ix *Index) Exact(musical string, start time.Time) (Session, bool) {
	pos, ok := ix.bySlot[slotKey(start.Format(SlotLayout), strings.TrimSpace(musical))]
	if !ok {
		return Session{}, false
	}
	return ix.sessions[pos], true
}

// Nearest finds the session of musical closest to start within tolerance.
// An empty city matches any city.
func (ix *Index) Nearest(musical string, start time.Time, tolerance time.Duration, city string) (Session, bool) {
	city = NormalizeCity(city)
	best := -1
	var bestDelta time.Duration
	for _, pos := range ix.byMusical[strings.TrimSpace(musical)] {
		session := ix.sessions[pos]
		if city != "" && session.City != "" && session.City != city {
			continue
		}
		delta := wallClockDelta(session.Start, start)
		if delta > tolerance {
			continue
		}
		if best < 0 || delta < bestDelta {
			best = pos
			bestDelta = delta
		}
	}
	if best < 0 {
		return Session{}, false
	}
	return ix.sessions[best], true
}

// HasMusicalOn reports whether any session of musical falls on day's date.
func (ix *Index) HasMusicalOn(musical string, day time.Time) bool {
	date := day.Format(time.DateOnly)
	for _, pos := range ix.byMusical[strings.TrimSpace(musical)] {
		if ix.sessions[pos].Start.Format(time.DateOnly) == date {
			return true
		}
	}
	return false
}

// RoleSequence is the first-appearance order of roles for musical across
// all indexed sessions.
func (ix *Index) RoleSequence(musical string) []string {
	return ix.roleOrder[strings.TrimSpace(musical)]
}

// Merge returns a new index holding the sessions of both; other wins on
// duplicate slots.
func (ix *Index) Merge(other *Index) *Index {
	if other == nil || other.Len() == 0 {
		return ix
	}
	combined := make([]Session, 0, ix.Len()+other.Len())
	combined = append(combined, ix.sessions...)
	combined = append(combined, other.sessions...)
	return NewIndex(combined, ix.refreshedAt)
}

func slotKey(slot string, musical string) string {
	return slot + "|" + musical
}

// wallClockDelta compares two instants by their wall clocks so that a
// session stored without zone info still lines up with a zoned ticket time.
func wallClockDelta(a time.Time, b time.Time) time.Duration {
	aw := time.Date(a.Year(), a.Month(), a.Day(), a.Hour(), a.Minute(), 0, 0, time.UTC)
	bw := time.Date(b.Year(), b.Month(), b.Day(), b.Hour(), b.Minute(), 0, 0, time.UTC)
	delta := aw.Sub(bw)
	if delta < 0 {
		return -delta
	}
	return delta
}
