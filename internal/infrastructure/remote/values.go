package remote

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(string(data))
	return nil
}

// flexFloat accepts a JSON number or a numeric string; blanks decode as 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var raw flexString
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	if raw == "" {
		*f = 0
		return nil
	}
	value, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(value)
	return nil
}

type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var value flexFloat
	if err := value.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = flexInt(int(value))
	return nil
}

var sessionLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04",
}

// parseSessionTime reads a wall clock in loc. Blank input yields nil.
func parseSessionTime(raw string, loc *time.Location) (*time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, true
	}
	for _, layout := range sessionLayouts {
		parsed, err := time.ParseInLocation(layout, trimmed, loc)
		if err == nil {
			return &parsed, true
		}
	}
	return nil, false
}
