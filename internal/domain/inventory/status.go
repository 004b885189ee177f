package inventory

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusPending Status = "pending"
	StatusSoldOut Status = "sold_out"
	StatusExpired Status = "expired"
)

var knownStatuses = map[Status]struct{}{
	StatusActive:  {},
	StatusPending: {},
	StatusSoldOut: {},
	StatusExpired: {},
}

// NormalizeStatus maps upstream spellings onto the four ticket states.
// An empty status is treated as active.
func NormalizeStatus(raw string) (Status, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	switch trimmed {
	case "":
		return StatusActive, nil
	case "soldout", "sold-out", "sold out":
		return StatusSoldOut, nil
	}

	status := Status(trimmed)
	if _, ok := knownStatuses[status]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrMalformedTicket, raw)
	}
	return status, nil
}

func (s Status) IsPending() bool {
	return s == StatusPending
}
