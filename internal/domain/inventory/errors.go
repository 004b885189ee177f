package inventory

import "errors"

var (
	ErrMalformedTicket = errors.New("malformed ticket payload")
	ErrEventIDRequired = errors.New("event id is required")
)
