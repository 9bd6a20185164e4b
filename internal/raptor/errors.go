package raptor

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoute means no itinerary exists within the round and time
	// limits.
	ErrNoRoute = errors.New("no route found")
	// ErrInvalidTime means a time constraint could not be parsed.
	ErrInvalidTime = errors.New("invalid time")
	// ErrTimeout means the query deadline expired mid-search.
	ErrTimeout = errors.New("query deadline exceeded")
	// ErrPoolExhausted is returned by non-blocking queries when every
	// scratch slot is in use.
	ErrPoolExhausted = errors.New("scratch pool exhausted")
)

// EndpointError reports an endpoint that resolved to no usable stop: an
// unknown id, or a coordinate with nothing boardable in walking range.
type EndpointError struct {
	End      string // "from" or "to"
	Location Location
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("could not resolve %s endpoint %s to any stop", e.End, e.Location)
}
