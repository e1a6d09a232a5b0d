package integration

import (
	"net/http"
	"slices"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Status codes used in Envelope.NcStatusCode.
const (
	StatusOK                 = http.StatusOK
	StatusCreated            = http.StatusCreated
	StatusNoContent          = http.StatusNoContent
	StatusPartialContent     = http.StatusPartialContent
	StatusBadRequest         = http.StatusBadRequest
	StatusConflict           = http.StatusConflict
	StatusTooManyRequests    = http.StatusTooManyRequests
	StatusInternalError      = http.StatusInternalServerError
	statusServerErrorMinimum = 500
)

// Envelope is the normalized answer every connector function hands to its callback.
type Envelope struct {
	NcStatusCode int              `json:"ncStatusCode"`
	Response     EndpointResponse `json:"response"`
	// Payload is either an object (map[string]any) or, for fan-out results, an array.
	Payload any `json:"payload"`
}

// EndpointResponse echoes what the remote endpoint answered, when it answered.
type EndpointResponse struct {
	EndpointStatusCode    int    `json:"endpointStatusCode,omitempty"`
	EndpointStatusMessage string `json:"endpointStatusMessage,omitempty"`
}

// Object returns the payload as an object, or nil if it is an array.
func (e *Envelope) Object() map[string]any {
	m, _ := e.Payload.(map[string]any)
	return m
}

// Items returns the payload as an array, or nil if it is an object.
func (e *Envelope) Items() []any {
	items, _ := e.Payload.([]any)
	return items
}

// ---------------------------------------------------------------------------
// StatusPolicy
// ---------------------------------------------------------------------------

// StatusPolicy maps a remote non-2xx status onto an envelope status.
// Codes on the pass-through list are echoed verbatim; otherwise 429 stays 429,
// 5xx collapses to 500 and every other code becomes 400.
type StatusPolicy struct {
	PassThrough []int
}

// DefaultStatusPolicy has no pass-through codes.
var DefaultStatusPolicy = StatusPolicy{}

// NewStatusPolicy creates a policy echoing the given codes.
func NewStatusPolicy(codes ...int) StatusPolicy {
	return StatusPolicy{PassThrough: codes}
}

// Map returns the envelope status for a remote status.
func (p StatusPolicy) Map(remoteStatus int) int {
	switch {
	case slices.Contains(p.PassThrough, remoteStatus):
		return remoteStatus
	case remoteStatus == http.StatusTooManyRequests:
		return StatusTooManyRequests
	case remoteStatus >= statusServerErrorMinimum:
		return StatusInternalError
	default:
		return StatusBadRequest
	}
}
