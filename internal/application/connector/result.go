package connector

import (
	"errors"

	"github.com/erp/connector/internal/domain/integration"
)

// Result accumulates the envelope of one invocation. Stages write to it in
// order; Fail is the only place failure statuses are assigned.
type Result struct {
	policy integration.StatusPolicy
	status int
	preset int
	resp   integration.EndpointResponse
	object map[string]any
	items  []any
	isList bool
}

func newResult(policy integration.StatusPolicy) *Result {
	return &Result{policy: policy, object: map[string]any{}}
}

// Status sets the envelope status.
func (r *Result) Status(code int) { r.status = code }

// Preset marks the status a later failure reports when it has no more specific
// mapping, such as a remote error after an irreversible remote write.
func (r *Result) Preset(code int) { r.preset = code }

// Endpoint records what the remote endpoint answered.
func (r *Result) Endpoint(statusCode int, message string) {
	r.resp.EndpointStatusCode = statusCode
	r.resp.EndpointStatusMessage = message
}

// Set stores a key of the object payload.
func (r *Result) Set(key string, value any) {
	if r.isList {
		r.isList, r.items = false, nil
	}
	r.object[key] = value
}

// Items replaces the payload with an array of records.
func (r *Result) Items(items []any) {
	r.isList = true
	r.items = items
}

// Fail maps err onto the envelope.
func (r *Result) Fail(err error) {
	if err == nil {
		return
	}
	if r.isList {
		r.isList, r.items = false, nil
	}
	r.object["error"] = err.Error()

	var (
		validationErr *integration.ValidationError
		statusErr     *integration.RemoteStatusError
		conflictErr   *integration.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		r.status = integration.StatusBadRequest
	case errors.As(err, &statusErr):
		r.Endpoint(statusErr.StatusCode, statusErr.Message)
		if r.preset != 0 {
			r.status = r.preset
		} else {
			r.status = r.policy.Map(statusErr.StatusCode)
		}
	case errors.As(err, &conflictErr):
		r.status = integration.StatusConflict
		r.object["matches"] = conflictErr.Records
	case r.preset != 0:
		r.status = r.preset
	default:
		r.status = integration.StatusInternalError
	}
}

// Envelope returns the accumulated envelope. A missing status is reported as 500.
func (r *Result) Envelope() integration.Envelope {
	env := integration.Envelope{NcStatusCode: r.status, Response: r.resp}
	if env.NcStatusCode == 0 {
		env.NcStatusCode = integration.StatusInternalError
	}
	if r.isList {
		items := r.items
		if items == nil {
			items = []any{}
		}
		env.Payload = items
	} else {
		env.Payload = r.object
	}
	return env
}
