// Package reconcile decides whether a locally known document already exists in
// the remote system by comparing business references.
package reconcile

import (
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/reference"
)

// Status is the outcome of a reconciliation.
type Status int

const (
	NotFound Status = iota
	Found
	Conflict
)

func (s Status) String() string {
	switch s {
	case NotFound:
		return "not_found"
	case Found:
		return "found"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StatusCode maps the outcome onto an envelope status.
func (s Status) StatusCode() int {
	switch s {
	case Found:
		return integration.StatusOK
	case Conflict:
		return integration.StatusConflict
	default:
		return integration.StatusNoContent
	}
}

// Result describes the match set.
type Result struct {
	Status Status
	// Match, RemoteID and Reference are set when Status is Found.
	Match     map[string]any
	RemoteID  any
	Reference string
	// Matches holds every matching record.
	Matches []map[string]any
}

// StatusCode is shorthand for r.Status.StatusCode().
func (r *Result) StatusCode() int { return r.Status.StatusCode() }

// Err returns a *integration.ConflictError for conflicting results and nil otherwise.
func (r *Result) Err(subject string) error {
	if r.Status != Conflict {
		return nil
	}
	records := make([]any, len(r.Matches))
	for i, m := range r.Matches {
		records[i] = m
	}
	return &integration.ConflictError{Subject: subject, Records: records}
}

// Records checks that body is an array of objects.
func Records(body any) ([]map[string]any, error) {
	arr, ok := body.([]any)
	if !ok {
		return nil, integration.NewSchemaError(fmt.Sprintf("search response is %T, not an array", body), body)
	}
	records := make([]map[string]any, len(arr))
	for i, item := range arr {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, integration.NewSchemaError(fmt.Sprintf("search response element %d is %T, not an object", i, item), body)
		}
		records[i] = rec
	}
	return records, nil
}

// Reconcile keeps the candidates whose key equals the key of local and classifies them.
// candidates is the raw response body; anything but an array of objects is a SchemaError.
func Reconcile(candidates any, local map[string]any, ex *reference.Extractor) (*Result, error) {
	records, err := Records(candidates)
	if err != nil {
		return nil, err
	}
	localKey, err := ex.Key(local)
	if err != nil {
		return nil, err
	}
	var matches []map[string]any
	for _, rec := range records {
		key, err := ex.Key(rec)
		if err != nil {
			return nil, err
		}
		if key == localKey {
			matches = append(matches, rec)
		}
	}
	return Classify(matches, ex)
}

// Classify maps an already filtered match set onto a Result.
func Classify(matches []map[string]any, ex *reference.Extractor) (*Result, error) {
	switch len(matches) {
	case 0:
		return &Result{Status: NotFound}, nil
	case 1:
		match := matches[0]
		id := match["Id"]
		if id == nil || id == "" {
			return nil, integration.NewSchemaError("matching record has no Id", match)
		}
		ref, err := ex.Key(match)
		if err != nil {
			return nil, err
		}
		return &Result{
			Status:    Found,
			Match:     match,
			RemoteID:  id,
			Reference: ref,
			Matches:   matches,
		}, nil
	default:
		return &Result{Status: Conflict, Matches: matches}, nil
	}
}
