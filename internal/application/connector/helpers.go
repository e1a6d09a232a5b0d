package connector

import (
	"errors"
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
)

func isThrottled(err error) bool {
	return errors.Is(err, integration.ErrPlatformRateLimited)
}

// asObject asserts a remote response body is an object.
func asObject(resp *integration.RemoteResponse, what string) (map[string]any, error) {
	m, ok := resp.Body.(map[string]any)
	if !ok {
		return nil, integration.NewSchemaError(fmt.Sprintf("%s response is %T, not an object", what, resp.Body), resp.Body)
	}
	return m, nil
}

// remoteID returns the Id of a record returned by a write.
func remoteID(record map[string]any, what string) (any, error) {
	id := record["Id"]
	if id == nil || id == "" {
		return nil, integration.NewSchemaError(what+" response has no Id", record)
	}
	return id, nil
}

// isNonEmptyObject reports whether v is an object with at least one key.
func isNonEmptyObject(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) > 0
}

// clone deep-copies decoded JSON so handlers never modify the caller's payload.
func clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = clone(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = clone(e)
		}
		return out
	default:
		return v
	}
}
