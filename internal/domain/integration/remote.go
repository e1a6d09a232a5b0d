package integration

import (
	"context"
	"net/url"
)

// RemoteResponse is a decoded remote answer. Body holds the JSON value with numbers kept as json.Number.
type RemoteResponse struct {
	StatusCode int
	Status     string
	Body       any
}

// RemoteClient is the port for the bearer-authenticated remote REST API.
// Non-2xx answers are returned as *RemoteStatusError.
type RemoteClient interface {
	Get(ctx context.Context, rawURL string, query url.Values) (*RemoteResponse, error)
	Post(ctx context.Context, rawURL string, body any) (*RemoteResponse, error)
	Put(ctx context.Context, rawURL string, body any) (*RemoteResponse, error)
}

// RemoteClientFactory hands out clients bound to one access token.
type RemoteClientFactory interface {
	ForToken(accessToken string) RemoteClient
}
