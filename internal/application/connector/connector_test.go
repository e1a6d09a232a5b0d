package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/remote"
)

// reply is a canned remote answer.
type reply struct {
	status int
	body   string
}

func ok(body string) reply { return reply{status: http.StatusOK, body: body} }

// recorded is one request the fake platform received.
type recorded struct {
	method string
	path   string
	query  map[string][]string
	body   any
	auth   string
}

// platform is a fake remote platform routing "METHOD path" to replies. A route
// may also carry the sorted query ("METHOD path?a=1&b=2"), which wins.
type platform struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	routes   map[string]reply
	requests []recorded
}

func newPlatform(t *testing.T, routes map[string]reply) *platform {
	t.Helper()
	p := &platform{t: t, routes: routes}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.server.Close)
	return p
}

func (p *platform) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body any
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		_ = dec.Decode(&body)
	}

	key := r.Method + " " + r.URL.Path
	p.mu.Lock()
	p.requests = append(p.requests, recorded{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.Query(),
		body:   body,
		auth:   r.Header.Get("Authorization"),
	})
	rep, found := p.routes[key+"?"+r.URL.Query().Encode()]
	if !found {
		rep, found = p.routes[key]
	}
	p.mu.Unlock()

	if !found {
		http.Error(w, `{"Message":"no route `+key+`"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_, _ = io.WriteString(w, rep.body)
}

// received returns the requests made to path, in arrival order.
func (p *platform) received(method, path string) []recorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recorded
	for _, r := range p.requests {
		if r.method == method && r.path == path {
			out = append(out, r)
		}
	}
	return out
}

func (p *platform) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *platform) registry(opts ...Option) *Registry {
	p.t.Helper()
	host := strings.TrimPrefix(p.server.URL, "http://")
	cfg := remote.Config{
		HostTemplate:      "{protocol}://" + host + "/{api}{environment}",
		ReportingTemplate: "{protocol}://" + host + "{apiURI}",
	}
	client, err := remote.NewClient(cfg, zap.NewNop())
	require.NoError(p.t, err)
	return NewRegistry(client, client.Config(), zap.NewNop(), opts...)
}

// decode parses JSON the way the HTTP surface does, keeping numbers as json.Number.
func decode(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

// call builds a call from JSON fragments for channelProfile and payload.
func call(t *testing.T, profile, payload string) integration.Call {
	t.Helper()
	return integration.Call{
		NcUtil:         map[string]any{},
		ChannelProfile: decode(t, profile),
		FlowContext:    map[string]any{},
		Payload:        decode(t, payload),
	}
}

// invoke runs name and returns the single envelope handed to the callback.
func invoke(t *testing.T, reg *Registry, name string, c integration.Call) integration.Envelope {
	t.Helper()
	var envs []integration.Envelope
	err := reg.Invoke(context.Background(), name, c, func(env integration.Envelope) error {
		envs = append(envs, env)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, envs, 1)
	return envs[0]
}

const profileCustomer = `{
	"channelSettingsValues": {"protocol": "http", "environment": "demo"},
	"channelAuthValues": {"company_id": "42", "access_token": "tok"},
	"customerBusinessReferences": ["EmailAddress"],
	"customerAddressBusinessReferences": ["AddressLine1", "PostalCode"],
	"customerContactBusinessReferences": ["Value"]
}`
