// Package connector implements the channel connector functions. Every function
// takes the normalized call (ncUtil, channelProfile, flowContext, payload) and
// hands exactly one envelope to the caller's callback.
package connector

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/application/catalog"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/remote"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

// CatalogOptions tunes the bulk product queries.
type CatalogOptions struct {
	DetailBatchSize          int
	FilterPricingByModified  bool
	FilterQuantityByModified bool
}

// Registry holds the connector functions and their shared dependencies.
type Registry struct {
	clients      integration.RemoteClientFactory
	remoteConfig remote.Config
	logger       *zap.Logger
	metrics      *telemetry.ConnectorMetrics
	catalog      CatalogOptions
	functions    map[string]*definition
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records invocation metrics on m.
func WithMetrics(m *telemetry.ConnectorMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithCatalogOptions overrides the product query settings.
func WithCatalogOptions(o CatalogOptions) Option {
	return func(r *Registry) { r.catalog = o }
}

// NewRegistry creates a registry of every connector function. remoteConfig
// supplies the URL templates of the remote platform.
func NewRegistry(clients integration.RemoteClientFactory, remoteConfig remote.Config, log *zap.Logger, opts ...Option) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		clients:      clients,
		remoteConfig: remoteConfig,
		logger:       log,
		catalog:      CatalogOptions{DetailBatchSize: catalog.DefaultDetailBatchSize},
		functions:    map[string]*definition{},
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, d := range r.definitions() {
		r.functions[d.name] = d
	}
	return r
}

func (r *Registry) definitions() []*definition {
	defs := customerFunctions()
	defs = append(defs, extractFunctions()...)
	defs = append(defs, salesOrderFunction())
	defs = append(defs, r.productFunctions()...)
	defs = append(defs, fulfillmentFunction())
	return defs
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Function, bool) {
	d, ok := r.functions[name]
	if !ok {
		return Function{}, false
	}
	return Function{registry: r, def: d}, true
}

// Invoke runs the function registered under name.
func (r *Registry) Invoke(ctx context.Context, name string, call integration.Call, callback Callback) error {
	fn, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", integration.ErrUnknownFunction, name)
	}
	return fn.Invoke(ctx, call, callback)
}

// Function is one registered connector function.
type Function struct {
	registry *Registry
	def      *definition
}

// Name returns the function name.
func (f Function) Name() string { return f.def.name }

// Invoke validates call, runs the function and hands the envelope to callback.
// Failures of the function itself are reported in the envelope; the returned
// error is ErrCallbackMissing before any work, or a *CallbackError when the
// callback failed.
func (f Function) Invoke(ctx context.Context, call integration.Call, callback Callback) error {
	if callback == nil {
		f.registry.logger.Error("The callback function is missing", zap.String("function", f.def.name))
		return integration.ErrCallbackMissing
	}

	requestID := logger.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx, log := logger.WithRequestID(ctx, f.registry.logger, requestID)
	ctx, log = logger.WithFunction(ctx, log, f.def.name)

	ctx, span := telemetry.StartFunctionSpan(ctx, f.def.name,
		telemetry.WithAttribute(telemetry.SpanAttrRequestID, requestID))
	defer span.End()
	log = logger.WithTraceContext(ctx, log)

	start := time.Now()
	log.Info("Beginning function")

	res := newResult(f.def.policy)
	telemetry.WithFunctionLabels(ctx, f.def.name, func(ctx context.Context) {
		f.run(ctx, call, requestID, log, res)
	})
	env := res.Envelope()

	f.registry.metrics.RecordInvocation(ctx, f.def.name, env.NcStatusCode, time.Since(start))
	if items := env.Items(); items != nil {
		f.registry.metrics.RecordItems(ctx, f.def.name, len(items))
		telemetry.SetAttributes(span, telemetry.SpanAttrItemCount, len(items))
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrStatusCode, env.NcStatusCode)
	if env.NcStatusCode >= integration.StatusInternalError {
		telemetry.RecordError(span, fmt.Errorf("%s finished with status %d", f.def.name, env.NcStatusCode))
	} else {
		telemetry.SetOK(span)
	}
	log.Info("Function complete",
		zap.Int("status_code", env.NcStatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if err := callback(env); err != nil {
		log.Error("The callback function returned an error", zap.Error(err))
		return &integration.CallbackError{Function: f.def.name, Err: err}
	}
	return nil
}

func (f Function) run(ctx context.Context, call integration.Call, requestID string, log *zap.Logger, res *Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("Function panicked", zap.Any("panic", p), zap.Stack("stack"))
			res.Fail(fmt.Errorf("connector: %s panicked: %v", f.def.name, p))
		}
	}()

	profile, extractors, messages := f.def.validate(call)
	if len(messages) > 0 {
		for _, msg := range messages {
			log.Error(msg)
		}
		res.Fail(integration.NewValidationError(messages))
		return
	}
	log.Info("Function is valid")

	payload := call.Payload.(map[string]any)
	req := &Request{
		Function:    f.def.name,
		RequestID:   requestID,
		Profile:     profile,
		FlowContext: call.FlowContext,
		Payload:     payload,
		Doc:         payload["doc"].(map[string]any),
		Remote:      f.registry.clients.ForToken(profile.Auth.AccessToken),
		Endpoints: remote.NewEndpoints(f.registry.remoteConfig,
			profile.Settings.Protocol, profile.Settings.Environment, profile.Auth.CompanyID),
		Logger:     log,
		extractors: extractors,
	}
	telemetry.SetAttributes(trace.SpanFromContext(ctx), telemetry.SpanAttrCompanyID, profile.Auth.CompanyID)

	if err := f.def.handle(ctx, req, res); err != nil {
		if res.preset == 0 && isThrottled(err) {
			log.Warn("Request was throttled", zap.Error(err))
		} else {
			log.Error("Function failed", zap.Error(err))
		}
		res.Fail(err)
	}
}
