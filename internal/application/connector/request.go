package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/reference"
	"github.com/erp/connector/internal/domain/validation"
	"github.com/erp/connector/internal/infrastructure/remote"
)

// Callback receives the envelope of an invocation. It is called exactly once.
type Callback func(env integration.Envelope) error

// Request is the read-only context of one invocation, built once the call
// arguments have passed validation.
type Request struct {
	Function    string
	RequestID   string
	Profile     integration.ChannelProfile
	FlowContext any
	Payload     map[string]any
	Doc         map[string]any
	Remote      integration.RemoteClient
	Endpoints   remote.Endpoints
	Logger      *zap.Logger

	extractors map[string]*reference.Extractor
}

// Extractor returns the compiled business reference spec of entity.
// Only entities the function declares are available.
func (r *Request) Extractor(entity string) *reference.Extractor {
	return r.extractors[entity]
}

// Reference extracts the business reference of entity from doc.
func (r *Request) Reference(entity string, doc any) (string, error) {
	ex := r.extractors[entity]
	if ex == nil {
		return "", fmt.Errorf("connector: %s has no %s business references", r.Function, entity)
	}
	return ex.Key(doc)
}

// PayloadValue returns a top-level payload field.
func (r *Request) PayloadValue(key string) any {
	return r.Payload[key]
}

type handler func(ctx context.Context, req *Request, res *Result) error

// definition declares the argument rules and body of one connector function.
type definition struct {
	name string
	// references are the entities whose <entity>BusinessReferences arrays are required.
	references []string
	// settings and auth are the fields required inside channelSettingsValues
	// and channelAuthValues. Both objects are always required.
	settings []validation.Rule
	auth     []validation.Rule
	// flowContext requires flowContext to be an object.
	flowContext bool
	doc         []validation.Rule
	payload     []validation.Rule
	// check runs after the structural and typed checks passed.
	check  func(payload map[string]any) []string
	policy integration.StatusPolicy
	handle handler
}

// remoteSettings are the channelSettingsValues every remote call needs.
func remoteSettings(extra ...validation.Rule) []validation.Rule {
	return append([]validation.Rule{
		validation.Field("protocol", validation.NonEmptyString),
		validation.Field("environment", validation.String),
	}, extra...)
}

// remoteAuth are the channelAuthValues every remote call needs.
func remoteAuth(extra ...validation.Rule) []validation.Rule {
	return append([]validation.Rule{
		validation.Field("company_id", validation.Identifier),
		validation.Field("access_token", validation.NonEmptyString),
	}, extra...)
}

func (d *definition) profileRules() []validation.Rule {
	rules := []validation.Rule{
		validation.Field("channelSettingsValues", validation.Object, d.settings...),
		validation.Field("channelAuthValues", validation.Object, d.auth...),
	}
	for _, entity := range d.references {
		rules = append(rules, validation.Field(integration.ReferencesKey(entity), validation.NonEmptyArray))
	}
	return rules
}

func (d *definition) payloadRules() []validation.Rule {
	return append([]validation.Rule{validation.Field("doc", validation.Object, d.doc...)}, d.payload...)
}

// validate runs every check on call and returns the defects found.
func (d *definition) validate(call integration.Call) (integration.ChannelProfile, map[string]*reference.Extractor, []string) {
	var profile integration.ChannelProfile
	var messages []string

	messages = append(messages, validation.Validate("ncUtil", call.NcUtil, nil)...)
	messages = append(messages, validation.Validate("channelProfile", call.ChannelProfile, d.profileRules())...)
	if d.flowContext {
		messages = append(messages, validation.Validate("flowContext", call.FlowContext, nil)...)
	}
	messages = append(messages, validation.Validate("payload", call.Payload, d.payloadRules())...)
	if len(messages) > 0 {
		return profile, nil, messages
	}

	if err := validation.Decode(call.ChannelProfile, &profile); err != nil {
		return profile, nil, []string{fmt.Sprintf("The channelProfile object is invalid (%v).", err)}
	}
	messages = append(messages, validation.Struct("channelProfile", profile)...)

	extractors := make(map[string]*reference.Extractor, len(d.references))
	for _, entity := range d.references {
		ex, err := reference.Compile(profile.BusinessReferences(entity))
		if err != nil {
			messages = append(messages, fmt.Sprintf("The channelProfile.%s array is invalid (%v).", integration.ReferencesKey(entity), err))
			continue
		}
		extractors[entity] = ex
	}

	if len(messages) == 0 && d.check != nil {
		messages = append(messages, d.check(call.Payload.(map[string]any))...)
	}
	return profile, extractors, messages
}
