package integration

import (
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Call
// ---------------------------------------------------------------------------

// Call carries the normalized invocation arguments exactly as the caller sent them.
// Fields stay untyped until the validation layer has accepted them.
type Call struct {
	NcUtil         any `json:"ncUtil"`
	ChannelProfile any `json:"channelProfile"`
	FlowContext    any `json:"flowContext"`
	Payload        any `json:"payload"`
}

// ---------------------------------------------------------------------------
// ChannelProfile
// ---------------------------------------------------------------------------

// ChannelProfile is the typed view of a validated channelProfile object.
type ChannelProfile struct {
	Settings ChannelSettings `mapstructure:"channelSettingsValues"`
	Auth     ChannelAuth     `mapstructure:"channelAuthValues"`
	// Extra keeps every other key, including the <entity>BusinessReferences arrays.
	Extra map[string]any `mapstructure:",remain"`
}

// ChannelSettings holds channelSettingsValues.
type ChannelSettings struct {
	Protocol            string             `mapstructure:"protocol" validate:"omitempty,oneof=http https"`
	Environment         string             `mapstructure:"environment"`
	APIURI              string             `mapstructure:"api_uri"`
	CanPostInvoice      string             `mapstructure:"canPostInvoice"`
	MaxParallelRequests int                `mapstructure:"maxParallelRequests" validate:"gte=0"`
	SubscriptionLists   []SubscriptionList `mapstructure:"subscriptionLists" validate:"dive"`
}

// ChannelAuth holds channelAuthValues.
type ChannelAuth struct {
	CompanyID   string `mapstructure:"company_id"`
	LocationID  string `mapstructure:"location_id"`
	AccessToken string `mapstructure:"access_token"`
}

// SubscriptionList identifies a catalog list and the supplier whose vendor SKU rows apply to it.
type SubscriptionList struct {
	ListID     any `mapstructure:"listId" validate:"required"`
	EntityID   any `mapstructure:"entityId"`
	SupplierID any `mapstructure:"supplierId"`
}

// Supplier returns the supplier entity id, preferring entityId over supplierId.
func (l SubscriptionList) Supplier() any {
	if l.EntityID != nil {
		return l.EntityID
	}
	return l.SupplierID
}

// Map renders the list the way it is attached to product documents.
func (l SubscriptionList) Map() map[string]any {
	m := map[string]any{"listId": l.ListID}
	if l.EntityID != nil {
		m["entityId"] = l.EntityID
	}
	if l.SupplierID != nil {
		m["supplierId"] = l.SupplierID
	}
	return m
}

// ReferencesKey is the channelProfile key holding the business reference spec of entity.
func ReferencesKey(entity string) string {
	return entity + "BusinessReferences"
}

// BusinessReferences returns the spec configured for entity, or nil when absent or malformed.
func (p *ChannelProfile) BusinessReferences(entity string) []string {
	raw, ok := p.Extra[ReferencesKey(entity)].([]any)
	if !ok {
		return nil
	}
	spec := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		spec = append(spec, s)
	}
	return spec
}

// ---------------------------------------------------------------------------
// Date ranges
// ---------------------------------------------------------------------------

// ModifiedDateRange is payload.doc.modifiedDateRange as sent by the caller.
type ModifiedDateRange struct {
	StartDateGMT string `mapstructure:"startDateGMT" validate:"omitempty,instant"`
	EndDateGMT   string `mapstructure:"endDateGMT" validate:"omitempty,instant"`
}

// Range parses both bounds. Both must be present.
func (r ModifiedDateRange) Range() (DateRange, error) {
	start, ok := ParseInstant(r.StartDateGMT)
	if !ok {
		return DateRange{}, fmt.Errorf("%w: startDateGMT %q is not a timestamp", ErrInvalidRequest, r.StartDateGMT)
	}
	end, ok := ParseInstant(r.EndDateGMT)
	if !ok {
		return DateRange{}, fmt.Errorf("%w: endDateGMT %q is not a timestamp", ErrInvalidRequest, r.EndDateGMT)
	}
	return DateRange{Start: start, End: end}, nil
}

// DateRange is an inclusive [Start, End] window of absolute instants.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the window, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// ContainsValue parses v as an instant and checks it against the window.
// Values that are not timestamps are never contained.
func (r DateRange) ContainsValue(v any) bool {
	t, ok := ParseInstant(v)
	return ok && r.Contains(t)
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseInstant parses RFC 3339 timestamps. Timestamps without a zone are read as UTC.
func ParseInstant(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
