package remote

import (
	"fmt"
	"net/url"
	"strings"
)

// API names a remote sub-API host.
type API string

const (
	APICRM            API = "crm"
	APICatalogs       API = "catalogs"
	APIPricing        API = "pricing"
	APIAvailability   API = "availability"
	APIOrder          API = "order"
	APISalesOrder     API = "salesorder"
	APIOrderReporting API = "ordermanagementreporting"
)

// Endpoints builds remote URLs for one channel (protocol, environment and company).
type Endpoints struct {
	hostTemplate      string
	reportingTemplate string
	protocol          string
	environment       string
	companyID         string
}

// NewEndpoints binds the configured templates to a channel.
func NewEndpoints(cfg Config, protocol, environment, companyID string) Endpoints {
	if cfg.HostTemplate == "" {
		cfg.HostTemplate = DefaultHostTemplate
	}
	if cfg.ReportingTemplate == "" {
		cfg.ReportingTemplate = DefaultReportingTemplate
	}
	return Endpoints{
		hostTemplate:      cfg.HostTemplate,
		reportingTemplate: cfg.ReportingTemplate,
		protocol:          protocol,
		environment:       environment,
		companyID:         companyID,
	}
}

// CompanyID returns the company the endpoints are scoped to.
func (e Endpoints) CompanyID() string { return e.companyID }

// Base returns the base URL of a sub-API.
func (e Endpoints) Base(api API) string {
	return strings.NewReplacer(
		"{protocol}", e.protocol,
		"{api}", string(api),
		"{environment}", e.environment,
	).Replace(e.hostTemplate)
}

// Company returns a URL below /Companies(<company>) of a sub-API.
// Arguments are path-escaped.
func (e Endpoints) Company(api API, format string, args ...any) string {
	return e.Base(api) + "/Companies(" + url.PathEscape(e.companyID) + ")" + e.path(format, args...)
}

// Path returns a URL below the base of a sub-API. Arguments are path-escaped.
func (e Endpoints) Path(api API, format string, args ...any) string {
	return e.Base(api) + e.path(format, args...)
}

// Reporting returns a URL of the order reporting API rooted at the channel's api_uri.
func (e Endpoints) Reporting(apiURI, format string, args ...any) string {
	base := strings.NewReplacer(
		"{protocol}", e.protocol,
		"{apiURI}", apiURI,
	).Replace(e.reportingTemplate)
	return base + e.path(format, args...)
}

func (e Endpoints) path(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, arg := range args {
		escaped[i] = url.PathEscape(fmt.Sprint(arg))
	}
	return fmt.Sprintf(format, escaped...)
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
