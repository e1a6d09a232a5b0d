package remote

import (
	"errors"
	"time"
)

const (
	// DefaultTimeout bounds a single remote request.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxResponseSize caps response bodies (32MB); bulk catalog responses are large.
	DefaultMaxResponseSize int64 = 32 * 1024 * 1024
	// DefaultHostTemplate builds a sub-API base URL from protocol, API name and environment.
	DefaultHostTemplate = "{protocol}://{api}{environment}.iqmetrix.net/v1"
	// DefaultReportingTemplate builds the order reporting base URL from protocol and the channel's api_uri.
	DefaultReportingTemplate = "{protocol}://ordermanagementreporting{apiURI}"
	// DefaultUserAgent identifies the connector to the remote platform.
	DefaultUserAgent = "erp-connector/1.0"
)

// ErrConfigMissingHostTemplate is returned when the host template lacks a required placeholder.
var ErrConfigMissingHostTemplate = errors.New("remote: host template must contain {protocol} and {api}")

// Config holds configuration for the remote platform client
type Config struct {
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// MaxResponseSize is the largest response body accepted, in bytes
	MaxResponseSize int64
	// HostTemplate is the base URL template of every sub-API
	HostTemplate string
	// ReportingTemplate is the base URL template of the order reporting API
	ReportingTemplate string
	// UserAgent is sent with every request
	UserAgent string
}

// Validate applies defaults and checks the configuration
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxResponseSize <= 0 {
		c.MaxResponseSize = DefaultMaxResponseSize
	}
	if c.HostTemplate == "" {
		c.HostTemplate = DefaultHostTemplate
	}
	if c.ReportingTemplate == "" {
		c.ReportingTemplate = DefaultReportingTemplate
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if !containsAll(c.HostTemplate, "{protocol}", "{api}") {
		return ErrConfigMissingHostTemplate
	}
	return nil
}
