// Package middleware provides HTTP middleware for the connector server.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erp/connector/internal/infrastructure/logger"
)

// MaxRequestIDLength is the maximum length for request IDs recorded on spans.
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// TracingWithConfig returns OpenTelemetry tracing middleware.
// The span name follows the format "HTTP METHOD route_pattern"
// (e.g. "POST /api/v1/functions/:name").
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return otelgin.Middleware(cfg.ServiceName)
}

// SpanAttributes enriches the span otelgin opened with the request id and the
// function name. Place it after TracingWithConfig and logger.GinMiddleware.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpan(c, span)
		}
		c.Next()
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if requestID := requestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if name := c.Param("name"); name != "" {
		span.SetAttributes(attribute.String("connector.function", name))
	}
}

func requestID(c *gin.Context) string {
	id := c.Writer.Header().Get(logger.RequestIDHeader)
	if id == "" {
		id = c.GetHeader(logger.RequestIDHeader)
	}
	if len(id) > MaxRequestIDLength {
		return id[:MaxRequestIDLength]
	}
	return id
}

// SpanErrorMarker returns a middleware that marks spans with error status
// for HTTP error responses (4xx/5xx). Place it after TracingWithConfig.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}
		message := "Client Error"
		switch {
		case statusCode >= http.StatusInternalServerError:
			message = "Internal Server Error"
		case statusCode == http.StatusNotFound:
			message = "Not Found"
		case statusCode == http.StatusRequestEntityTooLarge:
			message = "Request Entity Too Large"
		}
		span.SetStatus(codes.Error, message)
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
}
