package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/interfaces/http/handler"
	"github.com/erp/connector/internal/interfaces/http/middleware"
)

// EngineConfig holds what the HTTP engine needs beyond the handlers.
type EngineConfig struct {
	ServiceName    string
	Version        string
	Production     bool
	Tracing        bool
	MaxBodySize    int64
	TrustedProxies []string
}

// NewEngine builds the gin engine serving the connector functions.
//
// Routes:
//
//	GET  /health
//	GET  /api/v1/system/info
//	GET  /api/v1/functions
//	POST /api/v1/functions/:name
func NewEngine(cfg EngineConfig, log *zap.Logger, functions handler.Invoker) *gin.Engine {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Order matters: the span must exist before the request logger picks up
	// its trace id, and recovery must sit inside both.
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.ServiceName,
		Enabled:     cfg.Tracing,
	}))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.SpanAttributes())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.Recovery(log))

	systemHandler := handler.NewSystemHandler(cfg.ServiceName, cfg.Version)
	functionHandler := handler.NewFunctionHandler(functions)

	engine.GET("/health", systemHandler.Health)

	r := NewRouter(engine)
	r.Register(NewDomainGroup("system", "/system").
		GET("/info", systemHandler.GetSystemInfo))
	r.Register(NewDomainGroup("functions", "/functions").
		Use(middleware.BodyLimit(cfg.MaxBodySize)).
		GET("", functionHandler.List).
		POST("/:name", functionHandler.Invoke))
	r.Setup()

	return engine
}
