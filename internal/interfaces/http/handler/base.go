package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/interfaces/http/dto"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response with the given status code
func (h *BaseHandler) Success(c *gin.Context, status int, data any) {
	c.JSON(status, dto.NewSuccessResponse(data))
}

// Error sends an error response whose status follows the error code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	resp := dto.NewErrorResponse(code, message)
	resp.Error.RequestID = c.Writer.Header().Get(logger.RequestIDHeader)
	c.JSON(dto.GetHTTPStatus(code), resp)
}
