package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/interfaces/http/dto"
)

// Invoker runs connector functions by name.
type Invoker interface {
	Names() []string
	Invoke(ctx context.Context, name string, call integration.Call, callback connector.Callback) error
}

// FunctionHandler exposes connector functions over HTTP. The envelope a
// function produces is the response body; its ncStatusCode is not the HTTP
// status, which stays 200 once the function ran.
type FunctionHandler struct {
	BaseHandler
	functions Invoker
}

// NewFunctionHandler creates a new FunctionHandler
func NewFunctionHandler(functions Invoker) *FunctionHandler {
	return &FunctionHandler{functions: functions}
}

// List returns the names of all connector functions.
func (h *FunctionHandler) List(c *gin.Context) {
	h.Success(c, http.StatusOK, dto.FunctionList{Functions: h.functions.Names()})
}

// Invoke decodes the call in the body and runs the function named in the path.
func (h *FunctionHandler) Invoke(c *gin.Context) {
	log := logger.GetGinLogger(c)
	name := c.Param("name")

	call, err := decodeCall(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		log.Warn("Rejected malformed call", zap.String("function", name), zap.Error(err))
		h.Error(c, dto.ErrCodeInvalidJSON, "Request body must be a JSON object")
		return
	}

	err = h.functions.Invoke(c.Request.Context(), name, call, func(env integration.Envelope) error {
		c.JSON(http.StatusOK, env)
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, integration.ErrUnknownFunction):
		h.Error(c, dto.ErrCodeUnknownFunction, err.Error())
	default:
		log.Error("Function invocation failed", zap.String("function", name), zap.Error(err))
		if !c.Writer.Written() {
			h.Error(c, dto.ErrCodeCallbackFailed, err.Error())
		}
	}
}

// decodeCall keeps numbers as json.Number so identifiers and prices survive
// untouched when they are echoed back to the platform.
func decodeCall(body io.Reader) (integration.Call, error) {
	var call integration.Call
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(&call); err != nil {
		return integration.Call{}, err
	}
	if dec.More() {
		return integration.Call{}, errors.New("unexpected data after the call object")
	}
	return call, nil
}
