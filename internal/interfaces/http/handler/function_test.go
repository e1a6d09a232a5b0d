package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/remote"
	"github.com/erp/connector/internal/interfaces/http/dto"
)

// MockInvoker is a mock implementation of Invoker. A non-nil envelope is
// delivered to the callback before the configured error is returned.
type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Names() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockInvoker) Invoke(ctx context.Context, name string, call integration.Call, callback connector.Callback) error {
	args := m.Called(ctx, name, call)
	if env, ok := args.Get(0).(*integration.Envelope); ok && env != nil {
		if err := callback(*env); err != nil {
			return err
		}
	}
	return args.Error(1)
}

func serve(h *FunctionHandler, method, path, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/functions", h.List)
	engine.POST("/functions/:name", h.Invoke)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	return w
}

func TestFunctionHandler_Invoke(t *testing.T) {
	invoker := new(MockInvoker)
	keepsPrecision := mock.MatchedBy(func(call integration.Call) bool {
		profile, ok := call.ChannelProfile.(map[string]any)
		return ok && profile["id"] == json.Number("12345678901234567890")
	})
	invoker.On("Invoke", mock.Anything, "InsertCustomer", keepsPrecision).Return(&integration.Envelope{
		NcStatusCode: integration.StatusCreated,
		Response:     integration.EndpointResponse{EndpointStatusCode: http.StatusCreated},
		Payload:      map[string]any{"customerRemoteID": "c-1"},
	}, nil)

	w := serve(NewFunctionHandler(invoker), http.MethodPost, "/functions/InsertCustomer",
		`{"channelProfile":{"id":12345678901234567890},"payload":{"doc":{}}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"ncStatusCode": 201,
		"response": {"endpointStatusCode": 201},
		"payload": {"customerRemoteID": "c-1"}
	}`, w.Body.String())
	invoker.AssertExpectations(t)
}

func TestFunctionHandler_InvokeErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed json",
			body:       `{"payload":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeInvalidJSON,
		},
		{
			name:       "not an object",
			body:       `[1, 2]`,
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeInvalidJSON,
		},
		{
			name:       "trailing data",
			body:       `{} {}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeInvalidJSON,
		},
		{
			name:       "unknown function",
			body:       `{}`,
			err:        integration.ErrUnknownFunction,
			wantStatus: http.StatusNotFound,
			wantCode:   dto.ErrCodeUnknownFunction,
		},
		{
			name:       "callback missing",
			body:       `{}`,
			err:        integration.ErrCallbackMissing,
			wantStatus: http.StatusInternalServerError,
			wantCode:   dto.ErrCodeCallbackFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := new(MockInvoker)
			invoker.On("Invoke", mock.Anything, "Anything", mock.Anything).Return(nil, tt.err)

			w := serve(NewFunctionHandler(invoker), http.MethodPost, "/functions/Anything", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestFunctionHandler_CallbackErrorAfterWrite(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("Invoke", mock.Anything, "Anything", mock.Anything).Return(
		&integration.Envelope{NcStatusCode: integration.StatusOK},
		&integration.CallbackError{Function: "Anything", Err: errors.New("downstream closed")})

	w := serve(NewFunctionHandler(invoker), http.MethodPost, "/functions/Anything", `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ncStatusCode":200,"response":{},"payload":null}`, w.Body.String())
}

func TestFunctionHandler_List(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("Names").Return([]string{"CheckForCustomer", "InsertCustomer"})

	w := serve(NewFunctionHandler(invoker), http.MethodGet, "/functions", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"functions":["CheckForCustomer","InsertCustomer"]}}`, w.Body.String())
}

func TestFunctionHandler_RegistryValidation(t *testing.T) {
	client, err := remote.NewClient(remote.Config{HostTemplate: "http://{protocol}.invalid/{api}"}, zap.NewNop())
	require.NoError(t, err)
	reg := connector.NewRegistry(client, client.Config(), zap.NewNop())

	w := serve(NewFunctionHandler(reg), http.MethodPost, "/functions/"+connector.CheckForCustomer, `{"payload":{}}`)

	require.Equal(t, http.StatusOK, w.Code)
	var env integration.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, integration.StatusBadRequest, env.NcStatusCode)
	assert.Contains(t, env.Object()["error"], "Invalid request")
}
