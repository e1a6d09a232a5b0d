package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/connector/internal/domain/integration"
)

func TestRegistry_Names(t *testing.T) {
	reg := newPlatform(t, nil).registry()

	assert.ElementsMatch(t, []string{
		CheckForCustomer, CheckForCustomerAddress, CheckForCustomerContact,
		InsertCustomer, InsertCustomerAddress, UpdateCustomerAddress, UpdateCustomerContact,
		ExtractCustomerFromSalesOrder, ExtractBillingAddressFromSalesOrder, ExtractShippingAddressFromSalesOrder,
		ExtractCustomerAddressesFromCustomer, ExtractCustomerContactsFromCustomer,
		InsertSalesOrder,
		GetProductMatrixFromQuery, GetProductSimpleFromQuery, GetProductPricingFromQuery, GetProductQuantityFromQuery,
		GetFulfillmentFromQuery,
	}, reg.Names())

	fn, found := reg.Lookup(InsertSalesOrder)
	require.True(t, found)
	assert.Equal(t, InsertSalesOrder, fn.Name())

	_, found = reg.Lookup("DeleteEverything")
	assert.False(t, found)
}

func TestRegistry_InvokeUnknownFunction(t *testing.T) {
	reg := newPlatform(t, nil).registry()

	err := reg.Invoke(context.Background(), "DeleteEverything", integration.Call{}, func(integration.Envelope) error {
		t.Fatal("callback must not run")
		return nil
	})
	assert.ErrorIs(t, err, integration.ErrUnknownFunction)
}

func TestFunction_MissingCallback(t *testing.T) {
	p := newPlatform(t, nil)
	reg := p.registry()

	err := reg.Invoke(context.Background(), CheckForCustomer,
		call(t, profileCustomer, `{"doc":{"EmailAddress":"a@example.com"}}`), nil)

	assert.ErrorIs(t, err, integration.ErrCallbackMissing)
	assert.Zero(t, p.count(), "no remote request before the callback is checked")
}

func TestFunction_CallbackError(t *testing.T) {
	reg := newPlatform(t, nil).registry()
	boom := errors.New("downstream closed")

	err := reg.Invoke(context.Background(), ExtractCustomerFromSalesOrder,
		call(t, profileCustomer, `{"doc":{"Customer":{"Name":"Ada"}}}`),
		func(integration.Envelope) error { return boom })

	var cbErr *integration.CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, ExtractCustomerFromSalesOrder, cbErr.Function)
	assert.ErrorIs(t, err, integration.ErrCallbackFailed)
	assert.ErrorIs(t, err, boom)
}

func TestFunction_Validation(t *testing.T) {
	tests := []struct {
		name     string
		function string
		call     func(t *testing.T) integration.Call
		want     []string
	}{
		{
			name:     "missing ncUtil",
			function: CheckForCustomer,
			call: func(t *testing.T) integration.Call {
				c := call(t, profileCustomer, `{"doc":{}}`)
				c.NcUtil = nil
				return c
			},
			want: []string{"The ncUtil object is missing."},
		},
		{
			name:     "missing protocol",
			function: CheckForCustomer,
			call: func(t *testing.T) integration.Call {
				return call(t, `{
					"channelSettingsValues": {"environment": "demo"},
					"channelAuthValues": {"company_id": "42", "access_token": "tok"},
					"customerBusinessReferences": ["EmailAddress"]
				}`, `{"doc":{}}`)
			},
			want: []string{"The channelProfile.channelSettingsValues.protocol string is missing."},
		},
		{
			name:     "unsupported protocol",
			function: CheckForCustomer,
			call: func(t *testing.T) integration.Call {
				return call(t, `{
					"channelSettingsValues": {"protocol": "ftp", "environment": "demo"},
					"channelAuthValues": {"company_id": "42", "access_token": "tok"},
					"customerBusinessReferences": ["EmailAddress"]
				}`, `{"doc":{}}`)
			},
			want: []string{"The channelProfile.channelSettingsValues.protocol value is invalid (must be one of: http https)."},
		},
		{
			name:     "missing references",
			function: InsertCustomer,
			call: func(t *testing.T) integration.Call {
				return call(t, `{
					"channelSettingsValues": {"protocol": "http", "environment": "demo"},
					"channelAuthValues": {"company_id": "42", "access_token": "tok"}
				}`, `{"doc":{}}`)
			},
			want: []string{"The channelProfile.customerBusinessReferences array is missing."},
		},
		{
			name:     "invalid references",
			function: InsertCustomer,
			call: func(t *testing.T) integration.Call {
				return call(t, `{
					"channelSettingsValues": {"protocol": "http", "environment": "demo"},
					"channelAuthValues": {"company_id": "42", "access_token": "tok"},
					"customerBusinessReferences": "EmailAddress"
				}`, `{"doc":{}}`)
			},
			want: []string{"The channelProfile.customerBusinessReferences array is invalid."},
		},
		{
			name:     "missing doc and remote id",
			function: UpdateCustomerAddress,
			call: func(t *testing.T) integration.Call {
				return call(t, profileCustomer, `{"customerAddressRemoteID": "9"}`)
			},
			want: []string{
				"The payload.doc object is missing.",
				"The payload.customerRemoteID identifier is missing.",
			},
		},
		{
			name:     "missing canPostInvoice",
			function: InsertSalesOrder,
			call: func(t *testing.T) integration.Call {
				return call(t, `{
					"channelSettingsValues": {"protocol": "http", "environment": "demo"},
					"channelAuthValues": {"company_id": "42", "access_token": "tok"},
					"salesOrderBusinessReferences": ["DropshipOrder.Id"]
				}`, `{"doc":{"DropshipOrder":{"Items":[{}]},"SalesOrder":{}}}`)
			},
			want: []string{"The channelProfile.channelSettingsValues.canPostInvoice string is missing."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlatform(t, nil)
			env := invoke(t, p.registry(), tt.function, tt.call(t))

			assert.Equal(t, integration.StatusBadRequest, env.NcStatusCode)
			msg, _ := env.Object()["error"].(string)
			for _, want := range tt.want {
				assert.Contains(t, msg, want)
			}
			assert.Zero(t, p.count(), "validation failures never reach the platform")
		})
	}
}

func TestFunction_RecoversPanics(t *testing.T) {
	reg := newPlatform(t, nil).registry()
	reg.functions["Explode"] = &definition{
		name: "Explode",
		handle: func(context.Context, *Request, *Result) error {
			panic("kaboom")
		},
	}

	env := invoke(t, reg, "Explode", call(t, profileCustomer, `{"doc":{}}`))

	assert.Equal(t, integration.StatusInternalError, env.NcStatusCode)
	assert.Contains(t, env.Object()["error"], "kaboom")
}
