package connector

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profileMinimal = `{"channelSettingsValues": {}, "channelAuthValues": {}}`

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name       string
		function   string
		payload    string
		wantStatus int
		wantDoc    any
	}{
		{
			name:       "customer",
			function:   ExtractCustomerFromSalesOrder,
			payload:    `{"doc":{"Customer":{"Name":"Ada"}}}`,
			wantStatus: http.StatusOK,
			wantDoc:    map[string]any{"Name": "Ada"},
		},
		{
			name:       "billing address",
			function:   ExtractBillingAddressFromSalesOrder,
			payload:    `{"doc":{"BillingAddress":{"AddressLine1":"1 Main St"}}}`,
			wantStatus: http.StatusOK,
			wantDoc:    map[string]any{"AddressLine1": "1 Main St"},
		},
		{
			name:       "empty shipping address",
			function:   ExtractShippingAddressFromSalesOrder,
			payload:    `{"doc":{"ShippingAddress":{}}}`,
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "shipping address is not an object",
			function:   ExtractShippingAddressFromSalesOrder,
			payload:    `{"doc":{"ShippingAddress":"1 Main St"}}`,
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "missing customer",
			function:   ExtractCustomerFromSalesOrder,
			payload:    `{"doc":{}}`,
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlatform(t, nil)

			env := invoke(t, p.registry(), tt.function, call(t, profileMinimal, tt.payload))

			assert.Equal(t, tt.wantStatus, env.NcStatusCode)
			assert.Equal(t, tt.wantDoc, env.Object()["doc"])
			assert.Zero(t, p.count())
		})
	}
}

func TestExtractChildren(t *testing.T) {
	tests := []struct {
		name       string
		function   string
		payload    string
		wantStatus int
		wantDocs   []any
	}{
		{
			name:     "addresses",
			function: ExtractCustomerAddressesFromCustomer,
			payload: `{"customerRemoteID":"c-1","customerBusinessReference":"a@example.com",
				"doc":{"Addresses":[{"AddressLine1":"1 Main St"},{"AddressLine1":"9 Side Rd"}]}}`,
			wantStatus: http.StatusOK,
			wantDocs:   []any{map[string]any{"AddressLine1": "1 Main St"}, map[string]any{"AddressLine1": "9 Side Rd"}},
		},
		{
			name:       "contacts",
			function:   ExtractCustomerContactsFromCustomer,
			payload:    `{"customerRemoteID":"c-1","customerBusinessReference":"a@example.com","doc":{"ContactMethods":[{"Value":"555"}]}}`,
			wantStatus: http.StatusOK,
			wantDocs:   []any{map[string]any{"Value": "555"}},
		},
		{
			name:       "no contacts",
			function:   ExtractCustomerContactsFromCustomer,
			payload:    `{"doc":{"ContactMethods":[]}}`,
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := invoke(t, newPlatform(t, nil).registry(), tt.function, call(t, profileMinimal, tt.payload))

			assert.Equal(t, tt.wantStatus, env.NcStatusCode)
			if tt.wantDocs == nil {
				assert.Nil(t, env.Items())
				return
			}
			items := env.Items()
			require.Len(t, items, len(tt.wantDocs))
			for i, raw := range items {
				item := raw.(map[string]any)
				assert.Equal(t, tt.wantDocs[i], item["doc"])
				assert.Equal(t, "c-1", item["customerRemoteID"])
				assert.Equal(t, "a@example.com", item["customerBusinessReference"])
			}
		})
	}
}
