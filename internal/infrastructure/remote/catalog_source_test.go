package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
)

// newCatalogServer routes "<api> <path>" to canned JSON bodies.
func newCatalogServer(t *testing.T, routes map[string]string) (*CatalogSource, *[]string) {
	t.Helper()
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			b, _ := io.ReadAll(r.Body)
			if len(b) > 0 {
				bodies = append(bodies, string(b))
			}
		}
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	cfg := Config{HostTemplate: "{protocol}://" + strings.TrimPrefix(server.URL, "http://") + "/{api}{environment}"}
	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	endpoints := NewEndpoints(client.Config(), "http", "demo", "42")
	return NewCatalogSource(client.ForToken("tok"), endpoints, "1001"), &bodies
}

func TestCatalogSource_ListItems(t *testing.T) {
	src, _ := newCatalogServer(t, map[string]string{
		"GET /catalogsdemo/Companies(42)/Catalog/Items(SourceId=L-1)": `{"Items":[{"CatalogItemId":"a","Slug":"hat"}]}`,
		"GET /catalogsdemo/Companies(42)/Catalog/Items(SourceId=L-2)": `{"Items":{}}`,
	})

	items, err := src.ListItems(context.Background(), integration.SubscriptionList{ListID: "L-1"})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"CatalogItemId": "a", "Slug": "hat"}}, items)

	_, err = src.ListItems(context.Background(), integration.SubscriptionList{ListID: "L-2"})
	assert.ErrorIs(t, err, integration.ErrPlatformInvalidResponse)

	_, err = src.ListItems(context.Background(), integration.SubscriptionList{ListID: "missing"})
	var statusErr *integration.RemoteStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestCatalogSource_ProductDetails(t *testing.T) {
	src, bodies := newCatalogServer(t, map[string]string{
		"POST /catalogsdemo/Companies(42)/Catalog/Items/ProductDetails/Bulk": `{"CatalogItems":{"a":{"Name":"Hat"},"b":{"Name":"Mug"}}}`,
	})

	details, err := src.ProductDetails(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "Hat", details["a"]["Name"])
	assert.Equal(t, "Mug", details["b"]["Name"])

	require.Len(t, *bodies, 1)
	var sent map[string][]string
	require.NoError(t, json.Unmarshal([]byte((*bodies)[0]), &sent))
	assert.Equal(t, []string{"a", "b"}, sent["CatalogItemIds"])
}

func TestCatalogSource_Pricing(t *testing.T) {
	src, _ := newCatalogServer(t, map[string]string{
		"GET /pricingdemo/Companies(42)/Entities(1001)/CatalogItems(a)/Pricing": `[{"RegularPrice":10},{"RegularPrice":11}]`,
		"GET /pricingdemo/Companies(42)/Entities(1001)/CatalogItems(b)/Pricing": `[]`,
		"GET /pricingdemo/Companies(42)/Entities(1001)/CatalogItems(c)/Pricing": `{"RegularPrice":10}`,
	})

	pricing, err := src.Pricing(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, json.Number("10"), pricing.(map[string]any)["RegularPrice"])

	pricing, err = src.Pricing(context.Background(), "b")
	require.NoError(t, err)
	assert.Nil(t, pricing)

	_, err = src.Pricing(context.Background(), "c")
	assert.ErrorIs(t, err, integration.ErrPlatformInvalidResponse)
}

func TestCatalogSource_SupplierSkus(t *testing.T) {
	src, _ := newCatalogServer(t, map[string]string{
		"GET /availabilitydemo/Suppliers(7)/Companies(42)/SupplierSkus": `[{"SupplierSku":"S1","SupplierEntityId":7,"Quantity":2}]`,
		"GET /availabilitydemo/Suppliers(8)/Companies(42)/SupplierSkus": `[1]`,
	})

	rows, err := src.SupplierSkus(context.Background(), integration.SubscriptionList{ListID: "L", EntityID: json.Number("7")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "S1", rows[0]["SupplierSku"])

	_, err = src.SupplierSkus(context.Background(), integration.SubscriptionList{ListID: "L", SupplierID: 8})
	assert.ErrorIs(t, err, integration.ErrPlatformInvalidResponse)
}
