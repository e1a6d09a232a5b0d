package remote

import (
	"context"
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/reference"
)

// CatalogSource reads catalog lists, product details, pricing and supplier
// availability for one channel.
type CatalogSource struct {
	client     integration.RemoteClient
	endpoints  Endpoints
	locationID string
}

// NewCatalogSource creates a catalog source. locationID is only needed for pricing.
func NewCatalogSource(client integration.RemoteClient, endpoints Endpoints, locationID string) *CatalogSource {
	return &CatalogSource{client: client, endpoints: endpoints, locationID: locationID}
}

// ListItems returns the Items of the catalog list identified by list.ListID.
func (s *CatalogSource) ListItems(ctx context.Context, list integration.SubscriptionList) ([]map[string]any, error) {
	u := s.endpoints.Company(APICatalogs, "/Catalog/Items(SourceId=%s)", reference.Format(list.ListID))
	resp, err := s.client.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	body, ok := resp.Body.(map[string]any)
	if !ok {
		return nil, integration.NewSchemaError("catalog list response is not an object", resp.Body)
	}
	return objects(body["Items"], "catalog list Items")
}

// ProductDetails posts one bulk detail request and returns CatalogItems keyed by id.
func (s *CatalogSource) ProductDetails(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	u := s.endpoints.Company(APICatalogs, "/Catalog/Items/ProductDetails/Bulk")
	resp, err := s.client.Post(ctx, u, map[string]any{"CatalogItemIds": ids})
	if err != nil {
		return nil, err
	}
	body, ok := resp.Body.(map[string]any)
	if !ok {
		return nil, integration.NewSchemaError("bulk detail response is not an object", resp.Body)
	}
	raw, ok := body["CatalogItems"].(map[string]any)
	if !ok {
		return nil, integration.NewSchemaError("bulk detail CatalogItems is not an object", resp.Body)
	}
	out := make(map[string]map[string]any, len(raw))
	for id, v := range raw {
		if d, ok := v.(map[string]any); ok {
			out[id] = d
		}
	}
	return out, nil
}

// Pricing returns the first pricing record of a catalog item at the channel location,
// or nil when the platform has none.
func (s *CatalogSource) Pricing(ctx context.Context, catalogItemID string) (any, error) {
	u := s.endpoints.Company(APIPricing, "/Entities(%s)/CatalogItems(%s)/Pricing", s.locationID, catalogItemID)
	resp, err := s.client.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	records, ok := resp.Body.([]any)
	if !ok {
		return nil, integration.NewSchemaError("pricing response is not an array", resp.Body)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// SupplierSkus returns the availability rows the list's supplier publishes to the company.
func (s *CatalogSource) SupplierSkus(ctx context.Context, list integration.SubscriptionList) ([]map[string]any, error) {
	u := s.endpoints.Path(APIAvailability, "/Suppliers(%s)/Companies(%s)/SupplierSkus",
		reference.Format(list.Supplier()), s.endpoints.CompanyID())
	resp, err := s.client.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return objects(resp.Body, "supplier sku response")
}

// objects asserts v is an array of objects.
func objects(v any, what string) ([]map[string]any, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, integration.NewSchemaError(what+" is not an array", v)
	}
	out := make([]map[string]any, len(arr))
	for i, elem := range arr {
		m, ok := elem.(map[string]any)
		if !ok {
			return nil, integration.NewSchemaError(fmt.Sprintf("%s element %d is not an object", what, i), v)
		}
		out[i] = m
	}
	return out, nil
}
