// Package catalog runs the bulk product queries: it fans out list lookups
// across subscription lists, attaches product details in batches, filters
// by modification date and supplier, and optionally enriches products with
// pricing or supplier availability.
package catalog

import (
	"context"
	"fmt"
	"maps"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/reference"
)

// Source is the remote catalog as seen by the pipeline.
type Source interface {
	// ListItems returns the item headers of a subscription list.
	ListItems(ctx context.Context, list integration.SubscriptionList) ([]map[string]any, error)
	// ProductDetails returns details keyed by catalog item id.
	ProductDetails(ctx context.Context, ids []string) (map[string]map[string]any, error)
	// Pricing returns the pricing record of a catalog item at the configured location.
	Pricing(ctx context.Context, catalogItemID string) (any, error)
	// SupplierSkus returns the availability rows of the list's supplier.
	SupplierSkus(ctx context.Context, list integration.SubscriptionList) ([]map[string]any, error)
}

// Item is one product moving through the pipeline.
type Item struct {
	Header  map[string]any
	List    integration.SubscriptionList
	Details map[string]any
	// VendorSkus are the detail vendor rows belonging to the list's supplier.
	VendorSkus []any
	// VendorSku is the first of VendorSkus, nil when there is none.
	VendorSku   map[string]any
	Pricing     any
	SupplierSku map[string]any
}

// ID returns the catalog item id in its string form.
func (it *Item) ID() string {
	return reference.Format(it.Header["CatalogItemId"])
}

// RemoteID returns the catalog item id as received.
func (it *Item) RemoteID() any {
	return it.Header["CatalogItemId"]
}

// VendorPlacement controls where the selected supplier rows appear in a product document.
type VendorPlacement int

const (
	// VendorInDetails sets ProductDetails.VendorSku to the selected row.
	VendorInDetails VendorPlacement = iota
	// VendorsFiltered replaces ProductDetails.VendorSkus with the supplier's rows.
	VendorsFiltered
	// VendorTopLevel sets VendorSku on the product itself.
	VendorTopLevel
)

// Doc renders the product document: the header tagged with its subscription
// list plus ProductDetails and any enrichment. The item is not modified.
func (it *Item) Doc(placement VendorPlacement) map[string]any {
	doc := maps.Clone(it.Header)
	if doc == nil {
		doc = map[string]any{}
	}
	doc["subscriptionList"] = it.List.Map()

	if it.Details != nil {
		details := maps.Clone(it.Details)
		switch placement {
		case VendorInDetails:
			if it.VendorSku != nil {
				details["VendorSku"] = it.VendorSku
			}
		case VendorsFiltered:
			rows := it.VendorSkus
			if rows == nil {
				rows = []any{}
			}
			details["VendorSkus"] = rows
		}
		doc["ProductDetails"] = details
	}
	if placement == VendorTopLevel && it.VendorSku != nil {
		doc["VendorSku"] = it.VendorSku
	}
	if it.Pricing != nil {
		doc["Pricing"] = it.Pricing
	}
	if it.SupplierSku != nil {
		doc["SupplierSku"] = it.SupplierSku
	}
	return doc
}

// Assemble builds one output record per item:
// {doc, <entity>RemoteID, <entity>BusinessReference}.
func Assemble(items []*Item, entity string, placement VendorPlacement, ex *reference.Extractor) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		doc := it.Doc(placement)
		record := map[string]any{"doc": doc}
		record[entity+"RemoteID"] = it.RemoteID()
		record[entity+"BusinessReference"] = ""
		if ex != nil {
			ref, err := ex.Key(doc)
			if err != nil {
				return nil, fmt.Errorf("catalog: business reference of %s: %w", it.ID(), err)
			}
			record[entity+"BusinessReference"] = ref
		}
		out = append(out, record)
	}
	return out, nil
}
