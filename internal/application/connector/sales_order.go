package connector

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/erp/connector/internal/application/catalog"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/reference"
	"github.com/erp/connector/internal/domain/validation"
	"github.com/erp/connector/internal/infrastructure/remote"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

// InsertSalesOrder is the sales order function name.
const InsertSalesOrder = "InsertSalesOrder"

const entitySalesOrder = "salesOrder"

func salesOrderFunction() *definition {
	return &definition{
		name:       InsertSalesOrder,
		references: []string{entitySalesOrder},
		settings:   remoteSettings(validation.Field("canPostInvoice", validation.NonEmptyString)),
		auth:       remoteAuth(),
		doc: []validation.Rule{
			validation.Field("DropshipOrder", validation.Object,
				validation.Field("Items", validation.NonEmptyArray)),
			validation.Field("SalesOrder", validation.Object),
		},
		check:  checkOrderItems,
		handle: insertSalesOrder,
	}
}

// checkOrderItems requires every order line to be an object.
func checkOrderItems(payload map[string]any) []string {
	doc := payload["doc"].(map[string]any)
	var messages []string
	for _, order := range []string{"DropshipOrder", "SalesOrder"} {
		items, _ := doc[order].(map[string]any)["Items"].([]any)
		for i, item := range items {
			if _, ok := item.(map[string]any); !ok {
				messages = append(messages, fmt.Sprintf("The payload.doc.%s.Items[%d] object is invalid.", order, i))
			}
		}
	}
	return messages
}

// vendorKey identifies a catalog item by the supplier's SKU.
type vendorKey struct {
	sku      string
	supplier string
}

type catalogLookup struct {
	key       vendorKey
	catalogID any
}

// salesOrder is the working copy of payload.doc.
type salesOrder struct {
	dropship map[string]any
	sales    map[string]any
}

func (o salesOrder) dropshipItems() []map[string]any { return orderItems(o.dropship) }
func (o salesOrder) salesItems() []map[string]any    { return orderItems(o.sales) }

func orderItems(order map[string]any) []map[string]any {
	raw, _ := order["Items"].([]any)
	items := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		items = append(items, item.(map[string]any))
	}
	return items
}

// insertSalesOrder posts the dropship order, processes it and posts the sales
// order that invoices it. Once the dropship order exists remotely any later
// failure is reported as 500.
func insertSalesOrder(ctx context.Context, req *Request, res *Result) error {
	doc := clone(req.Doc).(map[string]any)
	order := salesOrder{
		dropship: doc["DropshipOrder"].(map[string]any),
		sales:    doc["SalesOrder"].(map[string]any),
	}

	applyCustomerIDs(req, order)
	if err := resolveCatalogIDs(ctx, req, order); err != nil {
		return err
	}

	req.Logger.Info("Posting dropship order")
	dropshipResp, err := req.Remote.Post(ctx, req.Endpoints.Company(remote.APIOrder, "/OrderFull"), order.dropship)
	if err != nil {
		req.Logger.Error("Error posting dropship order")
		return err
	}
	res.Endpoint(dropshipResp.StatusCode, "")
	dropship, err := asObject(dropshipResp, "dropship order")
	if err != nil {
		return err
	}
	dropshipID, err := remoteID(dropship, "dropship order")
	if err != nil {
		return err
	}
	req.Logger.Info("Posted dropship order", zap.Any("id", dropshipID))

	res.Preset(integration.StatusInternalError)

	req.Logger.Info("Processing dropship order")
	processURL := req.Endpoints.Company(remote.APIOrder, "/Orders(%s)/Process", reference.Format(dropshipID))
	if _, err := req.Remote.Post(ctx, processURL, map[string]any{"OrderId": dropshipID}); err != nil {
		req.Logger.Error("Error processing dropship order")
		return err
	}

	req.Logger.Info("Posting sales order")
	order.sales["DropshipOrderId"] = dropshipID
	salesURL := req.Endpoints.Company(remote.APISalesOrder, "/%s", req.Profile.Settings.CanPostInvoice)
	salesResp, err := req.Remote.Post(ctx, salesURL, order.sales)
	if err != nil {
		req.Logger.Error("Error posting sales order")
		return err
	}
	if body, ok := salesResp.Body.(map[string]any); ok {
		req.Logger.Info("Posted sales order", zap.Any("id", body["Id"]))
	}

	ref, err := req.Reference(entitySalesOrder, map[string]any{"DropshipOrder": dropship})
	if err != nil {
		return err
	}
	res.Status(dropshipResp.StatusCode)
	res.Set("salesOrderRemoteID", dropshipID)
	res.Set("salesOrderBusinessReference", ref)
	return nil
}

// applyCustomerIDs copies the remote customer and address ids onto both orders.
// Billing and shipping customers fall back to the order's customer.
func applyCustomerIDs(req *Request, order salesOrder) {
	customerID := nonEmptyString(req.PayloadValue("customerRemoteID"))
	pick := func(key string) string {
		if id := nonEmptyString(req.PayloadValue(key)); id != "" {
			return id
		}
		return customerID
	}

	if id := pick("billingCustomerRemoteID"); id != "" {
		order.dropship["BillingCustomerId"] = id
	}
	if id := pick("shippingCustomerRemoteID"); id != "" {
		order.dropship["ShippingCustomerId"] = id
	}
	if id := nonEmptyString(req.PayloadValue("billingAddressRemoteID")); id != "" {
		order.dropship["BillingAddressId"] = id
		order.sales["BillingAddressId"] = id
	}
	if id := nonEmptyString(req.PayloadValue("shippingAddressRemoteID")); id != "" {
		order.dropship["ShippingAddressId"] = id
		order.sales["ShippingAddressId"] = id
	}
	if customerID != "" {
		order.sales["CustomerId"] = customerID
	}
}

func nonEmptyString(v any) string {
	if v == nil {
		return ""
	}
	return reference.Format(v)
}

// resolveCatalogIDs looks up the catalog item of every distinct vendor SKU on
// the order and writes it to the order lines.
func resolveCatalogIDs(ctx context.Context, req *Request, order salesOrder) error {
	ctx, span := telemetry.StartSpan(ctx, "connector.resolve_catalog_ids")
	defer span.End()

	index := map[vendorKey]*catalogLookup{}
	var lookups []*catalogLookup
	add := func(sku, supplier any) *catalogLookup {
		key := vendorKey{sku: reference.Format(sku), supplier: reference.Format(supplier)}
		if l, ok := index[key]; ok {
			return l
		}
		l := &catalogLookup{key: key}
		index[key] = l
		lookups = append(lookups, l)
		return l
	}
	dropshipLines := order.dropshipItems()
	salesLines := order.salesItems()
	dropshipLookups := make([]*catalogLookup, len(dropshipLines))
	for i, item := range dropshipLines {
		dropshipLookups[i] = add(item["SKU"], item["SupplierEntityId"])
	}
	salesLookups := make([]*catalogLookup, len(salesLines))
	for i, item := range salesLines {
		salesLookups[i] = add(item["CorrelationId"], item["SupplierEntityId"])
	}

	req.Logger.Info("Getting product catalog ids", zap.Int("count", len(lookups)))
	telemetry.SetAttributes(span, telemetry.SpanAttrItemCount, len(lookups))
	err := catalog.RunBatches(ctx, lookups, req.Profile.Settings.MaxParallelRequests,
		func(ctx context.Context, l *catalogLookup) error {
			id, err := lookupCatalogID(ctx, req, l.key)
			l.catalogID = id
			return err
		})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	for i, item := range dropshipLines {
		item["ProductId"] = dropshipLookups[i].catalogID
	}
	for i, item := range salesLines {
		item["ProductCatalogId"] = salesLookups[i].catalogID
	}
	return nil
}

// lookupCatalogID finds the single catalog item sold under a vendor SKU.
func lookupCatalogID(ctx context.Context, req *Request, key vendorKey) (any, error) {
	resp, err := req.Remote.Get(ctx, req.Endpoints.Company(remote.APICatalogs, "/Catalog/Items/ByVendorSku"),
		url.Values{"vendorsku": {key.sku}, "vendorid": {key.supplier}})
	if err != nil {
		return nil, err
	}
	body, err := asObject(resp, "catalog lookup")
	if err != nil {
		return nil, err
	}
	items, _ := body["Items"].([]any)
	switch len(items) {
	case 0:
		return nil, fmt.Errorf("%w: no catalog id for vendorSku %q and supplierId %q",
			integration.ErrRecordNotFound, key.sku, key.supplier)
	case 1:
		item, ok := items[0].(map[string]any)
		if !ok || item["CatalogItemId"] == nil {
			return nil, integration.NewSchemaError("catalog lookup item has no CatalogItemId", body)
		}
		req.Logger.Debug("Found catalog id",
			zap.Any("catalog_item_id", item["CatalogItemId"]),
			zap.String("vendor_sku", key.sku),
			zap.String("supplier_id", key.supplier))
		return item["CatalogItemId"], nil
	default:
		return nil, &integration.ConflictError{
			Subject: fmt.Sprintf("catalog ids for vendorSku %q and supplierId %q", key.sku, key.supplier),
			Records: items,
		}
	}
}
