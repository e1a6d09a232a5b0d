package connector

import (
	"context"

	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
)

// Extract function names.
const (
	ExtractCustomerFromSalesOrder        = "ExtractCustomerFromSalesOrder"
	ExtractBillingAddressFromSalesOrder  = "ExtractBillingAddressFromSalesOrder"
	ExtractShippingAddressFromSalesOrder = "ExtractShippingAddressFromSalesOrder"
	ExtractCustomerAddressesFromCustomer = "ExtractCustomerAddressesFromCustomer"
	ExtractCustomerContactsFromCustomer  = "ExtractCustomerContactsFromCustomer"
)

// Extract functions never reach the remote platform, so they only need the
// channel settings and auth objects to be present.
func extractFunctions() []*definition {
	return []*definition{
		{name: ExtractCustomerFromSalesOrder, handle: extractObject("Customer")},
		{name: ExtractBillingAddressFromSalesOrder, handle: extractObject("BillingAddress")},
		{name: ExtractShippingAddressFromSalesOrder, handle: extractObject("ShippingAddress")},
		{name: ExtractCustomerAddressesFromCustomer, handle: extractChildren("Addresses")},
		{name: ExtractCustomerContactsFromCustomer, handle: extractChildren("ContactMethods")},
	}
}

// extractObject answers doc[field] as the new doc, or 204 when it is absent or empty.
func extractObject(field string) handler {
	return func(_ context.Context, req *Request, res *Result) error {
		req.Logger.Info("Extracting " + field)
		v := req.Doc[field]
		if !isNonEmptyObject(v) {
			req.Logger.Warn("Nothing to extract", zap.String("field", field))
			res.Status(integration.StatusNoContent)
			return nil
		}
		res.Set("doc", v)
		res.Status(integration.StatusOK)
		return nil
	}
}

// extractChildren fans doc[field] out into one item per element, each carrying
// the customer it belongs to.
func extractChildren(field string) handler {
	return func(_ context.Context, req *Request, res *Result) error {
		req.Logger.Info("Extracting " + field)
		children, _ := req.Doc[field].([]any)
		if len(children) == 0 {
			req.Logger.Warn("Nothing to extract", zap.String("field", field))
			res.Status(integration.StatusNoContent)
			return nil
		}
		items := make([]any, len(children))
		for i, child := range children {
			items[i] = map[string]any{
				"doc":                       child,
				"customerRemoteID":          req.PayloadValue("customerRemoteID"),
				"customerBusinessReference": req.PayloadValue("customerBusinessReference"),
			}
		}
		res.Items(items)
		res.Status(integration.StatusOK)
		return nil
	}
}
