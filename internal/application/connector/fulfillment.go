package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/connector/internal/application/catalog"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/reference"
	"github.com/erp/connector/internal/domain/validation"
)

// GetFulfillmentFromQuery is the fulfillment query function name.
const GetFulfillmentFromQuery = "GetFulfillmentFromQuery"

const entityFulfillment = "fulfillment"

// reportTimeLayout is the timestamp format of the reporting filter.
const reportTimeLayout = "2006-01-02T15:04:05.000Z"

var dropshipOrderIDPath = mustParsePath("dropshipOrderItems[0].dropshipOrderId")

func mustParsePath(expr string) *reference.Path {
	p, err := reference.ParsePath(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func fulfillmentFunction() *definition {
	return &definition{
		name:       GetFulfillmentFromQuery,
		references: []string{entityFulfillment, entitySalesOrder},
		settings: []validation.Rule{
			validation.Field("protocol", validation.NonEmptyString),
			validation.Field("api_uri", validation.NonEmptyString),
		},
		auth:   remoteAuth(),
		check:  checkFulfillmentQuery,
		handle: getFulfillments,
	}
}

var fulfillmentCriteria = []string{"remoteIDs", "searchFields", "modifiedDateRange"}

// checkFulfillmentQuery requires exactly one well-formed search criterion.
func checkFulfillmentQuery(payload map[string]any) []string {
	doc := payload["doc"].(map[string]any)
	var given []string
	for _, key := range fulfillmentCriteria {
		if doc[key] != nil {
			given = append(given, key)
		}
	}
	switch len(given) {
	case 0:
		return []string{"The payload.doc object must contain one of remoteIDs, searchFields or modifiedDateRange."}
	case 1:
	default:
		return []string{fmt.Sprintf("The payload.doc object may contain only one of remoteIDs, searchFields or modifiedDateRange (found %s).",
			strings.Join(given, " and "))}
	}

	switch given[0] {
	case "remoteIDs":
		return validation.Validate("payload.doc", doc, []validation.Rule{
			validation.Field("remoteIDs", validation.NonEmptyArray),
		})
	case "searchFields":
		return validation.Validate("payload.doc", doc, []validation.Rule{
			validation.Field("searchFields", validation.NonEmptyArray,
				validation.Field("searchField", validation.NonEmptyString),
				validation.Field("searchValues", validation.NonEmptyArray)),
		})
	default:
		if msgs := validation.Validate("payload.doc", doc, []validation.Rule{
			validation.Field("modifiedDateRange", validation.Object),
		}); len(msgs) > 0 {
			return msgs
		}
		mdr, err := decodeModifiedDateRange(doc)
		if err != nil {
			return []string{fmt.Sprintf("The payload.doc.modifiedDateRange object is invalid (%v).", err)}
		}
		if mdr.StartDateGMT == "" && mdr.EndDateGMT == "" {
			return []string{"The payload.doc.modifiedDateRange object needs startDateGMT or endDateGMT."}
		}
		return validation.Struct("payload.doc.modifiedDateRange", mdr)
	}
}

// reportFilters returns one report filter per query the criterion expands to.
func reportFilters(companyID string, doc map[string]any) ([]string, error) {
	prefix := "companyId eq " + companyID + " and "
	var filters []string
	switch {
	case doc["remoteIDs"] != nil:
		for _, id := range doc["remoteIDs"].([]any) {
			filters = append(filters, prefix+"id eq "+reference.Format(id))
		}
	case doc["searchFields"] != nil:
		for _, clause := range searchClauses(doc["searchFields"].([]any)) {
			filters = append(filters, prefix+clause)
		}
	default:
		mdr, err := decodeModifiedDateRange(doc)
		if err != nil {
			return nil, err
		}
		// The report only compares exclusively; widen each bound by 1ms.
		var bounds []string
		if t, ok := integration.ParseInstant(mdr.StartDateGMT); ok {
			bounds = append(bounds, "updatedUtc gt "+t.Add(-time.Millisecond).UTC().Format(reportTimeLayout))
		}
		if t, ok := integration.ParseInstant(mdr.EndDateGMT); ok {
			bounds = append(bounds, "updatedUtc lt "+t.Add(time.Millisecond).UTC().Format(reportTimeLayout))
		}
		filters = append(filters, prefix+strings.Join(bounds, " and "))
	}
	return filters, nil
}

// searchClauses expands searchFields into the cartesian product of their
// values, one "field eq 'value'" term per field.
func searchClauses(fields []any) []string {
	clauses := []string{""}
	for _, raw := range fields {
		field := raw.(map[string]any)
		name := reference.Format(field["searchField"])
		var next []string
		for _, clause := range clauses {
			for _, v := range field["searchValues"].([]any) {
				term := name + " eq " + odataLiteral(reference.Format(v))
				if clause != "" {
					term = clause + " and " + term
				}
				next = append(next, term)
			}
		}
		clauses = next
	}
	return clauses
}

type orderReport struct {
	rows  []map[string]any
	total int
}

func getFulfillments(ctx context.Context, req *Request, res *Result) error {
	filters, err := reportFilters(req.Endpoints.CompanyID(), req.Doc)
	if err != nil {
		return err
	}
	apiURI := req.Profile.Settings.APIURI
	paging := url.Values{}
	for _, key := range []string{"page", "pageSize"} {
		if v := req.Doc[key]; v != nil {
			paging.Set(key, reference.Format(v))
		}
	}

	pages := make([]orderReport, len(filters))
	statuses := make([]int, len(filters))
	err = catalog.RunBatches(ctx, indexes(len(filters)), req.Profile.Settings.MaxParallelRequests,
		func(ctx context.Context, i int) error {
			query := url.Values{"filter": {filters[i]}}
			for k, v := range paging {
				query[k] = v
			}
			req.Logger.Info("Querying order report", zap.String("filter", filters[i]))
			resp, err := req.Remote.Get(ctx, req.Endpoints.Reporting(apiURI, "/Reports/OrderList/report"), query)
			if err != nil {
				return err
			}
			statuses[i] = resp.StatusCode
			pages[i], err = decodeOrderReport(resp)
			return err
		})
	if err != nil {
		return err
	}
	var report orderReport
	for _, page := range pages {
		report.rows = append(report.rows, page.rows...)
		report.total += page.total
	}
	status := statuses[len(statuses)-1]
	res.Endpoint(status, "")

	if len(report.rows) == 0 {
		req.Logger.Info("No orders found")
		res.Status(integration.StatusNoContent)
		return nil
	}

	items := make([]any, len(report.rows))
	err = catalog.RunBatches(ctx, indexes(len(report.rows)), req.Profile.Settings.MaxParallelRequests,
		func(ctx context.Context, i int) error {
			items[i] = fulfillmentItem(ctx, req, apiURI, report.rows[i])
			return nil
		})
	if err != nil {
		return err
	}

	if len(report.rows) < report.total {
		res.Status(integration.StatusPartialContent)
	} else {
		res.Status(integration.StatusOK)
	}
	res.Items(items)
	return nil
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func decodeOrderReport(resp *integration.RemoteResponse) (orderReport, error) {
	body, err := asObject(resp, "order report")
	if err != nil {
		return orderReport{}, err
	}
	rows, ok := body["rows"].([]any)
	if !ok && body["rows"] != nil {
		return orderReport{}, integration.NewSchemaError("order report rows is not an array", body)
	}
	report := orderReport{rows: make([]map[string]any, 0, len(rows))}
	for i, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			return orderReport{}, integration.NewSchemaError(fmt.Sprintf("order report row %d is not an object", i), body)
		}
		report.rows = append(report.rows, row)
	}
	report.total = len(rows)
	if n, ok := body["totalRecords"].(json.Number); ok {
		if total, err := n.Int64(); err == nil {
			report.total = int(total)
		}
	}
	return report, nil
}

// fulfillmentItem fetches the order detail behind a report row. Failures are
// reported on the item so one bad order does not fail the query.
func fulfillmentItem(ctx context.Context, req *Request, apiURI string, row map[string]any) map[string]any {
	item := map[string]any{}
	orderID := reference.Format(row["_id"])
	u := req.Endpoints.Reporting(apiURI, "/Companies(%s)/OrderDetails(%s)", req.Endpoints.CompanyID(), orderID)
	resp, err := req.Remote.Get(ctx, u, nil)
	if err != nil {
		req.Logger.Warn("Failed to get order detail", zap.String("order_id", orderID), zap.Error(err))
		failItem(item, err)
		return item
	}
	item["response"] = integration.EndpointResponse{EndpointStatusCode: resp.StatusCode}

	doc, err := asObject(resp, "order detail")
	if err == nil {
		err = fillFulfillment(req, item, doc)
	}
	if err != nil {
		failItem(item, err)
		return item
	}
	item["ncStatusCode"] = integration.StatusOK
	return item
}

func fillFulfillment(req *Request, item, doc map[string]any) error {
	fulfillmentRef, err := req.Reference(entityFulfillment, doc)
	if err != nil {
		return err
	}
	salesOrderRef, err := req.Reference(entitySalesOrder, doc)
	if err != nil {
		return err
	}
	item["doc"] = doc
	item["fulfillmentRemoteID"] = doc["id"]
	item["fulfillmentBusinessReference"] = fulfillmentRef
	item["salesOrderRemoteID"] = dropshipOrderIDPath.Evaluate(doc)
	item["salesOrderBusinessReference"] = salesOrderRef
	return nil
}

func failItem(item map[string]any, err error) {
	var statusErr *integration.RemoteStatusError
	if errors.As(err, &statusErr) {
		item["response"] = integration.EndpointResponse{
			EndpointStatusCode:    statusErr.StatusCode,
			EndpointStatusMessage: statusErr.Message,
		}
		item["ncStatusCode"] = integration.DefaultStatusPolicy.Map(statusErr.StatusCode)
		if statusErr.Body != nil {
			item["error"] = statusErr.Body
		} else {
			item["error"] = statusErr.Error()
		}
		return
	}
	item["ncStatusCode"] = integration.StatusInternalError
	item["error"] = err.Error()
}
