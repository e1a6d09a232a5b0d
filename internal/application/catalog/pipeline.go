package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/reference"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

// DefaultDetailBatchSize is the number of ids sent per bulk detail request.
const DefaultDetailBatchSize = 500

// Pipeline executes the query stages against a Source.
type Pipeline struct {
	source    Source
	logger    *zap.Logger
	batchSize int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDetailBatchSize overrides DefaultDetailBatchSize. Values below 1 are ignored.
func WithDetailBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// NewPipeline creates a pipeline reading from source.
func NewPipeline(source Source, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{source: source, logger: logger, batchSize: DefaultDetailBatchSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ----------------------------------------------------------------------------
// Stage 1: list fetch
// ----------------------------------------------------------------------------

// FetchLists fetches every subscription list concurrently and tags each header
// with its list. Result order follows lists. Any failure fails the stage.
func (p *Pipeline) FetchLists(ctx context.Context, lists []integration.SubscriptionList) ([][]*Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "catalog.fetch_lists", telemetry.WithAttribute("lists", len(lists)))
	defer span.End()

	out := make([][]*Item, len(lists))
	g, gctx := errgroup.WithContext(ctx)
	for i, list := range lists {
		g.Go(func() error {
			p.logger.Info("Get product list", zap.Any("list_id", list.ListID))
			headers, err := p.source.ListItems(gctx, list)
			if err != nil {
				return err
			}
			items := make([]*Item, len(headers))
			for j, h := range headers {
				items[j] = &Item{Header: h, List: list}
			}
			out[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Stage 2: variant classification
// ----------------------------------------------------------------------------

// baseSlug is the slug prefix before the first "-".
func baseSlug(it *Item) (string, error) {
	slug, ok := it.Header["Slug"].(string)
	if !ok {
		return "", integration.NewSchemaError(fmt.Sprintf("catalog item %s has no Slug", it.ID()), it.Header)
	}
	base, _, _ := strings.Cut(slug, "-")
	return base, nil
}

func classify(lists [][]*Item, keep func(groupSize int) bool) ([][]*Item, error) {
	out := make([][]*Item, len(lists))
	for i, items := range lists {
		bases := make([]string, len(items))
		counts := make(map[string]int, len(items))
		for j, it := range items {
			base, err := baseSlug(it)
			if err != nil {
				return nil, err
			}
			bases[j] = base
			counts[base]++
		}
		kept := make([]*Item, 0, len(items))
		for j, it := range items {
			if keep(counts[bases[j]]) {
				kept = append(kept, it)
			}
		}
		out[i] = kept
	}
	return out, nil
}

// KeepMatrix keeps, per list, the items whose base slug is shared with at least one sibling.
func KeepMatrix(lists [][]*Item) ([][]*Item, error) {
	return classify(lists, func(n int) bool { return n > 1 })
}

// KeepSimple keeps, per list, the items whose base slug is unique within the list.
func KeepSimple(lists [][]*Item) ([][]*Item, error) {
	return classify(lists, func(n int) bool { return n == 1 })
}

// ----------------------------------------------------------------------------
// Stage 3: flatten
// ----------------------------------------------------------------------------

// Flatten concatenates the lists in order.
func Flatten(lists [][]*Item) []*Item {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]*Item, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// Count returns the total number of items across lists.
func Count(lists [][]*Item) int {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	return n
}

// ----------------------------------------------------------------------------
// Stage 4: batched details
// ----------------------------------------------------------------------------

// AttachDetails fetches details for every item in batches of the configured size,
// all batches concurrently, and attaches them by id. An id absent from every
// response is a *integration.MissingDetailError.
func (p *Pipeline) AttachDetails(ctx context.Context, items []*Item) error {
	if len(items) == 0 {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, "catalog.attach_details", telemetry.WithAttribute("items", len(items)))
	defer span.End()

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID()
	}
	batches := Chunk(ids, p.batchSize)
	results := make([]map[string]map[string]any, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			p.logger.Info("Get product details", zap.Int("count", len(batch)))
			details, err := p.source.ProductDetails(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = details
			telemetry.AddEvent(span, "catalog.detail_batch", "batch", i, "ids", len(batch), "details", len(details))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	merged := make(map[string]map[string]any, len(ids))
	for _, r := range results {
		for id, d := range r {
			merged[id] = d
		}
	}
	for _, it := range items {
		d, ok := merged[it.ID()]
		if !ok || d == nil {
			err := &integration.MissingDetailError{ID: it.ID()}
			telemetry.RecordError(span, err)
			return err
		}
		it.Details = d
	}
	return nil
}

// ----------------------------------------------------------------------------
// Stage 5: modified date filter
// ----------------------------------------------------------------------------

// KeepModified keeps items whose header or detail DateUpdatedUtc lies in r.
func KeepModified(items []*Item, r integration.DateRange) []*Item {
	return KeepWhere(items, func(it *Item) bool {
		return r.ContainsValue(it.Header["DateUpdatedUtc"]) || r.ContainsValue(it.Details["DateUpdatedUtc"])
	})
}

// KeepPricingModified keeps items whose pricing DateUpdatedUtc lies in r.
func KeepPricingModified(items []*Item, r integration.DateRange) []*Item {
	return KeepWhere(items, func(it *Item) bool {
		pricing, _ := it.Pricing.(map[string]any)
		return r.ContainsValue(pricing["DateUpdatedUtc"])
	})
}

// KeepAvailabilityModified keeps items whose supplier SKU DateUpdatedUtc lies in r.
func KeepAvailabilityModified(items []*Item, r integration.DateRange) []*Item {
	return KeepWhere(items, func(it *Item) bool {
		return r.ContainsValue(it.SupplierSku["DateUpdatedUtc"])
	})
}

// KeepWhere returns the items satisfying keep, in order.
func KeepWhere(items []*Item, keep func(*Item) bool) []*Item {
	out := make([]*Item, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// Stage 6: vendor selection
// ----------------------------------------------------------------------------

// SelectVendors keeps the detail vendor rows whose Entity.Id loosely equals the
// list's supplier. The first such row becomes VendorSku.
func SelectVendors(items []*Item) {
	for _, it := range items {
		supplier := it.List.Supplier()
		rows, _ := it.Details["VendorSkus"].([]any)

		it.VendorSkus = []any{}
		it.VendorSku = nil
		for _, row := range rows {
			vendor, ok := row.(map[string]any)
			if !ok {
				continue
			}
			entity, ok := vendor["Entity"].(map[string]any)
			if !ok || !reference.LooseEqual(entity["Id"], supplier) {
				continue
			}
			it.VendorSkus = append(it.VendorSkus, vendor)
			if it.VendorSku == nil {
				it.VendorSku = vendor
			}
		}
	}
}

// ----------------------------------------------------------------------------
// Stage 7: enrichment
// ----------------------------------------------------------------------------

// AttachPricing fetches pricing per item, maxParallel items at a time.
func (p *Pipeline) AttachPricing(ctx context.Context, items []*Item, maxParallel int) error {
	ctx, span := telemetry.StartSpan(ctx, "catalog.attach_pricing", telemetry.WithAttribute("items", len(items)))
	defer span.End()

	err := RunBatches(ctx, items, maxParallel, func(ctx context.Context, it *Item) error {
		pricing, err := p.source.Pricing(ctx, it.ID())
		if err != nil {
			return err
		}
		it.Pricing = pricing
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return err
}

// AttachAvailability fetches the availability rows of every list, maxParallel
// lists at a time, and joins them to items on vendor SKU value and supplier.
// More than one matching row is a *integration.ConflictError.
func (p *Pipeline) AttachAvailability(ctx context.Context, items []*Item, lists []integration.SubscriptionList, maxParallel int) error {
	ctx, span := telemetry.StartSpan(ctx, "catalog.attach_availability", telemetry.WithAttribute("lists", len(lists)))
	defer span.End()

	perList := make([][]map[string]any, len(lists))
	indexes := make([]int, len(lists))
	for i := range lists {
		indexes[i] = i
	}
	err := RunBatches(ctx, indexes, maxParallel, func(ctx context.Context, i int) error {
		p.logger.Info("Get supplier availability", zap.Any("supplier", lists[i].Supplier()))
		rows, err := p.source.SupplierSkus(ctx, lists[i])
		if err != nil {
			return err
		}
		perList[i] = rows
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	var rows []map[string]any
	for _, r := range perList {
		rows = append(rows, r...)
	}

	for _, it := range items {
		if it.VendorSku == nil {
			continue
		}
		sku := it.VendorSku["Value"]
		supplier := it.List.Supplier()
		var matches []any
		for _, row := range rows {
			if reference.LooseEqual(row["SupplierSku"], sku) && reference.LooseEqual(row["SupplierEntityId"], supplier) {
				matches = append(matches, row)
			}
		}
		switch len(matches) {
		case 0:
		case 1:
			it.SupplierSku = matches[0].(map[string]any)
		default:
			err := &integration.ConflictError{
				Subject: fmt.Sprintf("vendor sku %s for supplier %s", reference.Format(sku), reference.Format(supplier)),
				Records: matches,
			}
			telemetry.RecordError(span, err)
			return err
		}
	}
	return nil
}
