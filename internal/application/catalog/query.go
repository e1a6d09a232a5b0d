package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

// Kind selects which product query the pipeline runs.
type Kind int

const (
	KindMatrix Kind = iota
	KindSimple
	KindPricing
	KindQuantity
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindMatrix:
		return "matrix"
	case KindSimple:
		return "simple"
	case KindPricing:
		return "pricing"
	case KindQuantity:
		return "quantity"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Entity is the payload entity name used for remote id and business reference keys.
func (k Kind) Entity() string {
	switch k {
	case KindMatrix:
		return "productMatrix"
	case KindSimple:
		return "productSimple"
	case KindPricing:
		return "productPricing"
	default:
		return "productQuantity"
	}
}

// Placement is where the selected vendor rows appear in the product document.
func (k Kind) Placement() VendorPlacement {
	switch k {
	case KindMatrix:
		return VendorInDetails
	case KindSimple:
		return VendorsFiltered
	default:
		return VendorTopLevel
	}
}

// Query describes one bulk product query.
type Query struct {
	Kind  Kind
	Lists []integration.SubscriptionList
	// Modified is the inclusive modification window. Matrix and simple
	// queries filter on item header and detail dates.
	Modified *integration.DateRange
	// MaxParallelRequests caps enrichment concurrency. 0 means unlimited.
	MaxParallelRequests int
	// FilterEnrichmentByModified additionally filters pricing and quantity
	// results on the enrichment record's own DateUpdatedUtc.
	FilterEnrichmentByModified bool
}

// Run executes the stages for q.Kind and returns the surviving items in list order.
func (p *Pipeline) Run(ctx context.Context, q Query) ([]*Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "catalog.query",
		telemetry.WithAttribute("kind", q.Kind.String()),
		telemetry.WithAttribute("lists", len(q.Lists)),
	)
	defer span.End()

	items, err := p.run(ctx, q)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrItemCount, len(items))
	telemetry.SetOK(span)
	return items, nil
}

func (p *Pipeline) run(ctx context.Context, q Query) ([]*Item, error) {
	log := p.logger.With(zap.Stringer("kind", q.Kind))

	lists, err := p.FetchLists(ctx, q.Lists)
	if err != nil {
		return nil, err
	}

	switch q.Kind {
	case KindMatrix:
		lists, err = KeepMatrix(lists)
	case KindSimple:
		lists, err = KeepSimple(lists)
	}
	if err != nil {
		return nil, err
	}

	items := Flatten(lists)
	log.Info("Get product details", zap.Int("items", len(items)))
	if err := p.AttachDetails(ctx, items); err != nil {
		return nil, err
	}

	if q.Modified != nil && (q.Kind == KindMatrix || q.Kind == KindSimple) {
		before := len(items)
		items = KeepModified(items, *q.Modified)
		log.Info("Keep modified items", zap.Int("kept", len(items)), zap.Int("total", before))
	}

	SelectVendors(items)

	switch q.Kind {
	case KindPricing:
		if err := p.AttachPricing(ctx, items, q.MaxParallelRequests); err != nil {
			return nil, err
		}
		if q.FilterEnrichmentByModified && q.Modified != nil {
			items = KeepPricingModified(items, *q.Modified)
		}
	case KindQuantity:
		if err := p.AttachAvailability(ctx, items, q.Lists, q.MaxParallelRequests); err != nil {
			return nil, err
		}
		if q.FilterEnrichmentByModified && q.Modified != nil {
			items = KeepAvailabilityModified(items, *q.Modified)
		}
	}

	log.Info("Query complete", zap.Int("items", len(items)))
	return items, nil
}
