package connector

import (
	"context"
	"fmt"

	"github.com/erp/connector/internal/application/catalog"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/validation"
	"github.com/erp/connector/internal/infrastructure/remote"
)

// Product query function names.
const (
	GetProductMatrixFromQuery   = "GetProductMatrixFromQuery"
	GetProductSimpleFromQuery   = "GetProductSimpleFromQuery"
	GetProductPricingFromQuery  = "GetProductPricingFromQuery"
	GetProductQuantityFromQuery = "GetProductQuantityFromQuery"
)

func (r *Registry) productFunctions() []*definition {
	return []*definition{
		r.productQuery(GetProductMatrixFromQuery, catalog.KindMatrix, false, nil, nil),
		r.productQuery(GetProductSimpleFromQuery, catalog.KindSimple, false, nil, nil),
		r.productQuery(GetProductPricingFromQuery, catalog.KindPricing, r.catalog.FilterPricingByModified,
			[]validation.Rule{validation.Field("maxParallelRequests", validation.Integer)},
			[]validation.Rule{validation.Field("location_id", validation.Identifier)}),
		r.productQuery(GetProductQuantityFromQuery, catalog.KindQuantity, r.catalog.FilterQuantityByModified, nil, nil),
	}
}

func (r *Registry) productQuery(name string, kind catalog.Kind, filterEnrichment bool, settings, auth []validation.Rule) *definition {
	settings = append([]validation.Rule{validation.Field("subscriptionLists", validation.NonEmptyArray)}, settings...)
	return &definition{
		name:        name,
		references:  []string{kind.Entity()},
		settings:    remoteSettings(settings...),
		auth:        remoteAuth(auth...),
		flowContext: true,
		doc: []validation.Rule{
			validation.Field("modifiedDateRange", validation.Object,
				validation.Field("startDateGMT", validation.NonEmptyString),
				validation.Field("endDateGMT", validation.NonEmptyString)),
		},
		check: checkModifiedDateRange,
		handle: func(ctx context.Context, req *Request, res *Result) error {
			return r.runProductQuery(ctx, req, res, kind, filterEnrichment)
		},
	}
}

func decodeModifiedDateRange(doc map[string]any) (integration.ModifiedDateRange, error) {
	var mdr integration.ModifiedDateRange
	err := validation.Decode(doc["modifiedDateRange"], &mdr)
	return mdr, err
}

// checkModifiedDateRange requires both bounds to be timestamps in order.
func checkModifiedDateRange(payload map[string]any) []string {
	mdr, err := decodeModifiedDateRange(payload["doc"].(map[string]any))
	if err != nil {
		return []string{fmt.Sprintf("The payload.doc.modifiedDateRange object is invalid (%v).", err)}
	}
	return validation.Struct("payload.doc.modifiedDateRange", mdr)
}

func (r *Registry) runProductQuery(ctx context.Context, req *Request, res *Result, kind catalog.Kind, filterEnrichment bool) error {
	mdr, err := decodeModifiedDateRange(req.Doc)
	if err != nil {
		return err
	}
	window, err := mdr.Range()
	if err != nil {
		return err
	}

	source := remote.NewCatalogSource(req.Remote, req.Endpoints, req.Profile.Auth.LocationID)
	pipeline := catalog.NewPipeline(source, req.Logger, catalog.WithDetailBatchSize(r.catalog.DetailBatchSize))
	items, err := pipeline.Run(ctx, catalog.Query{
		Kind:                       kind,
		Lists:                      req.Profile.Settings.SubscriptionLists,
		Modified:                   &window,
		MaxParallelRequests:        req.Profile.Settings.MaxParallelRequests,
		FilterEnrichmentByModified: filterEnrichment,
	})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		req.Logger.Info("No products found")
		res.Status(integration.StatusNoContent)
		return nil
	}

	records, err := catalog.Assemble(items, kind.Entity(), kind.Placement(), req.Extractor(kind.Entity()))
	if err != nil {
		return err
	}
	out := make([]any, len(records))
	for i, rec := range records {
		out[i] = rec
	}
	res.Items(out)
	res.Status(integration.StatusOK)
	return nil
}
