package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/reference"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource is an in-memory catalog keyed by list id.
type fakeSource struct {
	mu sync.Mutex

	lists        map[string][]map[string]any
	details      map[string]map[string]any
	pricing      map[string]any
	supplierSkus map[string][]map[string]any

	listErr    error
	detailErr  error
	pricingErr error

	detailBatches []int
	pricingCalls  []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		lists:        map[string][]map[string]any{},
		details:      map[string]map[string]any{},
		pricing:      map[string]any{},
		supplierSkus: map[string][]map[string]any{},
	}
}

func (f *fakeSource) ListItems(_ context.Context, list integration.SubscriptionList) ([]map[string]any, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists[reference.Format(list.ListID)], nil
}

func (f *fakeSource) ProductDetails(_ context.Context, ids []string) (map[string]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailBatches = append(f.detailBatches, len(ids))
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if d, ok := f.details[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (f *fakeSource) Pricing(_ context.Context, id string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pricingCalls = append(f.pricingCalls, id)
	if f.pricingErr != nil {
		return nil, f.pricingErr
	}
	return f.pricing[id], nil
}

func (f *fakeSource) SupplierSkus(_ context.Context, list integration.SubscriptionList) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supplierSkus[reference.Format(list.Supplier())], nil
}

// addItem registers a header in list and its detail with one vendor row per supplier.
func (f *fakeSource) addItem(list string, id int, slug, updated string, suppliers ...int) {
	key := fmt.Sprint(id)
	f.lists[list] = append(f.lists[list], map[string]any{
		"CatalogItemId":  key,
		"Slug":           slug,
		"DateUpdatedUtc": updated,
	})
	vendors := make([]any, 0, len(suppliers))
	for _, s := range suppliers {
		vendors = append(vendors, map[string]any{
			"Value":  fmt.Sprintf("SKU-%d-%d", id, s),
			"Entity": map[string]any{"Id": s},
		})
	}
	f.details[key] = map[string]any{
		"CatalogItemId":  key,
		"DateUpdatedUtc": "2000-01-01T00:00:00Z",
		"VendorSkus":     vendors,
	}
}

func ids(items []*Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID()
	}
	return out
}

var january = integration.DateRange{
	Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2023, 1, 31, 23, 59, 59, 0, time.UTC),
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{"empty", 0, 500, nil},
		{"exact", 1000, 500, []int{500, 500}},
		{"remainder", 1200, 500, []int{500, 500, 200}},
		{"smaller than batch", 3, 500, []int{3}},
		{"zero size is one batch", 5, 0, []int{5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := make([]int, tt.n)
			var sizes []int
			for _, c := range Chunk(s, tt.size) {
				sizes = append(sizes, len(c))
			}
			assert.Equal(t, tt.sizes, sizes)
		})
	}
}

func TestRunBatches(t *testing.T) {
	t.Run("batches resolve in sequence", func(t *testing.T) {
		var (
			completed atomic.Int32
			inFlight  atomic.Int32
			maxFlight atomic.Int32
			mu        sync.Mutex
			batches   = map[int]int{}
		)
		elems := []int{0, 1, 2, 3, 4}

		err := RunBatches(context.Background(), elems, 2, func(_ context.Context, i int) error {
			// every element of earlier batches has finished
			assert.GreaterOrEqual(t, int(completed.Load()), (i/2)*2)

			n := inFlight.Add(1)
			for {
				m := maxFlight.Load()
				if n <= m || maxFlight.CompareAndSwap(m, n) {
					break
				}
			}
			mu.Lock()
			batches[i/2]++
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			completed.Add(1)
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, map[int]int{0: 2, 1: 2, 2: 1}, batches)
		assert.LessOrEqual(t, maxFlight.Load(), int32(2))
		assert.Equal(t, int32(5), completed.Load())
	})

	t.Run("zero runs everything at once", func(t *testing.T) {
		var started sync.WaitGroup
		started.Add(4)
		err := RunBatches(context.Background(), []int{1, 2, 3, 4}, 0, func(context.Context, int) error {
			started.Done()
			started.Wait()
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("error stops later batches", func(t *testing.T) {
		boom := errors.New("boom")
		var calls atomic.Int32
		err := RunBatches(context.Background(), []int{0, 1, 2, 3}, 2, func(_ context.Context, i int) error {
			calls.Add(1)
			if i == 1 {
				return boom
			}
			return nil
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestKeepMatrixAndSimple(t *testing.T) {
	lists := [][]*Item{{
		{Header: map[string]any{"CatalogItemId": "1", "Slug": "shirt-red"}},
		{Header: map[string]any{"CatalogItemId": "2", "Slug": "shirt-blue"}},
		{Header: map[string]any{"CatalogItemId": "3", "Slug": "hat"}},
		{Header: map[string]any{"CatalogItemId": "4", "Slug": "mug-large"}},
	}, {
		// base keys are counted per list
		{Header: map[string]any{"CatalogItemId": "5", "Slug": "shirt-green"}},
	}}

	matrix, err := KeepMatrix(lists)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(Flatten(matrix)))

	simple, err := KeepSimple(lists)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4", "5"}, ids(Flatten(simple)))

	_, err = KeepMatrix([][]*Item{{{Header: map[string]any{"CatalogItemId": "9"}}}})
	var schemaErr *integration.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestKeepModified(t *testing.T) {
	tests := []struct {
		name   string
		header any
		detail any
		kept   bool
	}{
		{"header equals start", "2023-01-01T00:00:00Z", nil, true},
		{"header equals end", "2023-01-31T23:59:59Z", nil, true},
		{"detail in range only", "2022-12-31T23:59:59Z", "2023-01-15T12:00:00Z", true},
		{"both outside", "2022-12-31T23:59:59Z", "2023-02-01T00:00:00Z", false},
		{"offset timestamp compared as instant", "2023-01-31T20:00:00-05:00", nil, false},
		{"unparseable", "yesterday", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := &Item{
				Header:  map[string]any{"DateUpdatedUtc": tt.header},
				Details: map[string]any{"DateUpdatedUtc": tt.detail},
			}
			assert.Equal(t, tt.kept, len(KeepModified([]*Item{it}, january)) == 1)
		})
	}
}

func TestSelectVendors(t *testing.T) {
	it := &Item{
		List: integration.SubscriptionList{ListID: "L1", EntityID: "7"},
		Details: map[string]any{"VendorSkus": []any{
			map[string]any{"Value": "A", "Entity": map[string]any{"Id": 3}},
			map[string]any{"Value": "B", "Entity": map[string]any{"Id": 7}},
			map[string]any{"Value": "C"},
			map[string]any{"Value": "D", "Entity": map[string]any{"Id": 7.0}},
		}},
	}
	none := &Item{
		List:    integration.SubscriptionList{ListID: "L1", EntityID: 8},
		Details: map[string]any{"VendorSkus": []any{map[string]any{"Value": "A", "Entity": map[string]any{"Id": 3}}}},
	}

	SelectVendors([]*Item{it, none})

	require.NotNil(t, it.VendorSku)
	assert.Equal(t, "B", it.VendorSku["Value"])
	assert.Len(t, it.VendorSkus, 2)
	assert.Nil(t, none.VendorSku)
	assert.Empty(t, none.VendorSkus)
}

func TestAttachDetails(t *testing.T) {
	t.Run("1200 ids in three batches", func(t *testing.T) {
		src := newFakeSource()
		for i := range 1200 {
			src.addItem("L1", i, fmt.Sprintf("p%d", i), "2023-01-10T00:00:00Z", 7)
		}
		p := NewPipeline(src, nil)
		lists, err := p.FetchLists(context.Background(), []integration.SubscriptionList{{ListID: "L1", EntityID: 7}})
		require.NoError(t, err)
		items := Flatten(lists)

		require.NoError(t, p.AttachDetails(context.Background(), items))

		sizes := slices.Clone(src.detailBatches)
		slices.Sort(sizes)
		assert.Equal(t, []int{200, 500, 500}, sizes)
		for _, it := range items {
			assert.Equal(t, it.ID(), it.Details["CatalogItemId"])
		}
	})

	t.Run("no items means no calls", func(t *testing.T) {
		src := newFakeSource()
		require.NoError(t, NewPipeline(src, nil).AttachDetails(context.Background(), nil))
		assert.Empty(t, src.detailBatches)
	})

	t.Run("missing detail names the id", func(t *testing.T) {
		src := newFakeSource()
		src.addItem("L1", 1, "a", "", 7)
		src.addItem("L1", 2, "b", "", 7)
		delete(src.details, "2")

		p := NewPipeline(src, nil, WithDetailBatchSize(1))
		lists, err := p.FetchLists(context.Background(), []integration.SubscriptionList{{ListID: "L1"}})
		require.NoError(t, err)

		err = p.AttachDetails(context.Background(), Flatten(lists))
		var missing *integration.MissingDetailError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "2", missing.ID)
		assert.Equal(t, []int{1, 1}, src.detailBatches)
	})
}

func TestPipelineRun(t *testing.T) {
	build := func() *fakeSource {
		src := newFakeSource()
		src.addItem("L1", 1, "shirt-red", "2023-01-05T00:00:00Z", 7, 9)
		src.addItem("L1", 2, "shirt-blue", "2022-06-01T00:00:00Z", 7)
		src.addItem("L1", 3, "hat", "2023-01-20T00:00:00Z", 7)
		src.addItem("L2", 4, "mug", "2023-01-21T00:00:00Z", 9)
		return src
	}
	lists := []integration.SubscriptionList{
		{ListID: "L1", EntityID: 7},
		{ListID: "L2", EntityID: 9},
	}

	t.Run("matrix", func(t *testing.T) {
		items, err := NewPipeline(build(), nil).Run(context.Background(), Query{Kind: KindMatrix, Lists: lists, Modified: &january})
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, ids(items))
		assert.Equal(t, "SKU-1-7", items[0].VendorSku["Value"])
	})

	t.Run("simple", func(t *testing.T) {
		items, err := NewPipeline(build(), nil).Run(context.Background(), Query{Kind: KindSimple, Lists: lists, Modified: &january})
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "4"}, ids(items))
		assert.Equal(t, "SKU-4-9", items[1].VendorSku["Value"])
	})

	t.Run("nothing modified", func(t *testing.T) {
		feb := integration.DateRange{Start: january.End.Add(time.Hour), End: january.End.Add(48 * time.Hour)}
		items, err := NewPipeline(build(), nil).Run(context.Background(), Query{Kind: KindSimple, Lists: lists, Modified: &feb})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("pricing", func(t *testing.T) {
		src := build()
		src.pricing["1"] = map[string]any{"RegularPrice": "10", "DateUpdatedUtc": "2023-01-02T00:00:00Z"}
		src.pricing["3"] = map[string]any{"RegularPrice": "5", "DateUpdatedUtc": "2022-01-02T00:00:00Z"}

		items, err := NewPipeline(src, nil).Run(context.Background(), Query{Kind: KindPricing, Lists: lists, MaxParallelRequests: 2})
		require.NoError(t, err)
		assert.Len(t, items, 4)
		assert.Len(t, src.pricingCalls, 4)
		assert.Equal(t, src.pricing["1"], items[0].Pricing)

		items, err = NewPipeline(src, nil).Run(context.Background(), Query{
			Kind: KindPricing, Lists: lists, Modified: &january, FilterEnrichmentByModified: true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, ids(items))
	})

	t.Run("pricing failure aborts", func(t *testing.T) {
		src := build()
		src.pricingErr = &integration.RemoteStatusError{StatusCode: 503}
		_, err := NewPipeline(src, nil).Run(context.Background(), Query{Kind: KindPricing, Lists: lists, MaxParallelRequests: 1})
		require.ErrorIs(t, err, integration.ErrPlatformRequestFailed)
		assert.Len(t, src.pricingCalls, 1)
	})

	t.Run("quantity", func(t *testing.T) {
		src := build()
		src.supplierSkus["7"] = []map[string]any{
			{"SupplierSku": "SKU-1-7", "SupplierEntityId": 7, "Quantity": 3},
			{"SupplierSku": "SKU-2-7", "SupplierEntityId": 8, "Quantity": 1},
		}
		src.supplierSkus["9"] = []map[string]any{
			{"SupplierSku": "SKU-4-9", "SupplierEntityId": "9", "Quantity": 0},
		}

		items, err := NewPipeline(src, nil).Run(context.Background(), Query{Kind: KindQuantity, Lists: lists})
		require.NoError(t, err)
		require.Len(t, items, 4)
		assert.Equal(t, 3, items[0].SupplierSku["Quantity"])
		assert.Nil(t, items[1].SupplierSku)
		assert.Equal(t, 0, items[3].SupplierSku["Quantity"])
	})

	t.Run("quantity conflict", func(t *testing.T) {
		src := build()
		src.supplierSkus["7"] = []map[string]any{
			{"SupplierSku": "SKU-3-7", "SupplierEntityId": 7},
			{"SupplierSku": "SKU-3-7", "SupplierEntityId": 7},
		}
		_, err := NewPipeline(src, nil).Run(context.Background(), Query{Kind: KindQuantity, Lists: lists})
		var conflict *integration.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Len(t, conflict.Records, 2)
	})

	t.Run("list failure aborts", func(t *testing.T) {
		src := build()
		src.listErr = integration.ErrPlatformUnavailable
		_, err := NewPipeline(src, nil).Run(context.Background(), Query{Kind: KindMatrix, Lists: lists, Modified: &january})
		require.ErrorIs(t, err, integration.ErrPlatformUnavailable)
		assert.Empty(t, src.detailBatches)
	})
}

func TestAssemble(t *testing.T) {
	it := &Item{
		Header: map[string]any{"CatalogItemId": "42", "Slug": "hat", "Name": "Hat"},
		List:   integration.SubscriptionList{ListID: "L1", EntityID: 7},
		Details: map[string]any{"VendorSkus": []any{
			map[string]any{"Value": "A", "Entity": map[string]any{"Id": 7}},
			map[string]any{"Value": "B", "Entity": map[string]any{"Id": 8}},
		}},
	}
	SelectVendors([]*Item{it})
	ex := reference.MustCompile("Name", "ProductDetails.VendorSku.Value")

	records, err := Assemble([]*Item{it}, KindMatrix.Entity(), KindMatrix.Placement(), ex)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "42", records[0]["productMatrixRemoteID"])
	assert.Equal(t, "Hat.A", records[0]["productMatrixBusinessReference"])

	doc := records[0]["doc"].(map[string]any)
	assert.Equal(t, map[string]any{"listId": "L1", "entityId": 7}, doc["subscriptionList"])
	assert.NotContains(t, it.Header, "subscriptionList")

	records, err = Assemble([]*Item{it}, KindSimple.Entity(), KindSimple.Placement(), nil)
	require.NoError(t, err)
	details := records[0]["doc"].(map[string]any)["ProductDetails"].(map[string]any)
	assert.Len(t, details["VendorSkus"], 1)
	assert.Equal(t, "", records[0]["productSimpleBusinessReference"])

	records, err = Assemble([]*Item{it}, KindPricing.Entity(), KindPricing.Placement(), nil)
	require.NoError(t, err)
	assert.Equal(t, "A", records[0]["doc"].(map[string]any)["VendorSku"].(map[string]any)["Value"])
}
