package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/google-pay/storefront/internal/domain"
)

var testCategories = []domain.Category{
	{Name: "mens_tshirts", Title: "Men's T-Shirts", Image: "/images/mens_tshirts.jpg"},
	{Name: "ladies_tshirts", Title: "Lady's T-Shirts", Image: "/images/ladies_tshirts.jpg"},
}

type stubSource struct {
	fetchFunc func(ctx context.Context, category string) ([]domain.Item, error)
}

func (s *stubSource) FetchItems(ctx context.Context, category string) ([]domain.Item, error) {
	return s.fetchFunc(ctx, category)
}

func newDirStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreDeps{Source: NewDirSource(os.DirFS("testdata")), Categories: testCategories})
	require.NoError(t, err)
	return store
}

func TestCategoriesAreStatic(t *testing.T) {
	store := newDirStore(t)
	categories := store.Categories(context.Background())
	require.Len(t, categories, 2)
	assert.Equal(t, "mens_tshirts", categories[0].Name)

	categories[0].Title = "mutated"
	assert.Equal(t, "Men's T-Shirts", store.Categories(context.Background())[0].Title)

	_, ok := store.Category("ladies_tshirts")
	assert.True(t, ok)
	_, ok = store.Category("hats")
	assert.False(t, ok)
}

func TestItemsLoadedAndSanitised(t *testing.T) {
	store := newDirStore(t)

	items, err := store.Items(context.Background(), "mens_tshirts")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "<p>Soft cotton.</p>", items[0].Description)
	assert.True(t, items[1].Price.Equal(decimal.RequireFromString("22.15")))
	assert.Equal(t, "mens_tshirts", items[1].Category)
}

func TestItemLookup(t *testing.T) {
	store := newDirStore(t)
	ctx := context.Background()

	item, found, err := store.Item(ctx, "mens_tshirts", "Logo Tee")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Logo Tee", item.Title)

	_, found, err = store.Item(ctx, "mens_tshirts", "Missing")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.Item(ctx, "hats", "Tee")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMissingDataIsEmpty(t *testing.T) {
	store := newDirStore(t)

	items, err := store.Items(context.Background(), "ladies_tshirts")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	items, err = store.Items(context.Background(), "../secrets")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestItemsCachedUntilInvalidated(t *testing.T) {
	var calls atomic.Int32
	source := &stubSource{fetchFunc: func(context.Context, string) ([]domain.Item, error) {
		calls.Add(1)
		return []domain.Item{{Name: "tee", Title: "Tee", Price: decimal.NewFromInt(10)}}, nil
	}}
	store, err := NewStore(StoreDeps{Source: source, Categories: testCategories})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Items(ctx, "mens_tshirts")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, calls.Load())

	store.Invalidate("mens_tshirts")
	_, err = store.Items(ctx, "mens_tshirts")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())

	_, err = store.Refresh(ctx, "mens_tshirts")
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())

	store.Invalidate("")
	_, err = store.Items(ctx, "mens_tshirts")
	require.NoError(t, err)
	assert.EqualValues(t, 4, calls.Load())
}

func TestFailedFetchIsNotCached(t *testing.T) {
	var calls atomic.Int32
	source := &stubSource{fetchFunc: func(context.Context, string) ([]domain.Item, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("upstream down")
		}
		return []domain.Item{{Name: "tee"}}, nil
	}}
	store, err := NewStore(StoreDeps{Source: source, Categories: testCategories})
	require.NoError(t, err)

	_, err = store.Items(context.Background(), "mens_tshirts")
	require.Error(t, err)

	items, err := store.Items(context.Background(), "mens_tshirts")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestConcurrentRequestsShareOneFetch(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/data/mens_tshirts.json", r.URL.Path)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"tee","title":"Tee","price":10}]`))
	}))
	defer server.Close()

	store, err := NewStore(StoreDeps{Source: NewHTTPSource(server.URL, time.Second), Categories: testCategories})
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]domain.Item, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items, err := store.Items(context.Background(), "mens_tshirts")
			assert.NoError(t, err)
			results[i] = items
		}(i)
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, hits.Load())
	for _, items := range results {
		require.Len(t, items, 1)
		assert.Equal(t, "tee", items[0].Name)
	}
}

func TestHTTPSourceStatusHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/mens_tshirts.json":
			http.NotFound(w, r)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	source := NewHTTPSource(server.URL+"/", 0)
	_, err := source.FetchItems(context.Background(), "mens_tshirts")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = source.FetchItems(context.Background(), "ladies_tshirts")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "status 500")

	store, err := NewStore(StoreDeps{Source: source, Categories: testCategories})
	require.NoError(t, err)
	items, err := store.Items(context.Background(), "mens_tshirts")
	require.NoError(t, err)
	assert.Empty(t, items)
	_, err = store.Items(context.Background(), "ladies_tshirts")
	assert.Error(t, err)
}

func TestItemsHonoursCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	source := &stubSource{fetchFunc: func(context.Context, string) ([]domain.Item, error) {
		<-release
		return nil, nil
	}}
	store, err := NewStore(StoreDeps{Source: source, Categories: testCategories})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.Items(ctx, "mens_tshirts")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewStoreRequiresSource(t *testing.T) {
	_, err := NewStore(StoreDeps{})
	assert.Error(t, err)
}

func TestStoreAcceptsMeter(t *testing.T) {
	var calls int32
	source := &stubSource{fetchFunc: func(context.Context, string) ([]domain.Item, error) {
		atomic.AddInt32(&calls, 1)
		return []domain.Item{{Name: "tee", Title: "Tee", Price: decimal.NewFromInt(10)}}, nil
	}}
	store, err := NewStore(StoreDeps{
		Source:     source,
		Categories: testCategories,
		Meter:      noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		items, err := store.Items(context.Background(), "mens_tshirts")
		require.NoError(t, err)
		require.Len(t, items, 1)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRefreshDoesNotJoinInFlightFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	source := &stubSource{fetchFunc: func(context.Context, string) ([]domain.Item, error) {
		if calls.Add(1) == 1 {
			<-release
			return []domain.Item{{Name: "old"}}, nil
		}
		return []domain.Item{{Name: "new"}}, nil
	}}
	store, err := NewStore(StoreDeps{Source: source, Categories: testCategories})
	require.NoError(t, err)
	ctx := context.Background()

	first := make(chan []domain.Item, 1)
	go func() {
		items, err := store.Items(ctx, "mens_tshirts")
		assert.NoError(t, err)
		first <- items
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	items, err := store.Refresh(ctx, "mens_tshirts")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].Name)

	close(release)
	stale := <-first
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].Name)

	items, err = store.Items(ctx, "mens_tshirts")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].Name)
	assert.EqualValues(t, 2, calls.Load())
}
