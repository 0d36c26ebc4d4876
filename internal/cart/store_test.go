package cart

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/platform/storage"
)

type stubStorage struct {
	getFunc func(ctx context.Context, key string, dest any) (bool, error)
	setFunc func(ctx context.Context, key string, value any) error
}

func (s *stubStorage) Get(ctx context.Context, key string, dest any) (bool, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, key, dest)
	}
	return false, nil
}

func (s *stubStorage) Set(ctx context.Context, key string, value any) error {
	if s.setFunc != nil {
		return s.setFunc(ctx, key, value)
	}
	return nil
}

func (s *stubStorage) Close() error { return nil }

func newTestStore(t *testing.T) (*Store, *storage.MemoryStore) {
	t.Helper()
	kv := storage.NewMemoryStore()
	store, err := NewStore(StoreDeps{Storage: kv})
	require.NoError(t, err)
	return store, kv
}

func item(name, price string) domain.Item {
	return domain.Item{Name: name, Title: name, Category: "mens_tshirts", Price: decimal.RequireFromString(price)}
}

func TestNewStoreRequiresStorage(t *testing.T) {
	_, err := NewStore(StoreDeps{})
	assert.Error(t, err)
}

func TestCartEmptyWhenNothingStored(t *testing.T) {
	store, _ := newTestStore(t)
	cart, err := store.Cart(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, cart)
	assert.Empty(t, cart)
}

func TestAddItemIncrementsExistingLine(t *testing.T) {
	store, kv := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddItem(ctx, item("tee", "10.00"), "M", 1)
	require.NoError(t, err)
	cart, err := store.AddItem(ctx, item("tee", "10.00"), "M", 2)
	require.NoError(t, err)

	require.Len(t, cart, 1)
	assert.Equal(t, 3, cart[0].Quantity)
	assert.Equal(t, 3, Size(cart))

	var persisted domain.Cart
	found, err := kv.Get(ctx, "cart", &persisted)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, persisted, 1)
	assert.Equal(t, 3, persisted[0].Quantity)
	assert.True(t, persisted[0].Item.Price.Equal(decimal.RequireFromString("10")))
}

func TestAddItemAppendsNewPair(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddItem(ctx, item("tee", "10.00"), "M", 1)
	require.NoError(t, err)
	cart, err := store.AddItem(ctx, item("tee", "10.00"), "L", 1)
	require.NoError(t, err)
	cart, err = store.AddItem(ctx, item("cap", "4.00"), "M", 2)
	require.NoError(t, err)

	require.Len(t, cart, 3)
	assert.Equal(t, "L", cart[1].Size)
	assert.Equal(t, "cap", cart[2].Item.Name)
	assert.Equal(t, 4, Size(cart))
}

func TestAddItemRejectsInvalidInput(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddItem(ctx, item("tee", "10.00"), "M", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = store.AddItem(ctx, item("tee", "10.00"), "M", -3)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = store.AddItem(ctx, item(" ", "10.00"), "M", 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = store.AddItem(ctx, item("tee", "-1"), "M", 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	cart, err := store.Cart(ctx)
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestUpdateQuantity(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.AddItem(ctx, item("tee", "10.00"), "M", 1)
	require.NoError(t, err)

	cart, err := store.UpdateQuantity(ctx, "tee", "M", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart[0].Quantity)

	_, err = store.UpdateQuantity(ctx, "tee", "M", -1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = store.UpdateQuantity(ctx, "tee", "XL", 2)
	assert.ErrorIs(t, err, ErrLineNotFound)

	cart, err = store.UpdateQuantity(ctx, "tee", "M", 0)
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestRemoveOnlyLinePersistsEmptyCart(t *testing.T) {
	store, kv := newTestStore(t)
	ctx := context.Background()
	_, err := store.AddItem(ctx, item("tee", "10.00"), "M", 2)
	require.NoError(t, err)

	cart, err := store.RemoveLine(ctx, "tee", "M")
	require.NoError(t, err)
	assert.Empty(t, cart)

	var persisted domain.Cart
	found, err := kv.Get(ctx, "cart", &persisted)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, persisted)

	cart, err = store.RemoveLine(ctx, "tee", "M")
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestSetCartMergesDuplicatesAndValidates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	cart, err := store.SetCart(ctx, domain.Cart{
		{Item: item("tee", "10.00"), Size: "M", Quantity: 1},
		{Item: item("tee", "10.00"), Size: " M ", Quantity: 2},
		{Item: item("cap", "4.00"), Size: "OS", Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, cart, 2)
	assert.Equal(t, 3, cart[0].Quantity)

	_, err = store.SetCart(ctx, domain.Cart{{Item: item("tee", "10.00"), Size: "M", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	current, err := store.Cart(ctx)
	require.NoError(t, err)
	assert.Len(t, current, 2)

	require.NoError(t, store.Clear(ctx))
	current, err = store.Cart(ctx)
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestSubscribersReceiveSnapshots(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var sizes []int
	unsubscribe := store.Subscribe(func(_ context.Context, cart domain.Cart) {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, Size(cart))
	})

	_, err := store.AddItem(ctx, item("tee", "10.00"), "M", 2)
	require.NoError(t, err)
	_, err = store.AddItem(ctx, item("cap", "4.00"), "OS", 1)
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	require.NoError(t, store.Clear(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 3}, sizes)
}

func TestFailedMutationDoesNotNotify(t *testing.T) {
	store, _ := newTestStore(t)
	notified := false
	store.Subscribe(func(context.Context, domain.Cart) { notified = true })

	_, err := store.UpdateQuantity(context.Background(), "missing", "M", 1)
	require.ErrorIs(t, err, ErrLineNotFound)
	assert.False(t, notified)
}

func TestPersistenceFailuresAreWrapped(t *testing.T) {
	var logged []string
	logger := func(_ context.Context, event string, _ map[string]any) {
		logged = append(logged, event)
	}

	writeFails := &stubStorage{
		setFunc: func(context.Context, string, any) error { return errors.New("disk full") },
	}
	store, err := NewStore(StoreDeps{Storage: writeFails, Key: "cart-test", Logger: logger})
	require.NoError(t, err)

	_, err = store.AddItem(context.Background(), item("tee", "10.00"), "M", 1)
	require.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, logged, "cart.persist_failed")

	readFails := &stubStorage{
		getFunc: func(context.Context, string, any) (bool, error) { return false, errors.New("corrupt") },
	}
	store, err = NewStore(StoreDeps{Storage: readFails})
	require.NoError(t, err)
	_, err = store.Cart(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestCartRestoredFromStorageDropsInvalidLines(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "cart", domain.Cart{
		{Item: item("tee", "10.00"), Size: "M", Quantity: 2},
		{Item: item("cap", "4.00"), Size: "OS", Quantity: 0},
	}))

	store, err := NewStore(StoreDeps{Storage: kv})
	require.NoError(t, err)
	cart, err := store.Cart(ctx)
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, "tee", cart[0].Item.Name)
}

func TestConcurrentAddsAreSerialised(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddItem(ctx, item("tee", "10.00"), "M", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := store.Cart(ctx)
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, 20, cart[0].Quantity)
}

func TestAddItemRejectsLineOverflow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddItem(ctx, item("tee", "10.00"), "M", math.MaxInt)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = store.AddItem(ctx, item("tee", "10.00"), "M", DefaultMaxLineQuantity)
	require.NoError(t, err)
	_, err = store.AddItem(ctx, item("tee", "10.00"), "M", 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	cart, err := store.Cart(ctx)
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, DefaultMaxLineQuantity, cart[0].Quantity)
}

func TestConfiguredMaxLineQuantity(t *testing.T) {
	store, err := NewStore(StoreDeps{Storage: storage.NewMemoryStore(), MaxLineQuantity: 5})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.AddItem(ctx, item("tee", "10.00"), "M", 3)
	require.NoError(t, err)
	_, err = store.AddItem(ctx, item("tee", "10.00"), "M", 3)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = store.UpdateQuantity(ctx, "tee", "M", 6)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	cart, err := store.UpdateQuantity(ctx, "tee", "M", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart[0].Quantity)
}

func TestSetCartRejectsMergedOverflow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.SetCart(ctx, domain.Cart{
		{Item: item("tee", "10.00"), Size: "M", Quantity: math.MaxInt},
		{Item: item("tee", "10.00"), Size: "M", Quantity: 1},
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = store.SetCart(ctx, domain.Cart{
		{Item: item("tee", "10.00"), Size: "M", Quantity: 60},
		{Item: item("tee", "10.00"), Size: " M ", Quantity: 40},
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	cart, err := store.Cart(ctx)
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestRemoveLinesKeepsUnorderedLines(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.AddItem(ctx, item("tee", "10.00"), "M", 2)
	require.NoError(t, err)
	ordered, err := store.Cart(ctx)
	require.NoError(t, err)

	_, err = store.AddItem(ctx, item("tee", "10.00"), "M", 1)
	require.NoError(t, err)
	_, err = store.AddItem(ctx, item("cap", "4.00"), "OS", 1)
	require.NoError(t, err)

	cart, err := store.RemoveLines(ctx, ordered)
	require.NoError(t, err)
	require.Len(t, cart, 2)
	assert.Equal(t, "tee", cart[0].Item.Name)
	assert.Equal(t, 1, cart[0].Quantity)
	assert.Equal(t, "cap", cart[1].Item.Name)

	cart, err = store.RemoveLines(ctx, cart)
	require.NoError(t, err)
	assert.Empty(t, cart)

	cart, err = store.RemoveLines(ctx, ordered)
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestListenersNotifiedInMutationOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var sizes []int
	store.Subscribe(func(_ context.Context, cart domain.Cart) {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, Size(cart))
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddItem(ctx, item("tee", "10.00"), "M", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sizes, 20)
	for i, size := range sizes {
		assert.Equal(t, i+1, size)
	}
}
