package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/platform/storage"
)

const (
	defaultKey = "cart"

	// DefaultMaxLineQuantity caps a single (item, size) line when StoreDeps leaves it unset.
	DefaultMaxLineQuantity = 99
)

var (
	// ErrInvalidInput indicates the caller supplied an unusable item or line.
	ErrInvalidInput = errors.New("cart store: invalid input")
	// ErrInvalidQuantity indicates a non-positive quantity on add, a negative quantity on update,
	// or a line that would exceed the per-line maximum.
	ErrInvalidQuantity = errors.New("cart store: invalid quantity")
	// ErrLineNotFound indicates no line matches the (item, size) pair.
	ErrLineNotFound = errors.New("cart store: line not found")
	// ErrPersistence indicates the cart could not be read from or written to storage.
	ErrPersistence = errors.New("cart store: persistence failed")
)

// Listener receives the new cart after every successful mutation. Listeners are called in
// mutation order and must not mutate the store.
type Listener func(ctx context.Context, cart domain.Cart)

// Store owns the canonical cart. Every mutation persists the whole cart under a single key and
// then notifies subscribers.
type Store struct {
	storage storage.Store
	key     string
	maxQty  int
	logger  func(context.Context, string, map[string]any)

	mu       sync.Mutex
	notifyMu sync.Mutex

	listenersMu  sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64
}

type StoreDeps struct {
	Storage         storage.Store
	Key             string
	MaxLineQuantity int
	Logger          func(context.Context, string, map[string]any)
}

func NewStore(deps StoreDeps) (*Store, error) {
	if deps.Storage == nil {
		return nil, errors.New("cart store: storage is required")
	}
	key := strings.TrimSpace(deps.Key)
	if key == "" {
		key = defaultKey
	}
	maxQty := deps.MaxLineQuantity
	if maxQty <= 0 {
		maxQty = DefaultMaxLineQuantity
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Store{
		storage:   deps.Storage,
		key:       key,
		maxQty:    maxQty,
		logger:    logger,
		listeners: make(map[uint64]Listener),
	}, nil
}

// Cart returns the persisted cart, or an empty cart when nothing has been stored yet.
func (s *Store) Cart(ctx context.Context) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// AddItem increments the matching (item, size) line or appends a new one.
func (s *Store) AddItem(ctx context.Context, item domain.Item, size string, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidQuantity)
	}
	if quantity > s.maxQty {
		return nil, s.exceedsMax()
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}
	size = strings.TrimSpace(size)

	return s.mutate(ctx, "add_item", func(current domain.Cart) (domain.Cart, error) {
		if idx := current.Find(item.Name, size); idx >= 0 {
			if current[idx].Quantity > s.maxQty-quantity {
				return nil, s.exceedsMax()
			}
			current[idx].Quantity += quantity
			return current, nil
		}
		return append(current, domain.CartLine{Item: item, Size: size, Quantity: quantity}), nil
	})
}

// UpdateQuantity replaces the quantity of the matching line. A quantity of zero removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, itemName, size string, quantity int) (domain.Cart, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidQuantity)
	}
	if quantity > s.maxQty {
		return nil, s.exceedsMax()
	}
	itemName, size = strings.TrimSpace(itemName), strings.TrimSpace(size)
	if itemName == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}

	return s.mutate(ctx, "update_quantity", func(current domain.Cart) (domain.Cart, error) {
		idx := current.Find(itemName, size)
		if idx < 0 {
			return nil, ErrLineNotFound
		}
		if quantity == 0 {
			return removeAt(current, idx), nil
		}
		current[idx].Quantity = quantity
		return current, nil
	})
}

// RemoveLine deletes the matching line. Removing an absent line is a no-op.
func (s *Store) RemoveLine(ctx context.Context, itemName, size string) (domain.Cart, error) {
	itemName, size = strings.TrimSpace(itemName), strings.TrimSpace(size)
	if itemName == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}

	return s.mutate(ctx, "remove_line", func(current domain.Cart) (domain.Cart, error) {
		idx := current.Find(itemName, size)
		if idx < 0 {
			return current, nil
		}
		return removeAt(current, idx), nil
	})
}

// SetCart replaces the whole cart. Duplicate (item, size) lines are merged.
func (s *Store) SetCart(ctx context.Context, next domain.Cart) (domain.Cart, error) {
	normalized, err := s.normalizeCart(next)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "set_cart", func(domain.Cart) (domain.Cart, error) {
		return normalized, nil
	})
}

// RemoveLines takes the quantities of ordered off the matching lines and drops lines that reach
// zero. Lines that are not part of ordered are kept.
func (s *Store) RemoveLines(ctx context.Context, ordered domain.Cart) (domain.Cart, error) {
	return s.mutate(ctx, "remove_lines", func(current domain.Cart) (domain.Cart, error) {
		for _, line := range ordered {
			idx := current.Find(line.Item.Name, strings.TrimSpace(line.Size))
			if idx < 0 {
				continue
			}
			if current[idx].Quantity <= line.Quantity {
				current = removeAt(current, idx)
				continue
			}
			current[idx].Quantity -= line.Quantity
		}
		return current, nil
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.mutate(ctx, "clear", func(domain.Cart) (domain.Cart, error) {
		return domain.Cart{}, nil
	})
	return err
}

// Size returns the total unit count of the cart.
func Size(cart domain.Cart) int {
	return cart.Size()
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(listener Listener) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

func (s *Store) mutate(ctx context.Context, op string, fn func(domain.Cart) (domain.Cart, error)) (domain.Cart, error) {
	s.mu.Lock()
	current, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	next, err := fn(current.Clone())
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if next == nil {
		next = domain.Cart{}
	}
	if err := s.storage.Set(ctx, s.key, next); err != nil {
		s.mu.Unlock()
		s.logger(ctx, "cart.persist_failed", map[string]any{
			"op":    op,
			"key":   s.key,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.logger(ctx, "cart.updated", map[string]any{
		"op":    op,
		"lines": len(next),
		"size":  next.Size(),
	})
	s.notify(ctx, next)
	return next.Clone(), nil
}

func (s *Store) load(ctx context.Context) (domain.Cart, error) {
	var stored domain.Cart
	found, err := s.storage.Get(ctx, s.key, &stored)
	if err != nil {
		s.logger(ctx, "cart.load_failed", map[string]any{
			"key":   s.key,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !found || stored == nil {
		return domain.Cart{}, nil
	}
	// Drop lines that violate the quantity invariant.
	cleaned := stored[:0]
	for _, line := range stored {
		if line.Quantity > 0 && strings.TrimSpace(line.Item.Name) != "" {
			cleaned = append(cleaned, line)
		}
	}
	return cleaned, nil
}

func (s *Store) notify(ctx context.Context, cart domain.Cart) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(ctx, cart.Clone())
	}
}

func validateItem(item domain.Item) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}
	if item.Price.IsNegative() {
		return fmt.Errorf("%w: item price must be non-negative", ErrInvalidInput)
	}
	return nil
}

func (s *Store) normalizeCart(next domain.Cart) (domain.Cart, error) {
	out := make(domain.Cart, 0, len(next))
	for _, line := range next {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidQuantity)
		}
		if line.Quantity > s.maxQty {
			return nil, s.exceedsMax()
		}
		if err := validateItem(line.Item); err != nil {
			return nil, err
		}
		line.Size = strings.TrimSpace(line.Size)
		if idx := out.Find(line.Item.Name, line.Size); idx >= 0 {
			if out[idx].Quantity > s.maxQty-line.Quantity {
				return nil, s.exceedsMax()
			}
			out[idx].Quantity += line.Quantity
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

func (s *Store) exceedsMax() error {
	return fmt.Errorf("%w: a line may hold at most %d units", ErrInvalidQuantity, s.maxQty)
}

func removeAt(cart domain.Cart, idx int) domain.Cart {
	return append(cart[:idx], cart[idx+1:]...)
}
