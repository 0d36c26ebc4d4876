package catalog

import (
	"context"
	"errors"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/google-pay/storefront/internal/domain"
)

const instrumentationName = "github.com/google-pay/storefront/internal/catalog"

var tracer = otel.Tracer(instrumentationName)

// Store serves the static category list and caches items per category for the process
// lifetime. Entries are only dropped through Invalidate or Refresh. Concurrent requests for an
// uncached category share a single fetch.
type Store struct {
	source     Source
	categories []domain.Category
	known      map[string]struct{}
	sanitizer  *bluemonday.Policy
	logger     *zap.Logger

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter

	mu    sync.RWMutex
	items map[string][]domain.Item

	// generation is bumped by Invalidate; fetches started under an older generation are not cached.
	generation uint64
	group      singleflight.Group
}

type StoreDeps struct {
	Source     Source
	Categories []domain.Category
	Logger     *zap.Logger
	// Meter defaults to the global meter provider.
	Meter metric.Meter
}

func NewStore(deps StoreDeps) (*Store, error) {
	if deps.Source == nil {
		return nil, errors.New("catalog store: source is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	categories := make([]domain.Category, 0, len(deps.Categories))
	known := make(map[string]struct{}, len(deps.Categories))
	for _, category := range deps.Categories {
		name := strings.TrimSpace(category.Name)
		if name == "" {
			continue
		}
		if _, dup := known[name]; dup {
			continue
		}
		category.Name = name
		known[name] = struct{}{}
		categories = append(categories, category)
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	latency, err := meter.Float64Histogram(
		"catalog.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of category data fetches"),
	)
	if err != nil {
		logger.Warn("catalog: unable to register latency metric", zap.Error(err))
	}
	cacheHits, err := meter.Int64Counter(
		"catalog.cache_hits",
		metric.WithDescription("Count of category lookups served from the cache"),
	)
	if err != nil {
		logger.Warn("catalog: unable to register cache hit metric", zap.Error(err))
	}

	return &Store{
		source:     deps.Source,
		categories: categories,
		known:      known,
		sanitizer:  bluemonday.UGCPolicy(),
		logger:     logger.Named("catalog"),
		latency:    latency,
		cacheHits:  cacheHits,
		items:      make(map[string][]domain.Item),
	}, nil
}

// Categories returns the configured categories in display order.
func (s *Store) Categories(context.Context) []domain.Category {
	out := make([]domain.Category, len(s.categories))
	copy(out, s.categories)
	return out
}

// Category looks up a category by name.
func (s *Store) Category(name string) (domain.Category, bool) {
	name = strings.TrimSpace(name)
	for _, category := range s.categories {
		if category.Name == name {
			return category, true
		}
	}
	return domain.Category{}, false
}

// Items returns the items of a category. Unknown categories and missing data files yield an
// empty list. Fetch failures are returned and not cached.
func (s *Store) Items(ctx context.Context, category string) ([]domain.Item, error) {
	category = strings.TrimSpace(category)
	if _, ok := s.known[category]; !ok {
		return []domain.Item{}, nil
	}
	if items, ok := s.cached(category); ok {
		if s.cacheHits != nil {
			s.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("catalog.category", category)))
		}
		return items, nil
	}

	// The shared fetch must not be cancelled by whichever caller happened to start it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(category, func() (any, error) {
		if items, ok := s.cached(category); ok {
			return items, nil
		}
		return s.fetch(fetchCtx, category)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneItems(res.Val.([]domain.Item)), nil
	}
}

// Item finds an item by name. The boolean is false when the category or item does not exist.
func (s *Store) Item(ctx context.Context, category, name string) (domain.Item, bool, error) {
	items, err := s.Items(ctx, category)
	if err != nil {
		return domain.Item{}, false, err
	}
	name = strings.TrimSpace(name)
	for _, item := range items {
		if item.Name == name {
			return item, true, nil
		}
	}
	return domain.Item{}, false, nil
}

// Invalidate drops the cached items of a category. An empty name drops every category. Fetches
// already in flight are detached so that later callers start a fresh one.
func (s *Store) Invalidate(category string) {
	category = strings.TrimSpace(category)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if category == "" {
		s.items = make(map[string][]domain.Item)
		for name := range s.known {
			s.group.Forget(name)
		}
		return
	}
	delete(s.items, category)
	s.group.Forget(category)
}

// Refresh invalidates and reloads a category.
func (s *Store) Refresh(ctx context.Context, category string) ([]domain.Item, error) {
	s.Invalidate(category)
	return s.Items(ctx, category)
}

func (s *Store) cached(category string) ([]domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items, ok := s.items[category]
	if !ok {
		return nil, false
	}
	return cloneItems(items), true
}

func (s *Store) fetch(ctx context.Context, category string) ([]domain.Item, error) {
	ctx, span := tracer.Start(ctx, "catalog.FetchItems")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.category", category))

	s.mu.RLock()
	generation := s.generation
	s.mu.RUnlock()

	started := time.Now()
	items, err := s.source.FetchItems(ctx, category)
	if s.latency != nil {
		s.latency.Record(ctx, float64(time.Since(started))/float64(time.Millisecond), metric.WithAttributes(
			attribute.String("catalog.category", category),
			attribute.Bool("catalog.success", err == nil || errors.Is(err, ErrNotFound)),
		))
	}
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Warn("category data missing", zap.String("category", category))
		items = []domain.Item{}
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		s.logger.Error("category fetch failed", zap.String("category", category), zap.Error(err))
		return nil, err
	}

	prepared := make([]domain.Item, 0, len(items))
	for _, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			continue
		}
		if item.Category == "" {
			item.Category = category
		}
		item.Description = s.sanitizeDescription(item.Description)
		prepared = append(prepared, item)
	}
	span.SetAttributes(attribute.Int("catalog.items", len(prepared)))

	s.mu.Lock()
	stale := s.generation != generation
	if !stale {
		s.items[category] = prepared
	}
	s.mu.Unlock()
	if stale {
		s.logger.Debug("category fetch superseded", zap.String("category", category))
		return cloneItems(prepared), nil
	}

	s.logger.Debug("category cached", zap.String("category", category), zap.Int("items", len(prepared)))
	return cloneItems(prepared), nil
}

// sanitizeDescription unescapes entity-encoded markup and strips anything unsafe to render.
func (s *Store) sanitizeDescription(description string) string {
	if description == "" {
		return ""
	}
	return strings.TrimSpace(s.sanitizer.Sanitize(html.UnescapeString(description)))
}

func cloneItems(items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	copy(out, items)
	return out
}
