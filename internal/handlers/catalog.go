package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/platform/httpx"
	"github.com/google-pay/storefront/internal/platform/observability"
)

// CatalogService is the read side of the catalog consumed by the HTTP layer.
type CatalogService interface {
	Categories(ctx context.Context) []domain.Category
	Items(ctx context.Context, category string) ([]domain.Item, error)
	Item(ctx context.Context, category, name string) (domain.Item, bool, error)
}

// CatalogHandlers exposes categories and their items.
type CatalogHandlers struct {
	catalog CatalogService
}

func NewCatalogHandlers(catalog CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the /categories endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCategories)
	r.Get("/{category}/items", h.listItems)
	r.Get("/{category}/items/{item}", h.getItem)
}

type categoryPayload struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Image string `json:"image,omitempty"`
}

type itemPayload struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Price       string `json:"price"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	LargeImage  string `json:"largeImage,omitempty"`
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories := h.catalog.Categories(ctx)
	payload := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		payload = append(payload, categoryPayload{Name: category.Name, Title: category.Title, Image: category.Image})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": payload})
}

func (h *CatalogHandlers) listItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	category := strings.TrimSpace(chi.URLParam(r, "category"))
	items, err := h.catalog.Items(ctx, category)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]itemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, buildItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"category": category,
		"items":    payload,
	})
}

func (h *CatalogHandlers) getItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	item, ok, err := h.catalog.Item(ctx, chi.URLParam(r, "category"), chi.URLParam(r, "item"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", "item not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"item": buildItemPayload(item)})
}

func buildItemPayload(item domain.Item) itemPayload {
	return itemPayload{
		Name:        item.Name,
		Title:       item.Title,
		Category:    item.Category,
		Price:       item.Price.StringFixed(2),
		Description: item.Description,
		Image:       item.Image,
		LargeImage:  item.LargeImage,
	}
}

var (
	errItemRequired = errors.New("category and item are required")
	errItemNotFound = errors.New("item not found")
)

// resolveItem looks an item up for the cart and buy-now endpoints.
func resolveItem(ctx context.Context, catalog CatalogService, category, name string) (domain.Item, error) {
	if strings.TrimSpace(category) == "" || strings.TrimSpace(name) == "" {
		return domain.Item{}, errItemRequired
	}
	item, ok, err := catalog.Item(ctx, category, name)
	if err != nil {
		return domain.Item{}, err
	}
	if !ok {
		return domain.Item{}, errItemNotFound
	}
	return item, nil
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errItemRequired):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, errItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", "item not found", http.StatusNotFound))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_timeout", "catalog request did not complete", http.StatusGatewayTimeout))
	default:
		observability.FromContext(ctx).Warn("catalog request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog data could not be loaded", http.StatusBadGateway))
	}
}
