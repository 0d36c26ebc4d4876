package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/google-pay/storefront/internal/cart"
	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/platform/httpx"
	"github.com/google-pay/storefront/internal/platform/observability"
)

// CartService is the cart store as seen by the HTTP layer.
type CartService interface {
	Cart(ctx context.Context) (domain.Cart, error)
	AddItem(ctx context.Context, item domain.Item, size string, quantity int) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, itemName, size string, quantity int) (domain.Cart, error)
	RemoveLine(ctx context.Context, itemName, size string) (domain.Cart, error)
	SetCart(ctx context.Context, next domain.Cart) (domain.Cart, error)
	Clear(ctx context.Context) error
}

// CartHandlers exposes the shopper's cart.
type CartHandlers struct {
	carts   CartService
	catalog CatalogService
}

const maxCartBodySize = 16 * 1024

// NewCartHandlers constructs cart handlers. Items are resolved through the catalog so clients
// only send names.
func NewCartHandlers(carts CartService, catalog CatalogService) *CartHandlers {
	return &CartHandlers{
		carts:   carts,
		catalog: catalog,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Put("/", h.replaceCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{item}/{size}", h.updateLine)
	r.Delete("/items/{item}/{size}", h.removeLine)
}

type cartLineRequest struct {
	Category string `json:"category"`
	Item     string `json:"item"`
	Size     string `json:"size"`
	Quantity *int   `json:"quantity,omitempty"`
}

type replaceCartRequest struct {
	Items []cartLineRequest `json:"items"`
}

type updateLineRequest struct {
	Quantity *int `json:"quantity"`
}

type cartLinePayload struct {
	Item          itemPayload `json:"item"`
	Size          string      `json:"size"`
	Quantity      int         `json:"quantity"`
	ExtendedPrice string      `json:"extendedPrice"`
}

type cartPayload struct {
	Items    []cartLinePayload `json:"items"`
	Size     int               `json:"size"`
	Subtotal string            `json:"subtotal"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}

	current, err := h.carts.Cart(ctx)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(current)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}

	var req cartLineRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	item, err := resolveItem(ctx, h.catalog, req.Category, req.Item)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	updated, err := h.carts.AddItem(ctx, item, req.Size, quantityOrDefault(req.Quantity))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(updated)})
}

func (h *CartHandlers) replaceCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}

	var req replaceCartRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	next := make(domain.Cart, 0, len(req.Items))
	for _, line := range req.Items {
		item, err := resolveItem(ctx, h.catalog, line.Category, line.Item)
		if err != nil {
			writeCatalogError(ctx, w, err)
			return
		}
		next = append(next, domain.CartLine{Item: item, Size: line.Size, Quantity: quantityOrDefault(line.Quantity)})
	}

	updated, err := h.carts.SetCart(ctx, next)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(updated)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	if err := h.carts.Clear(ctx); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) updateLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}

	var req updateLineRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}

	updated, err := h.carts.UpdateQuantity(ctx, chi.URLParam(r, "item"), chi.URLParam(r, "size"), *req.Quantity)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(updated)})
}

func (h *CartHandlers) removeLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}

	updated, err := h.carts.RemoveLine(ctx, chi.URLParam(r, "item"), chi.URLParam(r, "size"))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(updated)})
}

func (h *CartHandlers) ready(ctx context.Context, w http.ResponseWriter) bool {
	if h.carts == nil || h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func buildCartPayload(current domain.Cart) cartPayload {
	payload := cartPayload{
		Items:    make([]cartLinePayload, 0, len(current)),
		Size:     cart.Size(current),
		Subtotal: current.Subtotal().StringFixed(2),
	}
	for _, line := range current {
		payload.Items = append(payload.Items, cartLinePayload{
			Item:          buildItemPayload(line.Item),
			Size:          line.Size,
			Quantity:      line.Quantity,
			ExtendedPrice: line.ExtendedPrice().StringFixed(2),
		})
	}
	return payload
}

func quantityOrDefault(quantity *int) int {
	if quantity == nil {
		return 1
	}
	return *quantity
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, cart.ErrInvalidInput), errors.Is(err, cart.ErrInvalidQuantity):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, cart.ErrLineNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("line_not_found", "cart line not found", http.StatusNotFound))
	case errors.Is(err, cart.ErrPersistence):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart could not be saved", http.StatusServiceUnavailable))
	default:
		observability.FromContext(ctx).Error("cart request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}
