package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/google-pay/storefront/internal/cart"
	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/paymentsheet"
	"github.com/google-pay/storefront/internal/platform/config"
	"github.com/google-pay/storefront/internal/platform/httpx"
	"github.com/google-pay/storefront/internal/platform/observability"
	"github.com/google-pay/storefront/internal/pricing"
)

// CheckoutService drives the payment sheet.
type CheckoutService interface {
	Status(ctx context.Context) (paymentsheet.Status, error)
	Request(ctx context.Context) (paymentsheet.PaymentDataRequest, error)
	Begin(ctx context.Context) (paymentsheet.PaymentDataRequest, error)
	Reset(ctx context.Context) error
	SelectShipping(ctx context.Context, optionID string) (domain.TransactionSnapshot, error)
	OnPaymentDataChanged(ctx context.Context, data paymentsheet.IntermediatePaymentData) (paymentsheet.PaymentDataRequestUpdate, error)
	OnLoadPaymentData(ctx context.Context, data paymentsheet.PaymentData) (paymentsheet.Confirmation, error)
	CompleteManualCheckout(ctx context.Context) (paymentsheet.Confirmation, error)
	OnError(ctx context.Context, cause error) error
	ItemRequest(item domain.Item, size string, quantity int) (paymentsheet.PaymentDataRequest, error)
}

// Pricer prices a cart for a destination.
type Pricer interface {
	Build(cart domain.Cart, address *domain.Address, shippingOptionID string) domain.TransactionSnapshot
}

// ShippingCatalog resolves the shipping options offered for a destination.
type ShippingCatalog interface {
	Eligible(address *domain.Address) pricing.ShippingEligibility
	Select(address *domain.Address, id string) string
}

type CheckoutDeps struct {
	Checkout CheckoutService
	Carts    CartService
	Catalog  CatalogService
	Pricer   Pricer
	Shipping ShippingCatalog
}

// CheckoutHandlers exposes pricing previews and the payment-sheet protocol.
type CheckoutHandlers struct {
	checkout CheckoutService
	carts    CartService
	catalog  CatalogService
	pricer   Pricer
	shipping ShippingCatalog
}

const maxCheckoutBodySize = 64 * 1024

func NewCheckoutHandlers(deps CheckoutDeps) *CheckoutHandlers {
	return &CheckoutHandlers{
		checkout: deps.Checkout,
		carts:    deps.Carts,
		catalog:  deps.Catalog,
		pricer:   deps.Pricer,
		shipping: deps.Shipping,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/transaction", h.previewTransaction)
	r.Get("/shipping-options", h.listShippingOptions)
	r.Get("/payment-request", h.getPaymentRequest)
	r.Put("/shipping", h.selectShipping)
	r.Post("/begin", h.begin)
	r.Post("/payment-data-changed", h.paymentDataChanged)
	r.Post("/payment-data", h.paymentData)
	r.Post("/error", h.paymentError)
	r.Post("/complete", h.completeManual)
	r.Post("/reset", h.reset)
	r.Get("/state", h.getState)
	r.Post("/buy-now", h.buyNow)
}

type shippingOptionPayload struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
}

type selectShippingRequest struct {
	ShippingOptionID string `json:"shippingOptionId"`
}

// paymentErrorRequest mirrors the error object reported by the payment-sheet widget.
type paymentErrorRequest struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

type statusPayload struct {
	State        paymentsheet.State              `json:"state"`
	Request      paymentsheet.PaymentDataRequest `json:"paymentDataRequest"`
	Confirmation *paymentsheet.Confirmation      `json:"confirmation,omitempty"`
	LastError    string                          `json:"lastError,omitempty"`
}

func (h *CheckoutHandlers) previewTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil || h.pricer == nil || h.shipping == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	address, err := addressFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	current, err := h.carts.Cart(ctx)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	optionID := h.shipping.Select(address, r.URL.Query().Get("shipping"))
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"transactionInfo": h.pricer.Build(current, address, optionID),
	})
}

func (h *CheckoutHandlers) listShippingOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	address, err := addressFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	eligible := h.shipping.Eligible(address)
	options := make([]shippingOptionPayload, 0, len(eligible.Options))
	for _, option := range eligible.Options {
		options = append(options, shippingOptionPayload{
			ID:          option.ID,
			Label:       option.Label,
			Description: option.Description,
			Price:       option.Price.StringFixed(2),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"defaultSelectedOptionId": eligible.DefaultOptionID,
		"shippingOptions":         options,
	})
}

func (h *CheckoutHandlers) getPaymentRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	req, err := h.checkout.Request(ctx)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, req)
}

func (h *CheckoutHandlers) selectShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	var req selectShippingRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	info, err := h.checkout.SelectShipping(ctx, req.ShippingOptionID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"transactionInfo": info})
}

func (h *CheckoutHandlers) begin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	req, err := h.checkout.Begin(ctx)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, req)
}

func (h *CheckoutHandlers) paymentDataChanged(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	var data paymentsheet.IntermediatePaymentData
	if err := decodeJSONBody(r, maxCheckoutBodySize, &data); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	update, err := h.checkout.OnPaymentDataChanged(ctx, data)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, update)
}

func (h *CheckoutHandlers) paymentData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	var data paymentsheet.PaymentData
	if err := decodeJSONBody(r, maxCheckoutBodySize, &data); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	confirmation, err := h.checkout.OnLoadPaymentData(ctx, data)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"confirmation": confirmation})
}

func (h *CheckoutHandlers) paymentError(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	var req paymentErrorRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	cause := strings.TrimSpace(req.StatusCode)
	if msg := strings.TrimSpace(req.StatusMessage); msg != "" {
		if cause == "" {
			cause = msg
		} else {
			cause += ": " + msg
		}
	}
	if cause == "" {
		cause = "payment sheet reported an error"
	}

	err := h.checkout.OnError(ctx, errors.New(cause))
	if err != nil && !errors.Is(err, paymentsheet.ErrPaymentSheet) {
		writeCheckoutError(ctx, w, err)
		return
	}
	h.writeStatus(ctx, w)
}

func (h *CheckoutHandlers) completeManual(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	confirmation, err := h.checkout.CompleteManualCheckout(ctx)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"confirmation": confirmation})
}

func (h *CheckoutHandlers) reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	if err := h.checkout.Reset(ctx); err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	h.writeStatus(ctx, w)
}

func (h *CheckoutHandlers) getState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	h.writeStatus(ctx, w)
}

func (h *CheckoutHandlers) buyNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil || h.catalog == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	var req cartLineRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	item, err := resolveItem(ctx, h.catalog, req.Category, req.Item)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	payment, err := h.checkout.ItemRequest(item, req.Size, quantityOrDefault(req.Quantity))
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, payment)
}

func (h *CheckoutHandlers) writeStatus(ctx context.Context, w http.ResponseWriter) {
	status, err := h.checkout.Status(ctx)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, statusPayload{
		State:        status.State,
		Request:      status.Request,
		Confirmation: status.Confirmation,
		LastError:    status.LastError,
	})
}

func addressFromQuery(r *http.Request) (*domain.Address, error) {
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		return nil, nil
	}
	code, err := config.NormalizeCountry(country)
	if err != nil {
		return nil, errors.New("country must be an ISO 3166-1 country code")
	}
	return &domain.Address{CountryCode: code}, nil
}

func writeCheckoutUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, paymentsheet.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, paymentsheet.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusConflict))
	case errors.Is(err, paymentsheet.ErrInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_checkout_state", err.Error(), http.StatusConflict))
	case errors.Is(err, paymentsheet.ErrOrderFailed):
		httpx.WriteError(ctx, w, httpx.NewError("order_failed", "order could not be placed", http.StatusPaymentRequired))
	case errors.Is(err, cart.ErrPersistence):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart could not be loaded", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_timeout", "checkout request timed out", http.StatusGatewayTimeout))
	default:
		observability.FromContext(ctx).Error("checkout request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
