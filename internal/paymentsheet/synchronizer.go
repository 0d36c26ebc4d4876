package paymentsheet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google-pay/storefront/internal/cart"
	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/pricing"
)

// State is the checkout state of the payment sheet.
type State string

const (
	StateIdle      State = "IDLE"
	StateAwaiting  State = "AWAITING_PAYMENT_SHEET_RESULT"
	StateConfirmed State = "CONFIRMED"
	StateErrored   State = "ERRORED"
)

var (
	// ErrPaymentSheet wraps failures reported by the payment-sheet widget.
	ErrPaymentSheet = errors.New("payment sheet: widget error")
	// ErrInvalidState indicates a callback arrived outside of an open checkout attempt.
	ErrInvalidState = errors.New("payment sheet: invalid state")
	// ErrInvalidInput indicates malformed callback data or an unknown selection.
	ErrInvalidInput = errors.New("payment sheet: invalid input")
	// ErrEmptyCart indicates checkout was attempted with nothing in the cart.
	ErrEmptyCart = errors.New("payment sheet: cart is empty")
	// ErrOrderFailed indicates order processing rejected the paid cart.
	ErrOrderFailed = errors.New("payment sheet: order processing failed")
)

// CartStore is the part of the cart store the synchronizer depends on.
type CartStore interface {
	Cart(ctx context.Context) (domain.Cart, error)
	RemoveLines(ctx context.Context, ordered domain.Cart) (domain.Cart, error)
	Subscribe(listener cart.Listener) (unsubscribe func())
}

type TransactionBuilder interface {
	Build(cart domain.Cart, address *domain.Address, shippingOptionID string) domain.TransactionSnapshot
}

type ShippingResolver interface {
	Eligible(address *domain.Address) pricing.ShippingEligibility
}

// Confirmation describes a completed checkout.
type Confirmation struct {
	OrderID          string                     `json:"orderId"`
	TransactionInfo  domain.TransactionSnapshot `json:"transactionInfo"`
	ShippingOptionID string                     `json:"shippingOptionId,omitempty"`
	ConfirmedAt      time.Time                  `json:"confirmedAt"`
}

// Status is a point-in-time view of the synchronizer.
type Status struct {
	State        State
	Request      PaymentDataRequest
	Confirmation *Confirmation
	LastError    string
}

// Synchronizer keeps the live payment request in step with the cart and the buyer's choices in
// the sheet, and drives the checkout state machine:
//
//	Idle -> AwaitingPaymentSheetResult -> Confirmed | Errored -> Idle
type Synchronizer struct {
	carts    CartStore
	builder  TransactionBuilder
	shipping ShippingResolver
	orders   OrderProcessor
	template PaymentDataRequest
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)

	mu               sync.Mutex
	state            State
	completing       bool
	loaded           bool
	cart             domain.Cart
	address          *domain.Address
	shippingOptionID string
	request          PaymentDataRequest
	confirmation     *Confirmation
	lastError        string

	unsubscribe func()
}

type SynchronizerDeps struct {
	Carts    CartStore
	Builder  TransactionBuilder
	Shipping ShippingResolver
	Orders   OrderProcessor
	Template PaymentDataRequest
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

func NewSynchronizer(deps SynchronizerDeps) (*Synchronizer, error) {
	if deps.Carts == nil {
		return nil, errors.New("payment sheet: cart store is required")
	}
	if deps.Builder == nil {
		return nil, errors.New("payment sheet: transaction builder is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("payment sheet: shipping resolver is required")
	}
	if deps.Orders == nil {
		deps.Orders = NewMockOrderProcessor(MockOrderProcessorDeps{Logger: deps.Logger, Clock: deps.Clock})
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	s := &Synchronizer{
		carts:    deps.Carts,
		builder:  deps.Builder,
		shipping: deps.Shipping,
		orders:   deps.Orders,
		template: deps.Template.clone(),
		now:      func() time.Time { return now().UTC() },
		logger:   logger,
		state:    StateIdle,
		cart:     domain.Cart{},
	}
	s.shippingOptionID = s.shipping.Eligible(nil).DefaultOptionID
	s.rebuildLocked()
	s.unsubscribe = deps.Carts.Subscribe(s.onCartChanged)
	return s, nil
}

// Close stops listening to cart changes.
func (s *Synchronizer) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// State returns the current checkout state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the state together with a copy of the live request.
func (s *Synchronizer) Status(ctx context.Context) (Status, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{
		State:     s.state,
		Request:   s.request.clone(),
		LastError: s.lastError,
	}
	if s.confirmation != nil {
		confirmation := *s.confirmation
		confirmation.TransactionInfo = cloneSnapshot(confirmation.TransactionInfo)
		status.Confirmation = &confirmation
	}
	return status, nil
}

// Request returns a copy of the live payment request.
func (s *Synchronizer) Request(ctx context.Context) (PaymentDataRequest, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return PaymentDataRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request.clone(), nil
}

// Begin opens a checkout attempt. A terminal state is reset to Idle first.
func (s *Synchronizer) Begin(ctx context.Context) (PaymentDataRequest, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return PaymentDataRequest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAwaiting || s.completing {
		return PaymentDataRequest{}, fmt.Errorf("%w: checkout already in progress", ErrInvalidState)
	}
	if len(s.cart) == 0 {
		return PaymentDataRequest{}, ErrEmptyCart
	}
	s.resetLocked()
	s.state = StateAwaiting
	s.rebuildLocked()

	s.logger(ctx, "payment_sheet.begin", map[string]any{
		"lines":      len(s.cart),
		"totalPrice": s.request.TransactionInfo.TotalPrice,
	})
	return s.request.clone(), nil
}

// Reset abandons the current attempt and returns to Idle.
func (s *Synchronizer) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completing {
		return fmt.Errorf("%w: order is being placed", ErrInvalidState)
	}
	s.resetLocked()
	s.rebuildLocked()
	s.logger(ctx, "payment_sheet.reset", nil)
	return nil
}

// SelectShipping changes the shipping selection outside of the widget callbacks.
func (s *Synchronizer) SelectShipping(ctx context.Context, optionID string) (domain.TransactionSnapshot, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return domain.TransactionSnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	optionID = strings.TrimSpace(optionID)
	if !s.shipping.Eligible(s.address).Contains(optionID) {
		return domain.TransactionSnapshot{}, fmt.Errorf("%w: shipping option %q is not available", ErrInvalidInput, optionID)
	}
	s.shippingOptionID = optionID
	s.rebuildLocked()
	return cloneSnapshot(s.request.TransactionInfo), nil
}

// OnPaymentDataChanged answers a widget callback with the updated transaction. The cart is
// never modified here.
func (s *Synchronizer) OnPaymentDataChanged(ctx context.Context, data IntermediatePaymentData) (PaymentDataRequestUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaiting || s.completing {
		return PaymentDataRequestUpdate{}, fmt.Errorf("%w: no checkout in progress", ErrInvalidState)
	}

	trigger := strings.ToUpper(strings.TrimSpace(data.CallbackTrigger))
	switch trigger {
	case TriggerInitialize, TriggerShippingAddress:
		s.address = cloneAddress(data.ShippingAddress)
		eligible := s.shipping.Eligible(s.address)
		switch {
		case data.ShippingOptionData != nil && eligible.Contains(data.ShippingOptionData.ID):
			s.shippingOptionID = strings.TrimSpace(data.ShippingOptionData.ID)
		case !eligible.Contains(s.shippingOptionID):
			s.shippingOptionID = eligible.DefaultOptionID
		}
		s.rebuildLocked()
		s.logger(ctx, "payment_sheet.address_changed", map[string]any{
			"country":  pricing.CountryOf(s.address),
			"shipping": s.shippingOptionID,
		})

		info := cloneSnapshot(s.request.TransactionInfo)
		params := *s.request.ShippingOptionParameters
		params.ShippingOptions = append([]SelectionOption(nil), params.ShippingOptions...)
		return PaymentDataRequestUpdate{NewTransactionInfo: &info, NewShippingOptionParameters: &params}, nil

	case TriggerShippingOption:
		if data.ShippingOptionData == nil || strings.TrimSpace(data.ShippingOptionData.ID) == "" {
			return PaymentDataRequestUpdate{}, fmt.Errorf("%w: shipping option data is required", ErrInvalidInput)
		}
		if data.ShippingAddress != nil {
			s.address = cloneAddress(data.ShippingAddress)
		}
		optionID := strings.TrimSpace(data.ShippingOptionData.ID)
		if !s.shipping.Eligible(s.address).Contains(optionID) {
			s.logger(ctx, "payment_sheet.shipping_rejected", map[string]any{"shipping": optionID})
			return PaymentDataRequestUpdate{Error: &PaymentDataError{
				Reason:  ReasonShippingOptionInvalid,
				Message: "This shipping option is not available for the selected address",
				Intent:  IntentShippingOption,
			}}, nil
		}
		s.shippingOptionID = optionID
		s.rebuildLocked()
		s.logger(ctx, "payment_sheet.shipping_changed", map[string]any{
			"shipping":   optionID,
			"totalPrice": s.request.TransactionInfo.TotalPrice,
		})

		info := cloneSnapshot(s.request.TransactionInfo)
		return PaymentDataRequestUpdate{NewTransactionInfo: &info}, nil

	default:
		return PaymentDataRequestUpdate{}, nil
	}
}

// OnLoadPaymentData completes the attempt: the order is placed, the ordered lines leave the cart
// and the state becomes Confirmed.
func (s *Synchronizer) OnLoadPaymentData(ctx context.Context, data PaymentData) (Confirmation, error) {
	s.mu.Lock()
	if s.state != StateAwaiting || s.completing {
		s.mu.Unlock()
		return Confirmation{}, fmt.Errorf("%w: no checkout in progress", ErrInvalidState)
	}
	if data.ShippingAddress != nil {
		s.address = cloneAddress(data.ShippingAddress)
	}
	if data.ShippingOptionData != nil && s.shipping.Eligible(s.address).Contains(data.ShippingOptionData.ID) {
		s.shippingOptionID = strings.TrimSpace(data.ShippingOptionData.ID)
	}
	s.rebuildLocked()
	s.completing = true
	req := OrderRequest{
		Cart:             s.cart.Clone(),
		Transaction:      cloneSnapshot(s.request.TransactionInfo),
		ShippingAddress:  cloneAddress(s.address),
		ShippingOptionID: s.request.TransactionInfo.ShippingOptionID,
		PaymentData:      &data,
	}
	s.mu.Unlock()

	return s.complete(ctx, req)
}

// CompleteManualCheckout places the order without the payment sheet, from Idle or from an open
// attempt.
func (s *Synchronizer) CompleteManualCheckout(ctx context.Context) (Confirmation, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return Confirmation{}, err
	}

	s.mu.Lock()
	if s.completing || s.state == StateConfirmed || s.state == StateErrored {
		s.mu.Unlock()
		return Confirmation{}, fmt.Errorf("%w: checkout must be reset first", ErrInvalidState)
	}
	if len(s.cart) == 0 {
		s.mu.Unlock()
		return Confirmation{}, ErrEmptyCart
	}
	s.rebuildLocked()
	s.completing = true
	req := OrderRequest{
		Cart:             s.cart.Clone(),
		Transaction:      cloneSnapshot(s.request.TransactionInfo),
		ShippingAddress:  cloneAddress(s.address),
		ShippingOptionID: s.request.TransactionInfo.ShippingOptionID,
	}
	s.mu.Unlock()

	return s.complete(ctx, req)
}

// OnError records a widget failure or cancellation. The cart is left untouched.
func (s *Synchronizer) OnError(ctx context.Context, cause error) error {
	if cause == nil {
		cause = errors.New("unknown error")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaiting || s.completing {
		return fmt.Errorf("%w: no checkout in progress", ErrInvalidState)
	}
	s.state = StateErrored
	s.lastError = cause.Error()
	s.logger(ctx, "payment_sheet.error", map[string]any{"error": cause.Error()})
	return fmt.Errorf("%w: %v", ErrPaymentSheet, cause)
}

// ItemRequest builds a one-off request for buying a single item directly, leaving the cart and
// the checkout state alone.
func (s *Synchronizer) ItemRequest(item domain.Item, size string, quantity int) (PaymentDataRequest, error) {
	if strings.TrimSpace(item.Name) == "" {
		return PaymentDataRequest{}, fmt.Errorf("%w: item is required", ErrInvalidInput)
	}
	if quantity <= 0 {
		return PaymentDataRequest{}, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidInput)
	}
	single := domain.Cart{{Item: item, Size: strings.TrimSpace(size), Quantity: quantity}}
	eligible := s.shipping.Eligible(nil)

	req := s.template.clone()
	req.TransactionInfo = s.builder.Build(single, nil, eligible.DefaultOptionID)
	req.ShippingOptionParameters = shippingParameters(eligible, eligible.DefaultOptionID)
	return req, nil
}

func (s *Synchronizer) complete(ctx context.Context, req OrderRequest) (Confirmation, error) {
	order, err := s.orders.ProcessOrder(ctx, req)
	if err != nil {
		s.mu.Lock()
		s.completing = false
		s.state = StateErrored
		s.lastError = err.Error()
		s.mu.Unlock()
		s.logger(ctx, "payment_sheet.order_failed", map[string]any{"error": err.Error()})
		return Confirmation{}, fmt.Errorf("%w: %v", ErrOrderFailed, err)
	}

	// The order stands even if the ordered lines cannot be removed.
	if _, err := s.carts.RemoveLines(ctx, req.Cart); err != nil {
		s.logger(ctx, "payment_sheet.cart_clear_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}

	confirmation := Confirmation{
		OrderID:          order.ID,
		TransactionInfo:  req.Transaction,
		ShippingOptionID: req.ShippingOptionID,
		ConfirmedAt:      s.now(),
	}

	s.mu.Lock()
	s.completing = false
	s.state = StateConfirmed
	s.confirmation = &confirmation
	s.lastError = ""
	s.mu.Unlock()

	s.logger(ctx, "payment_sheet.confirmed", map[string]any{
		"orderId":    order.ID,
		"totalPrice": req.Transaction.TotalPrice,
	})
	result := confirmation
	result.TransactionInfo = cloneSnapshot(result.TransactionInfo)
	return result, nil
}

func (s *Synchronizer) onCartChanged(_ context.Context, next domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = next
	s.loaded = true
	s.rebuildLocked()
}

func (s *Synchronizer) ensureLoaded(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}

	current, err := s.carts.Cart(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.cart = current
		s.loaded = true
		s.rebuildLocked()
	}
	return nil
}

func (s *Synchronizer) resetLocked() {
	s.state = StateIdle
	s.address = nil
	s.shippingOptionID = s.shipping.Eligible(nil).DefaultOptionID
	s.confirmation = nil
	s.lastError = ""
}

func (s *Synchronizer) rebuildLocked() {
	request := s.template.clone()
	request.TransactionInfo = s.builder.Build(s.cart, s.address, s.shippingOptionID)
	request.ShippingOptionParameters = shippingParameters(s.shipping.Eligible(s.address), s.shippingOptionID)
	s.request = request
}
