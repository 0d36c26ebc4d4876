package paymentsheet

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/google-pay/storefront/internal/domain"
)

// OrderRequest is what gets handed to order processing once the buyer has paid.
type OrderRequest struct {
	Cart             domain.Cart
	Transaction      domain.TransactionSnapshot
	ShippingAddress  *domain.Address
	ShippingOptionID string
	PaymentData      *PaymentData
}

type Order struct {
	ID        string
	CreatedAt time.Time
}

// OrderProcessor places an order for a paid cart.
type OrderProcessor interface {
	ProcessOrder(ctx context.Context, req OrderRequest) (Order, error)
}

// MockOrderProcessor assigns an order id and logs the order. Nothing is persisted and no
// payment is captured.
type MockOrderProcessor struct {
	idGen  func() string
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

type MockOrderProcessorDeps struct {
	IDGenerator func() string
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

func NewMockOrderProcessor(deps MockOrderProcessorDeps) *MockOrderProcessor {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &MockOrderProcessor{
		idGen:  idGen,
		now:    func() time.Time { return now().UTC() },
		logger: logger,
	}
}

// ProcessOrder implements OrderProcessor.
func (p *MockOrderProcessor) ProcessOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if len(req.Cart) == 0 {
		return Order{}, errors.New("order processor: cart is empty")
	}
	order := Order{ID: strings.TrimSpace(p.idGen()), CreatedAt: p.now()}

	fields := map[string]any{
		"orderId":     order.ID,
		"lines":       len(req.Cart),
		"units":       req.Cart.Size(),
		"totalPrice":  req.Transaction.TotalPrice,
		"currency":    req.Transaction.CurrencyCode,
		"shippingId":  req.ShippingOptionID,
		"walletOrder": req.PaymentData != nil,
	}
	if req.ShippingAddress != nil {
		fields["country"] = req.ShippingAddress.CountryCode
	}
	p.logger(ctx, "order.processed", fields)
	return order, nil
}
