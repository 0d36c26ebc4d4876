package paymentsheet

import (
	"encoding/json"

	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/platform/config"
	"github.com/google-pay/storefront/internal/pricing"
)

// Callback triggers and intents of the payment-sheet protocol.
const (
	TriggerInitialize      = "INITIALIZE"
	TriggerShippingAddress = "SHIPPING_ADDRESS"
	TriggerShippingOption  = "SHIPPING_OPTION"

	IntentShippingAddress = "SHIPPING_ADDRESS"
	IntentShippingOption  = "SHIPPING_OPTION"

	ReasonShippingOptionInvalid = "SHIPPING_OPTION_INVALID"
)

type MerchantInfo struct {
	MerchantID   string `json:"merchantId,omitempty"`
	MerchantName string `json:"merchantName"`
}

type CardParameters struct {
	AllowedAuthMethods  []string `json:"allowedAuthMethods"`
	AllowedCardNetworks []string `json:"allowedCardNetworks"`
}

type TokenizationSpecification struct {
	Type       string            `json:"type"`
	Parameters map[string]string `json:"parameters"`
}

type PaymentMethod struct {
	Type                      string                    `json:"type"`
	Parameters                CardParameters            `json:"parameters"`
	TokenizationSpecification TokenizationSpecification `json:"tokenizationSpecification"`
}

type SelectionOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type ShippingOptionParameters struct {
	DefaultSelectedOptionID string            `json:"defaultSelectedOptionId"`
	ShippingOptions         []SelectionOption `json:"shippingOptions"`
}

// PaymentDataRequest is the live request handed to the payment-sheet widget.
type PaymentDataRequest struct {
	APIVersion               int                        `json:"apiVersion"`
	APIVersionMinor          int                        `json:"apiVersionMinor"`
	AllowedPaymentMethods    []PaymentMethod            `json:"allowedPaymentMethods"`
	MerchantInfo             MerchantInfo               `json:"merchantInfo"`
	TransactionInfo          domain.TransactionSnapshot `json:"transactionInfo"`
	ShippingAddressRequired  bool                       `json:"shippingAddressRequired"`
	ShippingOptionRequired   bool                       `json:"shippingOptionRequired"`
	ShippingOptionParameters *ShippingOptionParameters  `json:"shippingOptionParameters,omitempty"`
	CallbackIntents          []string                   `json:"callbackIntents"`
}

type SelectionOptionData struct {
	ID string `json:"id"`
}

// IntermediatePaymentData is sent by the widget when the buyer changes address or shipping option.
type IntermediatePaymentData struct {
	CallbackTrigger    string               `json:"callbackTrigger"`
	ShippingAddress    *domain.Address      `json:"shippingAddress,omitempty"`
	ShippingOptionData *SelectionOptionData `json:"shippingOptionData,omitempty"`
}

type PaymentDataError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Intent  string `json:"intent"`
}

// PaymentDataRequestUpdate is the delta returned to the widget. An empty value means no change.
type PaymentDataRequestUpdate struct {
	NewTransactionInfo          *domain.TransactionSnapshot `json:"newTransactionInfo,omitempty"`
	NewShippingOptionParameters *ShippingOptionParameters   `json:"newShippingOptionParameters,omitempty"`
	Error                       *PaymentDataError           `json:"error,omitempty"`
}

// PaymentData is the authorised result delivered when the buyer completes the sheet.
type PaymentData struct {
	APIVersion         int                  `json:"apiVersion,omitempty"`
	APIVersionMinor    int                  `json:"apiVersionMinor,omitempty"`
	Email              string               `json:"email,omitempty"`
	ShippingAddress    *domain.Address      `json:"shippingAddress,omitempty"`
	ShippingOptionData *SelectionOptionData `json:"shippingOptionData,omitempty"`
	PaymentMethodData  json.RawMessage      `json:"paymentMethodData,omitempty"`
}

// NewRequestTemplate builds the static part of the request: card parameters, gateway
// tokenization and the shipping callbacks.
func NewRequestTemplate(cfg config.PaymentConfig) PaymentDataRequest {
	params := map[string]string{"gateway": cfg.Gateway}
	if cfg.GatewayVersion != "" {
		params[cfg.Gateway+":version"] = cfg.GatewayVersion
	}
	if cfg.GatewayMerchantKey != "" {
		params[cfg.Gateway+":publishableKey"] = cfg.GatewayMerchantKey
	}

	return PaymentDataRequest{
		APIVersion:      2,
		APIVersionMinor: 0,
		AllowedPaymentMethods: []PaymentMethod{{
			Type: "CARD",
			Parameters: CardParameters{
				AllowedAuthMethods:  []string{"PAN_ONLY", "CRYPTOGRAM_3DS"},
				AllowedCardNetworks: []string{"MASTERCARD", "VISA"},
			},
			TokenizationSpecification: TokenizationSpecification{
				Type:       "PAYMENT_GATEWAY",
				Parameters: params,
			},
		}},
		MerchantInfo: MerchantInfo{
			MerchantID:   cfg.MerchantID,
			MerchantName: cfg.MerchantName,
		},
		ShippingAddressRequired: true,
		ShippingOptionRequired:  true,
		CallbackIntents:         []string{IntentShippingAddress, IntentShippingOption},
	}
}

func shippingParameters(eligible pricing.ShippingEligibility, selected string) *ShippingOptionParameters {
	params := &ShippingOptionParameters{
		DefaultSelectedOptionID: eligible.DefaultOptionID,
		ShippingOptions:         make([]SelectionOption, 0, len(eligible.Options)),
	}
	if eligible.Contains(selected) {
		params.DefaultSelectedOptionID = selected
	}
	for _, option := range eligible.Options {
		params.ShippingOptions = append(params.ShippingOptions, SelectionOption{
			ID:          option.ID,
			Label:       option.Label,
			Description: option.Description,
		})
	}
	return params
}

func (r PaymentDataRequest) clone() PaymentDataRequest {
	out := r
	out.AllowedPaymentMethods = make([]PaymentMethod, len(r.AllowedPaymentMethods))
	for i, method := range r.AllowedPaymentMethods {
		method.Parameters.AllowedAuthMethods = append([]string(nil), method.Parameters.AllowedAuthMethods...)
		method.Parameters.AllowedCardNetworks = append([]string(nil), method.Parameters.AllowedCardNetworks...)
		params := make(map[string]string, len(method.TokenizationSpecification.Parameters))
		for k, v := range method.TokenizationSpecification.Parameters {
			params[k] = v
		}
		method.TokenizationSpecification.Parameters = params
		out.AllowedPaymentMethods[i] = method
	}
	out.TransactionInfo = cloneSnapshot(r.TransactionInfo)
	if r.ShippingOptionParameters != nil {
		params := *r.ShippingOptionParameters
		params.ShippingOptions = append([]SelectionOption(nil), r.ShippingOptionParameters.ShippingOptions...)
		out.ShippingOptionParameters = &params
	}
	out.CallbackIntents = append([]string(nil), r.CallbackIntents...)
	return out
}

func cloneSnapshot(snapshot domain.TransactionSnapshot) domain.TransactionSnapshot {
	snapshot.DisplayItems = append([]domain.DisplayItem(nil), snapshot.DisplayItems...)
	return snapshot
}

func cloneAddress(address *domain.Address) *domain.Address {
	if address == nil {
		return nil
	}
	copied := *address
	return &copied
}
