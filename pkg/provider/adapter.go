// Package provider abstracts external payment providers behind a single
// capability set so reconciliation logic never branches per provider.
// Adding a provider means adding an adapter, nothing else.
package provider

import (
	"context"

	"storefront-payments/pkg/models"
)

// ChargeResult is what a provider hands back after accepting a charge.
type ChargeResult struct {
	// ProviderRef is the provider-assigned transaction/invoice/order id.
	ProviderRef string
	// PaymentURL is where the customer completes the payment: a hosted
	// payment page or a checkout-approval URL. Empty when the caller must
	// confirm client-side or poll.
	PaymentURL string
}

// CaptureResult is the outcome of a synchronous capture-on-return.
type CaptureResult struct {
	// FinalState is the normalized transaction state after capture.
	FinalState string
	// SettlementRef identifies the provider-side settlement record.
	SettlementRef string
}

// CallbackEvent is the normalized form of an inbound provider
// notification. Callbacks are untrusted input; an event only exists
// after the payload passed structural and authentication checks.
type CallbackEvent struct {
	Provider    string
	ProviderRef string
	// OrderNumber is the correlation key the provider echoes back.
	OrderNumber string
	// State is already mapped to the internal tri-state
	// (completed/failed/pending) via the provider's fixed state table.
	State string
	// MethodRef is the provider-specific payment-method reference
	// (mobile-money receipt, card reference).
	MethodRef string
	// ProviderState preserves the provider's own vocabulary for logging.
	ProviderState string
}

type Adapter interface {
	Name() string

	// CreateCharge opens a payment with the provider for the given order.
	CreateCharge(ctx context.Context, order models.Order, customer models.Customer) (*ChargeResult, error)

	// Capture confirms a previously created charge. Only meaningful for
	// redirect providers; others return ErrUnsupported.
	Capture(ctx context.Context, providerRef string) (*CaptureResult, error)

	// ParseCallback validates and normalizes an inbound notification.
	ParseCallback(payload []byte) (*CallbackEvent, error)
}

// ChargeRecord is a provider-side charge listing entry, used by the
// reconciliation sweep to spot charges the local ledger never recorded.
type ChargeRecord struct {
	ProviderRef string
	OrderNumber string
	Amount      int64
	State       string
}

// ChargeLister is implemented by adapters whose provider exposes a
// transaction listing API.
type ChargeLister interface {
	ListCharges(ctx context.Context) ([]ChargeRecord, error)
}

// Registry holds the configured adapters keyed by provider name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
