// Package payments holds the two entry points of the settlement core:
// the Orchestrator invoked by checkout and the Reconciler invoked by
// provider notifications.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storefront-payments/pkg/ledger"
	"storefront-payments/pkg/metrics"
	"storefront-payments/pkg/models"
	"storefront-payments/pkg/orders"
	"storefront-payments/pkg/provider"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrAlreadyPaid     = errors.New("order is already paid")
	ErrUnknownProvider = errors.New("unknown payment provider")
	ErrAmountMismatch  = errors.New("charge amount does not match order")
)

type Orchestrator struct {
	orders    *orders.Store
	ledger    *ledger.Ledger
	providers *provider.Registry
}

func NewOrchestrator(orderStore *orders.Store, txLedger *ledger.Ledger, registry *provider.Registry) *Orchestrator {
	return &Orchestrator{orders: orderStore, ledger: txLedger, providers: registry}
}

// InitiatePayment opens a charge with the selected provider and records
// the attempt in the ledger. The returned next action tells the client
// where to send the customer. No automatic retry happens here: a retry
// is a new InitiatePayment call, never a resend of the same charge.
func (o *Orchestrator) InitiatePayment(ctx context.Context, providerName string, req models.ChargeRequest, correlationID string) (*models.ChargeResponse, error) {
	logPrefix := "[" + correlationID + "] "

	adapter, ok := o.providers.Get(providerName)
	if !ok {
		return nil, ErrUnknownProvider
	}

	order, err := o.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to resolve order: %w", err)
	}

	if order.FinancialStatus == models.FinancialPaid {
		return nil, ErrAlreadyPaid
	}

	if req.Amount != order.Amount || req.Currency != order.Currency {
		return nil, ErrAmountMismatch
	}

	slog.Info(logPrefix+"Creating charge", "provider", providerName, "order_id", order.ID,
		"order_number", order.OrderNumber, "amount", order.Amount, "currency", order.Currency)

	result, err := adapter.CreateCharge(ctx, *order, req.Customer)
	if err != nil {
		metrics.ChargeFailuresTotal.WithLabelValues(providerName, string(provider.KindOf(err))).Inc()
		return nil, fmt.Errorf("charge creation failed: %w", err)
	}

	meta := map[string]string{"payment_url": result.PaymentURL}
	if _, err := o.ledger.RecordAttempt(ctx, *order, providerName, result.ProviderRef, meta); err != nil {
		// The provider already holds this charge. Losing the local record
		// silently would strand the money, so it is logged and counted as
		// a reconciliation gap for the sweep to pick up.
		metrics.ReconciliationGapsTotal.WithLabelValues(providerName).Inc()
		slog.Error(logPrefix+"RECONCILIATION GAP: provider accepted charge but ledger write failed",
			"provider", providerName, "order_number", order.OrderNumber, "provider_ref", result.ProviderRef, "error", err)
		return nil, fmt.Errorf("failed to record payment attempt: %w", err)
	}

	metrics.ChargesInitiatedTotal.WithLabelValues(providerName).Inc()
	slog.Info(logPrefix+"Charge created", "provider", providerName, "order_number", order.OrderNumber,
		"provider_ref", result.ProviderRef)

	resp := &models.ChargeResponse{}
	if result.PaymentURL != "" {
		resp.PaymentURL = result.PaymentURL
	} else {
		resp.ConfirmationToken = result.ProviderRef
	}
	return resp, nil
}
