package payments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"storefront-payments/pkg/events"
	"storefront-payments/pkg/ledger"
	"storefront-payments/pkg/metrics"
	"storefront-payments/pkg/models"
	"storefront-payments/pkg/orders"
	"storefront-payments/pkg/provider"
)

// Redirect reason codes handed back to the browser after a capture
// return.
const (
	ReasonMissingToken  = "missing_token"
	ReasonNotCompleted  = "not_completed"
	ReasonCaptureFailed = "capture_failed"
)

// CallbackResult tells the HTTP layer how to answer the provider.
type CallbackResult struct {
	HTTPStatus   int
	Applied      bool
	Transitioned bool
}

type Reconciler struct {
	orders    *orders.Store
	machine   *orders.StateMachine
	ledger    *ledger.Ledger
	providers *provider.Registry
	publisher events.Publisher

	successURL string
	errorURL   string
}

func NewReconciler(orderStore *orders.Store, machine *orders.StateMachine, txLedger *ledger.Ledger,
	registry *provider.Registry, publisher events.Publisher, successURL, errorURL string) *Reconciler {
	return &Reconciler{
		orders:     orderStore,
		machine:    machine,
		ledger:     txLedger,
		providers:  registry,
		publisher:  publisher,
		successURL: successURL,
		errorURL:   errorURL,
	}
}

// HandleCallback drives an inbound provider notification through parse,
// order resolution, the idempotent ledger update and the order state
// machine. A structurally valid callback always ends in 2xx once these
// steps ran, whether or not a transition happened: the provider must
// never be induced to retry a callback we have durably processed.
func (r *Reconciler) HandleCallback(ctx context.Context, providerName string, payload []byte, correlationID string) CallbackResult {
	logPrefix := "[" + correlationID + "] "

	adapter, ok := r.providers.Get(providerName)
	if !ok {
		slog.Warn(logPrefix+"Callback for unknown provider", "provider", providerName)
		return CallbackResult{HTTPStatus: http.StatusNotFound}
	}

	event, err := adapter.ParseCallback(payload)
	if err != nil {
		// Malformed or unauthenticated payloads are swallowed with 200 so
		// the provider does not retry them forever; nothing is mutated.
		metrics.CallbacksTotal.WithLabelValues(providerName, "malformed").Inc()
		slog.Warn(logPrefix+"Discarding malformed callback", "provider", providerName, "error", err)
		return CallbackResult{HTTPStatus: http.StatusOK}
	}

	order, err := r.orders.GetByNumber(ctx, event.OrderNumber)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			metrics.CallbacksTotal.WithLabelValues(providerName, "unresolved").Inc()
			slog.Warn(logPrefix+"Callback correlation key resolves to no order",
				"provider", providerName, "order_number", event.OrderNumber)
			return CallbackResult{HTTPStatus: http.StatusNotFound}
		}
		slog.Error(logPrefix+"Failed to resolve order for callback", "error", err)
		return CallbackResult{HTTPStatus: http.StatusInternalServerError}
	}

	meta := map[string]string{"provider_state": event.ProviderState}
	if event.MethodRef != "" {
		meta["method_ref"] = event.MethodRef
	}

	key := ledger.Key{Provider: providerName, ProviderRef: event.ProviderRef, OrderID: order.ID}
	applied, err := r.ledger.UpdateStatus(ctx, key, event.State, meta)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			// The provider holds a charge the ledger never recorded.
			metrics.ReconciliationGapsTotal.WithLabelValues(providerName).Inc()
			slog.Error(logPrefix+"RECONCILIATION GAP: callback references untracked charge",
				"provider", providerName, "order_number", event.OrderNumber, "provider_ref", event.ProviderRef)
			return CallbackResult{HTTPStatus: http.StatusOK}
		}
		slog.Error(logPrefix+"Ledger update failed", "error", err)
		return CallbackResult{HTTPStatus: http.StatusInternalServerError}
	}

	if !applied {
		metrics.DuplicateCallbacksTotal.WithLabelValues(providerName).Inc()
		slog.Info(logPrefix+"Duplicate or late callback, ledger unchanged",
			"provider", providerName, "order_number", event.OrderNumber, "state", event.State)
		metrics.CallbacksTotal.WithLabelValues(providerName, "duplicate").Inc()
		return CallbackResult{HTTPStatus: http.StatusOK}
	}

	transitioned, err := r.machine.OnSettlement(ctx, order.ID, event.State, applied)
	if err != nil {
		slog.Error(logPrefix+"Order transition failed", "order_id", order.ID, "error", err)
		return CallbackResult{HTTPStatus: http.StatusInternalServerError}
	}

	if transitioned {
		r.publishSettlement(logPrefix, *order, providerName, event.State, correlationID)
	}

	metrics.CallbacksTotal.WithLabelValues(providerName, "applied").Inc()
	slog.Info(logPrefix+"Callback reconciled", "provider", providerName,
		"order_number", event.OrderNumber, "state", event.State, "transitioned", transitioned)

	return CallbackResult{HTTPStatus: http.StatusOK, Applied: applied, Transitioned: transitioned}
}

// CaptureReturn finishes a redirect-provider payment when the customer
// comes back from the approval page. It returns the URL the browser is
// sent to.
func (r *Reconciler) CaptureReturn(ctx context.Context, token, correlationID string) string {
	logPrefix := "[" + correlationID + "] "

	if token == "" {
		metrics.CapturesTotal.WithLabelValues("missing_token").Inc()
		return r.redirectError(ReasonMissingToken)
	}

	adapter, ok := r.providers.Get(provider.PayPalName)
	if !ok {
		metrics.CapturesTotal.WithLabelValues("failed").Inc()
		return r.redirectError(ReasonCaptureFailed)
	}

	tx, err := r.ledger.FindByProviderRef(ctx, provider.PayPalName, token)
	if err != nil {
		metrics.CapturesTotal.WithLabelValues("unknown_token").Inc()
		slog.Warn(logPrefix+"Capture return for unknown token", "token", token, "error", err)
		return r.redirectError(ReasonCaptureFailed)
	}

	result, err := adapter.Capture(ctx, token)
	if err != nil {
		metrics.CapturesTotal.WithLabelValues("failed").Inc()
		slog.Error(logPrefix+"Capture failed", "provider_ref", token, "kind", provider.KindOf(err), "error", err)
		return r.redirectError(ReasonCaptureFailed)
	}

	if result.FinalState != models.TxCompleted {
		// Not terminal for the order: the customer may retry checkout.
		metrics.CapturesTotal.WithLabelValues("not_completed").Inc()
		slog.Warn(logPrefix+"Capture did not complete", "provider_ref", token, "state", result.FinalState)
		return r.redirectError(ReasonNotCompleted)
	}

	meta := map[string]string{"settlement_ref": result.SettlementRef}
	applied, err := r.ledger.UpdateStatus(ctx, ledger.Key{Provider: provider.PayPalName, ProviderRef: token}, models.TxCompleted, meta)
	if err != nil {
		slog.Error(logPrefix+"Ledger update after capture failed", "provider_ref", token, "error", err)
		return r.redirectError(ReasonCaptureFailed)
	}

	if applied {
		order, err := r.orders.GetByID(ctx, tx.OrderID)
		if err == nil {
			transitioned, terr := r.machine.OnSettlement(ctx, order.ID, models.TxCompleted, applied)
			if terr != nil {
				slog.Error(logPrefix+"Order transition after capture failed", "order_id", order.ID, "error", terr)
			} else if transitioned {
				r.publishSettlement(logPrefix, *order, provider.PayPalName, models.TxCompleted, correlationID)
			}
		}
	} else {
		metrics.DuplicateCallbacksTotal.WithLabelValues(provider.PayPalName).Inc()
		slog.Info(logPrefix+"Capture already settled, ledger unchanged", "provider_ref", token)
	}

	metrics.CapturesTotal.WithLabelValues("completed").Inc()
	return r.successURL
}

func (r *Reconciler) publishSettlement(logPrefix string, order models.Order, providerName, state, correlationID string) {
	msg := models.SettlementMessage{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Provider:      providerName,
		Amount:        order.Amount,
		Currency:      order.Currency,
		Status:        state,
		SettledAt:     time.Now(),
		CorrelationID: correlationID,
	}

	if err := r.publisher.PublishSettlement(msg); err != nil {
		// The ledger already holds the settlement; failing the callback
		// now would only provoke a provider retry we cannot apply.
		slog.Error(logPrefix+"Failed to publish settlement event", "order_number", order.OrderNumber, "error", err)
		return
	}

	slog.Info(logPrefix+"Published settlement event", "order_number", order.OrderNumber, "status", state)
}

func (r *Reconciler) redirectError(reason string) string {
	u, err := url.Parse(r.errorURL)
	if err != nil {
		return r.errorURL + "?reason=" + reason
	}
	q := u.Query()
	q.Set("reason", reason)
	u.RawQuery = q.Encode()
	return u.String()
}
