package provider

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"storefront-payments/pkg/config"
	"storefront-payments/pkg/httpclient"
	"storefront-payments/pkg/models"
)

const IntaSendName = "intasend"

// intasendStateTable maps the aggregator's settlement vocabulary to the
// internal tri-state. Anything unrecognized stays pending.
var intasendStateTable = map[string]string{
	"COMPLETE": models.TxCompleted,
	"FAILED":   models.TxFailed,
}

// IntaSend is the mobile-money/card aggregator adapter. Charges are
// created against the hosted checkout API; confirmation arrives later as
// a webhook push.
type IntaSend struct {
	cfg    config.IntaSendConfig
	client *httpclient.Client
}

func NewIntaSend(cfg config.IntaSendConfig, timeout time.Duration) *IntaSend {
	return &IntaSend{
		cfg:    cfg,
		client: httpclient.NewClient(timeout),
	}
}

func (p *IntaSend) Name() string { return IntaSendName }

type intasendCheckoutRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	APIRef      string `json:"api_ref"`
}

type intasendCheckoutResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

func (p *IntaSend) CreateCharge(ctx context.Context, order models.Order, customer models.Customer) (*ChargeResult, error) {
	if customer.Email == "" || order.Amount <= 0 {
		return nil, newError(KindInvalidRequest, IntaSendName, "missing customer email or non-positive amount", nil)
	}

	payload := intasendCheckoutRequest{
		Amount:      order.Amount,
		Currency:    order.Currency,
		Email:       customer.Email,
		FirstName:   customer.FirstName,
		LastName:    customer.LastName,
		PhoneNumber: customer.Phone,
		APIRef:      order.OrderNumber,
	}

	headers := map[string]string{"Authorization": "Bearer " + p.cfg.SecretKey}
	resp, err := p.client.PostJSON(ctx, p.cfg.BaseURL+"/api/v1/checkout/", payload, headers)
	if err != nil {
		return nil, newError(KindProviderUnavailable, IntaSendName, "checkout request failed", err)
	}

	var body intasendCheckoutResponse
	if err := p.client.DecodeJSONResponse(resp, &body); err != nil {
		return nil, newError(KindProviderUnavailable, IntaSendName, "undecodable checkout response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, newError(KindInvalidRequest, IntaSendName, "checkout rejected: "+body.Detail, nil)
	default:
		return nil, newError(KindProviderUnavailable, IntaSendName, fmt.Sprintf("checkout returned %d", resp.StatusCode), nil)
	}

	if body.ID == "" || body.URL == "" {
		return nil, newError(KindProviderUnavailable, IntaSendName, "checkout response missing id or url", nil)
	}

	return &ChargeResult{ProviderRef: body.ID, PaymentURL: body.URL}, nil
}

// Capture is not part of the aggregator flow; settlement arrives via
// webhook only.
func (p *IntaSend) Capture(ctx context.Context, providerRef string) (*CaptureResult, error) {
	return nil, ErrUnsupported
}

type intasendWebhook struct {
	InvoiceID      string `json:"invoice_id"`
	State          string `json:"state"`
	APIRef         string `json:"api_ref"`
	Value          string `json:"value"`
	Account        string `json:"account"`
	MpesaReference string `json:"mpesa_reference"`
	Challenge      string `json:"challenge"`
}

func (p *IntaSend) ParseCallback(payload []byte) (*CallbackEvent, error) {
	var hook intasendWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, newError(KindMalformedCallback, IntaSendName, "payload is not valid JSON", err)
	}

	if hook.InvoiceID == "" || hook.State == "" || hook.APIRef == "" {
		return nil, newError(KindMalformedCallback, IntaSendName, "missing invoice_id, state or api_ref", nil)
	}

	// The challenge is the shared secret configured on the provider
	// dashboard. A callback without it cannot be attributed to the
	// provider and must not be trusted.
	if p.cfg.WebhookChallenge != "" &&
		subtle.ConstantTimeCompare([]byte(hook.Challenge), []byte(p.cfg.WebhookChallenge)) != 1 {
		return nil, newError(KindMalformedCallback, IntaSendName, "webhook challenge mismatch", nil)
	}

	state, ok := intasendStateTable[hook.State]
	if !ok {
		state = models.TxPending
	}

	return &CallbackEvent{
		Provider:      IntaSendName,
		ProviderRef:   hook.InvoiceID,
		OrderNumber:   hook.APIRef,
		State:         state,
		MethodRef:     hook.MpesaReference,
		ProviderState: hook.State,
	}, nil
}

type intasendTransactionList struct {
	Results []struct {
		InvoiceID string `json:"invoice_id"`
		APIRef    string `json:"api_ref"`
		Value     int64  `json:"value"`
		State     string `json:"state"`
	} `json:"results"`
}

// ListCharges pulls the provider-side transaction listing for the
// reconciliation sweep.
func (p *IntaSend) ListCharges(ctx context.Context) ([]ChargeRecord, error) {
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.SecretKey}
	resp, err := p.client.GetJSON(ctx, p.cfg.BaseURL+"/api/v1/payment/transactions/", headers)
	if err != nil {
		return nil, newError(KindProviderUnavailable, IntaSendName, "transaction listing failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.client.DrainAndClose(resp)
		return nil, newError(KindProviderUnavailable, IntaSendName, fmt.Sprintf("transaction listing returned %d", resp.StatusCode), nil)
	}

	var body intasendTransactionList
	if err := p.client.DecodeJSONResponse(resp, &body); err != nil {
		return nil, newError(KindProviderUnavailable, IntaSendName, "undecodable transaction listing", err)
	}

	records := make([]ChargeRecord, 0, len(body.Results))
	for _, r := range body.Results {
		state, ok := intasendStateTable[r.State]
		if !ok {
			state = models.TxPending
		}
		records = append(records, ChargeRecord{
			ProviderRef: r.InvoiceID,
			OrderNumber: r.APIRef,
			Amount:      r.Value,
			State:       state,
		})
	}

	slog.Debug("Fetched provider transaction listing", "provider", IntaSendName, "count", len(records))
	return records, nil
}
