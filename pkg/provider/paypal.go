package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"storefront-payments/pkg/config"
	"storefront-payments/pkg/httpclient"
	"storefront-payments/pkg/models"
)

const PayPalName = "paypal"

// PayPal is the redirect adapter: the customer approves the order on the
// provider's site and settlement is captured synchronously on return.
type PayPal struct {
	cfg    config.PayPalConfig
	client *httpclient.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPal(cfg config.PayPalConfig, timeout time.Duration) *PayPal {
	return &PayPal{
		cfg:    cfg,
		client: httpclient.NewClient(timeout),
	}
}

func (p *PayPal) Name() string { return PayPalName }

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *PayPal) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	resp, err := p.client.PostForm(ctx, p.cfg.BaseURL+"/v1/oauth2/token", form, p.cfg.ClientID, p.cfg.ClientSecret)
	if err != nil {
		return "", newError(KindProviderUnavailable, PayPalName, "token request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.client.DrainAndClose(resp)
		return "", newError(KindProviderUnavailable, PayPalName, fmt.Sprintf("token endpoint returned %d", resp.StatusCode), nil)
	}

	var body paypalTokenResponse
	if err := p.client.DecodeJSONResponse(resp, &body); err != nil {
		return "", newError(KindProviderUnavailable, PayPalName, "undecodable token response", err)
	}

	p.accessToken = body.AccessToken
	// Refresh a minute early so in-flight calls never race expiry.
	p.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)
	return p.accessToken, nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	CustomID string       `json:"custom_id"`
	Amount   paypalAmount `json:"amount"`
}

type paypalAppContext struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type paypalOrderRequest struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext paypalAppContext     `json:"application_context"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrderResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Links  []paypalLink `json:"links"`
}

// minorToDecimal renders integer minor units in the decimal string form
// the provider's API requires. Used only at this boundary.
func minorToDecimal(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

func (p *PayPal) CreateCharge(ctx context.Context, order models.Order, customer models.Customer) (*ChargeResult, error) {
	if order.Amount <= 0 {
		return nil, newError(KindInvalidRequest, PayPalName, "non-positive amount", nil)
	}

	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}

	req := paypalOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			CustomID: order.OrderNumber,
			Amount: paypalAmount{
				CurrencyCode: order.Currency,
				Value:        minorToDecimal(order.Amount),
			},
		}},
		ApplicationContext: paypalAppContext{
			ReturnURL: p.cfg.ReturnURL,
			CancelURL: p.cfg.CancelURL,
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + token}
	resp, err := p.client.PostJSON(ctx, p.cfg.BaseURL+"/v2/checkout/orders", req, headers)
	if err != nil {
		return nil, newError(KindProviderUnavailable, PayPalName, "order creation failed", err)
	}

	var body paypalOrderResponse
	if err := p.client.DecodeJSONResponse(resp, &body); err != nil {
		return nil, newError(KindProviderUnavailable, PayPalName, "undecodable order response", err)
	}

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, newError(KindInvalidRequest, PayPalName, "order rejected", nil)
	default:
		return nil, newError(KindProviderUnavailable, PayPalName, fmt.Sprintf("order endpoint returned %d", resp.StatusCode), nil)
	}

	approveURL := ""
	for _, link := range body.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}
	if body.ID == "" || approveURL == "" {
		return nil, newError(KindProviderUnavailable, PayPalName, "order response missing id or approve link", nil)
	}

	return &ChargeResult{ProviderRef: body.ID, PaymentURL: approveURL}, nil
}

type paypalCaptureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// Capture confirms the order once the customer returns from the
// provider's approval page. A 4xx here (expired, cancelled, already
// captured) is terminal for this attempt.
func (p *PayPal) Capture(ctx context.Context, providerRef string) (*CaptureResult, error) {
	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Authorization": "Bearer " + token}
	endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", p.cfg.BaseURL, url.PathEscape(providerRef))
	resp, err := p.client.PostJSON(ctx, endpoint, struct{}{}, headers)
	if err != nil {
		return nil, newError(KindProviderUnavailable, PayPalName, "capture request failed", err)
	}

	var body paypalCaptureResponse
	if err := p.client.DecodeJSONResponse(resp, &body); err != nil {
		return nil, newError(KindProviderUnavailable, PayPalName, "undecodable capture response", err)
	}

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, newError(KindCaptureFailed, PayPalName, fmt.Sprintf("capture rejected with %d", resp.StatusCode), nil)
	default:
		return nil, newError(KindProviderUnavailable, PayPalName, fmt.Sprintf("capture endpoint returned %d", resp.StatusCode), nil)
	}

	finalState := models.TxPending
	if body.Status == "COMPLETED" {
		finalState = models.TxCompleted
	}

	settlementRef := ""
	if len(body.PurchaseUnits) > 0 && len(body.PurchaseUnits[0].Payments.Captures) > 0 {
		settlementRef = body.PurchaseUnits[0].Payments.Captures[0].ID
	}

	return &CaptureResult{FinalState: finalState, SettlementRef: settlementRef}, nil
}

// ParseCallback is unsupported: confirmation is the synchronous capture
// on return, not a webhook push.
func (p *PayPal) ParseCallback(payload []byte) (*CallbackEvent, error) {
	return nil, newError(KindMalformedCallback, PayPalName, "provider does not deliver webhooks to this service", ErrUnsupported)
}
