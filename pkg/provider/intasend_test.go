package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-payments/pkg/config"
	"storefront-payments/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIntaSend(baseURL, challenge string) *IntaSend {
	return NewIntaSend(config.IntaSendConfig{
		BaseURL:          baseURL,
		SecretKey:        "sk_test",
		WebhookChallenge: challenge,
	}, 2*time.Second)
}

func chargeOrder() models.Order {
	return models.Order{
		ID:          "order-1",
		OrderNumber: "ORD-1001",
		Amount:      1000,
		Currency:    "KES",
	}
}

func chargeCustomer() models.Customer {
	return models.Customer{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe", Phone: "254700000001"}
}

func TestIntaSendCreateCharge(t *testing.T) {
	var gotAuth string
	var gotBody intasendCheckoutRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/checkout/", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "INV-42", "url": "https://pay/INV-42"})
	}))
	defer srv.Close()

	adapter := testIntaSend(srv.URL, "")
	result, err := adapter.CreateCharge(context.Background(), chargeOrder(), chargeCustomer())
	require.NoError(t, err)

	assert.Equal(t, "INV-42", result.ProviderRef)
	assert.Equal(t, "https://pay/INV-42", result.PaymentURL)
	assert.Equal(t, "Bearer sk_test", gotAuth)
	assert.Equal(t, "ORD-1001", gotBody.APIRef)
	assert.Equal(t, int64(1000), gotBody.Amount)
}

func TestIntaSendCreateChargeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "invalid phone number"})
	}))
	defer srv.Close()

	adapter := testIntaSend(srv.URL, "")
	_, err := adapter.CreateCharge(context.Background(), chargeOrder(), chargeCustomer())
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestIntaSendCreateChargeProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	adapter := testIntaSend(srv.URL, "")
	_, err := adapter.CreateCharge(context.Background(), chargeOrder(), chargeCustomer())
	assert.Equal(t, KindProviderUnavailable, KindOf(err))

	// Unreachable host counts the same way.
	srv.Close()
	_, err = adapter.CreateCharge(context.Background(), chargeOrder(), chargeCustomer())
	assert.Equal(t, KindProviderUnavailable, KindOf(err))
}

func TestIntaSendCreateChargeValidatesInput(t *testing.T) {
	adapter := testIntaSend("http://unused", "")

	_, err := adapter.CreateCharge(context.Background(), chargeOrder(), models.Customer{})
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	order := chargeOrder()
	order.Amount = 0
	_, err = adapter.CreateCharge(context.Background(), order, chargeCustomer())
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestIntaSendCaptureUnsupported(t *testing.T) {
	adapter := testIntaSend("http://unused", "")
	_, err := adapter.Capture(context.Background(), "INV-1")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestIntaSendParseCallback(t *testing.T) {
	adapter := testIntaSend("http://unused", "s3cret")

	tests := []struct {
		name      string
		payload   string
		wantState string
		wantErr   bool
	}{
		{
			name:      "complete",
			payload:   `{"invoice_id":"INV-1","state":"COMPLETE","api_ref":"ORD-1001","mpesa_reference":"MPESA-9","challenge":"s3cret"}`,
			wantState: models.TxCompleted,
		},
		{
			name:      "failed",
			payload:   `{"invoice_id":"INV-1","state":"FAILED","api_ref":"ORD-1001","challenge":"s3cret"}`,
			wantState: models.TxFailed,
		},
		{
			name:      "unknown state stays pending",
			payload:   `{"invoice_id":"INV-1","state":"PROCESSING","api_ref":"ORD-1001","challenge":"s3cret"}`,
			wantState: models.TxPending,
		},
		{
			name:    "missing correlation key",
			payload: `{"invoice_id":"INV-1","state":"COMPLETE","challenge":"s3cret"}`,
			wantErr: true,
		},
		{
			name:    "missing invoice id",
			payload: `{"state":"COMPLETE","api_ref":"ORD-1001","challenge":"s3cret"}`,
			wantErr: true,
		},
		{
			name:    "challenge mismatch",
			payload: `{"invoice_id":"INV-1","state":"COMPLETE","api_ref":"ORD-1001","challenge":"wrong"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `state=COMPLETE`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := adapter.ParseCallback([]byte(tt.payload))
			if tt.wantErr {
				assert.Equal(t, KindMalformedCallback, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, event.State)
			assert.Equal(t, "ORD-1001", event.OrderNumber)
			assert.Equal(t, "INV-1", event.ProviderRef)
		})
	}
}

func TestIntaSendListCharges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/payment/transactions/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"invoice_id": "INV-1", "api_ref": "ORD-1001", "value": 1000, "state": "COMPLETE"},
				{"invoice_id": "INV-2", "api_ref": "ORD-1002", "value": 2500, "state": "PENDING"},
			},
		})
	}))
	defer srv.Close()

	adapter := testIntaSend(srv.URL, "")
	charges, err := adapter.ListCharges(context.Background())
	require.NoError(t, err)
	require.Len(t, charges, 2)
	assert.Equal(t, models.TxCompleted, charges[0].State)
	assert.Equal(t, models.TxPending, charges[1].State)
	assert.Equal(t, int64(2500), charges[1].Amount)
}
