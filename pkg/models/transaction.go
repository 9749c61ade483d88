package models

import "time"

// Transaction statuses. completed and failed are sticky: once a
// transaction reaches either, no later callback may move it.
const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
)

// Transaction is one provider payment attempt. An order may accumulate
// several across retries; they are distinguished by creation time.
type Transaction struct {
	ID          string            `json:"id"`
	OrderID     string            `json:"order_id"`
	Provider    string            `json:"provider"`
	ProviderRef string            `json:"provider_ref"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
}

type ChargeRequest struct {
	OrderID  string   `json:"orderId"`
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency"`
	Customer Customer `json:"customer"`
}

type ChargeResponse struct {
	PaymentURL        string `json:"paymentUrl,omitempty"`
	ConfirmationToken string `json:"confirmationToken,omitempty"`
}

// SettlementMessage is published to the downstream-effects bus once an
// order's payment reaches a terminal state.
type SettlementMessage struct {
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	Provider      string    `json:"provider"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	SettledAt     time.Time `json:"settled_at"`
	CorrelationID string    `json:"correlation_id"`
}
