package models

import "time"

// Order lifecycle states. paid and cancelled/failed are terminal for
// this subsystem; refund flows live elsewhere.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderPaid      = "paid"
	OrderCancelled = "cancelled"
	OrderFailed    = "failed"
)

// Payment lifecycle states, tracked separately from the commerce status.
const (
	FinancialPending = "pending"
	FinancialPaid    = "paid"
	FinancialFailed  = "failed"
)

type Order struct {
	ID              string            `json:"id"`
	OrderNumber     string            `json:"order_number"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Status          string            `json:"status"`
	FinancialStatus string            `json:"financial_status"`
	Metadata        map[string]string `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}
