// Package ledger keeps the durable record of payment attempts, one row
// per provider interaction. Rows are never deleted; terminal statuses
// are sticky.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-payments/pkg/models"
	"storefront-payments/pkg/utils"
)

var ErrNotFound = errors.New("transaction not found")

type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Key identifies the transaction an update targets: by the
// provider-assigned reference when the callback carries one, otherwise
// by (order id, provider).
type Key struct {
	Provider    string
	ProviderRef string
	OrderID     string
}

// RecordAttempt inserts a pending transaction for a charge the provider
// has just accepted.
func (l *Ledger) RecordAttempt(ctx context.Context, order models.Order, providerName, providerRef string, meta map[string]string) (*models.Transaction, error) {
	tx := &models.Transaction{
		ID:          utils.GenerateUUID7(),
		OrderID:     order.ID,
		Provider:    providerName,
		ProviderRef: providerRef,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Status:      models.TxPending,
		Metadata:    meta,
		CreatedAt:   time.Now(),
	}

	metaJSON, err := marshalMetadata(meta)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO transactions (id, order_id, provider, provider_ref, amount, currency, status, metadata, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, query, tx.ID, tx.OrderID, tx.Provider, tx.ProviderRef,
		tx.Amount, tx.Currency, tx.Status, metaJSON, tx.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	return tx, nil
}

// UpdateStatus moves the transaction matched by key to newStatus and
// merges metadata. It is idempotent by construction: a transaction
// already in a terminal status is never touched and the call reports
// applied=false rather than an error. The status check-and-set is a
// single conditional UPDATE, so two concurrent deliveries cannot both
// apply.
func (l *Ledger) UpdateStatus(ctx context.Context, key Key, newStatus string, meta map[string]string) (bool, error) {
	tx, err := l.find(ctx, key)
	if err != nil {
		return false, err
	}

	if tx.Status != models.TxPending {
		return false, nil
	}

	merged := make(map[string]string, len(tx.Metadata)+len(meta))
	for k, v := range tx.Metadata {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}

	metaJSON, err := marshalMetadata(merged)
	if err != nil {
		return false, err
	}

	// The WHERE status guard is the idempotency barrier; the read above
	// only short-circuits and fetches metadata.
	query := `UPDATE transactions SET status = ?, metadata = ? WHERE id = ? AND status = ?`
	res, err := l.db.ExecContext(ctx, query, newStatus, metaJSON, tx.ID, models.TxPending)
	if err != nil {
		return false, fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}

// ActiveTransaction returns the transaction currently considered active
// for (order, provider): the most recently created attempt. Duplicate
// callbacks must still resolve it, so terminal attempts are not
// filtered out; UpdateStatus refuses to touch them anyway.
func (l *Ledger) ActiveTransaction(ctx context.Context, orderID, providerName string) (*models.Transaction, error) {
	return l.find(ctx, Key{Provider: providerName, OrderID: orderID})
}

// FindByProviderRef resolves a transaction by the provider-assigned
// reference, scoped to the provider so colliding references across
// providers can never cross-match.
func (l *Ledger) FindByProviderRef(ctx context.Context, providerName, providerRef string) (*models.Transaction, error) {
	return l.find(ctx, Key{Provider: providerName, ProviderRef: providerRef})
}

// HasProviderRef reports whether the ledger knows a provider reference
// at all. Used by the reconciliation sweep.
func (l *Ledger) HasProviderRef(ctx context.Context, providerName, providerRef string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM transactions WHERE provider = ? AND provider_ref = ?`
	if err := l.db.QueryRowContext(ctx, query, providerName, providerRef).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count > 0, nil
}

// find resolves the transaction a key targets, preferring the
// provider-assigned reference and falling back to the latest attempt
// for (order, provider).
func (l *Ledger) find(ctx context.Context, key Key) (*models.Transaction, error) {
	if key.ProviderRef != "" {
		query := `SELECT id, order_id, provider, provider_ref, amount, currency, status, metadata, created_at
				  FROM transactions WHERE provider = ? AND provider_ref = ?
				  ORDER BY created_at DESC LIMIT 1`
		tx, err := l.scanOne(l.db.QueryRowContext(ctx, query, key.Provider, key.ProviderRef))
		if err == nil || !errors.Is(err, ErrNotFound) || key.OrderID == "" {
			return tx, err
		}
	}

	if key.OrderID == "" {
		return nil, fmt.Errorf("transaction key must carry a provider reference or an order id")
	}

	query := `SELECT id, order_id, provider, provider_ref, amount, currency, status, metadata, created_at
			  FROM transactions WHERE provider = ? AND order_id = ?
			  ORDER BY created_at DESC LIMIT 1`
	return l.scanOne(l.db.QueryRowContext(ctx, query, key.Provider, key.OrderID))
}

func (l *Ledger) scanOne(row *sql.Row) (*models.Transaction, error) {
	var tx models.Transaction
	var providerRef, metaJSON sql.NullString
	if err := row.Scan(&tx.ID, &tx.OrderID, &tx.Provider, &providerRef, &tx.Amount,
		&tx.Currency, &tx.Status, &metaJSON, &tx.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.ProviderRef = providerRef.String
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
		}
	}

	return &tx, nil
}

func marshalMetadata(meta map[string]string) (string, error) {
	if meta == nil {
		meta = map[string]string{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}
