package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-payments/pkg/models"
)

var ErrNotFound = errors.New("order not found")

// Store reads and mutates orders. Orders are created by the checkout
// collaborator; this subsystem only advances their payment state.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, order models.Order) error {
	metaJSON, err := json.Marshal(order.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode order metadata: %w", err)
	}

	query := `INSERT INTO orders (id, order_number, amount, currency, status, financial_status, metadata, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, order.ID, order.OrderNumber, order.Amount, order.Currency,
		order.Status, order.FinancialStatus, string(metaJSON), order.CreatedAt, order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT id, order_number, amount, currency, status, financial_status, metadata, created_at, updated_at
			  FROM orders WHERE id = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetByNumber resolves an order by the correlation key providers echo
// back in callbacks.
func (s *Store) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	query := `SELECT id, order_number, amount, currency, status, financial_status, metadata, created_at, updated_at
			  FROM orders WHERE order_number = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, query, number))
}

// MarkPaid advances the order to paid. The condition mirrors the
// transition table: only a non-paid order still in the pre-settlement
// part of its lifecycle can move, so a second settlement of the same
// order is a no-op.
func (s *Store) MarkPaid(ctx context.Context, orderID string) (bool, error) {
	query := `UPDATE orders SET status = ?, financial_status = ?, updated_at = ?
			  WHERE id = ? AND financial_status <> ? AND status IN (?, ?)`
	res, err := s.db.ExecContext(ctx, query, models.OrderPaid, models.FinancialPaid, time.Now(),
		orderID, models.FinancialPaid, models.OrderPending, models.OrderConfirmed)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// MarkFinancialFailed records a failed settlement. The commerce status
// is deliberately left alone: the surrounding checkout flow decides
// between retry and cancel.
func (s *Store) MarkFinancialFailed(ctx context.Context, orderID string) (bool, error) {
	query := `UPDATE orders SET financial_status = ?, updated_at = ?
			  WHERE id = ? AND financial_status = ?`
	res, err := s.db.ExecContext(ctx, query, models.FinancialFailed, time.Now(), orderID, models.FinancialPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark order financial status failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (s *Store) scanOne(row *sql.Row) (*models.Order, error) {
	var order models.Order
	var metaJSON sql.NullString
	if err := row.Scan(&order.ID, &order.OrderNumber, &order.Amount, &order.Currency,
		&order.Status, &order.FinancialStatus, &metaJSON, &order.CreatedAt, &order.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &order.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode order metadata: %w", err)
		}
	}

	return &order, nil
}
