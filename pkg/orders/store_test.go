package orders

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"storefront-payments/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	schema := `CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		financial_status TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	)`
	_, err = db.Exec(schema)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func seedOrder(t *testing.T, store *Store, status, financialStatus string) models.Order {
	t.Helper()

	now := time.Now()
	order := models.Order{
		ID:              "order-1",
		OrderNumber:     "ORD-1001",
		Amount:          1000,
		Currency:        "KES",
		Status:          status,
		FinancialStatus: financialStatus,
		Metadata:        map[string]string{"channel": "web"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, store.Insert(context.Background(), order))
	return order
}

func TestGetByNumber(t *testing.T) {
	store := newTestStore(t)
	seedOrder(t, store, models.OrderPending, models.FinancialPending)

	got, err := store.GetByNumber(context.Background(), "ORD-1001")
	require.NoError(t, err)
	assert.Equal(t, "order-1", got.ID)
	assert.Equal(t, "web", got.Metadata["channel"])

	_, err = store.GetByNumber(context.Background(), "ORD-9999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkPaid(t *testing.T) {
	store := newTestStore(t)
	seedOrder(t, store, models.OrderPending, models.FinancialPending)
	ctx := context.Background()

	applied, err := store.MarkPaid(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := store.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, got.Status)
	assert.Equal(t, models.FinancialPaid, got.FinancialStatus)

	// Settling the same order again is a no-op.
	applied, err = store.MarkPaid(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestMarkPaidFromConfirmed(t *testing.T) {
	store := newTestStore(t)
	seedOrder(t, store, models.OrderConfirmed, models.FinancialPending)

	applied, err := store.MarkPaid(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestMarkPaidRefusesCancelledOrder(t *testing.T) {
	store := newTestStore(t)
	seedOrder(t, store, models.OrderCancelled, models.FinancialPending)

	applied, err := store.MarkPaid(context.Background(), "order-1")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestMarkFinancialFailedLeavesCommerceStatus(t *testing.T) {
	store := newTestStore(t)
	seedOrder(t, store, models.OrderPending, models.FinancialPending)
	ctx := context.Background()

	applied, err := store.MarkFinancialFailed(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := store.GetByID(ctx, "order-1")
	require.NoError(t, err)
	// The checkout flow decides retry vs cancel; this subsystem only
	// records the failed payment.
	assert.Equal(t, models.OrderPending, got.Status)
	assert.Equal(t, models.FinancialFailed, got.FinancialStatus)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.OrderPending, models.OrderConfirmed, true},
		{models.OrderPending, models.OrderCancelled, true},
		{models.OrderPending, models.OrderPaid, true},
		{models.OrderConfirmed, models.OrderPaid, true},
		{models.OrderConfirmed, models.OrderFailed, true},
		{models.OrderPaid, models.OrderPending, false},
		{models.OrderCancelled, models.OrderPaid, false},
		{models.OrderPaid, models.OrderFailed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestOnSettlement(t *testing.T) {
	store := newTestStore(t)
	seedOrder(t, store, models.OrderPending, models.FinancialPending)
	sm := NewStateMachine(store)
	ctx := context.Background()

	// A duplicate callback (applied=false) must never transition.
	transitioned, err := sm.OnSettlement(ctx, "order-1", models.TxCompleted, false)
	require.NoError(t, err)
	assert.False(t, transitioned)

	got, _ := store.GetByID(ctx, "order-1")
	assert.Equal(t, models.FinancialPending, got.FinancialStatus)

	transitioned, err = sm.OnSettlement(ctx, "order-1", models.TxCompleted, true)
	require.NoError(t, err)
	assert.True(t, transitioned)

	got, _ = store.GetByID(ctx, "order-1")
	assert.Equal(t, models.FinancialPaid, got.FinancialStatus)
}

func TestOnSettlementFailed(t *testing.T) {
	store := newTestStore(t)
	seedOrder(t, store, models.OrderPending, models.FinancialPending)
	sm := NewStateMachine(store)
	ctx := context.Background()

	transitioned, err := sm.OnSettlement(ctx, "order-1", models.TxFailed, true)
	require.NoError(t, err)
	assert.True(t, transitioned)

	got, _ := store.GetByID(ctx, "order-1")
	assert.Equal(t, models.FinancialFailed, got.FinancialStatus)
	assert.Equal(t, models.OrderPending, got.Status)
}
