package ledger

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

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// One connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)

	schema := `CREATE TABLE transactions (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_ref TEXT,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP
	)`
	_, err = db.Exec(schema)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func testOrder() models.Order {
	return models.Order{
		ID:              "order-1",
		OrderNumber:     "ORD-1001",
		Amount:          1000,
		Currency:        "KES",
		Status:          models.OrderPending,
		FinancialStatus: models.FinancialPending,
	}
}

func TestRecordAttempt(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()

	tx, err := l.RecordAttempt(ctx, testOrder(), "intasend", "INV-1", map[string]string{"payment_url": "https://pay"})
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, models.TxPending, tx.Status)

	got, err := l.FindByProviderRef(ctx, "intasend", "INV-1")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, "order-1", got.OrderID)
	assert.Equal(t, int64(1000), got.Amount)
	assert.Equal(t, "https://pay", got.Metadata["payment_url"])
}

func TestUpdateStatusIdempotent(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()

	_, err := l.RecordAttempt(ctx, testOrder(), "intasend", "INV-1", nil)
	require.NoError(t, err)

	key := Key{Provider: "intasend", ProviderRef: "INV-1"}

	applied, err := l.UpdateStatus(ctx, key, models.TxCompleted, map[string]string{"method_ref": "MPESA-1"})
	require.NoError(t, err)
	assert.True(t, applied)

	// Same delivery again: terminal state is sticky, no error.
	applied, err = l.UpdateStatus(ctx, key, models.TxCompleted, map[string]string{"method_ref": "MPESA-1"})
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := l.FindByProviderRef(ctx, "intasend", "INV-1")
	require.NoError(t, err)
	assert.Equal(t, models.TxCompleted, got.Status)
	assert.Equal(t, "MPESA-1", got.Metadata["method_ref"])
}

func TestUpdateStatusNeverRegresses(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()

	_, err := l.RecordAttempt(ctx, testOrder(), "intasend", "INV-1", nil)
	require.NoError(t, err)

	key := Key{Provider: "intasend", ProviderRef: "INV-1"}
	applied, err := l.UpdateStatus(ctx, key, models.TxCompleted, nil)
	require.NoError(t, err)
	require.True(t, applied)

	for _, late := range []string{models.TxPending, models.TxFailed} {
		applied, err := l.UpdateStatus(ctx, key, late, nil)
		require.NoError(t, err)
		assert.False(t, applied, "late %s callback must not apply", late)
	}

	got, err := l.FindByProviderRef(ctx, "intasend", "INV-1")
	require.NoError(t, err)
	assert.Equal(t, models.TxCompleted, got.Status)
}

func TestUpdateStatusProviderIsolation(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()

	// Two providers happen to issue the same reference.
	_, err := l.RecordAttempt(ctx, testOrder(), "intasend", "REF-1", nil)
	require.NoError(t, err)
	_, err = l.RecordAttempt(ctx, testOrder(), "paypal", "REF-1", nil)
	require.NoError(t, err)

	applied, err := l.UpdateStatus(ctx, Key{Provider: "intasend", ProviderRef: "REF-1"}, models.TxCompleted, nil)
	require.NoError(t, err)
	require.True(t, applied)

	other, err := l.FindByProviderRef(ctx, "paypal", "REF-1")
	require.NoError(t, err)
	assert.Equal(t, models.TxPending, other.Status)
}

func TestUpdateStatusByOrderKey(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()

	_, err := l.RecordAttempt(ctx, testOrder(), "intasend", "INV-1", nil)
	require.NoError(t, err)

	// Callback carries an unknown provider ref but a resolvable order.
	key := Key{Provider: "intasend", ProviderRef: "INV-unknown", OrderID: "order-1"}
	applied, err := l.UpdateStatus(ctx, key, models.TxFailed, nil)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestUpdateStatusNotFound(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()

	_, err := l.UpdateStatus(ctx, Key{Provider: "intasend", ProviderRef: "INV-missing"}, models.TxCompleted, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveTransactionIsLatest(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()

	first, err := l.RecordAttempt(ctx, testOrder(), "intasend", "INV-1", nil)
	require.NoError(t, err)

	// Retried checkout attempt a moment later.
	time.Sleep(5 * time.Millisecond)
	second, err := l.RecordAttempt(ctx, testOrder(), "intasend", "INV-2", nil)
	require.NoError(t, err)

	active, err := l.ActiveTransaction(ctx, "order-1", "intasend")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.NotEqual(t, first.ID, active.ID)
}

func TestHasProviderRef(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()

	_, err := l.RecordAttempt(ctx, testOrder(), "intasend", "INV-1", nil)
	require.NoError(t, err)

	known, err := l.HasProviderRef(ctx, "intasend", "INV-1")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = l.HasProviderRef(ctx, "intasend", "INV-77")
	require.NoError(t, err)
	assert.False(t, known)
}
