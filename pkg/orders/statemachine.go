package orders

import (
	"context"

	"storefront-payments/pkg/models"
)

// transitions is the commerce-status table. paid, cancelled and failed
// are terminal here; refund flows live outside this subsystem. A
// settlement confirms and pays in one step, so paid is reachable from
// pending as well as confirmed.
var transitions = map[string][]string{
	models.OrderPending:   {models.OrderConfirmed, models.OrderCancelled, models.OrderPaid},
	models.OrderConfirmed: {models.OrderPaid, models.OrderFailed},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine owns the authoritative order status. It consumes ledger
// outcomes and nothing else: client input never sets financial_status.
type StateMachine struct {
	store *Store
}

func NewStateMachine(store *Store) *StateMachine {
	return &StateMachine{store: store}
}

// OnSettlement advances the order in response to a ledger update. The
// applied flag is the ledger's verdict: when false the update was a
// duplicate or late callback and no transition may happen, which is the
// guard against double-running fulfillment side effects.
func (sm *StateMachine) OnSettlement(ctx context.Context, orderID, txStatus string, applied bool) (bool, error) {
	if !applied {
		return false, nil
	}

	switch txStatus {
	case models.TxCompleted:
		return sm.store.MarkPaid(ctx, orderID)
	case models.TxFailed:
		return sm.store.MarkFinancialFailed(ctx, orderID)
	default:
		return false, nil
	}
}
