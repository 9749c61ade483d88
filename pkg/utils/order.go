package utils

import (
	"fmt"
	"math/rand"
	"time"

	"storefront-payments/pkg/models"

	"github.com/google/uuid"
)

// GenerateRandomOrder builds a checkout-shaped order for the simulator.
func GenerateRandomOrder() models.Order {
	amounts := []int64{500, 1000, 1500, 2500, 5000, 7500, 10000}
	amount := amounts[time.Now().UnixNano()%int64(len(amounts))]

	now := time.Now()
	return models.Order{
		ID:              GenerateUUID7(),
		OrderNumber:     GenerateOrderNumber(),
		Amount:          amount,
		Currency:        "KES",
		Status:          models.OrderPending,
		FinancialStatus: models.FinancialPending,
		Metadata:        map[string]string{"source": "simulator"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// GenerateOrderNumber produces the human-facing number providers echo
// back as the correlation key.
func GenerateOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%04d", time.Now().Unix(), rand.Intn(10000))
}

func GenerateUUID7() string {
	u, err := uuid.NewV7()
	if err != nil {
		return ""
	}
	return u.String()
}

// DeterminePublishCount decides how many times the sandbox delivers a
// webhook: mostly once, sometimes twice or three times, to mimic
// provider retry behavior.
func DeterminePublishCount() int {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	chance := r.Intn(100)

	if chance < 70 {
		return 1
	} else if chance < 90 {
		return 2
	} else {
		return 3
	}
}
