// tooling is the operational CLI for the payments service: database
// reset, checkout simulation, settlement reports and the
// reconciliation-gap sweep against the provider's charge listing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront-payments/pkg/config"
	"storefront-payments/pkg/database"
	"storefront-payments/pkg/httpclient"
	"storefront-payments/pkg/ledger"
	"storefront-payments/pkg/models"
	"storefront-payments/pkg/orders"
	"storefront-payments/pkg/provider"
	"storefront-payments/pkg/utils"

	"github.com/joho/godotenv"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./tooling <command> [args]")
		fmt.Println("Commands:")
		fmt.Println("  resetdb             - Reset all database tables")
		fmt.Println("  simulator <count>   - Drive checkout flows through the aggregator sandbox")
		fmt.Println("  sweep               - Compare the provider charge listing against the ledger")
		fmt.Println("  settlement          - Print today's transactions and order payment states")
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	if err := database.Init(); err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	command := os.Args[1]
	switch command {
	case "resetdb":
		resetDB()
	case "simulator":
		if len(os.Args) < 3 {
			fmt.Println("Usage: go run ./tooling simulator <count>")
			os.Exit(1)
		}
		count, err := strconv.Atoi(os.Args[2])
		if err != nil {
			fmt.Println("Invalid count:", os.Args[2])
			os.Exit(1)
		}
		runSimulator(count)
	case "sweep":
		runSweep()
	case "settlement":
		printSettlement()
	default:
		fmt.Println("Unknown command:", command)
		os.Exit(1)
	}
}

func resetDB() {
	if err := database.ResetTables(); err != nil {
		slog.Error("Failed to reset database", "error", err)
		return
	}
	fmt.Println("Database reset completed")
}

func runSimulator(count int) {
	fmt.Printf("Starting simulation with %d iterations using 4 goroutines\n", count)

	chunkSize := count / 4
	if count%4 != 0 {
		chunkSize++
	}

	var wg sync.WaitGroup
	results := make(chan string, count)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		start := i * chunkSize
		end := start + chunkSize
		if end > count {
			end = count
		}

		go func(start, end int) {
			defer wg.Done()
			for j := start; j < end; j++ {
				runSimulationIteration(j+1, results)
			}
		}(start, end)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	successCount := 0
	failCount := 0

	for result := range results {
		if strings.Contains(result, "SUCCESS") {
			successCount++
		} else {
			failCount++
		}
		fmt.Println(result)
	}

	fmt.Printf("\nSimulation completed. Success: %d, Failures: %d\n", successCount, failCount)
}

func runSimulationIteration(iteration int, results chan<- string) {
	correlationID := utils.GenerateCorrelationID()
	logPrefix := "[" + correlationID + "] "

	// The tooling plays the checkout collaborator: it creates the order
	// row the payments service expects to already exist.
	order := utils.GenerateRandomOrder()
	store := orders.NewStore(database.DB)
	if err := store.Insert(context.Background(), order); err != nil {
		results <- fmt.Sprintf("Iteration %d [%s]: FAILED to create order - %v", iteration, correlationID, err)
		return
	}

	slog.Info(logPrefix+"Order created for simulation", "iteration", iteration, "order_number", order.OrderNumber)

	paymentURL, err := initiateCharge(order, correlationID)
	if err != nil {
		results <- fmt.Sprintf("Iteration %d [%s]: FAILED charge - %v", iteration, correlationID, err)
		return
	}

	invoiceID := paymentURL[strings.LastIndex(paymentURL, "/")+1:]
	if err := settleCharge(invoiceID, correlationID); err != nil {
		results <- fmt.Sprintf("Iteration %d [%s]: FAILED settlement - %v", iteration, correlationID, err)
		return
	}

	results <- fmt.Sprintf("Iteration %d [%s]: SUCCESS - Order: %s, Amount: %d", iteration, correlationID, order.OrderNumber, order.Amount)
}

func initiateCharge(order models.Order, correlationID string) (string, error) {
	logPrefix := "[" + correlationID + "] "

	req := models.ChargeRequest{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Customer: models.Customer{
			Email:     "simulator@example.com",
			FirstName: "Sim",
			LastName:  "Shopper",
			Phone:     "254700000000",
		},
	}

	client := httpclient.NewClient(5 * time.Second)
	target := getEnv("PAYMENTS_URL", "http://localhost:8002") + "/payments/intasend/charge"
	resp, err := client.PostJSON(context.Background(), target, req, nil)
	if err != nil {
		if client.IsTimeoutError(err) {
			slog.Error(logPrefix+"Charge request timed out", "target", target)
			return "", fmt.Errorf("payments service timed out")
		}
		slog.Error(logPrefix+"Charge request failed", "error", err)
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		client.DrainAndClose(resp)
		return "", fmt.Errorf("payments service returned status: %d", resp.StatusCode)
	}

	var chargeResp models.ChargeResponse
	if err := client.DecodeJSONResponse(resp, &chargeResp); err != nil {
		return "", err
	}

	slog.Info(logPrefix+"Charge initiated", "order_number", order.OrderNumber, "payment_url", chargeResp.PaymentURL)
	return chargeResp.PaymentURL, nil
}

func settleCharge(invoiceID, correlationID string) error {
	logPrefix := "[" + correlationID + "] "

	client := httpclient.NewClient(10 * time.Second)
	target := getEnv("PROVIDER_SIM_URL", "http://localhost:9000") + "/simulate-settlement"
	resp, err := client.PostJSON(context.Background(), target, map[string]string{"invoice_id": invoiceID}, nil)
	if err != nil {
		slog.Error(logPrefix+"Settlement trigger failed", "error", err)
		return err
	}
	defer client.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider sandbox returned status: %d", resp.StatusCode)
	}

	slog.Info(logPrefix+"Settlement delivered", "invoice_id", invoiceID)
	return nil
}

// runSweep is the operational safeguard against reconciliation gaps:
// charges the provider holds that the ledger never recorded.
func runSweep() {
	cfg := config.Load()
	adapter := provider.NewIntaSend(cfg.IntaSend, cfg.ProviderTimeout)
	txLedger := ledger.New(database.DB)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	charges, err := adapter.ListCharges(ctx)
	if err != nil {
		slog.Error("Failed to list provider charges", "error", err)
		os.Exit(1)
	}

	table := NewTable("Reconciliation gaps (provider charges missing from the ledger)")
	table.AddColumn("Provider Ref", 20, "left")
	table.AddColumn("Order Number", 24, "left")
	table.AddColumn("Amount", 10, "right")
	table.AddColumn("State", 11, "left")
	table.PrintHeader()

	gaps := 0
	for _, charge := range charges {
		known, err := txLedger.HasProviderRef(ctx, provider.IntaSendName, charge.ProviderRef)
		if err != nil {
			slog.Error("Ledger lookup failed", "provider_ref", charge.ProviderRef, "error", err)
			continue
		}
		if known {
			continue
		}
		gaps++
		table.PrintRow([]interface{}{
			truncateString(charge.ProviderRef, 18),
			truncateString(charge.OrderNumber, 22),
			charge.Amount,
			charge.State,
		})
	}

	if gaps == 0 {
		table.PrintEmptyRow("No gaps: every provider charge is tracked")
	}
	table.PrintFooter()
	fmt.Printf("Provider charges: %d, gaps: %d\n", len(charges), gaps)
}

func printSettlement() {
	today, startOfDay, endOfDay := getTodayDateRange()

	query := `SELECT t.id, t.provider, t.provider_ref, t.amount, t.currency, t.status, o.order_number, o.financial_status, t.created_at
			  FROM transactions t
			  JOIN orders o ON o.id = t.order_id
			  WHERE t.created_at >= ? AND t.created_at < ?
			  ORDER BY t.created_at ASC`

	rows, err := database.DB.Query(query, startOfDay, endOfDay)
	if err != nil {
		slog.Error("Failed to query settlement", "error", err)
		return
	}
	defer rows.Close()

	table := NewTable("Settlement for " + today)
	table.AddColumn("Provider", 10, "left")
	table.AddColumn("Provider Ref", 20, "left")
	table.AddColumn("Order Number", 24, "left")
	table.AddColumn("Amount", 10, "right")
	table.AddColumn("Tx Status", 11, "left")
	table.AddColumn("Order Fin", 11, "left")
	table.AddColumn("Created At", 21, "left")

	table.PrintHeader()

	var totalSettled, totalFailed int64
	count := 0
	for rows.Next() {
		var providerName, providerRef, currency, txStatus, orderNumber, finStatus string
		var id string
		var amount int64
		var createdAt time.Time
		if err := rows.Scan(&id, &providerName, &providerRef, &amount, &currency, &txStatus, &orderNumber, &finStatus, &createdAt); err != nil {
			slog.Error("Failed to scan transaction", "error", err)
			continue
		}

		switch txStatus {
		case models.TxCompleted:
			totalSettled += amount
		case models.TxFailed:
			totalFailed += amount
		}

		count++
		table.PrintRow([]interface{}{
			providerName,
			truncateString(providerRef, 18),
			truncateString(orderNumber, 22),
			amount,
			txStatus,
			finStatus,
			createdAt.Format("2006-01-02 15:04:05"),
		})
	}

	if count == 0 {
		table.PrintEmptyRow("No transactions recorded today")
	}

	table.PrintFooter()
	fmt.Printf("Total transactions: %d\n", count)
	fmt.Println("Total settled amount: ", totalSettled)
	fmt.Println("Total failed amount: ", totalFailed)
}

func getTodayDateRange() (string, time.Time, time.Time) {
	now := time.Now()
	today := now.Format("2006-01-02")
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)
	return today, startOfDay, endOfDay
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
