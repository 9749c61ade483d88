// provider-sim is a local stand-in for the aggregator's sandbox. It
// accepts checkout creation calls, keeps its own charge book, and
// delivers settlement webhooks back to the payments service — sometimes
// more than once, the way real providers retry.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"storefront-payments/pkg/database"
	"storefront-payments/pkg/httpclient"
	"storefront-payments/pkg/utils"

	"github.com/joho/godotenv"
)

var (
	webhookTarget    string
	webhookChallenge string
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	webhookTarget = getEnv("SIM_WEBHOOK_TARGET", "http://localhost:8002/payments/intasend/webhook")
	webhookChallenge = os.Getenv("INTASEND_WEBHOOK_CHALLENGE")

	if err := database.Init(); err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := createSandboxTable(); err != nil {
		slog.Error("Failed to create sandbox table", "error", err)
		os.Exit(1)
	}

	http.HandleFunc("/api/v1/checkout/", handleCheckout)
	http.HandleFunc("/api/v1/payment/transactions/", handleListTransactions)
	http.HandleFunc("/simulate-settlement", handleSimulateSettlement)
	http.HandleFunc("/health", healthCheck)

	slog.Info("Provider sandbox starting on port 9000", "webhook_target", webhookTarget)
	if err := http.ListenAndServe(":9000", nil); err != nil {
		slog.Error("Failed to start server", "error", err)
	}
}

func createSandboxTable() error {
	query := `CREATE TABLE IF NOT EXISTS sandbox_charges (
		invoice_id VARCHAR(64) PRIMARY KEY,
		api_ref VARCHAR(64) NOT NULL,
		amount BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		account VARCHAR(64),
		state VARCHAR(20) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := database.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create sandbox_charges: %w", err)
	}
	return nil
}

type checkoutRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	APIRef      string `json:"api_ref"`
}

func handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.APIRef == "" || req.Amount <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "api_ref and a positive amount are required"})
		return
	}

	invoiceID := "INV-" + utils.GenerateCorrelationID()
	query := `INSERT INTO sandbox_charges (invoice_id, api_ref, amount, currency, account, state, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := database.DB.Exec(query, invoiceID, req.APIRef, req.Amount, req.Currency, req.PhoneNumber, "PENDING", time.Now()); err != nil {
		slog.Error("Failed to store sandbox charge", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	slog.Info("Sandbox charge created", "invoice_id", invoiceID, "api_ref", req.APIRef, "amount", req.Amount)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"id":  invoiceID,
		"url": "http://localhost:9000/pay/" + invoiceID,
	})
}

func handleListTransactions(w http.ResponseWriter, r *http.Request) {
	rows, err := database.DB.Query(`SELECT invoice_id, api_ref, amount, state FROM sandbox_charges ORDER BY created_at ASC`)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	type entry struct {
		InvoiceID string `json:"invoice_id"`
		APIRef    string `json:"api_ref"`
		Value     int64  `json:"value"`
		State     string `json:"state"`
	}

	results := []entry{}
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.InvoiceID, &e.APIRef, &e.Value, &e.State); err != nil {
			slog.Error("Failed to scan sandbox charge", "error", err)
			continue
		}
		results = append(results, e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
}

type settlementRequest struct {
	InvoiceID string `json:"invoice_id"`
	State     string `json:"state"`
}

// handleSimulateSettlement flips a charge to a terminal state and pushes
// the webhook at the payments service one or more times.
func handleSimulateSettlement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req settlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.State == "" {
		// Mimic real traffic: mostly successful, occasionally failed.
		if rand.Intn(100) < 10 {
			req.State = "FAILED"
		} else {
			req.State = "COMPLETE"
		}
	}

	var apiRef, account string
	var amount int64
	query := `SELECT api_ref, account, amount FROM sandbox_charges WHERE invoice_id = ?`
	if err := database.DB.QueryRow(query, req.InvoiceID).Scan(&apiRef, &account, &amount); err != nil {
		http.Error(w, "Unknown invoice", http.StatusNotFound)
		return
	}

	if _, err := database.DB.Exec(`UPDATE sandbox_charges SET state = ? WHERE invoice_id = ?`, req.State, req.InvoiceID); err != nil {
		slog.Error("Failed to update sandbox charge", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	deliveries := utils.DeterminePublishCount()
	slog.Info("Delivering settlement webhook", "invoice_id", req.InvoiceID, "state", req.State, "deliveries", deliveries)

	payload := map[string]string{
		"invoice_id":      req.InvoiceID,
		"state":           req.State,
		"api_ref":         apiRef,
		"value":           fmt.Sprintf("%d", amount),
		"account":         account,
		"mpesa_reference": "MPESA-" + utils.GenerateCorrelationID(),
		"challenge":       webhookChallenge,
	}

	client := httpclient.NewClient(5 * time.Second)
	for i := 0; i < deliveries; i++ {
		resp, err := client.PostJSON(r.Context(), webhookTarget, payload, nil)
		if err != nil {
			slog.Error("Webhook delivery failed", "invoice_id", req.InvoiceID, "attempt", i+1, "error", err)
			continue
		}
		client.DrainAndClose(resp)
		slog.Info("Webhook delivered", "invoice_id", req.InvoiceID, "attempt", i+1, "status", resp.StatusCode)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "delivered", "state": req.State})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
