package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-payments/pkg/config"
	"storefront-payments/pkg/database"
	"storefront-payments/pkg/events"
	"storefront-payments/pkg/ledger"
	"storefront-payments/pkg/metrics"
	"storefront-payments/pkg/models"
	"storefront-payments/pkg/orders"
	"storefront-payments/pkg/payments"
	"storefront-payments/pkg/provider"
	"storefront-payments/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type server struct {
	orchestrator *payments.Orchestrator
	reconciler   *payments.Reconciler
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	cfg := config.Load()

	if err := database.Init(); err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.CreateTables(); err != nil {
		slog.Error("Failed to create tables", "error", err)
		os.Exit(1)
	}

	publisher, err := events.Connect(cfg.NATSURL)
	if err != nil {
		slog.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	metrics.Register()

	registry := provider.NewRegistry(
		provider.NewIntaSend(cfg.IntaSend, cfg.ProviderTimeout),
		provider.NewPayPal(cfg.PayPal, cfg.ProviderTimeout),
	)

	orderStore := orders.NewStore(database.DB)
	txLedger := ledger.New(database.DB)
	machine := orders.NewStateMachine(orderStore)

	srv := &server{
		orchestrator: payments.NewOrchestrator(orderStore, txLedger, registry),
		reconciler: payments.NewReconciler(orderStore, machine, txLedger, registry, publisher,
			cfg.CheckoutSuccessURL, cfg.CheckoutErrorURL),
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(srv),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Payments service starting", "port", cfg.Port, "providers", registry.Names())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	slog.Info("Shutting down payments service")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server shutdown complete")
}

func newRouter(srv *server) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/payments/{provider}/charge", srv.handleCharge)
	r.Post("/payments/{provider}/webhook", srv.handleWebhook)
	r.Get("/payments/paypal/capture", srv.handleCapture)
	r.Get("/health", healthCheck)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *server) handleCharge(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	correlationID := utils.GenerateCorrelationID()
	logPrefix := "[" + correlationID + "] "

	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	var req models.ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.OrderID == "" || req.Amount <= 0 || req.Currency == "" || req.Customer.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "orderId, amount, currency and customer.email are required"})
		return
	}

	resp, err := s.orchestrator.InitiatePayment(r.Context(), providerName, req, correlationID)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrUnknownProvider), errors.Is(err, payments.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, payments.ErrAlreadyPaid), errors.Is(err, payments.ErrAmountMismatch),
			provider.KindOf(err) == provider.KindInvalidRequest:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payment request rejected"})
		default:
			// Opaque on purpose: raw provider errors never reach end users.
			slog.Error(logPrefix+"Charge initiation failed", "provider", providerName, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "payment could not be initiated"})
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	correlationID := utils.GenerateCorrelationID()

	r.Body = http.MaxBytesReader(w, r.Body, 256*1024)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]bool{"success": false})
		return
	}

	result := s.reconciler.HandleCallback(r.Context(), providerName, payload, correlationID)
	writeJSON(w, result.HTTPStatus, map[string]bool{"success": result.HTTPStatus == http.StatusOK})
}

func (s *server) handleCapture(w http.ResponseWriter, r *http.Request) {
	correlationID := utils.GenerateCorrelationID()
	token := r.URL.Query().Get("token")

	redirectURL := s.reconciler.CaptureReturn(r.Context(), token, correlationID)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
