package config

import (
	"os"
	"strconv"
	"time"
)

type IntaSendConfig struct {
	BaseURL          string
	SecretKey        string
	WebhookChallenge string
}

type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	ReturnURL    string
	CancelURL    string
}

type Config struct {
	Port               string
	NATSURL            string
	ProviderTimeout    time.Duration
	CheckoutSuccessURL string
	CheckoutErrorURL   string
	IntaSend           IntaSendConfig
	PayPal             PayPalConfig
}

// Load reads service configuration from the environment. Database
// settings are read by pkg/database directly.
func Load() Config {
	timeoutMs, err := strconv.Atoi(getEnv("PROVIDER_TIMEOUT_MS", "10000"))
	if err != nil {
		timeoutMs = 10000
	}

	return Config{
		Port:               getEnv("PORT", "8002"),
		NATSURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		ProviderTimeout:    time.Duration(timeoutMs) * time.Millisecond,
		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
		CheckoutErrorURL:   getEnv("CHECKOUT_ERROR_URL", "http://localhost:3000/checkout/error"),
		IntaSend: IntaSendConfig{
			BaseURL:          getEnv("INTASEND_BASE_URL", "https://sandbox.intasend.com"),
			SecretKey:        os.Getenv("INTASEND_SECRET_KEY"),
			WebhookChallenge: os.Getenv("INTASEND_WEBHOOK_CHALLENGE"),
		},
		PayPal: PayPalConfig{
			BaseURL:      getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			ClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
			ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
			ReturnURL:    getEnv("PAYPAL_RETURN_URL", "http://localhost:8002/payments/paypal/capture"),
			CancelURL:    getEnv("PAYPAL_CANCEL_URL", "http://localhost:3000/checkout/cancelled"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
