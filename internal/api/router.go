/**
 * @description
 * This file sets up the HTTP router for the payment-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as webhook rate limiting.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PaymentRoutes creates and returns a new router for the payment service.
func PaymentRoutes(h *PaymentHandlers, limiter WebhookRateLimiter, webhookLimitPerMinute int) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Provider callbacks carry no auth; metering per source IP is the only
	// inbound protection at this layer.
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter, webhookLimitPerMinute))
		r.Post("/webhooks/payment", h.PaymentWebhookHandler)
	})

	// Venue tooling endpoints.
	r.Get("/orders/{orderID}", h.GetOrderHandler)
	r.Get("/clients/bonus", h.GetClientBonusHandler)

	return r
}
