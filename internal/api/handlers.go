/**
 * @description
 * This file contains the HTTP handlers for the payment-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * The webhook handler implements the acknowledgement contract expected by the
 * payment provider: 200 acknowledges processing (including duplicates), 400
 * rejects malformed payloads, 404 flags unknown operation ids, and any 500
 * triggers a provider-side retry.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/store: For service logic and custom errors.
 */

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/venuehub/payment-service/internal/app"
	"github.com/venuehub/payment-service/internal/store"
)

// maxWebhookBodyBytes caps provider payload size.
const maxWebhookBodyBytes = 1 << 20

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service *app.Service
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service) *PaymentHandlers {
	return &PaymentHandlers{service: service}
}

type orderResponse struct {
	OrderID    string  `json:"order_id"`
	VenueID    string  `json:"venue_id"`
	Status     string  `json:"status"`
	Channel    string  `json:"channel"`
	TotalPrice int64   `json:"total_price"`
	Tips       int64   `json:"tips"`
	Bonus      int64   `json:"bonus"`
	ExternalID *string `json:"external_id,omitempty"`
}

type clientBonusResponse struct {
	Phone   string `json:"phone"`
	VenueID string `json:"venue_id"`
	Bonus   int64  `json:"bonus"`
	PaidSum int64  `json:"paid_sum"`
}

// PaymentWebhookHandler handles payment-provider status callbacks.
func (h *PaymentHandlers) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Printf("level=warn component=api endpoint=payment_webhook outcome=reject reason=body_read_failed err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	operationID, operationState, ok := parseWebhookPayload(rawBody)
	if !ok {
		log.Printf("level=warn component=api endpoint=payment_webhook outcome=reject reason=invalid_payload")
		h.writeError(w, http.StatusBadRequest, "Missing or invalid operation_id / operation_state")
		return
	}

	result, err := h.service.ProcessPaymentWebhook(r.Context(), operationID, operationState, rawBody)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, "Unknown operation id")
			return
		}
		log.Printf("level=error component=api endpoint=payment_webhook outcome=failed operation_id=%s err=%v", operationID, err)
		h.writeError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	if result.Duplicate {
		log.Printf("level=info component=api endpoint=payment_webhook outcome=duplicate operation_id=%s", operationID)
	} else {
		log.Printf("level=info component=api endpoint=payment_webhook outcome=processed operation_id=%s state=%s", operationID, operationState)
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// parseWebhookPayload extracts operation_id and operation_state from the
// provider body. Providers are inconsistent about numeric vs string ids, so
// the id is accepted either way; UseNumber keeps large ids intact.
func parseWebhookPayload(rawBody []byte) (operationID, operationState string, ok bool) {
	decoder := json.NewDecoder(bytes.NewReader(rawBody))
	decoder.UseNumber()

	var payload map[string]interface{}
	if err := decoder.Decode(&payload); err != nil {
		return "", "", false
	}

	switch v := payload["operation_id"].(type) {
	case string:
		operationID = v
	case json.Number:
		operationID = v.String()
	}
	if state, isString := payload["operation_state"].(string); isString {
		operationState = state
	}

	if operationID == "" || operationState == "" {
		return "", "", false
	}
	return operationID, operationState, true
}

// GetOrderHandler returns the current state of one order for venue tooling.
func (h *PaymentHandlers) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_order outcome=failed order_id=%s err=%v", orderID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load order")
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse{
		OrderID:    order.ID.String(),
		VenueID:    order.VenueID.String(),
		Status:     order.Status,
		Channel:    order.Channel,
		TotalPrice: order.TotalPrice,
		Tips:       order.Tips,
		Bonus:      order.Bonus,
		ExternalID: order.ExternalID,
	})
}

// GetClientBonusHandler returns a client's loyalty balance at a venue.
func (h *PaymentHandlers) GetClientBonusHandler(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		h.writeError(w, http.StatusBadRequest, "Missing phone")
		return
	}
	venueID, err := uuid.Parse(r.URL.Query().Get("venue_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid venue_id")
		return
	}

	profile, err := h.service.GetClientBonus(r.Context(), phone, venueID)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) || errors.Is(err, store.ErrProfileNotFound) {
			h.writeError(w, http.StatusNotFound, "No loyalty profile for this client at this venue")
			return
		}
		log.Printf("level=error component=api endpoint=client_bonus outcome=failed venue_id=%s err=%v", venueID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load bonus balance")
		return
	}

	h.writeJSON(w, http.StatusOK, clientBonusResponse{
		Phone:   phone,
		VenueID: venueID.String(),
		Bonus:   profile.Bonus,
		PaidSum: profile.PaidSum,
	})
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
