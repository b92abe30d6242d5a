/**
 * @description
 * This file defines the core domain models for the payment-service: orders,
 * payment transactions and printed receipts. These structs map directly to
 * their database tables and are shared by the business logic, the store and
 * the API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit, which avoids
 *   floating-point inaccuracies with financial data. Bonus points share the
 *   order's unit.
 * - Transaction.Status mirrors the payment provider's state vocabulary and is
 *   deliberately an opaque string: new values may appear from the provider
 *   without a code change, so it is only ever compared for equality.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses used by the webhook processor. The provider never sees these;
// they drive the venue-facing operational listings.
const (
	OrderStatusNew               = "new"
	OrderStatusWaitingForPayment = "waiting_for_payment"
	OrderStatusAccepted          = "accepted"
	OrderStatusCancelled         = "cancelled"
)

// Order channels. Bot-channel orders additionally trigger the automation
// webhook forward after settlement.
const (
	OrderChannelQR  = "qr"
	OrderChannelBot = "bot"
)

// Order represents a single purchase event at a venue.
// This struct maps directly to the `orders` table in the database.
type Order struct {
	ID           uuid.UUID  `json:"id"`
	VenueID      uuid.UUID  `json:"venue_id"`
	SpotID       *uuid.UUID `json:"spot_id,omitempty"`
	TableID      *uuid.UUID `json:"table_id,omitempty"`
	ClientID     *uuid.UUID `json:"client_id,omitempty"`
	Phone        string     `json:"phone"`
	Status       string     `json:"status"`
	Channel      string     `json:"channel"`
	TotalPrice   int64      `json:"total_price"`
	ServicePrice int64      `json:"service_price"`
	Tips         int64      `json:"tips"`
	Discount     int64      `json:"discount"`
	Bonus        int64      `json:"bonus"` // bonus amount requested for write-off on this order
	ExternalID   *string    `json:"external_id,omitempty"` // POS incoming order id, set after POS sync
	Comment      string     `json:"comment,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Transaction is one payment-provider-tracked payment attempt for an Order.
// OperationID is the provider's identifier delivered in webhook callbacks.
type Transaction struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     *uuid.UUID `json:"order_id,omitempty"`
	OperationID string     `json:"operation_id"`
	Status      string     `json:"status"`
	TotalPrice  int64      `json:"total_price"`
	RawPayload  []byte     `json:"-"` // last provider payload, stored opaquely for audit
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Receipt records the exact payload published for physical printing.
// At most one receipt exists per order.
type Receipt struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
