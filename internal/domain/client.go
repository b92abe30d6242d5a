/**
 * @description
 * Client-side domain models: the global client identity, the per-venue loyalty
 * profile that owns the mutable bonus balance, and the append-only bonus
 * ledger.
 *
 * @notes
 * - ClientVenueProfile is unique per (client, venue); the store enforces it.
 * - The sum of BonusHistory amounts for a (client, venue) pair always equals
 *   the profile's bonus balance. Both ledger operations preserve this under
 *   concurrent settlement for the same client.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bonus ledger operation tags.
const (
	BonusOpAccrual  = "accrual"
	BonusOpWriteOff = "write_off"
)

// Client is a natural person identified by phone number, global across venues.
type Client struct {
	ID        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientVenueProfile is the per-venue relationship between a client and a
// venue. Bonus must never go negative; PaidSum accumulates settled order
// totals.
type ClientVenueProfile struct {
	ID        uuid.UUID `json:"id"`
	ClientID  uuid.UUID `json:"client_id"`
	VenueID   uuid.UUID `json:"venue_id"`
	Bonus     int64     `json:"bonus"`
	PaidSum   int64     `json:"paid_sum"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BonusHistory is one immutable ledger entry: positive amount for an accrual,
// negative for a write-off.
type BonusHistory struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	VenueID     uuid.UUID  `json:"venue_id"`
	OrderID     *uuid.UUID `json:"order_id,omitempty"`
	Amount      int64      `json:"amount"`
	Operation   string     `json:"operation"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}
