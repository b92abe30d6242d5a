package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderSettledEvent is the message payload published to RabbitMQ after a
// payment webhook has been committed. Downstream services (analytics, the bot
// backend) consume it; failures to publish never affect the committed state.
type OrderSettledEvent struct {
	OrderID         uuid.UUID  `json:"order_id"`
	VenueID         uuid.UUID  `json:"venue_id"`
	ClientID        *uuid.UUID `json:"client_id,omitempty"`
	Phone           string     `json:"phone"`
	Status          string     `json:"status"`
	TotalPrice      int64      `json:"total_price"`
	BonusWrittenOff int64      `json:"bonus_written_off"`
	BonusAccrued    int64      `json:"bonus_accrued"`
	Channel         string     `json:"channel"`
	SettledAt       time.Time  `json:"settled_at"`
}
