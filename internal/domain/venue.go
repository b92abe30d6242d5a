package domain

import (
	"time"

	"github.com/google/uuid"
)

// Venue is a tenant restaurant/business entity. The payment-service treats it
// as a shared reference: it reads venue configuration but never mutates it.
type Venue struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	PosterToken         string    `json:"-"` // empty means no POS integration configured
	BonusSystemEnabled  bool      `json:"bonus_system_enabled"`
	BonusAccrualPercent int64     `json:"bonus_accrual_percent"` // whole percent of order total
	OwnerTelegramChatID *int64    `json:"-"`                     // nil means the owner has no notification channel
	CreatedAt           time.Time `json:"created_at"`
}

// HasPOS reports whether the venue has a configured POS integration.
func (v *Venue) HasPOS() bool {
	return v != nil && v.PosterToken != ""
}
