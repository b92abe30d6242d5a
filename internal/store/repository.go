/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access operations required by the payment-service. The interface decouples
 * the webhook processor and the bonus ledger engine from PostgreSQL and lets
 * tests substitute in-memory stubs.
 *
 * @notes
 * - `WithTx` is the unit-of-work boundary for webhook processing: every store
 *   operation performed inside the callback commits or rolls back as one.
 *   The repository passed to the callback is bound to the open transaction.
 * - `DebitBonus`/`CreditBonus` are single-statement conditional updates, not
 *   read-then-write: they are the primitives that keep the ledger free of
 *   lost updates under concurrent settlement for the same client.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/venuehub/payment-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// WithTx runs fn inside a single database transaction. The Repository
	// given to fn is bound to that transaction; any error rolls everything
	// back.
	WithTx(ctx context.Context, fn func(Repository) error) error

	// Transaction methods
	FindTransactionByOperationID(ctx context.Context, operationID string) (*domain.Transaction, error)
	// MarkTransactionStatus persists the new provider status and raw payload
	// only if the stored status differs; returns ErrDuplicateDelivery when a
	// concurrent delivery already applied the same status.
	MarkTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string, rawPayload []byte) error

	// Order methods
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) error
	AttachOrderClient(ctx context.Context, orderID uuid.UUID, clientID uuid.UUID, externalID *string) error

	// Venue methods
	FindVenueByID(ctx context.Context, venueID uuid.UUID) (*domain.Venue, error)

	// Client and profile methods
	FindClientByPhone(ctx context.Context, phone string) (*domain.Client, error)
	GetOrCreateClientByPhone(ctx context.Context, phone string) (*domain.Client, error)
	GetOrCreateVenueProfile(ctx context.Context, clientID, venueID uuid.UUID) (*domain.ClientVenueProfile, error)
	FindVenueProfile(ctx context.Context, clientID, venueID uuid.UUID) (*domain.ClientVenueProfile, error)

	// Bonus ledger methods
	// DebitBonus decrements the profile balance only when it holds at least
	// `amount`; returns ErrInsufficientBonus when the conditional update
	// affects zero rows.
	DebitBonus(ctx context.Context, clientID, venueID uuid.UUID, amount int64) error
	// CreditBonus atomically increments the profile's bonus and paid sum.
	CreditBonus(ctx context.Context, clientID, venueID uuid.UUID, bonusDelta, paidDelta int64) error
	// SeedVenueProfile creates a profile already holding the given balances;
	// returns ErrProfileExists when the (client, venue) pair is taken.
	SeedVenueProfile(ctx context.Context, clientID, venueID uuid.UUID, bonus, paidSum int64) (*domain.ClientVenueProfile, error)
	AppendBonusHistory(ctx context.Context, entry *domain.BonusHistory) error
	SumBonusHistory(ctx context.Context, clientID, venueID uuid.UUID) (int64, error)

	// Receipt methods
	FindReceiptByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Receipt, error)
	CreateReceipt(ctx context.Context, receipt *domain.Receipt) error
}
