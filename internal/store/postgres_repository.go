/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL queries needed by the webhook processor
 * and the bonus ledger engine.
 *
 * Key features:
 * - `WithTx` opens one pgx transaction and hands the caller a repository
 *   bound to it, so a whole webhook cascade commits or rolls back together.
 * - Bonus mutations are single conditional UPDATE statements
 *   (`... WHERE bonus >= $n`) whose affected-row count decides the outcome,
 *   so two concurrent write-offs for the same client can never both succeed.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/venuehub/payment-service/internal/domain"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrVenueNotFound       = errors.New("venue not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrProfileNotFound     = errors.New("client venue profile not found")
	ErrProfileExists       = errors.New("client venue profile already exists")
	ErrInsufficientBonus   = errors.New("insufficient bonus balance")
	ErrDuplicateDelivery   = errors.New("duplicate webhook delivery")
	ErrReceiptNotFound     = errors.New("receipt not found")
)

// querier is the subset of pgx operations shared by *pgxpool.Pool and pgx.Tx,
// allowing the same repository methods to run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool // nil when the repository is bound to an open transaction
	db   querier
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, db: pool}
}

// WithTx runs fn inside a single database transaction. When the repository is
// already transaction-bound, fn joins the open transaction instead of nesting.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresRepository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindTransactionByOperationID resolves a payment attempt by the provider's
// operation identifier.
func (r *PostgresRepository) FindTransactionByOperationID(ctx context.Context, operationID string) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `
		SELECT id, order_id, operation_id, status, total_price, raw_payload, created_at, updated_at
		FROM transactions
		WHERE operation_id = $1
	`
	err := r.db.QueryRow(ctx, query, operationID).Scan(
		&tx.ID, &tx.OrderID, &tx.OperationID, &tx.Status, &tx.TotalPrice,
		&tx.RawPayload, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// MarkTransactionStatus persists a new provider status and the raw payload.
// The `status <> $2` guard makes concurrent identical deliveries lose cleanly:
// the second one affects zero rows and is reported as a duplicate.
func (r *PostgresRepository) MarkTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string, rawPayload []byte) error {
	query := `
		UPDATE transactions
		SET status = $2, raw_payload = $3, updated_at = NOW()
		WHERE id = $1 AND status <> $2
	`
	result, err := r.db.Exec(ctx, query, transactionID, status, rawPayload)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrDuplicateDelivery
	}
	return nil
}

// FindOrderByID retrieves an order by its ID.
func (r *PostgresRepository) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	query := `
		SELECT id, venue_id, spot_id, table_id, client_id, phone, status, channel,
		       total_price, service_price, tips, discount, bonus, external_id,
		       COALESCE(comment, '') AS comment, created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&order.ID, &order.VenueID, &order.SpotID, &order.TableID, &order.ClientID,
		&order.Phone, &order.Status, &order.Channel, &order.TotalPrice,
		&order.ServicePrice, &order.Tips, &order.Discount, &order.Bonus,
		&order.ExternalID, &order.Comment, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus moves an order to a new status.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	query := `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.Exec(ctx, query, orderID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// AttachOrderClient links the resolved client (and the POS order id, when the
// venue has a POS) to an order after settlement.
func (r *PostgresRepository) AttachOrderClient(ctx context.Context, orderID uuid.UUID, clientID uuid.UUID, externalID *string) error {
	query := `
		UPDATE orders
		SET client_id = $2, external_id = COALESCE($3, external_id), updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, orderID, clientID, externalID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// FindVenueByID retrieves venue configuration.
func (r *PostgresRepository) FindVenueByID(ctx context.Context, venueID uuid.UUID) (*domain.Venue, error) {
	var venue domain.Venue
	query := `
		SELECT id, name, COALESCE(poster_token, '') AS poster_token,
		       bonus_system_enabled, bonus_accrual_percent, owner_telegram_chat_id, created_at
		FROM venues
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, venueID).Scan(
		&venue.ID, &venue.Name, &venue.PosterToken, &venue.BonusSystemEnabled,
		&venue.BonusAccrualPercent, &venue.OwnerTelegramChatID, &venue.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrVenueNotFound
		}
		return nil, err
	}
	return &venue, nil
}

// FindClientByPhone retrieves a client by the normalized phone number.
func (r *PostgresRepository) FindClientByPhone(ctx context.Context, phone string) (*domain.Client, error) {
	var client domain.Client
	query := `
		SELECT id, phone, COALESCE(first_name, '') AS first_name, COALESCE(last_name, '') AS last_name, created_at
		FROM clients
		WHERE phone = $1
	`
	err := r.db.QueryRow(ctx, query, phone).Scan(
		&client.ID, &client.Phone, &client.FirstName, &client.LastName, &client.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &client, nil
}

// GetOrCreateClientByPhone inserts a client keyed by phone, or returns the
// existing one. ON CONFLICT keeps concurrent first-settlements from racing.
func (r *PostgresRepository) GetOrCreateClientByPhone(ctx context.Context, phone string) (*domain.Client, error) {
	var client domain.Client
	query := `
		INSERT INTO clients (id, phone, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, phone, COALESCE(first_name, '') AS first_name, COALESCE(last_name, '') AS last_name, created_at
	`
	err := r.db.QueryRow(ctx, query, uuid.New(), phone).Scan(
		&client.ID, &client.Phone, &client.FirstName, &client.LastName, &client.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// GetOrCreateVenueProfile returns the (client, venue) loyalty profile,
// creating it with zero balances on first contact.
func (r *PostgresRepository) GetOrCreateVenueProfile(ctx context.Context, clientID, venueID uuid.UUID) (*domain.ClientVenueProfile, error) {
	var profile domain.ClientVenueProfile
	query := `
		INSERT INTO client_venue_profiles (id, client_id, venue_id, bonus, paid_sum, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, NOW(), NOW())
		ON CONFLICT (client_id, venue_id) DO UPDATE SET updated_at = client_venue_profiles.updated_at
		RETURNING id, client_id, venue_id, bonus, paid_sum, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, uuid.New(), clientID, venueID).Scan(
		&profile.ID, &profile.ClientID, &profile.VenueID, &profile.Bonus,
		&profile.PaidSum, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindVenueProfile retrieves an existing (client, venue) profile.
func (r *PostgresRepository) FindVenueProfile(ctx context.Context, clientID, venueID uuid.UUID) (*domain.ClientVenueProfile, error) {
	var profile domain.ClientVenueProfile
	query := `
		SELECT id, client_id, venue_id, bonus, paid_sum, created_at, updated_at
		FROM client_venue_profiles
		WHERE client_id = $1 AND venue_id = $2
	`
	err := r.db.QueryRow(ctx, query, clientID, venueID).Scan(
		&profile.ID, &profile.ClientID, &profile.VenueID, &profile.Bonus,
		&profile.PaidSum, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// DebitBonus performs the compare-and-decrement write-off. The balance guard
// lives in the WHERE clause so a concurrent write-off that already consumed
// the balance makes this one affect zero rows instead of going negative.
func (r *PostgresRepository) DebitBonus(ctx context.Context, clientID, venueID uuid.UUID, amount int64) error {
	query := `
		UPDATE client_venue_profiles
		SET bonus = bonus - $3, updated_at = NOW()
		WHERE client_id = $1 AND venue_id = $2 AND bonus >= $3
	`
	result, err := r.db.Exec(ctx, query, clientID, venueID, amount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInsufficientBonus
	}
	return nil
}

// CreditBonus atomically increments the profile's bonus and paid sum.
func (r *PostgresRepository) CreditBonus(ctx context.Context, clientID, venueID uuid.UUID, bonusDelta, paidDelta int64) error {
	query := `
		UPDATE client_venue_profiles
		SET bonus = bonus + $3, paid_sum = paid_sum + $4, updated_at = NOW()
		WHERE client_id = $1 AND venue_id = $2
	`
	result, err := r.db.Exec(ctx, query, clientID, venueID, bonusDelta, paidDelta)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// SeedVenueProfile creates a profile pre-loaded with the first accrual,
// avoiding a create-then-update pair of writes.
func (r *PostgresRepository) SeedVenueProfile(ctx context.Context, clientID, venueID uuid.UUID, bonus, paidSum int64) (*domain.ClientVenueProfile, error) {
	var profile domain.ClientVenueProfile
	query := `
		INSERT INTO client_venue_profiles (id, client_id, venue_id, bonus, paid_sum, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (client_id, venue_id) DO NOTHING
		RETURNING id, client_id, venue_id, bonus, paid_sum, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, uuid.New(), clientID, venueID, bonus, paidSum).Scan(
		&profile.ID, &profile.ClientID, &profile.VenueID, &profile.Bonus,
		&profile.PaidSum, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrProfileExists
		}
		return nil, err
	}
	return &profile, nil
}

// AppendBonusHistory inserts one immutable ledger entry.
func (r *PostgresRepository) AppendBonusHistory(ctx context.Context, entry *domain.BonusHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO bonus_history (id, client_id, venue_id, order_id, amount, operation, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		entry.ID, entry.ClientID, entry.VenueID, entry.OrderID,
		entry.Amount, entry.Operation, entry.Description,
	).Scan(&entry.CreatedAt)
}

// SumBonusHistory returns the ledger total for a (client, venue) pair. Used
// by reconciliation checks against the profile balance.
func (r *PostgresRepository) SumBonusHistory(ctx context.Context, clientID, venueID uuid.UUID) (int64, error) {
	var sum int64
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM bonus_history
		WHERE client_id = $1 AND venue_id = $2
	`
	err := r.db.QueryRow(ctx, query, clientID, venueID).Scan(&sum)
	return sum, err
}

// FindReceiptByOrderID retrieves the printed receipt for an order, if any.
func (r *PostgresRepository) FindReceiptByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Receipt, error) {
	var receipt domain.Receipt
	query := `SELECT id, order_id, payload, created_at FROM receipts WHERE order_id = $1`
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&receipt.ID, &receipt.OrderID, &receipt.Payload, &receipt.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// CreateReceipt records the exact payload that was published for printing.
// The unique index on order_id enforces at most one receipt per order.
func (r *PostgresRepository) CreateReceipt(ctx context.Context, receipt *domain.Receipt) error {
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	query := `
		INSERT INTO receipts (id, order_id, payload, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (order_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, receipt.ID, receipt.OrderID, receipt.Payload)
	return err
}
