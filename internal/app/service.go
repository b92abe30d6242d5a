/**
 * @description
 * This file contains the core business logic for the payment-service: the
 * payment webhook processor. The `Service` struct converts at-least-once
 * provider callbacks into consistent internal state transitions, exactly once
 * in effect, coordinating the store, the POS gateway and the post-commit
 * notification fan-out.
 *
 * Key features:
 * - Duplicate deliveries are detected by status equality and suppressed with
 *   zero side effects; a conditional status update inside the unit of work
 *   additionally closes the concurrent-duplicate window.
 * - The whole settlement cascade (transaction status, order status, POS sync,
 *   client/profile upsert, bonus write-off and accrual) runs in one store
 *   transaction; POS failure rolls everything back so the provider retries.
 * - Fan-out (owner push, receipt print, automation forward, settled event)
 *   happens strictly after commit and can never undo committed state.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/venuehub/payment-service/internal/domain"
	"github.com/venuehub/payment-service/internal/store"
)

// POSAcceptance is the POS system's view of a submitted order.
type POSAcceptance struct {
	ClientID        string
	IncomingOrderID string
}

// POSClientInfo is the POS-side client record used to upsert our local client.
type POSClientInfo struct {
	Phone     string
	FirstName string
	LastName  string
}

// POSGateway submits orders to a venue's POS system. A nil result or an error
// is a hard failure for the current settlement.
type POSGateway interface {
	SubmitOrder(ctx context.Context, venue *domain.Venue, order *domain.Order) (*POSAcceptance, error)
	UpsertClient(ctx context.Context, venue *domain.Venue, posClientID string) (*POSClientInfo, error)
}

// WebhookResult reports what processing an inbound webhook amounted to.
type WebhookResult struct {
	Duplicate bool
}

// settledOrder carries the committed state into the post-commit fan-out.
type settledOrder struct {
	order      *domain.Order
	venue      *domain.Venue
	client     *domain.Client
	writtenOff int64
	accrued    int64
}

// Service provides the core business logic for payment settlement.
type Service struct {
	repo     store.Repository
	pos      POSGateway
	notifier *Notifier
}

// NewService creates a new payment service instance.
func NewService(repo store.Repository, pos POSGateway, notifier *Notifier) *Service {
	return &Service{
		repo:     repo,
		pos:      pos,
		notifier: notifier,
	}
}

// ProcessPaymentWebhook drives the settlement state machine for one provider
// callback. rawPayload is the full provider body, stored opaquely on the
// transaction for audit.
func (s *Service) ProcessPaymentWebhook(ctx context.Context, operationID, operationState string, rawPayload []byte) (*WebhookResult, error) {
	tx, err := s.repo.FindTransactionByOperationID(ctx, operationID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			log.Printf("level=warn component=webhook msg=\"unknown operation id\" operation_id=%s", operationID)
		}
		return nil, err
	}

	// Duplicate delivery: the provider redelivered a status we already hold.
	// Acknowledge without side effects so replays are always safe.
	if tx.Status == operationState {
		log.Printf("level=info component=webhook msg=\"duplicate delivery suppressed\" operation_id=%s state=%s", operationID, operationState)
		return &WebhookResult{Duplicate: true}, nil
	}

	var settled *settledOrder
	err = s.repo.WithTx(ctx, func(r store.Repository) error {
		if err := r.MarkTransactionStatus(ctx, tx.ID, operationState, rawPayload); err != nil {
			return err
		}

		// A transaction can exist without an order (e.g. top-ups recorded for
		// audit); the status update alone is then the whole effect.
		if tx.OrderID == nil {
			return nil
		}

		order, err := r.FindOrderByID(ctx, *tx.OrderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		venue, err := r.FindVenueByID(ctx, order.VenueID)
		if err != nil {
			return fmt.Errorf("load venue: %w", err)
		}

		if order.Status == domain.OrderStatusWaitingForPayment {
			if err := r.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusNew); err != nil {
				return fmt.Errorf("update order status: %w", err)
			}
			order.Status = domain.OrderStatusNew
		}

		client, externalID, err := s.resolveClient(ctx, r, order, venue)
		if err != nil {
			return err
		}
		if err := r.AttachOrderClient(ctx, order.ID, client.ID, externalID); err != nil {
			return fmt.Errorf("attach client: %w", err)
		}
		clientID := client.ID
		order.ClientID = &clientID
		order.ExternalID = externalID

		if _, err := r.GetOrCreateVenueProfile(ctx, client.ID, venue.ID); err != nil {
			return fmt.Errorf("ensure venue profile: %w", err)
		}

		writtenOff, err := writeOffBonus(ctx, r, order, client, venue)
		if err != nil {
			return err
		}
		accrued, err := accrueBonus(ctx, r, order, client, venue)
		if err != nil {
			return err
		}

		settled = &settledOrder{
			order:      order,
			venue:      venue,
			client:     client,
			writtenOff: writtenOff,
			accrued:    accrued,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateDelivery) {
			// A concurrent delivery won the status update; nothing happened here.
			log.Printf("level=info component=webhook msg=\"concurrent duplicate suppressed\" operation_id=%s state=%s", operationID, operationState)
			return &WebhookResult{Duplicate: true}, nil
		}
		return nil, err
	}

	// Fan-out is best-effort and strictly post-commit: a notification failure
	// must never roll back settled business state.
	if settled != nil && s.notifier != nil {
		s.notifier.DispatchOrderSettled(ctx, settled.order, settled.venue, settled.client, settled.writtenOff, settled.accrued)
	}

	return &WebhookResult{}, nil
}

// resolveClient finds or creates the local client for the order. With a POS
// configured, the order must be accepted by the POS first and the client
// identity follows the POS record; POS rejection aborts the settlement.
func (s *Service) resolveClient(ctx context.Context, r store.Repository, order *domain.Order, venue *domain.Venue) (*domain.Client, *string, error) {
	if !venue.HasPOS() {
		client, err := r.GetOrCreateClientByPhone(ctx, order.Phone)
		if err != nil {
			return nil, nil, fmt.Errorf("upsert client by phone: %w", err)
		}
		return client, nil, nil
	}

	if s.pos == nil {
		return nil, nil, fmt.Errorf("venue %s has a POS configured but no gateway is wired", venue.ID)
	}

	acceptance, err := s.pos.SubmitOrder(ctx, venue, order)
	if err != nil {
		return nil, nil, fmt.Errorf("pos order submission: %w", err)
	}
	if acceptance == nil || acceptance.IncomingOrderID == "" {
		return nil, nil, fmt.Errorf("pos accepted nothing for order %s", order.ID)
	}

	info, err := s.pos.UpsertClient(ctx, venue, acceptance.ClientID)
	if err != nil {
		return nil, nil, fmt.Errorf("pos client upsert: %w", err)
	}
	if info == nil {
		return nil, nil, fmt.Errorf("pos returned no client for order %s", order.ID)
	}

	phone := info.Phone
	if phone == "" {
		phone = order.Phone
	}
	client, err := r.GetOrCreateClientByPhone(ctx, phone)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert client by phone: %w", err)
	}

	externalID := acceptance.IncomingOrderID
	return client, &externalID, nil
}

// GetOrder returns an order for the venue-tooling status endpoint.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.repo.FindOrderByID(ctx, orderID)
}

// GetClientBonus looks up the client's loyalty profile at a venue.
func (s *Service) GetClientBonus(ctx context.Context, phone string, venueID uuid.UUID) (*domain.ClientVenueProfile, error) {
	client, err := s.repo.FindClientByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	return s.repo.FindVenueProfile(ctx, client.ID, venueID)
}

// ReconcileBonusLedger verifies the auditability invariant for one pairing:
// the profile balance must equal the ledger sum. Exposed for operational
// spot checks.
func (s *Service) ReconcileBonusLedger(ctx context.Context, clientID, venueID uuid.UUID) (bool, error) {
	profile, err := s.repo.FindVenueProfile(ctx, clientID, venueID)
	if err != nil {
		return false, err
	}
	sum, err := s.repo.SumBonusHistory(ctx, clientID, venueID)
	if err != nil {
		return false, err
	}
	if profile.Bonus != sum {
		log.Printf("level=error component=bonus msg=\"ledger drift detected\" client_id=%s venue_id=%s profile=%d ledger=%d at=%s",
			clientID, venueID, profile.Bonus, sum, time.Now().UTC().Format(time.RFC3339))
		return false, nil
	}
	return true, nil
}
