/**
 * @description
 * This file contains the bonus ledger engine: the accrual and write-off
 * arithmetic for per-(client, venue) loyalty balances. The engine is invoked
 * by the webhook processor inside its unit of work, but its correctness
 * properties (no double spend, no lost update, ledger/balance consistency)
 * stand on their own and are tested separately.
 *
 * Key features:
 * - Write-offs ride on the store's compare-and-decrement primitive; a race
 *   loser is skipped with a warning, never applied partially.
 * - Accruals floor toward zero via int64 division; the venue is never
 *   over-credited by rounding.
 * - Every successful mutation appends exactly one BonusHistory entry, keeping
 *   the profile balance equal to the ledger sum at all times.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/venuehub/payment-service/internal/domain"
	"github.com/venuehub/payment-service/internal/store"
)

// writeOffBonus deducts the order's requested bonus amount from the client's
// profile at the venue. Returns the amount actually written off: zero when the
// operation does not apply or when a concurrent write-off already consumed the
// balance (the documented skip-on-race-loss behavior).
func writeOffBonus(ctx context.Context, r store.Repository, order *domain.Order, client *domain.Client, venue *domain.Venue) (int64, error) {
	if client == nil || venue == nil || order.Bonus <= 0 {
		return 0, nil
	}

	err := r.DebitBonus(ctx, client.ID, venue.ID, order.Bonus)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientBonus) {
			log.Printf("level=warn component=bonus msg=\"write-off skipped\" order_id=%s client_id=%s venue_id=%s amount=%d reason=\"insufficient balance\"",
				order.ID, client.ID, venue.ID, order.Bonus)
			return 0, nil
		}
		return 0, fmt.Errorf("debit bonus: %w", err)
	}

	orderID := order.ID
	entry := &domain.BonusHistory{
		ClientID:    client.ID,
		VenueID:     venue.ID,
		OrderID:     &orderID,
		Amount:      -order.Bonus,
		Operation:   domain.BonusOpWriteOff,
		Description: fmt.Sprintf("Bonus write-off for order %s", order.ID),
	}
	if err := r.AppendBonusHistory(ctx, entry); err != nil {
		return 0, fmt.Errorf("append write-off history: %w", err)
	}
	return order.Bonus, nil
}

// accrueBonus credits the client's profile with the venue's configured share
// of the order total. Returns the accrued amount, zero when accrual does not
// apply.
func accrueBonus(ctx context.Context, r store.Repository, order *domain.Order, client *domain.Client, venue *domain.Venue) (int64, error) {
	if client == nil || venue == nil {
		return 0, nil
	}
	if !venue.BonusSystemEnabled || venue.BonusAccrualPercent <= 0 {
		return 0, nil
	}

	// int64 division floors toward zero; crediting never rounds up.
	accrued := order.TotalPrice * venue.BonusAccrualPercent / 100
	if accrued <= 0 {
		return 0, nil
	}

	err := r.CreditBonus(ctx, client.ID, venue.ID, accrued, order.TotalPrice)
	if errors.Is(err, store.ErrProfileNotFound) {
		// First accrual for this pairing: seed the profile in a single write.
		if _, seedErr := r.SeedVenueProfile(ctx, client.ID, venue.ID, accrued, order.TotalPrice); seedErr != nil {
			if !errors.Is(seedErr, store.ErrProfileExists) {
				return 0, fmt.Errorf("seed venue profile: %w", seedErr)
			}
			// Lost the creation race; fall back to the increment path.
			err = r.CreditBonus(ctx, client.ID, venue.ID, accrued, order.TotalPrice)
		} else {
			err = nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("credit bonus: %w", err)
	}

	orderID := order.ID
	entry := &domain.BonusHistory{
		ClientID:    client.ID,
		VenueID:     venue.ID,
		OrderID:     &orderID,
		Amount:      accrued,
		Operation:   domain.BonusOpAccrual,
		Description: fmt.Sprintf("Bonus accrual for order %s", order.ID),
	}
	if err := r.AppendBonusHistory(ctx, entry); err != nil {
		return 0, fmt.Errorf("append accrual history: %w", err)
	}
	return accrued, nil
}
