package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/venuehub/payment-service/internal/domain"
)

func newBonusFixture(percent int64, total int64) (*memRepo, *domain.Order, *domain.Client, *domain.Venue) {
	repo := newMemRepo()
	venue := newTestVenue(percent)
	order := newTestOrder(venue.ID, total)
	client := &domain.Client{ID: uuid.New(), Phone: order.Phone}
	repo.venues[venue.ID] = venue
	repo.orders[order.ID] = order
	repo.clients[client.Phone] = client
	return repo, order, client, venue
}

func TestAccrueBonus_FloorsFractionalAmounts(t *testing.T) {
	repo, order, client, venue := newBonusFixture(10, 1999)

	accrued, err := accrueBonus(context.Background(), repo, order, client, venue)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if accrued != 199 {
		t.Fatalf("expected 10%% of 1999 to floor to 199, got %d", accrued)
	}

	profile := repo.profiles[profileKey(client.ID, venue.ID)]
	if profile == nil {
		t.Fatal("expected a seeded profile for the fresh pairing")
	}
	if profile.Bonus != 199 || profile.PaidSum != 1999 {
		t.Fatalf("expected profile bonus=199 paid=1999, got bonus=%d paid=%d", profile.Bonus, profile.PaidSum)
	}
}

func TestAccrueBonus_IncrementsExistingProfile(t *testing.T) {
	repo, order, client, venue := newBonusFixture(5, 1000)
	repo.profiles[profileKey(client.ID, venue.ID)] = &domain.ClientVenueProfile{
		ID: uuid.New(), ClientID: client.ID, VenueID: venue.ID, Bonus: 70, PaidSum: 500,
	}

	accrued, err := accrueBonus(context.Background(), repo, order, client, venue)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if accrued != 50 {
		t.Fatalf("expected accrual of 50, got %d", accrued)
	}

	profile := repo.profiles[profileKey(client.ID, venue.ID)]
	if profile.Bonus != 120 || profile.PaidSum != 1500 {
		t.Fatalf("expected bonus=120 paid=1500, got bonus=%d paid=%d", profile.Bonus, profile.PaidSum)
	}
}

func TestAccrueBonus_SkipsWhenDisabledOrZeroPercent(t *testing.T) {
	repo, order, client, venue := newBonusFixture(5, 1000)
	venue.BonusSystemEnabled = false

	accrued, err := accrueBonus(context.Background(), repo, order, client, venue)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if accrued != 0 {
		t.Fatalf("expected no accrual for a disabled bonus system, got %d", accrued)
	}

	venue.BonusSystemEnabled = true
	venue.BonusAccrualPercent = 0
	accrued, err = accrueBonus(context.Background(), repo, order, client, venue)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if accrued != 0 {
		t.Fatalf("expected no accrual at zero percent, got %d", accrued)
	}
	if len(repo.history) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(repo.history))
	}
}

func TestAccrueBonus_SkipsWhenFlooredToZero(t *testing.T) {
	repo, order, client, venue := newBonusFixture(5, 10)

	accrued, err := accrueBonus(context.Background(), repo, order, client, venue)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if accrued != 0 {
		t.Fatalf("expected 5%% of 10 to floor to zero and skip, got %d", accrued)
	}
	if len(repo.history) != 0 {
		t.Fatal("expected no ledger entry for a zero accrual")
	}
}

func TestWriteOffBonus_DebitsAndRecordsLedger(t *testing.T) {
	repo, order, client, venue := newBonusFixture(0, 1000)
	order.Bonus = 50
	repo.profiles[profileKey(client.ID, venue.ID)] = &domain.ClientVenueProfile{
		ID: uuid.New(), ClientID: client.ID, VenueID: venue.ID, Bonus: 100,
	}

	writtenOff, err := writeOffBonus(context.Background(), repo, order, client, venue)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if writtenOff != 50 {
		t.Fatalf("expected 50 written off, got %d", writtenOff)
	}

	profile := repo.profiles[profileKey(client.ID, venue.ID)]
	if profile.Bonus != 50 {
		t.Fatalf("expected remaining balance 50, got %d", profile.Bonus)
	}
	if len(repo.history) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(repo.history))
	}
	if repo.history[0].Amount != -50 || repo.history[0].Operation != domain.BonusOpWriteOff {
		t.Fatalf("expected a -50 write_off entry, got %s %d", repo.history[0].Operation, repo.history[0].Amount)
	}
}

func TestWriteOffBonus_InsufficientBalanceIsSkippedSilently(t *testing.T) {
	repo, order, client, venue := newBonusFixture(0, 1000)
	order.Bonus = 50
	repo.profiles[profileKey(client.ID, venue.ID)] = &domain.ClientVenueProfile{
		ID: uuid.New(), ClientID: client.ID, VenueID: venue.ID, Bonus: 30,
	}

	writtenOff, err := writeOffBonus(context.Background(), repo, order, client, venue)
	if err != nil {
		t.Fatalf("expected the shortfall to be swallowed, got %v", err)
	}
	if writtenOff != 0 {
		t.Fatalf("expected nothing written off, got %d", writtenOff)
	}

	profile := repo.profiles[profileKey(client.ID, venue.ID)]
	if profile.Bonus != 30 {
		t.Fatalf("expected the balance untouched at 30, got %d", profile.Bonus)
	}
	if len(repo.history) != 0 {
		t.Fatal("expected no ledger entry for a skipped write-off")
	}
}

func TestWriteOffBonus_NoRequestedAmountIsNoop(t *testing.T) {
	repo, order, client, venue := newBonusFixture(0, 1000)

	writtenOff, err := writeOffBonus(context.Background(), repo, order, client, venue)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if writtenOff != 0 || len(repo.history) != 0 {
		t.Fatal("expected a no-op when the order requests no write-off")
	}
}

func TestBonusLedger_SumMatchesProfileAfterMixedOperations(t *testing.T) {
	repo, order, client, venue := newBonusFixture(10, 2000)

	if _, err := accrueBonus(context.Background(), repo, order, client, venue); err != nil {
		t.Fatalf("first accrual failed: %v", err)
	}

	order.Bonus = 150
	if _, err := writeOffBonus(context.Background(), repo, order, client, venue); err != nil {
		t.Fatalf("write-off failed: %v", err)
	}
	if _, err := accrueBonus(context.Background(), repo, order, client, venue); err != nil {
		t.Fatalf("second accrual failed: %v", err)
	}

	profile := repo.profiles[profileKey(client.ID, venue.ID)]
	sum, err := repo.SumBonusHistory(context.Background(), client.ID, venue.ID)
	if err != nil {
		t.Fatalf("ledger sum failed: %v", err)
	}
	if profile.Bonus != sum {
		t.Fatalf("expected profile balance %d to equal ledger sum %d", profile.Bonus, sum)
	}
	if profile.Bonus != 250 {
		t.Fatalf("expected 200-150+200=250, got %d", profile.Bonus)
	}
}
