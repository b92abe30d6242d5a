package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/venuehub/payment-service/internal/domain"
	"github.com/venuehub/payment-service/internal/store"
)

// memRepo is an in-memory store.Repository. WithTx snapshots all state and
// restores it when the callback errors, mirroring the database rollback.
type memRepo struct {
	txs      map[uuid.UUID]*domain.Transaction
	orders   map[uuid.UUID]*domain.Order
	venues   map[uuid.UUID]*domain.Venue
	clients  map[string]*domain.Client
	profiles map[string]*domain.ClientVenueProfile
	history  []domain.BonusHistory
	receipts map[uuid.UUID]*domain.Receipt
}

func newMemRepo() *memRepo {
	return &memRepo{
		txs:      make(map[uuid.UUID]*domain.Transaction),
		orders:   make(map[uuid.UUID]*domain.Order),
		venues:   make(map[uuid.UUID]*domain.Venue),
		clients:  make(map[string]*domain.Client),
		profiles: make(map[string]*domain.ClientVenueProfile),
		receipts: make(map[uuid.UUID]*domain.Receipt),
	}
}

func profileKey(clientID, venueID uuid.UUID) string {
	return clientID.String() + "|" + venueID.String()
}

func (m *memRepo) snapshot() *memRepo {
	s := newMemRepo()
	for k, v := range m.txs {
		cp := *v
		s.txs[k] = &cp
	}
	for k, v := range m.orders {
		cp := *v
		s.orders[k] = &cp
	}
	for k, v := range m.venues {
		cp := *v
		s.venues[k] = &cp
	}
	for k, v := range m.clients {
		cp := *v
		s.clients[k] = &cp
	}
	for k, v := range m.profiles {
		cp := *v
		s.profiles[k] = &cp
	}
	for k, v := range m.receipts {
		cp := *v
		s.receipts[k] = &cp
	}
	s.history = append(s.history, m.history...)
	return s
}

func (m *memRepo) restore(s *memRepo) {
	m.txs = s.txs
	m.orders = s.orders
	m.venues = s.venues
	m.clients = s.clients
	m.profiles = s.profiles
	m.receipts = s.receipts
	m.history = s.history
}

func (m *memRepo) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	before := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

func (m *memRepo) FindTransactionByOperationID(ctx context.Context, operationID string) (*domain.Transaction, error) {
	for _, tx := range m.txs {
		if tx.OperationID == operationID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (m *memRepo) MarkTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string, rawPayload []byte) error {
	tx, ok := m.txs[transactionID]
	if !ok {
		return store.ErrTransactionNotFound
	}
	if tx.Status == status {
		return store.ErrDuplicateDelivery
	}
	tx.Status = status
	tx.RawPayload = rawPayload
	return nil
}

func (m *memRepo) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *memRepo) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	order, ok := m.orders[orderID]
	if !ok {
		return store.ErrOrderNotFound
	}
	order.Status = status
	return nil
}

func (m *memRepo) AttachOrderClient(ctx context.Context, orderID uuid.UUID, clientID uuid.UUID, externalID *string) error {
	order, ok := m.orders[orderID]
	if !ok {
		return store.ErrOrderNotFound
	}
	order.ClientID = &clientID
	order.ExternalID = externalID
	return nil
}

func (m *memRepo) FindVenueByID(ctx context.Context, venueID uuid.UUID) (*domain.Venue, error) {
	venue, ok := m.venues[venueID]
	if !ok {
		return nil, store.ErrVenueNotFound
	}
	cp := *venue
	return &cp, nil
}

func (m *memRepo) FindClientByPhone(ctx context.Context, phone string) (*domain.Client, error) {
	client, ok := m.clients[phone]
	if !ok {
		return nil, store.ErrClientNotFound
	}
	cp := *client
	return &cp, nil
}

func (m *memRepo) GetOrCreateClientByPhone(ctx context.Context, phone string) (*domain.Client, error) {
	if client, ok := m.clients[phone]; ok {
		cp := *client
		return &cp, nil
	}
	client := &domain.Client{ID: uuid.New(), Phone: phone}
	m.clients[phone] = client
	cp := *client
	return &cp, nil
}

func (m *memRepo) GetOrCreateVenueProfile(ctx context.Context, clientID, venueID uuid.UUID) (*domain.ClientVenueProfile, error) {
	key := profileKey(clientID, venueID)
	if profile, ok := m.profiles[key]; ok {
		cp := *profile
		return &cp, nil
	}
	profile := &domain.ClientVenueProfile{ID: uuid.New(), ClientID: clientID, VenueID: venueID}
	m.profiles[key] = profile
	cp := *profile
	return &cp, nil
}

func (m *memRepo) FindVenueProfile(ctx context.Context, clientID, venueID uuid.UUID) (*domain.ClientVenueProfile, error) {
	profile, ok := m.profiles[profileKey(clientID, venueID)]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	cp := *profile
	return &cp, nil
}

func (m *memRepo) DebitBonus(ctx context.Context, clientID, venueID uuid.UUID, amount int64) error {
	profile, ok := m.profiles[profileKey(clientID, venueID)]
	if !ok || profile.Bonus < amount {
		return store.ErrInsufficientBonus
	}
	profile.Bonus -= amount
	return nil
}

func (m *memRepo) CreditBonus(ctx context.Context, clientID, venueID uuid.UUID, bonusDelta, paidDelta int64) error {
	profile, ok := m.profiles[profileKey(clientID, venueID)]
	if !ok {
		return store.ErrProfileNotFound
	}
	profile.Bonus += bonusDelta
	profile.PaidSum += paidDelta
	return nil
}

func (m *memRepo) SeedVenueProfile(ctx context.Context, clientID, venueID uuid.UUID, bonus, paidSum int64) (*domain.ClientVenueProfile, error) {
	key := profileKey(clientID, venueID)
	if _, ok := m.profiles[key]; ok {
		return nil, store.ErrProfileExists
	}
	profile := &domain.ClientVenueProfile{ID: uuid.New(), ClientID: clientID, VenueID: venueID, Bonus: bonus, PaidSum: paidSum}
	m.profiles[key] = profile
	cp := *profile
	return &cp, nil
}

func (m *memRepo) AppendBonusHistory(ctx context.Context, entry *domain.BonusHistory) error {
	e := *entry
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.history = append(m.history, e)
	return nil
}

func (m *memRepo) SumBonusHistory(ctx context.Context, clientID, venueID uuid.UUID) (int64, error) {
	var sum int64
	for _, e := range m.history {
		if e.ClientID == clientID && e.VenueID == venueID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (m *memRepo) FindReceiptByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Receipt, error) {
	receipt, ok := m.receipts[orderID]
	if !ok {
		return nil, store.ErrReceiptNotFound
	}
	cp := *receipt
	return &cp, nil
}

func (m *memRepo) CreateReceipt(ctx context.Context, receipt *domain.Receipt) error {
	cp := *receipt
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	m.receipts[cp.OrderID] = &cp
	return nil
}

// posGatewayStub scripts POS behavior for a test.
type posGatewayStub struct {
	submitErr  error
	acceptance *POSAcceptance
	clientInfo *POSClientInfo

	submitCalled bool
	upsertCalled bool
}

func (p *posGatewayStub) SubmitOrder(ctx context.Context, venue *domain.Venue, order *domain.Order) (*POSAcceptance, error) {
	p.submitCalled = true
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	return p.acceptance, nil
}

func (p *posGatewayStub) UpsertClient(ctx context.Context, venue *domain.Venue, posClientID string) (*POSClientInfo, error) {
	p.upsertCalled = true
	return p.clientInfo, nil
}

func seedSettlement(repo *memRepo, venue *domain.Venue, order *domain.Order, tx *domain.Transaction) {
	repo.venues[venue.ID] = venue
	repo.orders[order.ID] = order
	repo.txs[tx.ID] = tx
}

func newTestVenue(percent int64) *domain.Venue {
	return &domain.Venue{
		ID:                  uuid.New(),
		Name:                "Test Venue",
		BonusSystemEnabled:  percent > 0,
		BonusAccrualPercent: percent,
	}
}

func newTestOrder(venueID uuid.UUID, total int64) *domain.Order {
	return &domain.Order{
		ID:         uuid.New(),
		VenueID:    venueID,
		Phone:      "+10000000001",
		Status:     domain.OrderStatusWaitingForPayment,
		Channel:    domain.OrderChannelQR,
		TotalPrice: total,
	}
}

func newTestTransaction(orderID uuid.UUID, status string) *domain.Transaction {
	oid := orderID
	return &domain.Transaction{
		ID:          uuid.New(),
		OrderID:     &oid,
		OperationID: "op-" + uuid.NewString(),
		Status:      status,
		TotalPrice:  1000,
	}
}

func TestProcessPaymentWebhook_SettlesOrderAndAccruesBonus(t *testing.T) {
	repo := newMemRepo()
	venue := newTestVenue(5)
	order := newTestOrder(venue.ID, 1000)
	tx := newTestTransaction(order.ID, "created")
	seedSettlement(repo, venue, order, tx)

	service := NewService(repo, nil, nil)

	result, err := service.ProcessPaymentWebhook(context.Background(), tx.OperationID, "success", []byte(`{"operation_state":"success"}`))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Duplicate {
		t.Fatal("expected a first-time delivery, got duplicate")
	}

	if got := repo.txs[tx.ID].Status; got != "success" {
		t.Fatalf("expected transaction status success, got %q", got)
	}
	if got := repo.orders[order.ID].Status; got != domain.OrderStatusNew {
		t.Fatalf("expected order status %q, got %q", domain.OrderStatusNew, got)
	}

	client, ok := repo.clients[order.Phone]
	if !ok {
		t.Fatal("expected a client created from the order phone")
	}
	if repo.orders[order.ID].ClientID == nil || *repo.orders[order.ID].ClientID != client.ID {
		t.Fatal("expected the order linked to the created client")
	}

	profile := repo.profiles[profileKey(client.ID, venue.ID)]
	if profile == nil {
		t.Fatal("expected a venue profile for the client")
	}
	if profile.Bonus != 50 {
		t.Fatalf("expected 5%% accrual of 1000 to credit 50, got %d", profile.Bonus)
	}
	if profile.PaidSum != 1000 {
		t.Fatalf("expected paid sum 1000, got %d", profile.PaidSum)
	}

	if len(repo.history) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(repo.history))
	}
	if repo.history[0].Operation != domain.BonusOpAccrual || repo.history[0].Amount != 50 {
		t.Fatalf("expected a +50 accrual entry, got %s %d", repo.history[0].Operation, repo.history[0].Amount)
	}
}

func TestProcessPaymentWebhook_DuplicateDeliveryHasNoSideEffects(t *testing.T) {
	repo := newMemRepo()
	venue := newTestVenue(5)
	order := newTestOrder(venue.ID, 1000)
	tx := newTestTransaction(order.ID, "success")
	seedSettlement(repo, venue, order, tx)

	service := NewService(repo, nil, nil)

	result, err := service.ProcessPaymentWebhook(context.Background(), tx.OperationID, "success", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !result.Duplicate {
		t.Fatal("expected the redelivery to be reported as duplicate")
	}

	if got := repo.orders[order.ID].Status; got != domain.OrderStatusWaitingForPayment {
		t.Fatalf("expected order untouched, got status %q", got)
	}
	if len(repo.clients) != 0 {
		t.Fatal("expected no client created for a duplicate delivery")
	}
	if len(repo.history) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(repo.history))
	}
}

func TestProcessPaymentWebhook_UnknownOperationID(t *testing.T) {
	repo := newMemRepo()
	service := NewService(repo, nil, nil)

	_, err := service.ProcessPaymentWebhook(context.Background(), "op-missing", "success", nil)
	if !errors.Is(err, store.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestProcessPaymentWebhook_POSFailureRollsBackEverything(t *testing.T) {
	repo := newMemRepo()
	venue := newTestVenue(5)
	venue.PosterToken = "pos-token"
	order := newTestOrder(venue.ID, 1000)
	tx := newTestTransaction(order.ID, "created")
	seedSettlement(repo, venue, order, tx)

	pos := &posGatewayStub{submitErr: fmt.Errorf("poster unavailable")}
	service := NewService(repo, pos, nil)

	_, err := service.ProcessPaymentWebhook(context.Background(), tx.OperationID, "success", nil)
	if err == nil {
		t.Fatal("expected an error when the POS rejects the order")
	}
	if !pos.submitCalled {
		t.Fatal("expected the POS to be called")
	}

	if got := repo.txs[tx.ID].Status; got != "created" {
		t.Fatalf("expected transaction status rolled back to created, got %q", got)
	}
	if got := repo.orders[order.ID].Status; got != domain.OrderStatusWaitingForPayment {
		t.Fatalf("expected order status rolled back, got %q", got)
	}
	if len(repo.clients) != 0 || len(repo.profiles) != 0 || len(repo.history) != 0 {
		t.Fatal("expected no residual client, profile or ledger state after rollback")
	}
}

func TestProcessPaymentWebhook_POSAcceptanceLinksExternalOrder(t *testing.T) {
	repo := newMemRepo()
	venue := newTestVenue(0)
	venue.PosterToken = "pos-token"
	order := newTestOrder(venue.ID, 1500)
	tx := newTestTransaction(order.ID, "created")
	seedSettlement(repo, venue, order, tx)

	pos := &posGatewayStub{
		acceptance: &POSAcceptance{ClientID: "pos-client-7", IncomingOrderID: "inc-42"},
		clientInfo: &POSClientInfo{Phone: "+19998887766", FirstName: "Ada"},
	}
	service := NewService(repo, pos, nil)

	if _, err := service.ProcessPaymentWebhook(context.Background(), tx.OperationID, "success", nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !pos.upsertCalled {
		t.Fatal("expected the POS client lookup to run")
	}

	stored := repo.orders[order.ID]
	if stored.ExternalID == nil || *stored.ExternalID != "inc-42" {
		t.Fatal("expected the POS incoming order id stored on the order")
	}
	if _, ok := repo.clients["+19998887766"]; !ok {
		t.Fatal("expected the client keyed by the POS phone")
	}
}

func TestProcessPaymentWebhook_TransactionWithoutOrder(t *testing.T) {
	repo := newMemRepo()
	tx := &domain.Transaction{
		ID:          uuid.New(),
		OperationID: "op-orderless",
		Status:      "created",
	}
	repo.txs[tx.ID] = tx

	service := NewService(repo, nil, nil)

	result, err := service.ProcessPaymentWebhook(context.Background(), tx.OperationID, "success", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Duplicate {
		t.Fatal("expected a processed result")
	}
	if got := repo.txs[tx.ID].Status; got != "success" {
		t.Fatalf("expected transaction status success, got %q", got)
	}
	if len(repo.history) != 0 {
		t.Fatal("expected no ledger activity for an orderless transaction")
	}
}

func TestProcessPaymentWebhook_WriteOffAndAccrualShareOneUnitOfWork(t *testing.T) {
	repo := newMemRepo()
	venue := newTestVenue(5)
	order := newTestOrder(venue.ID, 1000)
	order.Bonus = 50
	tx := newTestTransaction(order.ID, "created")
	seedSettlement(repo, venue, order, tx)

	client := &domain.Client{ID: uuid.New(), Phone: order.Phone}
	repo.clients[order.Phone] = client
	repo.profiles[profileKey(client.ID, venue.ID)] = &domain.ClientVenueProfile{
		ID: uuid.New(), ClientID: client.ID, VenueID: venue.ID, Bonus: 200,
	}

	service := NewService(repo, nil, nil)

	if _, err := service.ProcessPaymentWebhook(context.Background(), tx.OperationID, "success", nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	profile := repo.profiles[profileKey(client.ID, venue.ID)]
	if profile.Bonus != 200 {
		t.Fatalf("expected balance 200-50+50=200, got %d", profile.Bonus)
	}
	if len(repo.history) != 2 {
		t.Fatalf("expected a write-off and an accrual entry, got %d", len(repo.history))
	}
	if repo.history[0].Operation != domain.BonusOpWriteOff || repo.history[0].Amount != -50 {
		t.Fatalf("expected a -50 write-off first, got %s %d", repo.history[0].Operation, repo.history[0].Amount)
	}
	if repo.history[1].Operation != domain.BonusOpAccrual || repo.history[1].Amount != 50 {
		t.Fatalf("expected a +50 accrual second, got %s %d", repo.history[1].Operation, repo.history[1].Amount)
	}
}

func TestReconcileBonusLedger_DetectsDrift(t *testing.T) {
	repo := newMemRepo()
	clientID := uuid.New()
	venueID := uuid.New()
	repo.profiles[profileKey(clientID, venueID)] = &domain.ClientVenueProfile{
		ID: uuid.New(), ClientID: clientID, VenueID: venueID, Bonus: 100,
	}
	repo.history = append(repo.history, domain.BonusHistory{
		ClientID: clientID, VenueID: venueID, Amount: 100, Operation: domain.BonusOpAccrual,
	})

	service := NewService(repo, nil, nil)

	consistent, err := service.ReconcileBonusLedger(context.Background(), clientID, venueID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !consistent {
		t.Fatal("expected the balanced ledger to reconcile")
	}

	repo.profiles[profileKey(clientID, venueID)].Bonus = 175

	consistent, err = service.ReconcileBonusLedger(context.Background(), clientID, venueID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if consistent {
		t.Fatal("expected the drifted balance to be flagged")
	}
}
