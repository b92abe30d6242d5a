/**
 * @description
 * Post-commit notification fan-out for settled orders: venue-owner Telegram
 * push, MQTT receipt printing, automation webhook forwarding and the
 * order.settled broker event. Every step is independently failable; failures
 * are logged and swallowed because the committed Transaction/Order/Ledger
 * state is authoritative regardless of notification delivery.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/venuehub/payment-service/internal/domain"
	"github.com/venuehub/payment-service/internal/store"
	"github.com/venuehub/payment-service/pkg/rabbitmq"
)

// OwnerNotifier pushes a formatted order text to a venue owner's chat.
type OwnerNotifier interface {
	SendOrderNotification(chatID int64, text string) error
}

// ReceiptPublisher delivers a receipt payload to the venue's printer topic.
type ReceiptPublisher interface {
	Publish(venueID string, payload []byte) error
}

// AutomationForwarder posts enriched payloads to the downstream automation webhook.
type AutomationForwarder interface {
	Forward(ctx context.Context, payload interface{}) error
}

// Notifier fans a settled order out to all registered channels. Any of the
// collaborators may be nil, in which case that channel is skipped.
type Notifier struct {
	repo       store.Repository
	owner      OwnerNotifier
	printer    ReceiptPublisher
	automation AutomationForwarder
	events     rabbitmq.Publisher
}

// NewNotifier creates the fan-out coordinator.
func NewNotifier(repo store.Repository, owner OwnerNotifier, printer ReceiptPublisher, automation AutomationForwarder, events rabbitmq.Publisher) *Notifier {
	if events == nil {
		events = &rabbitmq.EventProducerFallback{}
	}
	return &Notifier{
		repo:       repo,
		owner:      owner,
		printer:    printer,
		automation: automation,
		events:     events,
	}
}

// receiptPayload is the exact document published for printing and stored on
// the Receipt row.
type receiptPayload struct {
	OrderID      string    `json:"order_id"`
	VenueID      string    `json:"venue_id"`
	Phone        string    `json:"phone"`
	TotalPrice   int64     `json:"total_price"`
	ServicePrice int64     `json:"service_price"`
	Tips         int64     `json:"tips"`
	Discount     int64     `json:"discount"`
	BonusUsed    int64     `json:"bonus_used"`
	PrintedAt    time.Time `json:"printed_at"`
}

// automationPayload is the enriched document forwarded for bot-channel orders.
type automationPayload struct {
	OrderID      string `json:"order_id"`
	VenueID      string `json:"venue_id"`
	VenueName    string `json:"venue_name"`
	ClientPhone  string `json:"client_phone"`
	Status       string `json:"status"`
	TotalPrice   int64  `json:"total_price"`
	BonusUsed    int64  `json:"bonus_used"`
	BonusAccrued int64  `json:"bonus_accrued"`
}

// DispatchOrderSettled runs the full fan-out for one settled order.
func (n *Notifier) DispatchOrderSettled(ctx context.Context, order *domain.Order, venue *domain.Venue, client *domain.Client, writtenOff, accrued int64) {
	n.notifyOwner(order, venue, writtenOff, accrued)
	n.publishReceipt(ctx, order, venue, writtenOff)
	n.forwardAutomation(ctx, order, venue, writtenOff, accrued)

	clientID := client.ID
	event := domain.OrderSettledEvent{
		OrderID:         order.ID,
		VenueID:         venue.ID,
		ClientID:        &clientID,
		Phone:           order.Phone,
		Status:          order.Status,
		TotalPrice:      order.TotalPrice,
		BonusWrittenOff: writtenOff,
		BonusAccrued:    accrued,
		Channel:         order.Channel,
		SettledAt:       time.Now().UTC(),
	}
	if err := n.events.PublishOrderSettledEvent(ctx, event); err != nil {
		log.Printf("level=warn component=notifier msg=\"order settled event publish failed\" order_id=%s err=%v", order.ID, err)
	}
}

// notifyOwner pushes a Telegram message when the owner has a registered chat.
func (n *Notifier) notifyOwner(order *domain.Order, venue *domain.Venue, writtenOff, accrued int64) {
	if n.owner == nil || venue.OwnerTelegramChatID == nil {
		return
	}
	text := formatOwnerMessage(order, venue, writtenOff, accrued)
	if err := n.owner.SendOrderNotification(*venue.OwnerTelegramChatID, text); err != nil {
		log.Printf("level=warn component=notifier msg=\"owner notification failed\" order_id=%s chat_id=%d err=%v", order.ID, *venue.OwnerTelegramChatID, err)
	}
}

// publishReceipt prints the order once: an existing Receipt row means the
// payload was already delivered, and the row is only created after a
// successful publish.
func (n *Notifier) publishReceipt(ctx context.Context, order *domain.Order, venue *domain.Venue, writtenOff int64) {
	if n.printer == nil {
		return
	}

	if _, err := n.repo.FindReceiptByOrderID(ctx, order.ID); err == nil {
		return
	} else if !errors.Is(err, store.ErrReceiptNotFound) {
		log.Printf("level=warn component=notifier msg=\"receipt lookup failed\" order_id=%s err=%v", order.ID, err)
		return
	}

	payload, err := json.Marshal(receiptPayload{
		OrderID:      order.ID.String(),
		VenueID:      venue.ID.String(),
		Phone:        order.Phone,
		TotalPrice:   order.TotalPrice,
		ServicePrice: order.ServicePrice,
		Tips:         order.Tips,
		Discount:     order.Discount,
		BonusUsed:    writtenOff,
		PrintedAt:    time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=notifier msg=\"receipt payload marshal failed\" order_id=%s err=%v", order.ID, err)
		return
	}

	if err := n.printer.Publish(venue.ID.String(), payload); err != nil {
		log.Printf("level=warn component=notifier msg=\"receipt publish failed\" order_id=%s err=%v", order.ID, err)
		return
	}

	receipt := &domain.Receipt{OrderID: order.ID, Payload: payload}
	if err := n.repo.CreateReceipt(ctx, receipt); err != nil {
		log.Printf("level=warn component=notifier msg=\"receipt record failed after publish\" order_id=%s err=%v", order.ID, err)
	}
}

// forwardAutomation posts bot-channel orders to the downstream automation webhook.
func (n *Notifier) forwardAutomation(ctx context.Context, order *domain.Order, venue *domain.Venue, writtenOff, accrued int64) {
	if n.automation == nil || order.Channel != domain.OrderChannelBot {
		return
	}
	payload := automationPayload{
		OrderID:      order.ID.String(),
		VenueID:      venue.ID.String(),
		VenueName:    venue.Name,
		ClientPhone:  order.Phone,
		Status:       order.Status,
		TotalPrice:   order.TotalPrice,
		BonusUsed:    writtenOff,
		BonusAccrued: accrued,
	}
	if err := n.automation.Forward(ctx, payload); err != nil {
		log.Printf("level=warn component=notifier msg=\"automation forward failed\" order_id=%s err=%v", order.ID, err)
	}
}

func formatOwnerMessage(order *domain.Order, venue *domain.Venue, writtenOff, accrued int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>New paid order</b> at %s\n", venue.Name)
	fmt.Fprintf(&b, "Order: <code>%s</code>\n", order.ID)
	fmt.Fprintf(&b, "Phone: %s\n", order.Phone)
	fmt.Fprintf(&b, "Total: %d\n", order.TotalPrice)
	if order.Tips > 0 {
		fmt.Fprintf(&b, "Tips: %d\n", order.Tips)
	}
	if writtenOff > 0 {
		fmt.Fprintf(&b, "Bonus used: %d\n", writtenOff)
	}
	if accrued > 0 {
		fmt.Fprintf(&b, "Bonus accrued: %d\n", accrued)
	}
	if order.Comment != "" {
		fmt.Fprintf(&b, "Comment: %s\n", order.Comment)
	}
	return b.String()
}
