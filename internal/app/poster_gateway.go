/**
 * @description
 * PosterGateway adapts the Poster POS HTTP client to the POSGateway interface
 * consumed by the webhook processor. It translates domain orders into Poster's
 * incoming-order payload and resolves Poster client records, authenticating
 * every call with the venue's own token.
 *
 * @dependencies
 * - pkg/posterclient: The Poster POS API client.
 */

package app

import (
	"context"
	"fmt"

	"github.com/venuehub/payment-service/internal/domain"
	"github.com/venuehub/payment-service/pkg/posterclient"
)

// posterServiceModeInVenue marks the order as consumed at the venue.
const posterServiceModeInVenue = 1

// posterPaymentTypePaid marks the order as already paid online.
const posterPaymentTypePaid = 1

// PosterGateway implements POSGateway over the Poster POS API.
type PosterGateway struct {
	client *posterclient.Client
}

// NewPosterGateway wraps a Poster API client.
func NewPosterGateway(client *posterclient.Client) *PosterGateway {
	return &PosterGateway{client: client}
}

// SubmitOrder forwards a paid order to the venue's Poster account.
func (g *PosterGateway) SubmitOrder(ctx context.Context, venue *domain.Venue, order *domain.Order) (*POSAcceptance, error) {
	if !venue.HasPOS() {
		return nil, fmt.Errorf("venue %s has no poster token", venue.ID)
	}

	req := posterclient.IncomingOrderRequest{
		Phone:       order.Phone,
		ServiceMode: posterServiceModeInVenue,
		Comment:     order.Comment,
		Payment: posterclient.IncomingOrderPayment{
			Type: posterPaymentTypePaid,
			Sum:  order.TotalPrice,
		},
	}
	if order.SpotID != nil {
		req.SpotID = order.SpotID.String()
	}

	accepted, err := g.client.SubmitOrder(ctx, venue.PosterToken, req)
	if err != nil {
		return nil, err
	}
	return &POSAcceptance{
		ClientID:        accepted.ClientID,
		IncomingOrderID: accepted.IncomingOrderID,
	}, nil
}

// UpsertClient fetches the Poster client record matched to the order.
func (g *PosterGateway) UpsertClient(ctx context.Context, venue *domain.Venue, posClientID string) (*POSClientInfo, error) {
	if posClientID == "" {
		return &POSClientInfo{}, nil
	}
	record, err := g.client.GetClient(ctx, venue.PosterToken, posClientID)
	if err != nil {
		return nil, err
	}
	return &POSClientInfo{
		Phone:     record.Phone,
		FirstName: record.FirstName,
		LastName:  record.LastName,
	}, nil
}
