package vendors

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-checkin/internal/models"
)

type eventbritePayload struct {
	Attendees []struct {
		Attendee *eventbriteAttendee `json:"attendee"`
	} `json:"attendees"`
}

type eventbriteAttendee struct {
	ID         flexString `json:"id"`
	OrderID    flexString `json:"order_id"`
	TicketID   flexString `json:"ticket_id"`
	Quantity   flexNumber `json:"quantity"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	AmountPaid flexNumber `json:"amount_paid"`
}

// Eventbrite exports orders; every order line expands into one ticket per
// unit bought.
type Eventbrite struct {
	url     string
	fetcher *Fetcher
}

func NewEventbrite(url string, fetcher *Fetcher) *Eventbrite {
	return &Eventbrite{url: url, fetcher: fetcher}
}

func (e *Eventbrite) Source() models.Source {
	return models.SourceEventbrite
}

func (e *Eventbrite) Fetch(ctx context.Context) ([]Ticket, error) {
	if e.url == "" {
		return nil, nil
	}
	body, err := e.fetcher.Get(ctx, e.url)
	if err != nil {
		return nil, err
	}
	return ParseEventbrite(body)
}

// maxLineQuantity bounds the tickets one order line may expand into. Larger
// quantities are treated as malformed.
const maxLineQuantity = 1000

// ParseEventbrite expands an Eventbrite attendee export. Lines without a
// ticket id or order id are skipped, as are lines whose quantity is not
// between 1 and maxLineQuantity.
func ParseEventbrite(body []byte) ([]Ticket, error) {
	if isBlank(body) {
		return nil, nil
	}

	var payload eventbritePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode eventbrite payload: %w", err)
	}

	var tickets []Ticket
	for _, entry := range payload.Attendees {
		a := entry.Attendee
		if a == nil || a.TicketID == "" || a.OrderID == "" {
			continue
		}
		if !(a.Quantity >= 1 && a.Quantity <= maxLineQuantity) {
			continue
		}
		quantity := int(a.Quantity)

		price := float64(a.AmountPaid) / float64(quantity)
		for seq := 1; seq <= quantity; seq++ {
			tickets = append(tickets, Ticket{
				Code:           fmt.Sprintf("%s%s%03d", a.OrderID, a.ID, seq),
				Source:         models.SourceEventbrite,
				Email:          a.Email,
				FirstName:      a.FirstName,
				LastName:       a.LastName,
				VendorTicketID: string(a.TicketID),
				Price:          price,
			})
		}
	}
	return tickets, nil
}
