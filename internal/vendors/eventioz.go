package vendors

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-checkin/internal/models"
)

type eventiozRecord struct {
	Registration *eventiozRegistration `json:"registration"`
}

type eventiozRegistration struct {
	AccreditationCode flexString `json:"accreditation_code"`
	Email             string     `json:"email"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	PurchasedAt       flexString `json:"purchased_at"`
	Amount            flexNumber `json:"amount"`
}

// Eventioz exports one registration per ticket, identified by its
// accreditation code.
type Eventioz struct {
	url     string
	fetcher *Fetcher
}

func NewEventioz(url string, fetcher *Fetcher) *Eventioz {
	return &Eventioz{url: url, fetcher: fetcher}
}

func (e *Eventioz) Source() models.Source {
	return models.SourceEventioz
}

func (e *Eventioz) Fetch(ctx context.Context) ([]Ticket, error) {
	if e.url == "" {
		return nil, nil
	}
	body, err := e.fetcher.Get(ctx, e.url)
	if err != nil {
		return nil, err
	}
	return ParseEventioz(body)
}

// ParseEventioz keeps only purchased registrations; pending ones have an
// empty purchased_at.
func ParseEventioz(body []byte) ([]Ticket, error) {
	if isBlank(body) {
		return nil, nil
	}

	var records []eventiozRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to decode eventioz payload: %w", err)
	}

	var tickets []Ticket
	for _, record := range records {
		r := record.Registration
		if r == nil || r.PurchasedAt == "" || r.AccreditationCode == "" {
			continue
		}
		tickets = append(tickets, Ticket{
			Code:      string(r.AccreditationCode),
			Source:    models.SourceEventioz,
			Email:     r.Email,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Price:     float64(r.Amount),
		})
	}
	return tickets, nil
}
