// Package vendors fetches attendee exports from the ticketing vendors and
// normalizes them into Ticket values.
package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"ms-checkin/internal/config"
	"ms-checkin/internal/models"
)

// Ticket is one admitted ticket as reported by a vendor, before
// classification.
type Ticket struct {
	Code           string
	Source         models.Source
	Email          string
	FirstName      string
	LastName       string
	VendorTicketID string
	Price          float64
}

// Adapter is implemented once per ticketing vendor.
type Adapter interface {
	Source() models.Source
	Fetch(ctx context.Context) ([]Ticket, error)
}

// FromConfig builds one adapter per configured vendor.
func FromConfig(cfg config.VendorsConfig, client *http.Client) []Adapter {
	fetcher := NewFetcher(client, cfg.FetchTimeout, cfg.RetryDelay)
	return []Adapter{
		NewEventbrite(cfg.Eventbrite.URL, fetcher),
		NewEventioz(cfg.Eventioz.URL, fetcher),
	}
}

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// flexNumber accepts a JSON number or a numeric string. Anything else
// decodes as zero.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexNumber(v)
	return nil
}

func isBlank(body []byte) bool {
	return len(bytes.TrimSpace(body)) == 0
}
