// Package classifier resolves the canonical ticket type of a vendor ticket
// from operator-supplied mapping tables.
package classifier

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type table struct {
	// ticket type -> vendor ticket ids
	ids map[string]map[string]struct{}
	// ticket type -> price points
	prices map[string][]float64
	// ticket types in lexical order
	order []string
}

type Classifier struct {
	tables map[models.Source]*table
}

// New builds the lookup tables. Prices that do not parse are skipped and
// logged; they can never match.
func New(cfg config.VendorsConfig, log *logger.Logger) *Classifier {
	return &Classifier{
		tables: map[models.Source]*table{
			models.SourceEventbrite: buildTable(models.SourceEventbrite, cfg.Eventbrite, log),
			models.SourceEventioz:   buildTable(models.SourceEventioz, cfg.Eventioz, log),
		},
	}
}

func buildTable(source models.Source, vc config.VendorConfig, log *logger.Logger) *table {
	t := &table{
		ids:    map[string]map[string]struct{}{},
		prices: map[string][]float64{},
	}
	seen := map[string]bool{}

	for ticketType, raw := range vc.TicketIDs {
		set := map[string]struct{}{}
		for _, id := range config.SplitList(raw) {
			set[id] = struct{}{}
		}
		t.ids[ticketType] = set
		seen[ticketType] = true
	}

	for ticketType, raw := range vc.Prices {
		for _, p := range config.SplitList(raw) {
			price, err := strconv.ParseFloat(p, 64)
			if err != nil {
				log.Warn("CLASSIFIER", fmt.Sprintf("%s: ignoring unparseable price %q for %s", source, p, ticketType))
				continue
			}
			t.prices[ticketType] = append(t.prices[ticketType], price)
		}
		seen[ticketType] = true
	}

	for ticketType := range seen {
		t.order = append(t.order, ticketType)
	}
	sort.Strings(t.order)
	return t
}

// Classify returns the ticket type for a vendor ticket. The vendor ticket id
// is consulted first, then the exact price. Unmatched tickets are
// "conference".
func (c *Classifier) Classify(source models.Source, vendorTicketID string, price float64) string {
	t, ok := c.tables[source]
	if !ok {
		return models.DefaultTicketType
	}

	if id := strings.TrimSpace(vendorTicketID); id != "" {
		for _, ticketType := range t.order {
			if _, hit := t.ids[ticketType][id]; hit {
				return ticketType
			}
		}
	}

	for _, ticketType := range t.order {
		for _, candidate := range t.prices[ticketType] {
			if candidate == price {
				return ticketType
			}
		}
	}

	return models.DefaultTicketType
}
