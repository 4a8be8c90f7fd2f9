// Package importer pulls tickets from every vendor and records each new
// (source, code) pair exactly once.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-checkin/internal/clock"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/vendors"
)

type Store interface {
	InsertIfAbsent(ctx context.Context, attendee *models.Attendee) (bool, error)
}

type Classifier interface {
	Classify(source models.Source, vendorTicketID string, price float64) string
}

// StatusStore keeps the summary of the most recent import.
type StatusStore interface {
	SaveLast(ctx context.Context, result ImportResult) error
}

// VendorResult is the per-vendor outcome of a run. Error is empty when the
// fetch succeeded.
type VendorResult struct {
	Source  models.Source `json:"source"`
	Fetched int           `json:"fetched"`
	Error   string        `json:"error,omitempty"`
}

type ImportResult struct {
	RunID      uuid.UUID      `json:"run_id"`
	Imported   int            `json:"imported"`
	Ignored    int            `json:"ignored"`
	Vendors    []VendorResult `json:"vendors"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

type Reconciler struct {
	Adapters   []vendors.Adapter
	Classifier Classifier
	Store      Store
	Status     StatusStore
	Events     kafka.Publisher
	Clock      clock.Clock
	log        *logger.Logger
}

func NewReconciler(adapters []vendors.Adapter, classifier Classifier, store Store, status StatusStore,
	events kafka.Publisher, c clock.Clock, log *logger.Logger) *Reconciler {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	if c == nil {
		c = clock.NewSystem()
	}
	return &Reconciler{
		Adapters:   adapters,
		Classifier: classifier,
		Store:      store,
		Status:     status,
		Events:     events,
		Clock:      c,
		log:        log,
	}
}

// Import fetches every vendor, classifies the tickets and inserts the ones
// not seen before. A vendor fault only drops that vendor's tickets; a
// storage fault aborts the run.
func (r *Reconciler) Import(ctx context.Context) (ImportResult, error) {
	result := ImportResult{
		RunID:     uuid.New(),
		StartedAt: r.Clock.Now(),
		Vendors:   make([]VendorResult, 0, len(r.Adapters)),
	}

	var tickets []vendors.Ticket
	for _, adapter := range r.Adapters {
		vr := VendorResult{Source: adapter.Source()}
		fetched, err := adapter.Fetch(ctx)
		if err != nil {
			vr.Error = err.Error()
			r.log.Error("IMPORT", fmt.Sprintf("Fetching %s failed, skipping vendor: %v", adapter.Source(), err))
		} else {
			vr.Fetched = len(fetched)
			tickets = append(tickets, fetched...)
			r.log.LogImport(string(adapter.Source()), fmt.Sprintf("Fetched %d tickets", len(fetched)))
		}
		result.Vendors = append(result.Vendors, vr)
	}

	for _, ticket := range tickets {
		now := r.Clock.Now()
		attendee := &models.Attendee{
			Code:       ticket.Code,
			Source:     ticket.Source,
			Email:      ticket.Email,
			FirstName:  ticket.FirstName,
			LastName:   ticket.LastName,
			Role:       models.RoleAttendee,
			TicketType: r.Classifier.Classify(ticket.Source, ticket.VendorTicketID, ticket.Price),
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		inserted, err := r.Store.InsertIfAbsent(ctx, attendee)
		if err != nil {
			return result, fmt.Errorf("import run %s: %w", result.RunID, err)
		}
		if inserted {
			result.Imported++
		} else {
			result.Ignored++
		}
	}
	result.FinishedAt = r.Clock.Now()

	r.log.LogImport("ALL", fmt.Sprintf("Run %s: imported=%d ignored=%d", result.RunID, result.Imported, result.Ignored))
	r.afterImport(ctx, result)
	return result, nil
}

func (r *Reconciler) afterImport(ctx context.Context, result ImportResult) {
	if r.Status != nil {
		if err := r.Status.SaveLast(ctx, result); err != nil {
			r.log.Warn("IMPORT", fmt.Sprintf("Failed to cache import status: %v", err))
		}
	}
	if err := r.Events.Publish(ctx, kafka.NewEvent(kafka.EventImportCompleted, result)); err != nil {
		r.log.Warn("IMPORT", fmt.Sprintf("Failed to publish import event: %v", err))
	}
}
