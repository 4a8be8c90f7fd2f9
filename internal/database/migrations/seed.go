package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

// demoAttendees gives a local database something to search, check in and
// raffle.
var demoAttendees = []models.Attendee{
	{Code: "order1001001", Source: models.SourceEventbrite, Email: "alice@example.com", FirstName: "Alice", LastName: "Wonderland", Role: models.RoleAttendee, TicketType: models.DefaultTicketType},
	{Code: "order1001002", Source: models.SourceEventbrite, Email: "alice@example.com", FirstName: "Alice", LastName: "Wonderland", Role: models.RoleAttendee, TicketType: "workshop"},
	{Code: "EZ-0001", Source: models.SourceEventioz, Email: "bob@example.com", FirstName: "Bob", LastName: "Builder", Role: models.RoleSpeaker, TicketType: models.DefaultTicketType},
	{Code: "EZ-0002", Source: models.SourceEventioz, Email: "carol@example.com", FirstName: "Carol", LastName: "Danvers", Role: models.RoleOrganizer, TicketType: models.DefaultTicketType},
	{Code: "EZ-0003", Source: models.SourceEventioz, Email: "dan@example.com", FirstName: "Dan", LastName: "Brown", Role: models.RoleAttendee, TicketType: "student"},
}

// Seed inserts the demo attendees, skipping any (source, code) already
// present. It returns the number of rows written.
func Seed(ctx context.Context, db *bun.DB, now time.Time) (int, error) {
	inserted := 0
	for _, a := range demoAttendees {
		a.CreatedAt, a.UpdatedAt = now, now
		res, err := db.NewInsert().
			Model(&a).
			On("CONFLICT (source, code) DO NOTHING").
			Returning("NULL").
			Exec(ctx)
		if err != nil {
			return inserted, fmt.Errorf("seed attendee %s: %w", a.Code, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			inserted++
		}
	}
	return inserted, nil
}

// DropSchema removes the attendees table; the sqlite counterpart of
// MigrateDown.
func DropSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*models.Attendee)(nil)).IfExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("drop attendees table: %w", err)
	}
	return nil
}
