package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/models"
)

// NewTestDB opens an in-memory SQLite database with the attendee schema.
func NewTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// every pooled connection would otherwise get its own empty database
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := migrations.CreateSchema(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		bunDB.Close()
	})
	return bunDB
}

// SeedAttendee inserts an attendee with sensible defaults for empty fields.
func SeedAttendee(t *testing.T, bunDB *bun.DB, a models.Attendee) models.Attendee {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	if a.Source == "" {
		a.Source = models.SourceEventioz
	}
	if a.Role == "" {
		a.Role = models.RoleAttendee
	}
	if a.TicketType == "" {
		a.TicketType = models.DefaultTicketType
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}

	if _, err := bunDB.NewInsert().Model(&a).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to seed attendee %s: %v", a.Code, err)
	}
	return a
}

// SeedAttendees inserts n attendees with the given role, codes prefix001..
func SeedAttendees(t *testing.T, bunDB *bun.DB, prefix string, role models.Role, n int) []models.Attendee {
	t.Helper()

	out := make([]models.Attendee, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, SeedAttendee(t, bunDB, models.Attendee{
			Code:      fmt.Sprintf("%s%03d", prefix, i),
			Email:     fmt.Sprintf("%s%d@example.com", prefix, i),
			FirstName: fmt.Sprintf("First%d", i),
			LastName:  fmt.Sprintf("Last%d", i),
			Role:      role,
		}))
	}
	return out
}
