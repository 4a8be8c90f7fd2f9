package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/clock"
	"ms-checkin/internal/models"
)

// Columns that may be projected by ListByRole.
var selectableColumns = map[string]bool{
	"id": true, "code": true, "source": true, "email": true, "first_name": true,
	"last_name": true, "role": true, "ticket_type": true, "checkin_day1": true,
	"checkin_day2": true, "raffled": true, "created_at": true, "updated_at": true,
}

var searchColumns = []string{"code", "email", "first_name", "last_name"}

type DB struct {
	Bun   *bun.DB
	Clock clock.Clock
}

func New(bunDB *bun.DB, c clock.Clock) *DB {
	if c == nil {
		c = clock.NewSystem()
	}
	return &DB{Bun: bunDB, Clock: c}
}

func (d *DB) now() time.Time {
	if d.Clock == nil {
		return clock.NewSystem().Now()
	}
	return d.Clock.Now()
}

// ---------------- LOOKUPS ----------------

// GetAttendeeByID returns nil, nil when no attendee has the id.
func (d *DB) GetAttendeeByID(ctx context.Context, id int64) (*models.Attendee, error) {
	var attendee models.Attendee
	err := d.Bun.NewSelect().
		Model(&attendee).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendee %d: %w", id, err)
	}
	return &attendee, nil
}

// FindByCodeAndSource matches on code alone when source is empty; the
// lowest id wins if several vendors share the code.
func (d *DB) FindByCodeAndSource(ctx context.Context, code string, source models.Source) (*models.Attendee, error) {
	var attendee models.Attendee
	q := d.Bun.NewSelect().
		Model(&attendee).
		Where("code = ?", code)
	if source != "" {
		q = q.Where("source = ?", source)
	}

	err := q.Order("id").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find attendee by code %q: %w", code, err)
	}
	return &attendee, nil
}

// SearchFuzzy returns attendees where any whitespace-separated word of the
// query is a case-insensitive substring of code, email, first or last name.
// SQLite folds ASCII letters only, so there a non-ASCII word matches when
// typed in the stored case; postgres folds the full Unicode range.
// An empty query returns an empty, non-nil slice; a query without matches
// returns nil.
func (d *DB) SearchFuzzy(ctx context.Context, query string) ([]models.Attendee, error) {
	words := strings.Fields(query)
	if len(words) == 0 {
		return []models.Attendee{}, nil
	}

	var attendees []models.Attendee
	err := d.Bun.NewSelect().
		Model(&attendees).
		Where("role != ?", models.RoleDeleted).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, word := range words {
				folded := "%" + escapeLike(strings.ToLower(word)) + "%"
				typed := "%" + escapeLike(word) + "%"
				for _, column := range searchColumns {
					q = q.WhereOr("LOWER(?) LIKE ? ESCAPE '!'", bun.Ident(column), folded)
					q = q.WhereOr("? LIKE ? ESCAPE '!'", bun.Ident(column), typed)
				}
			}
			return q
		}).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("search attendees: %w", err)
	}
	if len(attendees) == 0 {
		return nil, nil
	}
	return attendees, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// ListAll returns every attendee whose role differs from excludingRole
// (deleted when empty), ordered by id, first name, last name.
func (d *DB) ListAll(ctx context.Context, excludingRole models.Role) ([]models.Attendee, error) {
	if excludingRole == "" {
		excludingRole = models.RoleDeleted
	}

	attendees := []models.Attendee{}
	err := d.Bun.NewSelect().
		Model(&attendees).
		Where("role != ?", excludingRole).
		Order("id", "first_name", "last_name").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return attendees, nil
}

// ListByRole projects the given fields (all when empty) of attendees whose
// role is in roles. A limit of 0 means no limit.
func (d *DB) ListByRole(ctx context.Context, roles []models.Role, fields []string, limit int) ([]models.Attendee, error) {
	for _, field := range fields {
		if !selectableColumns[field] {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownField, field)
		}
	}

	attendees := []models.Attendee{}
	if len(roles) == 0 {
		return attendees, nil
	}

	q := d.Bun.NewSelect().
		Model(&attendees).
		Where("role IN (?)", bun.In(roleStrings(roles))).
		Order("id")
	if len(fields) > 0 {
		q = q.Column(fields...)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list attendees by role: %w", err)
	}
	return attendees, nil
}

// ---------------- WRITES ----------------

// InsertIfAbsent inserts the attendee unless (source, code) already exists.
// It reports whether a row was written.
func (d *DB) InsertIfAbsent(ctx context.Context, attendee *models.Attendee) (bool, error) {
	res, err := d.Bun.NewInsert().
		Model(attendee).
		On("CONFLICT (source, code) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert attendee %s/%s: %w", attendee.Source, attendee.Code, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert attendee %s/%s: %w", attendee.Source, attendee.Code, err)
	}
	return n == 1, nil
}

// UpdateFields applies a partial staff edit. It reports false when the
// attendee does not exist.
func (d *DB) UpdateFields(ctx context.Context, id int64, update models.AttendeeUpdate) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Attendee)(nil)).
		Set("updated_at = ?", d.now()).
		Where("id = ?", id)

	if update.Email != nil {
		q = q.Set("email = ?", *update.Email)
	}
	if update.FirstName != nil {
		q = q.Set("first_name = ?", *update.FirstName)
	}
	if update.LastName != nil {
		q = q.Set("last_name = ?", *update.LastName)
	}
	if update.Role != nil {
		q = q.Set("role = ?", *update.Role)
	}
	if update.TicketType != nil {
		q = q.Set("ticket_type = ?", *update.TicketType)
	}
	if update.Source != nil {
		q = q.Set("source = ?", *update.Source)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update attendee %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update attendee %d: %w", id, err)
	}
	return n > 0, nil
}

// ToggleCheckin stamps the day's check-in when empty and clears it
// otherwise, in a single statement. It returns the updated attendee, or nil
// when the id is unknown.
func (d *DB) ToggleCheckin(ctx context.Context, id int64, day int) (*models.Attendee, error) {
	column, err := checkinColumn(day)
	if err != nil {
		return nil, err
	}

	now := d.now()
	res, err := d.Bun.NewUpdate().
		Model((*models.Attendee)(nil)).
		Set("? = CASE WHEN ? IS NULL THEN ? ELSE NULL END", bun.Ident(column), bun.Ident(column), now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("toggle %s for attendee %d: %w", column, id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("toggle %s for attendee %d: %w", column, id, err)
	} else if n == 0 {
		return nil, nil
	}

	return d.GetAttendeeByID(ctx, id)
}

func checkinColumn(day int) (string, error) {
	switch day {
	case 1:
		return "checkin_day1", nil
	case 2:
		return "checkin_day2", nil
	}
	return "", fmt.Errorf("%w: %d", models.ErrInvalidDay, day)
}

// ---------------- RAFFLE ----------------

// RaffleCandidateIDs lists ids of attendees in roles that were not drawn yet.
func (d *DB) RaffleCandidateIDs(ctx context.Context, roles []models.Role) ([]int64, error) {
	ids := []int64{}
	if len(roles) == 0 {
		return ids, nil
	}

	err := d.Bun.NewSelect().
		Model((*models.Attendee)(nil)).
		Column("id").
		Where("role IN (?)", bun.In(roleStrings(roles))).
		Where("raffled = ?", false).
		Order("id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list raffle candidates: %w", err)
	}
	return ids, nil
}

// MarkRaffled flips raffled to true only if it is still false. It reports
// whether this call won the attendee.
func (d *DB) MarkRaffled(ctx context.Context, id int64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Attendee)(nil)).
		Set("raffled = ?", true).
		Set("updated_at = ?", d.now()).
		Where("id = ?", id).
		Where("raffled = ?", false).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark attendee %d raffled: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark attendee %d raffled: %w", id, err)
	}
	return n == 1, nil
}

// ---------------- STATS ----------------

func (d *DB) CountByRole(ctx context.Context) ([]models.RoleCount, error) {
	counts := []models.RoleCount{}
	err := d.Bun.NewSelect().
		Model((*models.Attendee)(nil)).
		Column("role").
		ColumnExpr("COUNT(*) AS count").
		Group("role").
		Order("role").
		Scan(ctx, &counts)
	if err != nil {
		return nil, fmt.Errorf("count attendees by role: %w", err)
	}
	return counts, nil
}

func (d *DB) CountCheckedIn(ctx context.Context, day int) (int, error) {
	column, err := checkinColumn(day)
	if err != nil {
		return 0, err
	}
	count, err := d.Bun.NewSelect().
		Model((*models.Attendee)(nil)).
		Where("? IS NOT NULL", bun.Ident(column)).
		Where("role != ?", models.RoleDeleted).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", column, err)
	}
	return count, nil
}

func roleStrings(roles []models.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
