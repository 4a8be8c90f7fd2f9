package attendees

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type AttendeeDBLayer interface {
	GetAttendeeByID(ctx context.Context, id int64) (*models.Attendee, error)
	FindByCodeAndSource(ctx context.Context, code string, source models.Source) (*models.Attendee, error)
	SearchFuzzy(ctx context.Context, query string) ([]models.Attendee, error)
	ListAll(ctx context.Context, excludingRole models.Role) ([]models.Attendee, error)
	UpdateFields(ctx context.Context, id int64, update models.AttendeeUpdate) (bool, error)
	ToggleCheckin(ctx context.Context, id int64, day int) (*models.Attendee, error)
	CountByRole(ctx context.Context) ([]models.RoleCount, error)
	CountCheckedIn(ctx context.Context, day int) (int, error)
}

// CSVHeader is the fixed column order of the attendee export.
var CSVHeader = []string{"ticket_type", "email", "code", "first_name", "last_name", "role", "source"}

type CheckinRequest struct {
	Code   string `json:"code" validate:"required"`
	Source string `json:"source" validate:"required,source"`
	Day    int    `json:"day" validate:"oneof=1 2"`
}

// EditRequest carries the staff-editable fields. Nil fields are left as
// they are.
type EditRequest struct {
	Email      *string `json:"email" validate:"omitnil,email|len=0"`
	FirstName  *string `json:"first_name" validate:"omitnil,notblank"`
	LastName   *string `json:"last_name" validate:"omitnil,notblank"`
	Role       *string `json:"role" validate:"omitnil,role"`
	TicketType *string `json:"ticket_type" validate:"omitnil,notblank"`
	Source     *string `json:"source" validate:"omitnil,source"`
}

type CheckinEvent struct {
	AttendeeID int64         `json:"attendee_id"`
	Code       string        `json:"code"`
	Source     models.Source `json:"source"`
	Day        int           `json:"day"`
	CheckedIn  bool          `json:"checked_in"`
	At         *time.Time    `json:"at,omitempty"`
}

type Stats struct {
	Total         int                `json:"total"`
	ByRole        []models.RoleCount `json:"by_role"`
	CheckedInDay1 int                `json:"checked_in_day1"`
	CheckedInDay2 int                `json:"checked_in_day2"`
}

type AttendeeService struct {
	DB       AttendeeDBLayer
	Events   kafka.Publisher
	log      *logger.Logger
	validate *validator.Validate
}

func NewAttendeeService(db AttendeeDBLayer, events kafka.Publisher, log *logger.Logger) *AttendeeService {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &AttendeeService{DB: db, Events: events, log: log, validate: newValidator()}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("source", func(fl validator.FieldLevel) bool {
		return models.Source(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return models.Role(fl.Field().String()).Valid()
	})
	return v
}

func (s *AttendeeService) validateStruct(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(msgs, "; "))
}

// ---------------- READS ----------------

func (s *AttendeeService) Search(ctx context.Context, query string) ([]models.Attendee, error) {
	return s.DB.SearchFuzzy(ctx, query)
}

func (s *AttendeeService) Get(ctx context.Context, id int64) (*models.Attendee, error) {
	attendee, err := s.DB.GetAttendeeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if attendee == nil {
		return nil, fmt.Errorf("%w: id %d", models.ErrAttendeeNotFound, id)
	}
	return attendee, nil
}

func (s *AttendeeService) List(ctx context.Context) ([]models.Attendee, error) {
	return s.DB.ListAll(ctx, models.RoleDeleted)
}

func (s *AttendeeService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.DB.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{ByRole: counts}
	for _, c := range counts {
		if c.Role != models.RoleDeleted {
			stats.Total += c.Count
		}
	}

	if stats.CheckedInDay1, err = s.DB.CountCheckedIn(ctx, 1); err != nil {
		return nil, err
	}
	if stats.CheckedInDay2, err = s.DB.CountCheckedIn(ctx, 2); err != nil {
		return nil, err
	}
	return stats, nil
}

// ExportCSV writes every non-deleted attendee as CSV with CSVHeader columns.
func (s *AttendeeService) ExportCSV(ctx context.Context, w io.Writer) error {
	attendees, err := s.DB.ListAll(ctx, models.RoleDeleted)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, a := range attendees {
		row := []string{a.TicketType, a.Email, a.Code, a.FirstName, a.LastName, string(a.Role), string(a.Source)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", a.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ---------------- WRITES ----------------

// Checkin toggles the day's check-in of the attendee holding the ticket.
func (s *AttendeeService) Checkin(ctx context.Context, req CheckinRequest) (*models.Attendee, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Source = strings.TrimSpace(req.Source)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	attendee, err := s.DB.FindByCodeAndSource(ctx, req.Code, models.Source(req.Source))
	if err != nil {
		return nil, err
	}
	if attendee == nil || attendee.Role == models.RoleDeleted {
		return nil, fmt.Errorf("%w: %s/%s", models.ErrAttendeeNotFound, req.Source, req.Code)
	}

	updated, err := s.DB.ToggleCheckin(ctx, attendee.ID, req.Day)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: id %d", models.ErrAttendeeNotFound, attendee.ID)
	}

	stamp := updated.CheckinFor(req.Day)
	if stamp != nil {
		s.log.LogCheckin(updated.Code, req.Day, "checked in")
	} else {
		s.log.LogCheckin(updated.Code, req.Day, "check-in cleared")
	}

	event := kafka.NewEvent(kafka.EventCheckin, CheckinEvent{
		AttendeeID: updated.ID,
		Code:       updated.Code,
		Source:     updated.Source,
		Day:        req.Day,
		CheckedIn:  stamp != nil,
		At:         stamp,
	})
	if err := s.Events.Publish(ctx, event); err != nil {
		s.log.Warn("CHECKIN", fmt.Sprintf("Failed to publish check-in event: %v", err))
	}
	return updated, nil
}

// Edit applies a staff edit and returns the updated attendee.
func (s *AttendeeService) Edit(ctx context.Context, id int64, req EditRequest) (*models.Attendee, error) {
	req.Email = trimmed(req.Email)
	req.FirstName = trimmed(req.FirstName)
	req.LastName = trimmed(req.LastName)
	req.TicketType = trimmed(req.TicketType)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	update := models.AttendeeUpdate{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		TicketType: req.TicketType,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		update.Role = &role
	}
	if req.Source != nil {
		source := models.Source(*req.Source)
		update.Source = &source
	}
	if update.Empty() {
		return nil, fmt.Errorf("%w: no editable fields given", models.ErrValidation)
	}

	found, err := s.DB.UpdateFields(ctx, id, update)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: id %d", models.ErrAttendeeNotFound, id)
	}

	s.log.LogDatabase("UPDATE", "attendees", fmt.Sprintf("Attendee %d edited", id))
	return s.Get(ctx, id)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
