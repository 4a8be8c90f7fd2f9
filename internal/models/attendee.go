package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Source string

const (
	SourceEventbrite Source = "evenbrite"
	SourceEventioz   Source = "eventioz"
)

// Sources lists every ticketing vendor an attendee can originate from.
var Sources = []Source{SourceEventbrite, SourceEventioz}

func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleSpeaker   Role = "speaker"
	RoleSupport   Role = "support"
	RoleOrganizer Role = "organizer"
	RoleCorporate Role = "corporate"
	RolePress     Role = "press"
	RoleProvider  Role = "provider"
	RoleSponsor   Role = "sponsor"
	RoleDeleted   Role = "deleted"
	RoleReturned  Role = "returned"
)

var Roles = []Role{
	RoleAttendee, RoleSpeaker, RoleSupport, RoleOrganizer, RoleCorporate,
	RolePress, RoleProvider, RoleSponsor, RoleDeleted, RoleReturned,
}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// DefaultTicketType is assigned when no vendor mapping matches a ticket.
const DefaultTicketType = "conference"

type Attendee struct {
	bun.BaseModel `bun:"table:attendees"`

	ID          int64      `bun:"id,pk,autoincrement" json:"id"`
	Code        string     `bun:"code,notnull" json:"code"`
	Source      Source     `bun:"source,notnull" json:"source"`
	Email       string     `bun:"email" json:"email"`
	FirstName   string     `bun:"first_name" json:"first_name"`
	LastName    string     `bun:"last_name" json:"last_name"`
	Role        Role       `bun:"role,notnull,default:'attendee'" json:"role"`
	TicketType  string     `bun:"ticket_type,notnull,default:'conference'" json:"ticket_type"`
	CheckinDay1 *time.Time `bun:"checkin_day1,nullzero" json:"checkin_day1"`
	CheckinDay2 *time.Time `bun:"checkin_day2,nullzero" json:"checkin_day2"`
	Raffled     bool       `bun:"raffled,notnull,default:false" json:"raffled"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// CheckinFor returns the check-in stamp for the given event day.
func (a *Attendee) CheckinFor(day int) *time.Time {
	switch day {
	case 1:
		return a.CheckinDay1
	case 2:
		return a.CheckinDay2
	}
	return nil
}

// AttendeeUpdate carries a partial staff edit. Nil fields are left untouched.
type AttendeeUpdate struct {
	Email      *string
	FirstName  *string
	LastName   *string
	Role       *Role
	TicketType *string
	Source     *Source
}

func (u AttendeeUpdate) Empty() bool {
	return u.Email == nil && u.FirstName == nil && u.LastName == nil &&
		u.Role == nil && u.TicketType == nil && u.Source == nil
}

// RoleCount is one row of the per-role summary.
type RoleCount struct {
	Role  Role `bun:"role" json:"role"`
	Count int  `bun:"count" json:"count"`
}
