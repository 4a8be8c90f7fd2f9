// Package raffle draws prize winners among eligible attendees. Each
// attendee can win at most once.
package raffle

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"

	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// maxDrawAttempts bounds the retries after losing a race on MarkRaffled.
const maxDrawAttempts = 10

type Store interface {
	RaffleCandidateIDs(ctx context.Context, roles []models.Role) ([]int64, error)
	MarkRaffled(ctx context.Context, id int64) (bool, error)
	GetAttendeeByID(ctx context.Context, id int64) (*models.Attendee, error)
	ListByRole(ctx context.Context, roles []models.Role, fields []string, limit int) ([]models.Attendee, error)
}

type Selector struct {
	Store  Store
	Events kafka.Publisher
	log    *logger.Logger
}

func NewSelector(store Store, events kafka.Publisher, log *logger.Logger) *Selector {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &Selector{Store: store, Events: events, log: log}
}

// ParseRoles turns role names into roles, rejecting unknown names.
func ParseRoles(names []string) ([]models.Role, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: at least one role is required", models.ErrValidation)
	}
	roles := make([]models.Role, 0, len(names))
	for _, name := range names {
		role := models.Role(name)
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %w %q", models.ErrValidation, models.ErrUnknownRole, name)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func validateRoles(roles []models.Role) error {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	_, err := ParseRoles(names)
	return err
}

// DrawOne picks a random un-raffled attendee with one of the given roles and
// marks it raffled. It returns nil, nil when nobody is left to draw.
func (s *Selector) DrawOne(ctx context.Context, roles []models.Role) (*models.Attendee, error) {
	if err := validateRoles(roles); err != nil {
		return nil, err
	}

	rng, err := newRand()
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxDrawAttempts; attempt++ {
		ids, err := s.Store.RaffleCandidateIDs(ctx, roles)
		if err != nil {
			return nil, fmt.Errorf("draw: %w", err)
		}
		if len(ids) == 0 {
			s.log.LogRaffle("DRAW", "No eligible attendees left")
			return nil, nil
		}

		id := ids[rng.IntN(len(ids))]
		won, err := s.Store.MarkRaffled(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("draw: %w", err)
		}
		if !won {
			s.log.Debug("RAFFLE", fmt.Sprintf("Attendee %d was drawn concurrently, retrying (attempt %d)", id, attempt))
			continue
		}

		winner, err := s.Store.GetAttendeeByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("draw: %w", err)
		}
		if winner == nil {
			return nil, fmt.Errorf("draw: attendee %d vanished after marking: %w", id, models.ErrAttendeeNotFound)
		}

		s.log.LogRaffle("DRAW", fmt.Sprintf("Winner %d (%s %s) out of %d candidates", winner.ID, winner.FirstName, winner.LastName, len(ids)))
		if err := s.Events.Publish(ctx, kafka.NewEvent(kafka.EventRaffleWinner, winner)); err != nil {
			s.log.Warn("RAFFLE", fmt.Sprintf("Failed to publish winner event: %v", err))
		}
		return winner, nil
	}

	return nil, fmt.Errorf("draw: lost %d consecutive races for a candidate", maxDrawAttempts)
}

// PoolPreview lists attendees with the given roles without looking at or
// changing the raffled flag.
func (s *Selector) PoolPreview(ctx context.Context, roles []models.Role, fields []string, limit int) ([]models.Attendee, error) {
	if err := validateRoles(roles); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", models.ErrValidation)
	}

	pool, err := s.Store.ListByRole(ctx, roles, fields, limit)
	if errors.Is(err, models.ErrUnknownField) {
		return nil, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	if err != nil {
		return nil, fmt.Errorf("raffle pool: %w", err)
	}
	return pool, nil
}

// newRand returns a generator seeded from the OS so draws differ between
// runs and between calls.
func newRand() (*rand.Rand, error) {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed raffle: %w", err)
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:]))), nil
}
