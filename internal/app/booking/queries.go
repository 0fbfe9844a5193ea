package booking

import (
	"context"
	"time"

	"gearshare/internal/app/uow"
	"gearshare/internal/domain/reservation"
)

// Get returns a reservation to one of its parties.
func (s *Service) Get(ctx context.Context, id, actorID string) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := s.inUnit(ctx, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		rsv, err := unit.Reservations().ByID(ctx, reservation.ReservationID(id))
		if err != nil {
			return err
		}
		if !rsv.IsParty(actorID) {
			return reservation.ErrForbidden
		}
		out = rsv
		return nil
	})
	return out, err
}

// List returns a page of the user's reservations in the given role, newest
// first, optionally narrowed to one status.
func (s *Service) List(ctx context.Context, filter reservation.ListFilter) ([]*reservation.Reservation, int64, error) {
	var (
		items []*reservation.Reservation
		total int64
	)
	err := s.inUnit(ctx, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		items, total, err = unit.Reservations().List(ctx, filter.Normalized())
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListUpcoming returns ACTIVE reservations involving the user whose window
// ends within the given number of days, soonest ending first.
func (s *Service) ListUpcoming(ctx context.Context, userID string, withinDays int) ([]*reservation.Reservation, error) {
	if withinDays < 0 {
		withinDays = 0
	}
	horizon := s.now().Add(time.Duration(withinDays) * 24 * time.Hour)
	var items []*reservation.Reservation
	err := s.inUnit(ctx, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		items, err = unit.Reservations().ListUpcoming(ctx, userID, horizon)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Stats aggregates the user's reservation counts per status and the revenue
// realized over completed rentals.
func (s *Service) Stats(ctx context.Context, userID string, role reservation.Role) (reservation.Stats, error) {
	var stats reservation.Stats
	err := s.inUnit(ctx, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		stats, err = unit.Reservations().Stats(ctx, userID, role)
		return err
	})
	return stats, err
}
