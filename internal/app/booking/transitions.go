package booking

import (
	"context"

	"gearshare/internal/app/uow"
	"gearshare/internal/domain/reservation"
	"gearshare/internal/domain/resource"
)

// Confirm moves a PENDING reservation to CONFIRMED. Only the resource owner
// may confirm; this is also the entry point for the payment-confirmed signal.
func (s *Service) Confirm(ctx context.Context, id, actorID string) (*reservation.Reservation, error) {
	return s.transition(ctx, id, actorID, func(rsv *reservation.Reservation) error {
		return rsv.Confirm(actorID, s.now())
	})
}

// Cancel transitions any blocking reservation to CANCELLED. Either party may
// cancel.
func (s *Service) Cancel(ctx context.Context, id, actorID, reason string) (*reservation.Reservation, error) {
	return s.transition(ctx, id, actorID, func(rsv *reservation.Reservation) error {
		return rsv.Cancel(reason, s.now())
	})
}

// Complete closes an ACTIVE reservation once its window has ended. Either
// party may complete; disputed reservations close through Resolve.
func (s *Service) Complete(ctx context.Context, id, actorID string) (*reservation.Reservation, error) {
	return s.transition(ctx, id, actorID, func(rsv *reservation.Reservation) error {
		return rsv.Complete(s.now())
	})
}

// UpdateStatus is the generic transition entry point enforcing the lifecycle
// table plus party authorization.
func (s *Service) UpdateStatus(ctx context.Context, id, actorID string, target reservation.Status, notes string) (*reservation.Reservation, error) {
	return s.transition(ctx, id, actorID, func(rsv *reservation.Reservation) error {
		return rsv.ApplyStatus(target, actorID, notes, s.now())
	})
}

// Dispute is the support entry into DISPUTED. The caller is a trusted support
// actor, not a reservation party, so the party check is skipped.
func (s *Service) Dispute(ctx context.Context, id, reason string) (*reservation.Reservation, error) {
	return s.apply(ctx, id, "", false, func(rsv *reservation.Reservation) error {
		return rsv.Dispute(reason, s.now())
	})
}

// Resolve settles a DISPUTED reservation with a support-decided outcome,
// COMPLETED or CANCELLED. Like Dispute, the caller is a trusted support actor
// and the party check is skipped.
func (s *Service) Resolve(ctx context.Context, id string, outcome reservation.Status, reason string) (*reservation.Reservation, error) {
	return s.apply(ctx, id, "", false, func(rsv *reservation.Reservation) error {
		return rsv.Resolve(outcome, reason, s.now())
	})
}

func (s *Service) transition(ctx context.Context, id, actorID string, apply func(*reservation.Reservation) error) (*reservation.Reservation, error) {
	return s.apply(ctx, id, actorID, true, apply)
}

// apply loads the reservation, runs the transition and recomputes the
// resource availability flag, all inside one unit of work. The resource write
// also serializes concurrent transitions on the same resource.
func (s *Service) apply(ctx context.Context, id, actorID string, checkParty bool, applyFn func(*reservation.Reservation) error) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := s.inUnit(ctx, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		rsv, err := unit.Reservations().ByID(ctx, reservation.ReservationID(id))
		if err != nil {
			return err
		}
		if checkParty && !rsv.IsParty(actorID) {
			return reservation.ErrForbidden
		}
		if err := applyFn(rsv); err != nil {
			return err
		}
		if err := unit.Reservations().Save(ctx, rsv); err != nil {
			return err
		}
		if err := s.syncResource(ctx, unit, rsv.ResourceID); err != nil {
			return err
		}
		if err := s.drainEvents(ctx, rsv); err != nil {
			return err
		}
		out = rsv
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("reservation transitioned", "reservation_id", out.ID, "status", out.Status)
	}
	return out, nil
}

func (s *Service) syncResource(ctx context.Context, unit uow.UnitOfWork, id resource.ResourceID) error {
	res, err := unit.Resources().ByID(ctx, id)
	if err != nil {
		return err
	}
	blocking, err := unit.Reservations().CountBlocking(ctx, id)
	if err != nil {
		return err
	}
	res.SyncAvailability(blocking, s.now())
	return unit.Resources().Save(ctx, res)
}
