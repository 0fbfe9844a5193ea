package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	appoutbox "gearshare/internal/app/outbox"
	"gearshare/internal/app/uow"
	"gearshare/internal/domain/pricing"
	"gearshare/internal/domain/reservation"
	"gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/clock"
	"gearshare/internal/domain/shared/timerange"
)

// ErrStorage marks infrastructure failures (connection loss, aborted
// transactions). Unlike the domain rejections it is safe to retry: nothing
// partial was committed.
var ErrStorage = errors.New("booking: storage failure")

var rejections = []error{
	reservation.ErrNotFound,
	reservation.ErrResourceUnavailable,
	reservation.ErrSelfBooking,
	reservation.ErrInvalidWindow,
	reservation.ErrMissingDeliveryAddress,
	reservation.ErrWindowConflict,
	reservation.ErrWindowNotElapsed,
	reservation.ErrForbidden,
	reservation.ErrInvalidTransition,
	reservation.ErrUnknownStatus,
	reservation.ErrUnknownDeliveryMethod,
	reservation.ErrRenterRequired,
	resource.ErrResourceNotFound,
	pricing.ErrCurrencyUnset,
	pricing.ErrNoUnits,
}

// Service is the booking lifecycle engine. It owns no state of its own and is
// safe to call from many goroutines: every state change happens inside a
// single unit of work provided by the factory.
type Service struct {
	UoWFactory uow.UoWFactory
	Pricing    pricing.Calculator
	Clock      clock.Clock
	Outbox     appoutbox.Outbox
	Encoder    appoutbox.EventEncoder
	Logger     *slog.Logger
}

type CreateParams struct {
	ResourceID      string
	RenterID        string
	Start           time.Time
	End             time.Time
	Method          reservation.DeliveryMethod
	DeliveryAddress string
	Notes           string
}

// Create validates the request, detects window conflicts and persists a new
// PENDING reservation together with the resource availability flip, all
// within one transaction.
func (s *Service) Create(ctx context.Context, p CreateParams) (*reservation.Reservation, error) {
	var created *reservation.Reservation
	err := s.inUnit(ctx, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := s.now()

		res, err := unit.Resources().ByID(ctx, resource.ResourceID(p.ResourceID))
		if err != nil {
			return err
		}
		if !res.Bookable() {
			return reservation.ErrResourceUnavailable
		}
		if p.RenterID == string(res.Owner) {
			return reservation.ErrSelfBooking
		}
		window, err := timerange.New(p.Start, p.End)
		if err != nil {
			return fmt.Errorf("%w: %v", reservation.ErrInvalidWindow, err)
		}
		if window.Start.Before(now) {
			return reservation.ErrInvalidWindow
		}
		if p.Method.RequiresAddress() && p.DeliveryAddress == "" {
			return reservation.ErrMissingDeliveryAddress
		}
		conflicts, err := unit.Reservations().CountBlockingOverlaps(ctx, res.ID, window)
		if err != nil {
			return err
		}
		if conflicts > 0 {
			return reservation.ErrWindowConflict
		}

		quote, err := s.Pricing.Quote(ctx, res, window, p.Method)
		if err != nil {
			return err
		}
		rsv, err := reservation.NewReservation(reservation.CreateParams{
			ID:              reservation.ReservationID(uuid.NewString()),
			ResourceID:      res.ID,
			RenterID:        p.RenterID,
			OwnerID:         string(res.Owner),
			Window:          window,
			TotalPrice:      quote.Total,
			Deposit:         quote.Deposit,
			DeliveryFee:     quote.DeliveryFee,
			Method:          p.Method,
			DeliveryAddress: p.DeliveryAddress,
			Notes:           p.Notes,
			Now:             now,
		})
		if err != nil {
			return err
		}
		if err := unit.Reservations().Save(ctx, rsv); err != nil {
			return err
		}
		// The new PENDING reservation holds the resource from this instant.
		res.SyncAvailability(1, now)
		if err := unit.Resources().Save(ctx, res); err != nil {
			return err
		}
		if err := s.drainEvents(ctx, rsv); err != nil {
			return err
		}
		created = rsv
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("reservation created", "reservation_id", created.ID, "resource_id", created.ResourceID, "renter_id", created.RenterID, "total", created.TotalPrice.String())
	}
	return created, nil
}

// inUnit runs fn inside a unit of work. A unit already present in the context
// is reused without committing; otherwise the service owns the boundary.
func (s *Service) inUnit(ctx context.Context, opts uow.TxOptions, fn func(context.Context, uow.UnitOfWork) error) error {
	if unit, ok := uow.FromContext(ctx); ok {
		return s.classify(fn(ctx, unit))
	}
	unit, err := s.UoWFactory.Begin(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	execCtx := ctx
	if injector, ok := unit.(interface {
		InjectContext(context.Context) context.Context
	}); ok {
		execCtx = injector.InjectContext(ctx)
	}
	execCtx = uow.ContextWithUnitOfWork(execCtx, unit)
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(execCtx)
		}
	}()
	if err := fn(execCtx, unit); err != nil {
		return s.classify(err)
	}
	if err := unit.Commit(execCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	committed = true
	return nil
}

func (s *Service) drainEvents(ctx context.Context, rsv *reservation.Reservation) error {
	pending := rsv.PendingEvents()
	rsv.ClearEvents()
	return appoutbox.RecordDomainEvents(ctx, s.Outbox, s.encoder(), pending)
}

func (s *Service) encoder() appoutbox.EventEncoder {
	if s.Encoder != nil {
		return s.Encoder
	}
	return appoutbox.JSONEventEncoder{}
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

// classify keeps domain rejections intact and folds everything else into the
// retryable storage class.
func (s *Service) classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range rejections {
		if errors.Is(err, kind) {
			return err
		}
	}
	if errors.Is(err, ErrStorage) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
