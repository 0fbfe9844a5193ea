package memory

import (
	"context"
	"errors"
	"sync"

	"gearshare/internal/app/uow"
	"gearshare/internal/domain/reservation"
	"gearshare/internal/domain/resource"
)

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// Factory wires in-memory repositories into a unit-of-work boundary. Units
// hold the factory mutex from Begin until Commit/Rollback, so check-then-insert
// sequences on the shared maps cannot interleave. That stands in for the row
// lock a transactional store takes on the resource record.
type Factory struct {
	ResourcesRepo    resource.Repository
	ReservationsRepo reservation.Repository

	mu sync.RWMutex
}

func (f *Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.ResourcesRepo == nil || f.ReservationsRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	unit := &Unit{
		resources:    f.ResourcesRepo,
		reservations: f.ReservationsRepo,
		readOnly:     opts.ReadOnly,
		factory:      f,
	}
	if opts.ReadOnly {
		f.mu.RLock()
	} else {
		f.mu.Lock()
	}
	return unit, nil
}

// Unit is a uow.UnitOfWork backed by in-memory stores. Writes apply
// immediately; Commit and Rollback only release the serialization lock, so
// memory mode offers no rollback isolation. In particular, a failure landing
// after a Save in the same unit (an outbox append being rejected, say) leaves
// that write in place even though the caller sees a retryable error; the
// mongo factory aborts the whole session transaction in that case. Dev mode
// pairs this factory with the in-memory outbox, whose Add cannot fail.
type Unit struct {
	resources    resource.Repository
	reservations reservation.Repository
	readOnly     bool
	factory      *Factory
	done         bool
}

func (u *Unit) Resources() resource.Repository {
	return u.resources
}

func (u *Unit) Reservations() reservation.Repository {
	return u.reservations
}

func (u *Unit) Commit(ctx context.Context) error {
	u.release()
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.release()
	return nil
}

func (u *Unit) release() {
	if u.done {
		return
	}
	u.done = true
	if u.readOnly {
		u.factory.mu.RUnlock()
	} else {
		u.factory.mu.Unlock()
	}
}
