package uow

import (
	"context"

	"gearshare/internal/domain/reservation"
	"gearshare/internal/domain/resource"
)

// UnitOfWork coordinates repositories inside a transaction boundary. Every
// state-changing booking operation runs against exactly one unit: the
// conflict check, the reservation write and the availability flip either all
// commit or none do.
type UnitOfWork interface {
	Resources() resource.Repository
	Reservations() reservation.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}

type ctxKey struct{}

// ContextWithUnitOfWork stores the unit in context. The booking service uses
// this so that a nested call (a transition recomputing availability inside an
// already open create, for instance) joins the outer transaction rather than
// opening its own.
func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, unit)
}

// FromContext reports the unit the current operation runs under, if any.
func FromContext(ctx context.Context) (UnitOfWork, bool) {
	unit, ok := ctx.Value(ctxKey{}).(UnitOfWork)
	return unit, ok
}
