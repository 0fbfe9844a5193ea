package reservation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/events"
	"gearshare/internal/domain/shared/money"
	"gearshare/internal/domain/shared/timerange"
)

var (
	ErrNotFound               = errors.New("reservation: not found")
	ErrResourceUnavailable    = errors.New("reservation: resource is not open for booking")
	ErrSelfBooking            = errors.New("reservation: owners cannot book their own resource")
	ErrInvalidWindow          = errors.New("reservation: invalid rental window")
	ErrMissingDeliveryAddress = errors.New("reservation: delivery address required")
	ErrWindowConflict         = errors.New("reservation: window conflicts with an existing reservation")
	ErrWindowNotElapsed       = errors.New("reservation: rental window has not ended yet")
	ErrForbidden              = errors.New("reservation: actor is not a party to this reservation")
	ErrInvalidTransition      = errors.New("reservation: invalid status transition")
	ErrUnknownStatus          = errors.New("reservation: unknown status")
	ErrUnknownDeliveryMethod  = errors.New("reservation: unknown delivery method")
	ErrUnknownRole            = errors.New("reservation: unknown role")
	ErrRenterRequired         = errors.New("reservation: renter id is required")
)

type ReservationID string

// TransitionError carries the rejected (from, to) pair. errors.Is matches it
// against ErrInvalidTransition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("reservation: transition %s -> %s not allowed", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Reservation is a renter's claim on a resource for a half-open time window.
// It is created once, mutated only through transition methods, and never
// deleted: terminal reservations stay around for history and stats.
type Reservation struct {
	ID              ReservationID
	ResourceID      resource.ResourceID
	RenterID        string
	OwnerID         string
	Window          timerange.TimeRange
	TotalPrice      money.Money
	Deposit         money.Money
	DeliveryFee     money.Money
	Method          DeliveryMethod
	DeliveryAddress string
	Status          Status
	Notes           string
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64
	events.EventRecorder
}

type CreateParams struct {
	ID              ReservationID
	ResourceID      resource.ResourceID
	RenterID        string
	OwnerID         string
	Window          timerange.TimeRange
	TotalPrice      money.Money
	Deposit         money.Money
	DeliveryFee     money.Money
	Method          DeliveryMethod
	DeliveryAddress string
	Notes           string
	Now             time.Time
}

func NewReservation(params CreateParams) (*Reservation, error) {
	if strings.TrimSpace(params.RenterID) == "" {
		return nil, ErrRenterRequired
	}
	if params.RenterID == params.OwnerID {
		return nil, ErrSelfBooking
	}
	if err := params.Window.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	if params.Method.RequiresAddress() && strings.TrimSpace(params.DeliveryAddress) == "" {
		return nil, ErrMissingDeliveryAddress
	}
	now := params.Now.UTC()
	r := &Reservation{
		ID:              params.ID,
		ResourceID:      params.ResourceID,
		RenterID:        params.RenterID,
		OwnerID:         params.OwnerID,
		Window:          params.Window,
		TotalPrice:      params.TotalPrice,
		Deposit:         params.Deposit,
		DeliveryFee:     params.DeliveryFee,
		Method:          params.Method,
		DeliveryAddress: params.DeliveryAddress,
		Status:          StatusPending,
		Notes:           params.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.Record(Requested{ReservationID: r.ID, ResourceID: r.ResourceID, RenterID: r.RenterID, Window: r.Window, Total: r.TotalPrice, At: now})
	return r, nil
}

// IsParty reports whether the actor is the renter or the owner.
func (r *Reservation) IsParty(actorID string) bool {
	return actorID != "" && (actorID == r.RenterID || actorID == r.OwnerID)
}

// Confirm moves PENDING -> CONFIRMED. Only the resource owner may confirm;
// the payment-confirmed signal arrives through this entry point.
func (r *Reservation) Confirm(actorID string, now time.Time) error {
	if actorID != r.OwnerID {
		return ErrForbidden
	}
	if err := r.shift(StatusConfirmed, now); err != nil {
		return err
	}
	r.Record(Confirmed{ReservationID: r.ID, ResourceID: r.ResourceID, At: r.UpdatedAt})
	return nil
}

// Activate moves CONFIRMED -> ACTIVE when the rental is handed over.
func (r *Reservation) Activate(now time.Time) error {
	if err := r.shift(StatusActive, now); err != nil {
		return err
	}
	r.Record(Activated{ReservationID: r.ID, ResourceID: r.ResourceID, At: r.UpdatedAt})
	return nil
}

// Cancel moves any blocking status to CANCELLED.
func (r *Reservation) Cancel(reason string, now time.Time) error {
	if err := r.shift(StatusCancelled, now); err != nil {
		return err
	}
	r.CancelReason = strings.TrimSpace(reason)
	r.Record(Cancelled{ReservationID: r.ID, ResourceID: r.ResourceID, Reason: r.CancelReason, At: r.UpdatedAt})
	return nil
}

// Complete moves ACTIVE to COMPLETED once the rental window has ended.
// Disputed reservations are closed through Resolve instead.
func (r *Reservation) Complete(now time.Time) error {
	if r.Status != StatusActive {
		return &TransitionError{From: r.Status, To: StatusCompleted}
	}
	if !r.Window.ElapsedBy(now) {
		return ErrWindowNotElapsed
	}
	if err := r.shift(StatusCompleted, now); err != nil {
		return err
	}
	r.Record(Completed{ReservationID: r.ID, ResourceID: r.ResourceID, Total: r.TotalPrice, At: r.UpdatedAt})
	return nil
}

// Dispute is the support-only entry into DISPUTED; it bypasses the party
// transition table on purpose and applies to rentals already underway.
func (r *Reservation) Dispute(reason string, now time.Time) error {
	if r.Status != StatusConfirmed && r.Status != StatusActive {
		return &TransitionError{From: r.Status, To: StatusDisputed}
	}
	r.Status = StatusDisputed
	r.UpdatedAt = now.UTC()
	r.Record(Disputed{ReservationID: r.ID, ResourceID: r.ResourceID, Reason: reason, At: r.UpdatedAt})
	return nil
}

// Resolve closes a disputed reservation with a support-decided outcome,
// COMPLETED or CANCELLED. The elapsed-window guard does not apply: support
// may settle a dispute whenever the decision lands.
func (r *Reservation) Resolve(outcome Status, reason string, now time.Time) error {
	if r.Status != StatusDisputed {
		return &TransitionError{From: r.Status, To: outcome}
	}
	switch outcome {
	case StatusCompleted:
		if err := r.shift(StatusCompleted, now); err != nil {
			return err
		}
		r.Record(Completed{ReservationID: r.ID, ResourceID: r.ResourceID, Total: r.TotalPrice, At: r.UpdatedAt})
	case StatusCancelled:
		if err := r.shift(StatusCancelled, now); err != nil {
			return err
		}
		r.CancelReason = strings.TrimSpace(reason)
		r.Record(Cancelled{ReservationID: r.ID, ResourceID: r.ResourceID, Reason: r.CancelReason, At: r.UpdatedAt})
	default:
		return &TransitionError{From: r.Status, To: outcome}
	}
	return nil
}

// ApplyStatus is the generic transition entry point: it enforces the table
// plus the target-specific guards the named operations carry.
func (r *Reservation) ApplyStatus(target Status, actorID string, notes string, now time.Time) error {
	switch target {
	case StatusConfirmed:
		if err := r.Confirm(actorID, now); err != nil {
			return err
		}
	case StatusActive:
		if err := r.Activate(now); err != nil {
			return err
		}
	case StatusCompleted:
		if err := r.Complete(now); err != nil {
			return err
		}
	case StatusCancelled:
		if err := r.Cancel(notes, now); err != nil {
			return err
		}
	default:
		return &TransitionError{From: r.Status, To: target}
	}
	if notes = strings.TrimSpace(notes); notes != "" && target != StatusCancelled {
		r.Notes = notes
	}
	return nil
}

func (r *Reservation) shift(target Status, now time.Time) error {
	if !r.Status.CanTransitionTo(target) {
		return &TransitionError{From: r.Status, To: target}
	}
	r.Status = target
	r.UpdatedAt = now.UTC()
	return nil
}
