package reservation

import (
	"time"

	"gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/money"
	"gearshare/internal/domain/shared/timerange"
)

type Requested struct {
	ReservationID ReservationID
	ResourceID    resource.ResourceID
	RenterID      string
	Window        timerange.TimeRange
	Total         money.Money
	At            time.Time
}

func (e Requested) EventName() string     { return "reservation.requested" }
func (e Requested) AggregateID() string   { return string(e.ReservationID) }
func (e Requested) OccurredAt() time.Time { return e.At }

type Confirmed struct {
	ReservationID ReservationID
	ResourceID    resource.ResourceID
	At            time.Time
}

func (e Confirmed) EventName() string     { return "reservation.confirmed" }
func (e Confirmed) AggregateID() string   { return string(e.ReservationID) }
func (e Confirmed) OccurredAt() time.Time { return e.At }

type Activated struct {
	ReservationID ReservationID
	ResourceID    resource.ResourceID
	At            time.Time
}

func (e Activated) EventName() string     { return "reservation.activated" }
func (e Activated) AggregateID() string   { return string(e.ReservationID) }
func (e Activated) OccurredAt() time.Time { return e.At }

type Cancelled struct {
	ReservationID ReservationID
	ResourceID    resource.ResourceID
	Reason        string
	At            time.Time
}

func (e Cancelled) EventName() string     { return "reservation.cancelled" }
func (e Cancelled) AggregateID() string   { return string(e.ReservationID) }
func (e Cancelled) OccurredAt() time.Time { return e.At }

type Completed struct {
	ReservationID ReservationID
	ResourceID    resource.ResourceID
	Total         money.Money
	At            time.Time
}

func (e Completed) EventName() string     { return "reservation.completed" }
func (e Completed) AggregateID() string   { return string(e.ReservationID) }
func (e Completed) OccurredAt() time.Time { return e.At }

type Disputed struct {
	ReservationID ReservationID
	ResourceID    resource.ResourceID
	Reason        string
	At            time.Time
}

func (e Disputed) EventName() string     { return "reservation.disputed" }
func (e Disputed) AggregateID() string   { return string(e.ReservationID) }
func (e Disputed) OccurredAt() time.Time { return e.At }
