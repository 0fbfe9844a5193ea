package reservation

import "fmt"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusDisputed  Status = "DISPUTED"
)

// BlockingStatuses are the statuses that hold the resource's window: no two
// reservations in this set may overlap on the same resource.
var BlockingStatuses = []Status{StatusPending, StatusConfirmed, StatusActive}

// transitions is the single source of truth for the reservation lifecycle.
// DISPUTED has no inbound edge here and its outbound edges are walked only by
// the support path (Dispute/Resolve), never by a party-driven status update.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusActive, StatusCancelled},
	StatusActive:    {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusDisputed:  {StatusCompleted, StatusCancelled},
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := transitions[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

func (s Status) Blocking() bool {
	for _, b := range BlockingStatuses {
		if s == b {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

type DeliveryMethod string

const (
	MethodPickup   DeliveryMethod = "PICKUP"
	MethodDelivery DeliveryMethod = "DELIVERY"
	MethodExpress  DeliveryMethod = "EXPRESS"
)

func ParseDeliveryMethod(raw string) (DeliveryMethod, error) {
	switch DeliveryMethod(raw) {
	case MethodPickup, MethodDelivery, MethodExpress:
		return DeliveryMethod(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDeliveryMethod, raw)
	}
}

// RequiresAddress reports whether the method needs a delivery address.
func (m DeliveryMethod) RequiresAddress() bool {
	return m == MethodDelivery || m == MethodExpress
}
