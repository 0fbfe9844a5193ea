package reservation

import (
	"context"
	"fmt"
	"time"

	"gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/timerange"
)

type Role string

const (
	RoleRenter Role = "renter"
	RoleOwner  Role = "owner"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleRenter, RoleOwner:
		return Role(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// ListFilter scopes party-facing listings. Page is 1-based.
type ListFilter struct {
	UserID   string
	Role     Role
	Status   Status // empty means all statuses
	Page     int
	PageSize int
}

func (f ListFilter) Normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return f
}

// Stats aggregates a user's reservations per status; revenue covers
// COMPLETED reservations only.
type Stats struct {
	Counts            map[Status]int64
	TotalRevenueCents int64
}

type Repository interface {
	ByID(ctx context.Context, id ReservationID) (*Reservation, error)
	Save(ctx context.Context, r *Reservation) error

	// CountBlockingOverlaps counts reservations in a blocking status whose
	// window overlaps the candidate. It must run inside the same transaction
	// as the insert it is guarding.
	CountBlockingOverlaps(ctx context.Context, id resource.ResourceID, window timerange.TimeRange) (int64, error)

	// CountBlocking counts reservations currently holding the resource,
	// driving the availability flag recompute.
	CountBlocking(ctx context.Context, id resource.ResourceID) (int64, error)

	List(ctx context.Context, filter ListFilter) ([]*Reservation, int64, error)

	// ListUpcoming returns ACTIVE reservations involving the user (either
	// party) ending at or before the horizon, ordered by window end ascending.
	ListUpcoming(ctx context.Context, userID string, horizon time.Time) ([]*Reservation, error)

	Stats(ctx context.Context, userID string, role Role) (Stats, error)
}
