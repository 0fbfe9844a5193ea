package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gearshare/internal/domain/reservation"
	"gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/timerange"
)

// ResourceRepository is an in-memory implementation for tests and dev mode.
type ResourceRepository struct {
	mu    sync.RWMutex
	items map[resource.ResourceID]*resource.Resource
}

func NewResourceRepository() *ResourceRepository {
	return &ResourceRepository{items: make(map[resource.ResourceID]*resource.Resource)}
}

func (r *ResourceRepository) ByID(ctx context.Context, id resource.ResourceID) (*resource.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.items[id]
	if !ok {
		return nil, resource.ErrResourceNotFound
	}
	return res, nil
}

func (r *ResourceRepository) Save(ctx context.Context, res *resource.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.Version++
	r.items[res.ID] = res
	return nil
}

// ReservationRepository stores reservations in memory.
type ReservationRepository struct {
	mu    sync.RWMutex
	items map[reservation.ReservationID]*reservation.Reservation
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{items: make(map[reservation.ReservationID]*reservation.Reservation)}
}

func (r *ReservationRepository) ByID(ctx context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rsv, ok := r.items[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	return rsv, nil
}

func (r *ReservationRepository) Save(ctx context.Context, rsv *reservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rsv.Version++
	r.items[rsv.ID] = rsv
	return nil
}

func (r *ReservationRepository) CountBlockingOverlaps(ctx context.Context, id resource.ResourceID, window timerange.TimeRange) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, rsv := range r.items {
		if rsv.ResourceID != id || !rsv.Status.Blocking() {
			continue
		}
		if rsv.Window.Overlaps(window) {
			count++
		}
	}
	return count, nil
}

func (r *ReservationRepository) CountBlocking(ctx context.Context, id resource.ResourceID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, rsv := range r.items {
		if rsv.ResourceID == id && rsv.Status.Blocking() {
			count++
		}
	}
	return count, nil
}

func (r *ReservationRepository) List(ctx context.Context, filter reservation.ListFilter) ([]*reservation.Reservation, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	filter = filter.Normalized()
	matches := make([]*reservation.Reservation, 0)
	for _, rsv := range r.items {
		if !roleMatches(rsv, filter.UserID, filter.Role) {
			continue
		}
		if filter.Status != "" && rsv.Status != filter.Status {
			continue
		}
		matches = append(matches, rsv)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	total := int64(len(matches))
	start := (filter.Page - 1) * filter.PageSize
	if start > len(matches) {
		start = len(matches)
	}
	end := start + filter.PageSize
	if end > len(matches) {
		end = len(matches)
	}
	page := make([]*reservation.Reservation, end-start)
	copy(page, matches[start:end])
	return page, total, nil
}

func (r *ReservationRepository) ListUpcoming(ctx context.Context, userID string, horizon time.Time) ([]*reservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := make([]*reservation.Reservation, 0)
	for _, rsv := range r.items {
		if rsv.Status != reservation.StatusActive {
			continue
		}
		if rsv.RenterID != userID && rsv.OwnerID != userID {
			continue
		}
		if rsv.Window.End.After(horizon) {
			continue
		}
		matches = append(matches, rsv)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Window.End.Before(matches[j].Window.End)
	})
	return matches, nil
}

func (r *ReservationRepository) Stats(ctx context.Context, userID string, role reservation.Role) (reservation.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := reservation.Stats{Counts: make(map[reservation.Status]int64)}
	for _, rsv := range r.items {
		if !roleMatches(rsv, userID, role) {
			continue
		}
		stats.Counts[rsv.Status]++
		if rsv.Status == reservation.StatusCompleted {
			stats.TotalRevenueCents += rsv.TotalPrice.Cents
		}
	}
	return stats, nil
}

func roleMatches(rsv *reservation.Reservation, userID string, role reservation.Role) bool {
	switch role {
	case reservation.RoleOwner:
		return rsv.OwnerID == userID
	case reservation.RoleRenter:
		return rsv.RenterID == userID
	default:
		return rsv.RenterID == userID || rsv.OwnerID == userID
	}
}

var (
	_ resource.Repository    = (*ResourceRepository)(nil)
	_ reservation.Repository = (*ReservationRepository)(nil)
)
