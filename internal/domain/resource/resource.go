package resource

import (
	"context"
	"errors"
	"strings"
	"time"

	"gearshare/internal/domain/shared/money"
)

var (
	ErrResourceNotFound = errors.New("resource: not found")
	ErrTitleRequired    = errors.New("resource: title is required")
	ErrOwnerRequired    = errors.New("resource: owner id is required")
	ErrNegativeRate     = errors.New("resource: daily rate must be non-negative")
	ErrNegativeDeposit  = errors.New("resource: deposit must be non-negative")
)

type ResourceID string
type OwnerID string

type Availability string

const (
	Available   Availability = "AVAILABLE"
	Rented      Availability = "RENTED"
	Maintenance Availability = "MAINTENANCE"
	Unavailable Availability = "UNAVAILABLE"
)

// Resource is a rentable item published by an owner. Availability is derived
// from the reservations that hold it and must only change inside the same
// transaction as the triggering reservation write.
type Resource struct {
	ID           ResourceID
	Owner        OwnerID
	Title        string
	Description  string
	DailyRate    money.Money
	Deposit      money.Money
	Availability Availability
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ResourceID) (*Resource, error)
	Save(ctx context.Context, res *Resource) error
}

type CreateParams struct {
	ID          ResourceID
	Owner       OwnerID
	Title       string
	Description string
	DailyRate   money.Money
	Deposit     money.Money
	Now         time.Time
}

func NewResource(params CreateParams) (*Resource, error) {
	if strings.TrimSpace(string(params.Owner)) == "" {
		return nil, ErrOwnerRequired
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, ErrTitleRequired
	}
	if params.DailyRate.Negative() {
		return nil, ErrNegativeRate
	}
	if params.Deposit.Negative() {
		return nil, ErrNegativeDeposit
	}
	now := params.Now.UTC()
	return &Resource{
		ID:           params.ID,
		Owner:        params.Owner,
		Title:        params.Title,
		Description:  params.Description,
		DailyRate:    params.DailyRate,
		Deposit:      params.Deposit,
		Availability: Available,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Bookable reports whether new reservations may be taken against the resource.
// MAINTENANCE and UNAVAILABLE are operator-set and block booking entirely.
func (r *Resource) Bookable() bool {
	return r.Availability == Available || r.Availability == Rented
}

// SyncAvailability derives the availability flag from the number of
// reservations currently holding the resource. Operator-set states are
// never overwritten here.
func (r *Resource) SyncAvailability(blockingCount int64, now time.Time) {
	if r.Availability == Maintenance || r.Availability == Unavailable {
		return
	}
	next := Available
	if blockingCount > 0 {
		next = Rented
	}
	if next != r.Availability {
		r.Availability = next
		r.UpdatedAt = now.UTC()
	}
}
