package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appoutbox "gearshare/internal/app/outbox"
	"gearshare/internal/domain/pricing"
	"gearshare/internal/domain/reservation"
	"gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/money"
	"gearshare/internal/infra/storage/memory"
)

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// stubClock is a movable clock shared by the service and the test.
type stubClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type fixture struct {
	svc       *Service
	resources *memory.ResourceRepository
	outbox    *memory.Outbox
	clock     *stubClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	resources := memory.NewResourceRepository()
	reservations := memory.NewReservationRepository()
	clk := &stubClock{at: testBase}
	box := memory.NewOutbox()
	svc := &Service{
		UoWFactory: &memory.Factory{ResourcesRepo: resources, ReservationsRepo: reservations},
		Pricing:    pricing.StandardCalculator{BillingUnit: 24 * time.Hour, DeliveryFee: money.Must(1500, "USD")},
		Clock:      clk,
		Outbox:     box,
	}
	return &fixture{svc: svc, resources: resources, outbox: box, clock: clk}
}

func (f *fixture) seedResource(t *testing.T, id, owner string) *resource.Resource {
	t.Helper()
	res, err := resource.NewResource(resource.CreateParams{
		ID:        resource.ResourceID(id),
		Owner:     resource.OwnerID(owner),
		Title:     "Sony A7 IV kit",
		DailyRate: money.Must(5000, "USD"),
		Deposit:   money.Must(20000, "USD"),
		Now:       testBase,
	})
	require.NoError(t, err)
	require.NoError(t, f.resources.Save(context.Background(), res))
	return res
}

func (f *fixture) availability(t *testing.T, id string) resource.Availability {
	t.Helper()
	res, err := f.resources.ByID(context.Background(), resource.ResourceID(id))
	require.NoError(t, err)
	return res.Availability
}

func createParams(resourceID, renter string, startOffset, duration time.Duration) CreateParams {
	start := testBase.Add(startOffset)
	return CreateParams{
		ResourceID: resourceID,
		RenterID:   renter,
		Start:      start,
		End:        start.Add(duration),
		Method:     reservation.MethodPickup,
	}
}

func TestCreateReservation(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")

	rsv, err := f.svc.Create(context.Background(), createParams("res-1", "renter-1", 24*time.Hour, 48*time.Hour))
	require.NoError(t, err)
	require.Equal(t, reservation.StatusPending, rsv.Status)
	require.Equal(t, "owner-1", rsv.OwnerID)
	require.Equal(t, int64(10000), rsv.TotalPrice.Cents)
	require.Equal(t, int64(20000), rsv.Deposit.Cents)
	require.NotEmpty(t, rsv.ID)

	// a pending reservation holds the resource
	require.Equal(t, resource.Rented, f.availability(t, "res-1"))

	records := f.outbox.Records()
	require.Len(t, records, 1)
	require.Equal(t, "reservation.requested", records[0].Name)
	require.Equal(t, string(rsv.ID), records[0].Aggregate)
}

func TestCreateDeliveryPricing(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")

	p := createParams("res-1", "renter-1", 24*time.Hour, 24*time.Hour)
	p.Method = reservation.MethodDelivery
	p.DeliveryAddress = "12 Harbor St"
	rsv, err := f.svc.Create(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, int64(6500), rsv.TotalPrice.Cents)
	require.Equal(t, int64(1500), rsv.DeliveryFee.Cents)
}

func TestCreateRejections(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")

	maintained := f.seedResource(t, "res-2", "owner-1")
	maintained.Availability = resource.Maintenance
	require.NoError(t, f.resources.Save(context.Background(), maintained))

	_, err := f.svc.Create(context.Background(), createParams("res-1", "renter-1", 24*time.Hour, 48*time.Hour))
	require.NoError(t, err)

	cases := []struct {
		name   string
		params CreateParams
		want   error
	}{
		{"unknown resource", createParams("res-404", "renter-1", 24*time.Hour, 24*time.Hour), resource.ErrResourceNotFound},
		{"maintenance resource", createParams("res-2", "renter-1", 24*time.Hour, 24*time.Hour), reservation.ErrResourceUnavailable},
		{"self booking", createParams("res-1", "owner-1", 200*time.Hour, 24*time.Hour), reservation.ErrSelfBooking},
		{"start in the past", createParams("res-1", "renter-1", -48*time.Hour, 24*time.Hour), reservation.ErrInvalidWindow},
		{"end before start", createParams("res-1", "renter-1", 24*time.Hour, -time.Hour), reservation.ErrInvalidWindow},
		{"overlapping window", createParams("res-1", "renter-2", 36*time.Hour, 24*time.Hour), reservation.ErrWindowConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.params)
			require.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("missing delivery address", func(t *testing.T) {
		p := createParams("res-1", "renter-2", 200*time.Hour, 24*time.Hour)
		p.Method = reservation.MethodDelivery
		_, err := f.svc.Create(context.Background(), p)
		require.ErrorIs(t, err, reservation.ErrMissingDeliveryAddress)
	})

	// back-to-back with the existing [24h, 72h) hold is not a conflict
	t.Run("adjacent window", func(t *testing.T) {
		_, err := f.svc.Create(context.Background(), createParams("res-1", "renter-2", 72*time.Hour, 24*time.Hour))
		require.NoError(t, err)
	})
}

// TestCreateConcurrentOverlap races two renters for the same window. The unit
// of work serializes the conflict check and insert, so exactly one wins.
func TestCreateConcurrentOverlap(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, renter := range []string{"renter-1", "renter-2"} {
		wg.Add(1)
		go func(renter string) {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), createParams("res-1", renter, 24*time.Hour, 48*time.Hour))
			errs <- err
		}(renter)
	}
	wg.Wait()
	close(errs)

	var won, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			won++
		default:
			require.ErrorIs(t, err, reservation.ErrWindowConflict)
			conflicted++
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, 1, conflicted)
}

func TestLifecycleHappyPath(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")
	ctx := context.Background()

	rsv, err := f.svc.Create(ctx, createParams("res-1", "renter-1", 24*time.Hour, 48*time.Hour))
	require.NoError(t, err)
	id := string(rsv.ID)

	// only the owner confirms
	_, err = f.svc.Confirm(ctx, id, "renter-1")
	require.ErrorIs(t, err, reservation.ErrForbidden)

	rsv, err = f.svc.Confirm(ctx, id, "owner-1")
	require.NoError(t, err)
	require.Equal(t, reservation.StatusConfirmed, rsv.Status)

	rsv, err = f.svc.UpdateStatus(ctx, id, "renter-1", reservation.StatusActive, "picked up at noon")
	require.NoError(t, err)
	require.Equal(t, reservation.StatusActive, rsv.Status)
	require.Equal(t, "picked up at noon", rsv.Notes)
	require.Equal(t, resource.Rented, f.availability(t, "res-1"))

	// too early to complete
	_, err = f.svc.Complete(ctx, id, "renter-1")
	require.ErrorIs(t, err, reservation.ErrWindowNotElapsed)

	f.clock.Advance(73 * time.Hour)
	rsv, err = f.svc.Complete(ctx, id, "renter-1")
	require.NoError(t, err)
	require.Equal(t, reservation.StatusCompleted, rsv.Status)
	require.Equal(t, resource.Available, f.availability(t, "res-1"))

	// completed is terminal
	_, err = f.svc.Cancel(ctx, id, "owner-1", "never mind")
	require.ErrorIs(t, err, reservation.ErrInvalidTransition)

	names := make([]string, 0)
	for _, rec := range f.outbox.Records() {
		names = append(names, rec.Name)
	}
	require.Equal(t, []string{
		"reservation.requested",
		"reservation.confirmed",
		"reservation.activated",
		"reservation.completed",
	}, names)
}

func TestCancelReleasesResource(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")
	ctx := context.Background()

	rsv, err := f.svc.Create(ctx, createParams("res-1", "renter-1", 24*time.Hour, 48*time.Hour))
	require.NoError(t, err)
	require.Equal(t, resource.Rented, f.availability(t, "res-1"))

	cancelled, err := f.svc.Cancel(ctx, string(rsv.ID), "renter-1", "found a better deal")
	require.NoError(t, err)
	require.Equal(t, reservation.StatusCancelled, cancelled.Status)
	require.Equal(t, "found a better deal", cancelled.CancelReason)
	require.Equal(t, resource.Available, f.availability(t, "res-1"))

	// the window is free again
	_, err = f.svc.Create(ctx, createParams("res-1", "renter-2", 24*time.Hour, 48*time.Hour))
	require.NoError(t, err)
}

// TestAvailabilityTracksRemainingHolds covers the derived flag with several
// holds in play: the resource stays RENTED while any blocking reservation
// remains and flips back to AVAILABLE only when the last one goes.
func TestAvailabilityTracksRemainingHolds(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")
	ctx := context.Background()

	first, err := f.svc.Create(ctx, createParams("res-1", "renter-1", 24*time.Hour, 24*time.Hour))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, createParams("res-1", "renter-2", 72*time.Hour, 24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, resource.Rented, f.availability(t, "res-1"))

	_, err = f.svc.Cancel(ctx, string(first.ID), "renter-1", "")
	require.NoError(t, err)
	require.Equal(t, resource.Rented, f.availability(t, "res-1"), "one hold remains")

	_, err = f.svc.Cancel(ctx, string(second.ID), "renter-2", "")
	require.NoError(t, err)
	require.Equal(t, resource.Available, f.availability(t, "res-1"))
}

func TestDisputeFlow(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")
	ctx := context.Background()

	rsv, err := f.svc.Create(ctx, createParams("res-1", "renter-1", 24*time.Hour, 48*time.Hour))
	require.NoError(t, err)
	id := string(rsv.ID)

	// support cannot dispute a pending reservation
	_, err = f.svc.Dispute(ctx, id, "item not as described")
	require.ErrorIs(t, err, reservation.ErrInvalidTransition)

	_, err = f.svc.Confirm(ctx, id, "owner-1")
	require.NoError(t, err)

	disputed, err := f.svc.Dispute(ctx, id, "item not as described")
	require.NoError(t, err)
	require.Equal(t, reservation.StatusDisputed, disputed.Status)
	// a disputed reservation no longer holds the resource
	require.Equal(t, resource.Available, f.availability(t, "res-1"))

	// parties cannot push a disputed reservation around via the generic route
	_, err = f.svc.UpdateStatus(ctx, id, "owner-1", reservation.StatusActive, "")
	require.ErrorIs(t, err, reservation.ErrInvalidTransition)

	// nor complete it themselves
	_, err = f.svc.Complete(ctx, id, "owner-1")
	require.ErrorIs(t, err, reservation.ErrInvalidTransition)

	// support resolution closes it out without the elapsed-window guard
	resolved, err := f.svc.Resolve(ctx, id, reservation.StatusCompleted, "refund issued")
	require.NoError(t, err)
	require.Equal(t, reservation.StatusCompleted, resolved.Status)

	// settled means settled
	_, err = f.svc.Resolve(ctx, id, reservation.StatusCancelled, "")
	require.ErrorIs(t, err, reservation.ErrInvalidTransition)
}

func TestGetEnforcesParty(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")
	ctx := context.Background()

	rsv, err := f.svc.Create(ctx, createParams("res-1", "renter-1", 24*time.Hour, 24*time.Hour))
	require.NoError(t, err)

	for _, actor := range []string{"renter-1", "owner-1"} {
		got, err := f.svc.Get(ctx, string(rsv.ID), actor)
		require.NoError(t, err)
		require.Equal(t, rsv.ID, got.ID)
	}

	_, err = f.svc.Get(ctx, string(rsv.ID), "stranger")
	require.ErrorIs(t, err, reservation.ErrForbidden)

	_, err = f.svc.Get(ctx, "rsv-404", "renter-1")
	require.ErrorIs(t, err, reservation.ErrNotFound)
}

func TestListFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		offset := time.Duration(24*(1+2*i)) * time.Hour
		rsv, err := f.svc.Create(ctx, createParams("res-1", "renter-1", offset, 24*time.Hour))
		require.NoError(t, err)
		ids = append(ids, string(rsv.ID))
		f.clock.Advance(time.Minute)
	}
	_, err := f.svc.Cancel(ctx, ids[0], "renter-1", "")
	require.NoError(t, err)

	items, total, err := f.svc.List(ctx, reservation.ListFilter{UserID: "renter-1", Role: reservation.RoleRenter})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, items, 3)
	// newest first
	require.Equal(t, ids[2], string(items[0].ID))

	pending, total, err := f.svc.List(ctx, reservation.ListFilter{UserID: "renter-1", Role: reservation.RoleRenter, Status: reservation.StatusPending})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, pending, 2)

	page2, total, err := f.svc.List(ctx, reservation.ListFilter{UserID: "renter-1", Role: reservation.RoleRenter, Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, page2, 1)

	asOwner, total, err := f.svc.List(ctx, reservation.ListFilter{UserID: "renter-1", Role: reservation.RoleOwner})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, asOwner)
}

func TestListUpcomingOrdersBySoonestEnd(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")
	f.seedResource(t, "res-2", "owner-2")
	ctx := context.Background()

	later, err := f.svc.Create(ctx, createParams("res-1", "renter-1", 24*time.Hour, 96*time.Hour))
	require.NoError(t, err)
	sooner, err := f.svc.Create(ctx, createParams("res-2", "renter-1", 24*time.Hour, 48*time.Hour))
	require.NoError(t, err)

	for _, rsv := range []*reservation.Reservation{later, sooner} {
		owner := rsv.OwnerID
		_, err = f.svc.Confirm(ctx, string(rsv.ID), owner)
		require.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, string(rsv.ID), owner, reservation.StatusActive, "")
		require.NoError(t, err)
	}

	items, err := f.svc.ListUpcoming(ctx, "renter-1", 7)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, sooner.ID, items[0].ID)
	require.Equal(t, later.ID, items[1].ID)

	// a three-day horizon keeps only the sooner rental
	items, err = f.svc.ListUpcoming(ctx, "renter-1", 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, sooner.ID, items[0].ID)
}

func TestStatsCountsAndRevenue(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")
	ctx := context.Background()

	first, err := f.svc.Create(ctx, createParams("res-1", "renter-1", 24*time.Hour, 48*time.Hour))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, createParams("res-1", "renter-1", 96*time.Hour, 24*time.Hour))
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, string(first.ID), "owner-1")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, string(first.ID), "renter-1", reservation.StatusActive, "")
	require.NoError(t, err)
	f.clock.Advance(80 * time.Hour)
	_, err = f.svc.Complete(ctx, string(first.ID), "renter-1")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, string(second.ID), "renter-1", "")
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, "renter-1", reservation.RoleRenter)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Counts[reservation.StatusCompleted])
	require.Equal(t, int64(1), stats.Counts[reservation.StatusCancelled])
	// revenue covers completed rentals only: 2 days at 50.00
	require.Equal(t, int64(10000), stats.TotalRevenueCents)

	ownerStats, err := f.svc.Stats(ctx, "owner-1", reservation.RoleOwner)
	require.NoError(t, err)
	require.Equal(t, int64(10000), ownerStats.TotalRevenueCents)
}

func TestStorageFailureClassification(t *testing.T) {
	f := newFixture(t)
	f.seedResource(t, "res-1", "owner-1")

	f.svc.Outbox = failingOutbox{}
	_, err := f.svc.Create(context.Background(), createParams("res-1", "renter-1", 24*time.Hour, 24*time.Hour))
	require.ErrorIs(t, err, ErrStorage)
}

type failingOutbox struct{}

func (failingOutbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	return errors.New("disk full")
}
