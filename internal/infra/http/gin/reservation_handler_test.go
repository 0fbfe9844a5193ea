package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gearshare/internal/app/booking"
	"gearshare/internal/domain/pricing"
	"gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/clock"
	"gearshare/internal/domain/shared/money"
	"gearshare/internal/infra/config"
	"gearshare/internal/infra/obs"
	"gearshare/internal/infra/storage/memory"
)

var handlerBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	resources := memory.NewResourceRepository()
	reservations := memory.NewReservationRepository()

	res, err := resource.NewResource(resource.CreateParams{
		ID:        "res-1",
		Owner:     "owner-1",
		Title:     "Makita cordless drill",
		DailyRate: money.Must(1200, "USD"),
		Deposit:   money.Must(5000, "USD"),
		Now:       handlerBase,
	})
	require.NoError(t, err)
	require.NoError(t, resources.Save(context.Background(), res))

	svc := &booking.Service{
		UoWFactory: &memory.Factory{ResourcesRepo: resources, ReservationsRepo: reservations},
		Pricing:    pricing.StandardCalculator{BillingUnit: 24 * time.Hour, DeliveryFee: money.Must(1500, "USD")},
		Clock:      clock.Fixed{At: handlerBase},
		Outbox:     memory.NewOutbox(),
	}

	server := NewServer(config.Config{Env: "test", HTTPAddr: ":0"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Reservation: ReservationHandler{Service: svc},
	})
	return server.Handler
}

func doJSON(t *testing.T, h http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createBody(startOffset, duration time.Duration) map[string]any {
	start := handlerBase.Add(startOffset)
	return map[string]any{
		"resource_id":     "res-1",
		"start":           start.Format(time.RFC3339),
		"end":             start.Add(duration).Format(time.RFC3339),
		"delivery_method": "PICKUP",
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t)
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/livez", "", nil).Code)
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/readyz", "", nil).Code)
}

func TestActorHeaderRequired(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/reservations", "", createBody(24*time.Hour, 24*time.Hour))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reservations", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReservationFlowOverHTTP(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/reservations", "renter-1", createBody(24*time.Hour, 48*time.Hour))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created reservationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "PENDING", created.Status)
	require.Equal(t, int64(2400), created.TotalCents)
	require.Equal(t, "owner-1", created.OwnerID)

	// an overlapping request conflicts
	rec = doJSON(t, h, http.MethodPost, "/api/v1/reservations", "renter-2", createBody(36*time.Hour, 24*time.Hour))
	require.Equal(t, http.StatusConflict, rec.Code)

	// strangers cannot read it
	rec = doJSON(t, h, http.MethodGet, "/api/v1/reservations/"+created.ID, "stranger", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reservations/"+created.ID, "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// renters cannot confirm
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%s/confirm", created.ID), "renter-1", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%s/confirm", created.ID), "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// malformed target status
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%s/status", created.ID), "owner-1", map[string]any{"status": "SHIPPED"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// completing a confirmed reservation is out of order
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%s/complete", created.ID), "owner-1", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%s/status", created.ID), "renter-1", map[string]any{"status": "ACTIVE"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/support/reservations/"+created.ID+"/dispute", "support-1", map[string]any{"reason": "damage claim"})
	require.Equal(t, http.StatusOK, rec.Code)
	var disputed reservationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &disputed))
	require.Equal(t, "DISPUTED", disputed.Status)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/support/reservations/"+created.ID+"/resolve", "support-1", map[string]any{"status": "COMPLETED", "reason": "refund issued"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resolved reservationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	require.Equal(t, "COMPLETED", resolved.Status)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reservations?role=renter", "renter-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Items []reservationResponse `json:"items"`
		Total int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Equal(t, int64(1), listing.Total)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reservations/stats?role=renter", "renter-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoleIsRejected(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/reservations?role=admin", "renter-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reservations/stats?role=admin", "renter-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// omitted role still defaults to renter scope
	rec = doJSON(t, h, http.MethodGet, "/api/v1/reservations", "renter-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownReservationIs404(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/reservations/rsv-404", "renter-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
