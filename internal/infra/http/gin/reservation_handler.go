package ginserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	gin "github.com/gin-gonic/gin"

	"gearshare/internal/app/booking"
	"gearshare/internal/domain/reservation"
	"gearshare/internal/domain/resource"
)

// ReservationHandler adapts the booking service to HTTP. Identity is asserted
// upstream; the trusted actor id arrives in the X-Actor-ID header.
type ReservationHandler struct {
	Service *booking.Service
}

type createReservationRequest struct {
	ResourceID      string    `json:"resource_id" binding:"required"`
	Start           time.Time `json:"start" binding:"required"`
	End             time.Time `json:"end" binding:"required"`
	Method          string    `json:"delivery_method" binding:"required"`
	DeliveryAddress string    `json:"delivery_address"`
	Notes           string    `json:"notes"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

type resolveRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

func (h ReservationHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	method, err := reservation.ParseDeliveryMethod(req.Method)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rsv, err := h.Service.Create(c.Request.Context(), booking.CreateParams{
		ResourceID:      req.ResourceID,
		RenterID:        actor,
		Start:           req.Start,
		End:             req.End,
		Method:          method,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toReservationResponse(rsv))
}

func (h ReservationHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	rsv, err := h.Service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(rsv))
}

func (h ReservationHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	role, err := reservation.ParseRole(c.DefaultQuery("role", string(reservation.RoleRenter)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter := reservation.ListFilter{
		UserID:   actor,
		Role:     role,
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := reservation.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Status = status
	}
	items, total, err := h.Service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]reservationResponse, 0, len(items))
	for _, rsv := range items {
		out = append(out, toReservationResponse(rsv))
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "total": total})
}

func (h ReservationHandler) Upcoming(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	items, err := h.Service.ListUpcoming(c.Request.Context(), actor, queryInt(c, "within_days", 7))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]reservationResponse, 0, len(items))
	for _, rsv := range items {
		out = append(out, toReservationResponse(rsv))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h ReservationHandler) Stats(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	role, err := reservation.ParseRole(c.DefaultQuery("role", string(reservation.RoleRenter)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stats, err := h.Service.Stats(c.Request.Context(), actor, role)
	if err != nil {
		respondError(c, err)
		return
	}
	counts := make(map[string]int64, len(stats.Counts))
	for status, n := range stats.Counts {
		counts[string(status)] = n
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts, "total_revenue_cents": stats.TotalRevenueCents})
}

func (h ReservationHandler) Confirm(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	rsv, err := h.Service.Confirm(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(rsv))
}

func (h ReservationHandler) Cancel(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	rsv, err := h.Service.Cancel(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(rsv))
}

func (h ReservationHandler) Complete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	rsv, err := h.Service.Complete(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(rsv))
}

func (h ReservationHandler) UpdateStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, err := reservation.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rsv, err := h.Service.UpdateStatus(c.Request.Context(), c.Param("id"), actor, target, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(rsv))
}

func (h ReservationHandler) Dispute(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	rsv, err := h.Service.Dispute(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(rsv))
}

func (h ReservationHandler) Resolve(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := reservation.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rsv, err := h.Service.Resolve(c.Request.Context(), c.Param("id"), outcome, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(rsv))
}

type reservationResponse struct {
	ID               string    `json:"id"`
	ResourceID       string    `json:"resource_id"`
	RenterID         string    `json:"renter_id"`
	OwnerID          string    `json:"owner_id"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	TotalCents       int64     `json:"total_cents"`
	DepositCents     int64     `json:"deposit_cents"`
	DeliveryFeeCents int64     `json:"delivery_fee_cents"`
	Currency         string    `json:"currency"`
	Method           string    `json:"delivery_method"`
	DeliveryAddress  string    `json:"delivery_address,omitempty"`
	Status           string    `json:"status"`
	Notes            string    `json:"notes,omitempty"`
	CancelReason     string    `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toReservationResponse(rsv *reservation.Reservation) reservationResponse {
	return reservationResponse{
		ID:               string(rsv.ID),
		ResourceID:       string(rsv.ResourceID),
		RenterID:         rsv.RenterID,
		OwnerID:          rsv.OwnerID,
		Start:            rsv.Window.Start,
		End:              rsv.Window.End,
		TotalCents:       rsv.TotalPrice.Cents,
		DepositCents:     rsv.Deposit.Cents,
		DeliveryFeeCents: rsv.DeliveryFee.Cents,
		Currency:         rsv.TotalPrice.Currency,
		Method:           string(rsv.Method),
		DeliveryAddress:  rsv.DeliveryAddress,
		Status:           string(rsv.Status),
		Notes:            rsv.Notes,
		CancelReason:     rsv.CancelReason,
		CreatedAt:        rsv.CreatedAt,
		UpdatedAt:        rsv.UpdatedAt,
	}
}

func requireActor(c *gin.Context) (string, bool) {
	actor := c.GetHeader("X-Actor-ID")
	if actor == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "actor identity required"})
		return "", false
	}
	return actor, true
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, reservation.ErrNotFound), errors.Is(err, resource.ErrResourceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, reservation.ErrForbidden), errors.Is(err, reservation.ErrSelfBooking):
		status = http.StatusForbidden
	case errors.Is(err, reservation.ErrWindowConflict),
		errors.Is(err, reservation.ErrResourceUnavailable),
		errors.Is(err, reservation.ErrInvalidTransition),
		errors.Is(err, reservation.ErrWindowNotElapsed):
		status = http.StatusConflict
	case errors.Is(err, reservation.ErrInvalidWindow),
		errors.Is(err, reservation.ErrMissingDeliveryAddress),
		errors.Is(err, reservation.ErrUnknownStatus),
		errors.Is(err, reservation.ErrUnknownDeliveryMethod),
		errors.Is(err, reservation.ErrUnknownRole):
		status = http.StatusBadRequest
	case errors.Is(err, booking.ErrStorage):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

var _ ReservationHTTP = ReservationHandler{}
