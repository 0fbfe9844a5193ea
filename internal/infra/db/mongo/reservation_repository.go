package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainreservation "gearshare/internal/domain/reservation"
	domainresource "gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/money"
	"gearshare/internal/domain/shared/timerange"
)

type ReservationRepository struct {
	col *mongo.Collection
}

func NewReservationRepository(db *mongo.Database) *ReservationRepository {
	col := db.Collection("reservations")
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "status", Value: 1}, {Key: "window.start", Value: 1}}},
		{Keys: bson.D{{Key: "renter_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "window.end", Value: 1}}},
	}
	_, _ = col.Indexes().CreateMany(context.Background(), indexes)
	return &ReservationRepository{col: col}
}

func (r *ReservationRepository) ByID(ctx context.Context, id domainreservation.ReservationID) (*domainreservation.Reservation, error) {
	var doc reservationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainreservation.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ReservationRepository) Save(ctx context.Context, rsv *domainreservation.Reservation) error {
	doc := newReservationDocument(rsv)
	filter := bson.M{"_id": doc.ID, "version": rsv.Version}
	doc.Version = rsv.Version + 1
	opts := options.Update().SetUpsert(rsv.Version == 0)
	out, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConcurrentUpdate
		}
		return err
	}
	if out.MatchedCount == 0 && out.UpsertedCount == 0 {
		return ErrConcurrentUpdate
	}
	rsv.Version = doc.Version
	return nil
}

func (r *ReservationRepository) CountBlockingOverlaps(ctx context.Context, id domainresource.ResourceID, window timerange.TimeRange) (int64, error) {
	filter := bson.M{
		"resource_id":  string(id),
		"status":       bson.M{"$in": blockingStatusStrings()},
		"window.start": bson.M{"$lt": window.End.UnixMilli()},
		"window.end":   bson.M{"$gt": window.Start.UnixMilli()},
	}
	return r.col.CountDocuments(ctx, filter)
}

func (r *ReservationRepository) CountBlocking(ctx context.Context, id domainresource.ResourceID) (int64, error) {
	filter := bson.M{
		"resource_id": string(id),
		"status":      bson.M{"$in": blockingStatusStrings()},
	}
	return r.col.CountDocuments(ctx, filter)
}

func (r *ReservationRepository) List(ctx context.Context, filter domainreservation.ListFilter) ([]*domainreservation.Reservation, int64, error) {
	filter = filter.Normalized()
	query := partyFilter(filter.UserID, filter.Role)
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((filter.Page - 1) * filter.PageSize)).
		SetLimit(int64(filter.PageSize))
	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	items, err := decodeAll(ctx, cursor)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *ReservationRepository) ListUpcoming(ctx context.Context, userID string, horizon time.Time) ([]*domainreservation.Reservation, error) {
	query := bson.M{
		"status":     string(domainreservation.StatusActive),
		"window.end": bson.M{"$lte": horizon.UnixMilli()},
		"$or": bson.A{
			bson.M{"renter_id": userID},
			bson.M{"owner_id": userID},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "window.end", Value: 1}})
	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cursor)
}

func (r *ReservationRepository) Stats(ctx context.Context, userID string, role domainreservation.Role) (domainreservation.Stats, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: partyFilter(userID, role)}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":     "$status",
			"count":   bson.M{"$sum": 1},
			"revenue": bson.M{"$sum": "$total_cents"},
		}}},
	}
	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return domainreservation.Stats{}, err
	}
	defer cursor.Close(ctx)

	stats := domainreservation.Stats{Counts: make(map[domainreservation.Status]int64)}
	for cursor.Next(ctx) {
		var row struct {
			Status  string `bson:"_id"`
			Count   int64  `bson:"count"`
			Revenue int64  `bson:"revenue"`
		}
		if err := cursor.Decode(&row); err != nil {
			return domainreservation.Stats{}, err
		}
		status := domainreservation.Status(row.Status)
		stats.Counts[status] = row.Count
		if status == domainreservation.StatusCompleted {
			stats.TotalRevenueCents += row.Revenue
		}
	}
	return stats, cursor.Err()
}

func partyFilter(userID string, role domainreservation.Role) bson.M {
	switch role {
	case domainreservation.RoleOwner:
		return bson.M{"owner_id": userID}
	case domainreservation.RoleRenter:
		return bson.M{"renter_id": userID}
	default:
		return bson.M{"$or": bson.A{
			bson.M{"renter_id": userID},
			bson.M{"owner_id": userID},
		}}
	}
}

func blockingStatusStrings() []string {
	out := make([]string, 0, len(domainreservation.BlockingStatuses))
	for _, s := range domainreservation.BlockingStatuses {
		out = append(out, string(s))
	}
	return out
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]*domainreservation.Reservation, error) {
	defer cursor.Close(ctx)
	items := make([]*domainreservation.Reservation, 0)
	for cursor.Next(ctx) {
		var doc reservationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		items = append(items, doc.toAggregate())
	}
	return items, cursor.Err()
}

type reservationDocument struct {
	ID               string         `bson:"_id"`
	ResourceID       string         `bson:"resource_id"`
	RenterID         string         `bson:"renter_id"`
	OwnerID          string         `bson:"owner_id"`
	Window           windowDocument `bson:"window"`
	TotalCents       int64          `bson:"total_cents"`
	DepositCents     int64          `bson:"deposit_cents"`
	DeliveryFeeCents int64          `bson:"delivery_fee_cents"`
	Currency         string         `bson:"currency"`
	Method           string         `bson:"method"`
	DeliveryAddress  string         `bson:"delivery_address"`
	Status           string         `bson:"status"`
	Notes            string         `bson:"notes"`
	CancelReason     string         `bson:"cancel_reason"`
	CreatedAt        int64          `bson:"created_at"`
	UpdatedAt        int64          `bson:"updated_at"`
	Version          int64          `bson:"version"`
}

type windowDocument struct {
	Start int64 `bson:"start"`
	End   int64 `bson:"end"`
}

func newReservationDocument(rsv *domainreservation.Reservation) reservationDocument {
	return reservationDocument{
		ID:               string(rsv.ID),
		ResourceID:       string(rsv.ResourceID),
		RenterID:         rsv.RenterID,
		OwnerID:          rsv.OwnerID,
		Window:           windowDocument{Start: rsv.Window.Start.UnixMilli(), End: rsv.Window.End.UnixMilli()},
		TotalCents:       rsv.TotalPrice.Cents,
		DepositCents:     rsv.Deposit.Cents,
		DeliveryFeeCents: rsv.DeliveryFee.Cents,
		Currency:         rsv.TotalPrice.Currency,
		Method:           string(rsv.Method),
		DeliveryAddress:  rsv.DeliveryAddress,
		Status:           string(rsv.Status),
		Notes:            rsv.Notes,
		CancelReason:     rsv.CancelReason,
		CreatedAt:        rsv.CreatedAt.UnixMilli(),
		UpdatedAt:        rsv.UpdatedAt.UnixMilli(),
		Version:          rsv.Version,
	}
}

func (d reservationDocument) toAggregate() *domainreservation.Reservation {
	return &domainreservation.Reservation{
		ID:              domainreservation.ReservationID(d.ID),
		ResourceID:      domainresource.ResourceID(d.ResourceID),
		RenterID:        d.RenterID,
		OwnerID:         d.OwnerID,
		Window:          timerange.TimeRange{Start: timestampToTime(d.Window.Start), End: timestampToTime(d.Window.End)},
		TotalPrice:      money.Money{Cents: d.TotalCents, Currency: d.Currency},
		Deposit:         money.Money{Cents: d.DepositCents, Currency: d.Currency},
		DeliveryFee:     money.Money{Cents: d.DeliveryFeeCents, Currency: d.Currency},
		Method:          domainreservation.DeliveryMethod(d.Method),
		DeliveryAddress: d.DeliveryAddress,
		Status:          domainreservation.Status(d.Status),
		Notes:           d.Notes,
		CancelReason:    d.CancelReason,
		CreatedAt:       timestampToTime(d.CreatedAt),
		UpdatedAt:       timestampToTime(d.UpdatedAt),
		Version:         d.Version,
	}
}

var _ domainreservation.Repository = (*ReservationRepository)(nil)
