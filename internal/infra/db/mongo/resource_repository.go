package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainresource "gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/money"
)

var ErrConcurrentUpdate = errors.New("mongo: concurrent update detected")

type ResourceRepository struct {
	col *mongo.Collection
}

func NewResourceRepository(db *mongo.Database) *ResourceRepository {
	return &ResourceRepository{col: db.Collection("resources")}
}

func (r *ResourceRepository) ByID(ctx context.Context, id domainresource.ResourceID) (*domainresource.Resource, error) {
	var doc resourceDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainresource.ErrResourceNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Save writes the resource guarded by its version. Two transactions flipping
// the same resource race on this CAS: the loser aborts and the caller retries
// the whole operation. This is the row-level serialization point for the
// booking engine.
func (r *ResourceRepository) Save(ctx context.Context, res *domainresource.Resource) error {
	doc := newResourceDocument(res)
	filter := bson.M{"_id": doc.ID, "version": res.Version}
	doc.Version = res.Version + 1
	opts := options.Update().SetUpsert(res.Version == 0)
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
	res.Version = doc.Version
	return nil
}

type resourceDocument struct {
	ID           string `bson:"_id"`
	Owner        string `bson:"owner_id"`
	Title        string `bson:"title"`
	Description  string `bson:"description"`
	RateCents    int64  `bson:"rate_cents"`
	DepositCents int64  `bson:"deposit_cents"`
	Currency     string `bson:"currency"`
	Availability string `bson:"availability"`
	CreatedAt    int64  `bson:"created_at"`
	UpdatedAt    int64  `bson:"updated_at"`
	Version      int64  `bson:"version"`
}

func newResourceDocument(res *domainresource.Resource) resourceDocument {
	return resourceDocument{
		ID:           string(res.ID),
		Owner:        string(res.Owner),
		Title:        res.Title,
		Description:  res.Description,
		RateCents:    res.DailyRate.Cents,
		DepositCents: res.Deposit.Cents,
		Currency:     res.DailyRate.Currency,
		Availability: string(res.Availability),
		CreatedAt:    res.CreatedAt.UnixMilli(),
		UpdatedAt:    res.UpdatedAt.UnixMilli(),
		Version:      res.Version,
	}
}

func (d resourceDocument) toAggregate() *domainresource.Resource {
	return &domainresource.Resource{
		ID:           domainresource.ResourceID(d.ID),
		Owner:        domainresource.OwnerID(d.Owner),
		Title:        d.Title,
		Description:  d.Description,
		DailyRate:    money.Money{Cents: d.RateCents, Currency: d.Currency},
		Deposit:      money.Money{Cents: d.DepositCents, Currency: d.Currency},
		Availability: domainresource.Availability(d.Availability),
		CreatedAt:    timestampToTime(d.CreatedAt),
		UpdatedAt:    timestampToTime(d.UpdatedAt),
		Version:      d.Version,
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
