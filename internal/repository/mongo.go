package repository

import (
	"context"
	"time"

	"github.com/bookloop/messaging-service/internal/domain"
	"github.com/bookloop/messaging-service/internal/utils"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultTimeout = 5 * time.Second

// MongoRepository stores messages in a single collection, one document per
// message, in the shape the web app already writes:
//
//	{_id, sender, receiver, message, participants, timestamp}
type MongoRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker // optional
}

func NewMongoRepository(coll *mongo.Collection, timeout time.Duration, cb *gobreaker.CircuitBreaker) *MongoRepository {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &MongoRepository{coll: coll, timeout: timeout, cb: cb}
}

// messagesIndex serves both read paths: threads walk it forward, the inbox
// backward.
func messagesIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: options.Index().SetName("participants_timestamp_idx"),
	}
}

// EnsureIndexes creates the membership index both read paths rely on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.Indexes().CreateOne(ctx, messagesIndex())
	return err
}

func (r *MongoRepository) Append(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc := *m
	doc.ID = primitive.NewObjectID().Hex()
	// BSON dates carry milliseconds; truncate so the returned copy matches what a read sees
	doc.Timestamp = utils.NowUTC().Truncate(time.Millisecond)

	_, err := r.guard(func() (any, error) {
		return r.coll.InsertOne(ctx, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *MongoRepository) MessagesTouching(ctx context.Context, identity string, order domain.SortOrder) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	dir := 1
	if order == domain.Descending {
		dir = -1
	}
	filter := bson.M{"participants": domain.Normalize(identity)}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: dir}, {Key: "_id", Value: dir}})

	res, err := r.guard(func() (any, error) {
		cur, err := r.coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, err
		}
		defer cur.Close(ctx)

		out := make([]*domain.Message, 0)
		for cur.Next(ctx) {
			var m domain.Message
			if err := cur.Decode(&m); err != nil {
				return nil, err
			}
			out = append(out, &m)
		}
		return out, cur.Err()
	})
	if err != nil {
		return nil, err
	}
	return res.([]*domain.Message), nil
}

func (r *MongoRepository) guard(fn func() (any, error)) (any, error) {
	if r.cb == nil {
		return fn()
	}
	return r.cb.Execute(fn)
}
