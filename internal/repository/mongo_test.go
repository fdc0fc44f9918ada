package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bookloop/messaging-service/internal/config"
	"github.com/bookloop/messaging-service/internal/domain"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func messageDoc(id, sender, receiver, body string, at time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "sender", Value: sender},
		{Key: "receiver", Value: receiver},
		{Key: "message", Value: body},
		{Key: "participants", Value: bson.A{domain.Normalize(sender), domain.Normalize(receiver)}},
		{Key: "timestamp", Value: at},
	}
}

func TestMessagesIndex(t *testing.T) {
	idx := messagesIndex()
	assert.Equal(t, bson.D{{Key: "participants", Value: 1}, {Key: "timestamp", Value: 1}}, idx.Keys)
	require.NotNil(t, idx.Options)
	require.NotNil(t, idx.Options.Name)
	assert.Equal(t, "participants_timestamp_idx", *idx.Options.Name)
}

func TestMongoRepository_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("created", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll, time.Second, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, repo.EnsureIndexes(context.Background()))
	})

	mt.Run("server error", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll, time.Second, nil)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 85, Name: "IndexOptionsConflict", Message: "index exists with different options"}))
		assert.Error(mt, repo.EnsureIndexes(context.Background()))
	})
}

func TestMongoRepository_Append(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("assigns id and timestamp", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll, time.Second, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		in := domain.NewMessage("Alice", "bob", "hello")
		out, err := repo.Append(context.Background(), in)
		require.NoError(mt, err)

		assert.Len(mt, out.ID, 24)
		assert.False(mt, out.Timestamp.IsZero())
		assert.Equal(mt, out.Timestamp, out.Timestamp.Truncate(time.Millisecond))
		assert.Equal(mt, []string{"alice", "bob"}, out.Participants)
		assert.Empty(mt, in.ID)
	})

	mt.Run("write error", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll, time.Second, nil)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		_, err := repo.Append(context.Background(), domain.NewMessage("a", "b", "c"))
		assert.Error(mt, err)
	})
}

func TestMongoRepository_MessagesTouching(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("decodes in store order", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll, time.Second, nil)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			messageDoc("m2", "Bob", "alice", "second", base.Add(time.Minute)),
			messageDoc("m1", "alice", "Bob", "first", base),
		))

		msgs, err := repo.MessagesTouching(context.Background(), "Alice", domain.Descending)
		require.NoError(mt, err)
		require.Len(mt, msgs, 2)
		assert.Equal(mt, "m2", msgs[0].ID)
		assert.Equal(mt, "second", msgs[0].Body)
		assert.Equal(mt, "Bob", msgs[0].Sender)
		assert.True(mt, base.Add(time.Minute).Equal(msgs[0].Timestamp))
		assert.Equal(mt, "m1", msgs[1].ID)
	})

	mt.Run("empty result", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll, time.Second, nil)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		msgs, err := repo.MessagesTouching(context.Background(), "nobody", domain.Ascending)
		require.NoError(mt, err)
		assert.NotNil(mt, msgs)
		assert.Empty(mt, msgs)
	})

	mt.Run("command error", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll, time.Second, nil)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "boom"}))

		_, err := repo.MessagesTouching(context.Background(), "alice", domain.Ascending)
		assert.Error(mt, err)
	})
}

func TestMongoRepository_BreakerOpensAfterFailures(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("fails fast", func(mt *mtest.T) {
		cb := NewBreaker(config.BreakerConfig{Enabled: true, MaxFailures: 2, IntervalSec: 60, TimeoutSec: 60}, nil)
		require.NotNil(mt, cb)
		repo := NewMongoRepository(mt.Coll, time.Second, cb)

		fail := mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "boom"})
		mt.AddMockResponses(fail, fail)

		for i := 0; i < 2; i++ {
			_, err := repo.MessagesTouching(context.Background(), "alice", domain.Ascending)
			require.Error(mt, err)
		}
		_, err := repo.MessagesTouching(context.Background(), "alice", domain.Ascending)
		assert.ErrorIs(mt, err, gobreaker.ErrOpenState)
		assert.Equal(mt, gobreaker.StateOpen, cb.State())
	})
}

func TestNewBreaker_Disabled(t *testing.T) {
	assert.Nil(t, NewBreaker(config.BreakerConfig{Enabled: false}, nil))
}
