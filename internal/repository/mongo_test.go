package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"socialhub/internal/repository"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("find one decodes the raw document", func(mt *mtest.T) {
		store := repository.NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.users", mtest.FirstBatch, bson.D{
			{Key: "email", Value: "a@x.com"},
		}))

		raw, err := store.FindOne(context.Background(), bson.M{"email": "a@x.com"})
		require.NoError(mt, err)
		assert.Equal(mt, "a@x.com", raw.Lookup("email").StringValue())
	})

	mt.Run("find one maps an empty result", func(mt *mtest.T) {
		store := repository.NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.users", mtest.FirstBatch))

		_, err := store.FindOne(context.Background(), bson.M{"email": "missing@x.com"})
		assert.ErrorIs(mt, err, repository.ErrNoDocument)
	})

	mt.Run("find one and update returns the document", func(mt *mtest.T) {
		store := repository.NewMongo(mt.Coll)
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: bson.D{{Key: "email", Value: "a@x.com"}, {Key: "__v", Value: 2}}},
		})

		raw, err := store.FindOneAndUpdate(context.Background(), bson.M{"email": "a@x.com"}, bson.M{"$inc": bson.M{"__v": 1}}, true)
		require.NoError(mt, err)
		assert.Equal(mt, int32(2), raw.Lookup("__v").Int32())
	})

	mt.Run("duplicate key on insert", func(mt *mtest.T) {
		store := repository.NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := store.InsertMany(context.Background(), []interface{}{bson.M{"email": "a@x.com"}})
		assert.ErrorIs(mt, err, repository.ErrDuplicate)
	})
}
