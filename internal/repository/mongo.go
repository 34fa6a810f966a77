package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo adapts a *mongo.Collection to Store.
type Mongo struct {
	col *mongo.Collection
}

// NewMongo returns a Store backed by col.
func NewMongo(col *mongo.Collection) *Mongo {
	return &Mongo{col: col}
}

func (m *Mongo) FindOne(ctx context.Context, filter bson.M) (bson.Raw, error) {
	raw, err := m.col.FindOne(ctx, filter).DecodeBytes()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocument
		}
		return nil, fmt.Errorf("find one in %s: %w", m.col.Name(), err)
	}
	return raw, nil
}

func (m *Mongo) Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.Raw, error) {
	findOpts := options.Find()
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	cur, err := m.col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", m.col.Name(), err)
	}
	defer cur.Close(ctx)

	var out []bson.Raw
	for cur.Next(ctx) {
		doc := make(bson.Raw, len(cur.Current))
		copy(doc, cur.Current)
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", m.col.Name(), err)
	}
	return out, nil
}

func (m *Mongo) Count(ctx context.Context, filter bson.M) (int64, error) {
	return m.col.CountDocuments(ctx, filter)
}

func (m *Mongo) InsertMany(ctx context.Context, docs []interface{}) error {
	if _, err := m.col.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert into %s: %w", m.col.Name(), ErrDuplicate)
		}
		return fmt.Errorf("insert into %s: %w", m.col.Name(), err)
	}
	return nil
}

func (m *Mongo) UpdateOne(ctx context.Context, filter bson.M, update interface{}) (UpdateResult, error) {
	res, err := m.col.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return UpdateResult{}, fmt.Errorf("update %s: %w", m.col.Name(), ErrDuplicate)
		}
		return UpdateResult{}, fmt.Errorf("update %s: %w", m.col.Name(), err)
	}
	return UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

func (m *Mongo) FindOneAndUpdate(ctx context.Context, filter bson.M, update interface{}, returnAfter bool) (bson.Raw, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	if returnAfter {
		opts.SetReturnDocument(options.After)
	}
	raw, err := m.col.FindOneAndUpdate(ctx, filter, update, opts).DecodeBytes()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocument
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("find and update %s: %w", m.col.Name(), ErrDuplicate)
		}
		return nil, fmt.Errorf("find and update %s: %w", m.col.Name(), err)
	}
	return raw, nil
}

func (m *Mongo) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	res, err := m.col.DeleteOne(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", m.col.Name(), err)
	}
	return res.DeletedCount, nil
}
