// Package repository provides the generic document repository used by every domain
// service. Filters and updates are plain bson documents; the Store interface is the
// only place that talks to the database driver.
package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	// ErrNoDocument is returned by single-document reads that match nothing.
	ErrNoDocument = errors.New("no matching document")
	// ErrDuplicate is returned when a write violates a unique index.
	ErrDuplicate = errors.New("duplicate key")
)

// UpdateResult summarises a conditional write.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// FindOptions shapes a multi-document read.
type FindOptions struct {
	Skip  int64
	Limit int64
	Sort  bson.D
}

// Store is the narrow set of document operations the repository needs. update is
// either an operator document (bson.M) or an aggregation pipeline ([]bson.M).
type Store interface {
	FindOne(ctx context.Context, filter bson.M) (bson.Raw, error)
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.Raw, error)
	Count(ctx context.Context, filter bson.M) (int64, error)
	InsertMany(ctx context.Context, docs []interface{}) error
	UpdateOne(ctx context.Context, filter bson.M, update interface{}) (UpdateResult, error)
	FindOneAndUpdate(ctx context.Context, filter bson.M, update interface{}, returnAfter bool) (bson.Raw, error)
	DeleteOne(ctx context.Context, filter bson.M) (int64, error)
}
