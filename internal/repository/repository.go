package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// FrozenField marks a soft-deleted document.
	FrozenField = "freezedAt"
	// VersionField is the revision counter bumped by every write.
	VersionField = "__v"
)

// Options tunes a single repository call.
type Options struct {
	// IncludeFrozen disables the soft-delete predicate (paranoid off).
	IncludeFrozen bool
	// ReturnBefore makes FindOneAndUpdate return the document as it was before the write.
	ReturnBefore bool
}

type creator interface {
	BeforeCreate(now time.Time)
}

// Repository is a typed view over a Store. A paranoid repository hides frozen
// documents from every read and write unless the call opts out.
type Repository[T any] struct {
	store    Store
	paranoid bool
	now      func() time.Time
}

// New returns a repository for documents of type T.
func New[T any](store Store, paranoid bool) *Repository[T] {
	return &Repository[T]{store: store, paranoid: paranoid, now: time.Now}
}

// WithClock overrides the time source used for timestamps.
func (r *Repository[T]) WithClock(now func() time.Time) *Repository[T] {
	r.now = now
	return r
}

func (r *Repository[T]) scope(filter bson.M, opts []Options) bson.M {
	out := bson.M{}
	for k, v := range filter {
		out[k] = v
	}
	if !r.paranoid {
		return out
	}
	for _, o := range opts {
		if o.IncludeFrozen {
			return out
		}
	}
	if _, ok := out[FrozenField]; !ok {
		out[FrozenField] = bson.M{"$exists": false}
	}
	return out
}

// revise adds the revision bump and updatedAt stamp to an update.
func (r *Repository[T]) revise(update interface{}) (interface{}, error) {
	now := r.now()
	switch u := update.(type) {
	case bson.M:
		out := bson.M{}
		for k, v := range u {
			out[k] = v
		}
		inc := bson.M{}
		if existing, ok := out["$inc"].(bson.M); ok {
			for k, v := range existing {
				inc[k] = v
			}
		}
		inc[VersionField] = 1
		out["$inc"] = inc

		set := bson.M{}
		if existing, ok := out["$set"].(bson.M); ok {
			for k, v := range existing {
				set[k] = v
			}
		}
		if _, ok := set["updatedAt"]; !ok {
			set["updatedAt"] = now
		}
		out["$set"] = set
		return out, nil
	case []bson.M:
		out := make([]bson.M, 0, len(u)+1)
		out = append(out, u...)
		out = append(out, bson.M{"$set": bson.M{
			VersionField: bson.M{"$add": bson.A{"$" + VersionField, 1}},
			"updatedAt":  now,
		}})
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported update type %T", update)
	}
}

func decode[T any](raw bson.Raw) (*T, error) {
	var v T
	if err := bson.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &v, nil
}

// FindOne returns the first matching document or ErrNoDocument.
func (r *Repository[T]) FindOne(ctx context.Context, filter bson.M, opts ...Options) (*T, error) {
	raw, err := r.store.FindOne(ctx, r.scope(filter, opts))
	if err != nil {
		return nil, err
	}
	return decode[T](raw)
}

// FindByID looks a document up by its _id.
func (r *Repository[T]) FindByID(ctx context.Context, id primitive.ObjectID, opts ...Options) (*T, error) {
	return r.FindOne(ctx, bson.M{"_id": id}, opts...)
}

// Find returns every matching document.
func (r *Repository[T]) Find(ctx context.Context, filter bson.M, findOpts FindOptions, opts ...Options) ([]*T, error) {
	raws, err := r.store.Find(ctx, r.scope(filter, opts), findOpts)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		v, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Page is one slice of a paginated read.
type Page[T any] struct {
	Pages       int64 `json:"pages,omitempty"`
	Count       int64 `json:"countDocuments,omitempty"`
	Size        int64 `json:"size,omitempty"`
	CurrentPage int64 `json:"currentPage,omitempty"`
	Result      []*T  `json:"result"`
}

// Paginate reads one page of size documents. page < 1 returns everything.
func (r *Repository[T]) Paginate(ctx context.Context, filter bson.M, page, size int64, opts ...Options) (*Page[T], error) {
	out := &Page[T]{}
	findOpts := FindOptions{}
	if page >= 1 {
		if size < 1 {
			size = 5
		}
		count, err := r.store.Count(ctx, r.scope(filter, opts))
		if err != nil {
			return nil, err
		}
		findOpts.Limit = size
		findOpts.Skip = (page - 1) * size
		out.Count = count
		out.Size = size
		out.CurrentPage = page
		out.Pages = int64(math.Ceil(float64(count) / float64(size)))
	}
	result, err := r.Find(ctx, filter, findOpts, opts...)
	if err != nil {
		return nil, err
	}
	out.Result = result
	return out, nil
}

// Create inserts docs after running their BeforeCreate hook.
func (r *Repository[T]) Create(ctx context.Context, docs ...*T) ([]*T, error) {
	now := r.now()
	batch := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		if c, ok := any(d).(creator); ok {
			c.BeforeCreate(now)
		}
		batch = append(batch, d)
	}
	if err := r.store.InsertMany(ctx, batch); err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateOne applies update to the first matching document.
func (r *Repository[T]) UpdateOne(ctx context.Context, filter bson.M, update interface{}, opts ...Options) (UpdateResult, error) {
	revised, err := r.revise(update)
	if err != nil {
		return UpdateResult{}, err
	}
	return r.store.UpdateOne(ctx, r.scope(filter, opts), revised)
}

// FindOneAndUpdate applies update and returns the document after the write,
// or before it with Options.ReturnBefore.
func (r *Repository[T]) FindOneAndUpdate(ctx context.Context, filter bson.M, update interface{}, opts ...Options) (*T, error) {
	revised, err := r.revise(update)
	if err != nil {
		return nil, err
	}
	after := true
	for _, o := range opts {
		if o.ReturnBefore {
			after = false
		}
	}
	raw, err := r.store.FindOneAndUpdate(ctx, r.scope(filter, opts), revised, after)
	if err != nil {
		return nil, err
	}
	return decode[T](raw)
}

// FindByIDAndUpdate is FindOneAndUpdate keyed by _id.
func (r *Repository[T]) FindByIDAndUpdate(ctx context.Context, id primitive.ObjectID, update interface{}, opts ...Options) (*T, error) {
	return r.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts...)
}

// DeleteOne removes the first matching document and reports how many were deleted.
func (r *Repository[T]) DeleteOne(ctx context.Context, filter bson.M, opts ...Options) (int64, error) {
	return r.store.DeleteOne(ctx, r.scope(filter, opts))
}
