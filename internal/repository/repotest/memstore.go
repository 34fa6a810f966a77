// Package repotest provides an in-memory repository.Store for tests. It evaluates
// the subset of the query and update language the services use.
package repotest

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"socialhub/internal/repository"
)

// MemStore keeps documents in insertion order.
type MemStore struct {
	mu     sync.Mutex
	docs   []bson.M
	unique []string
}

// NewMemStore returns an empty store enforcing uniqueness on the given fields.
func NewMemStore(uniqueFields ...string) *MemStore {
	return &MemStore{unique: uniqueFields}
}

// Len returns the number of stored documents.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Raw returns the first document matching filter with no scoping applied.
func (s *MemStore) Raw(filter bson.M) (bson.M, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if matches(d, filter) {
			return clone(d), true
		}
	}
	return nil, false
}

func (s *MemStore) FindOne(_ context.Context, filter bson.M) (bson.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if matches(d, filter) {
			return bson.Marshal(d)
		}
	}
	return nil, repository.ErrNoDocument
}

func (s *MemStore) Find(_ context.Context, filter bson.M, opts repository.FindOptions) ([]bson.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hits []bson.M
	for _, d := range s.docs {
		if matches(d, filter) {
			hits = append(hits, d)
		}
	}
	if len(opts.Sort) > 0 {
		key := opts.Sort[0].Key
		desc := fmt.Sprint(opts.Sort[0].Value) == "-1"
		sort.SliceStable(hits, func(i, j int) bool {
			if desc {
				return less(hits[j][key], hits[i][key])
			}
			return less(hits[i][key], hits[j][key])
		})
	}
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(hits)) {
			hits = nil
		} else {
			hits = hits[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int64(len(hits)) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	out := make([]bson.Raw, 0, len(hits))
	for _, d := range hits {
		raw, err := bson.Marshal(d)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (s *MemStore) Count(_ context.Context, filter bson.M) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.docs {
		if matches(d, filter) {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) InsertMany(_ context.Context, docs []interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]bson.M, 0, len(docs))
	for _, v := range docs {
		d, err := toDoc(v)
		if err != nil {
			return err
		}
		if _, ok := d["_id"]; !ok {
			d["_id"] = primitive.NewObjectID()
		}
		if s.duplicates(d, -1) || duplicatesWithin(batch, d, s.unique) {
			return repository.ErrDuplicate
		}
		batch = append(batch, d)
	}
	s.docs = append(s.docs, batch...)
	return nil
}

func (s *MemStore) UpdateOne(_ context.Context, filter bson.M, update interface{}) (repository.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if !matches(d, filter) {
			continue
		}
		next, err := apply(d, update)
		if err != nil {
			return repository.UpdateResult{}, err
		}
		if s.duplicates(next, i) {
			return repository.UpdateResult{}, repository.ErrDuplicate
		}
		res := repository.UpdateResult{Matched: 1}
		if !reflect.DeepEqual(d, next) {
			res.Modified = 1
		}
		s.docs[i] = next
		return res, nil
	}
	return repository.UpdateResult{}, nil
}

func (s *MemStore) FindOneAndUpdate(_ context.Context, filter bson.M, update interface{}, returnAfter bool) (bson.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if !matches(d, filter) {
			continue
		}
		next, err := apply(d, update)
		if err != nil {
			return nil, err
		}
		if s.duplicates(next, i) {
			return nil, repository.ErrDuplicate
		}
		s.docs[i] = next
		if returnAfter {
			return bson.Marshal(next)
		}
		return bson.Marshal(d)
	}
	return nil, repository.ErrNoDocument
}

func (s *MemStore) DeleteOne(_ context.Context, filter bson.M) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if matches(d, filter) {
			s.docs = append(s.docs[:i], s.docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *MemStore) duplicates(d bson.M, skip int) bool {
	for i, other := range s.docs {
		if i == skip {
			continue
		}
		if collide(d, other, s.unique) {
			return true
		}
	}
	return false
}

func duplicatesWithin(batch []bson.M, d bson.M, fields []string) bool {
	for _, other := range batch {
		if collide(d, other, fields) {
			return true
		}
	}
	return false
}

func collide(a, b bson.M, fields []string) bool {
	if reflect.DeepEqual(a["_id"], b["_id"]) {
		return true
	}
	for _, f := range fields {
		av, aok := a[f]
		bv, bok := b[f]
		if aok && bok && reflect.DeepEqual(av, bv) {
			return true
		}
	}
	return false
}

// normalize runs v through the bson codec so Go values compare equal to stored ones.
func normalize(v interface{}) interface{} {
	raw, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return v
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out["v"]
}

func toDoc(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d bson.M
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return d, nil
}

func clone(d bson.M) bson.M {
	c, err := toDoc(d)
	if err != nil {
		return bson.M{}
	}
	return c
}

func asDoc(v interface{}) (bson.M, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]interface{}:
		return t, true
	case bson.D:
		return t.Map(), true
	}
	return nil, false
}

func matches(d bson.M, filter bson.M) bool {
	for key, cond := range filter {
		switch key {
		case "$and":
			for _, sub := range toArray(cond) {
				f, _ := asDoc(sub)
				if !matches(d, f) {
					return false
				}
			}
			continue
		case "$or":
			hit := false
			for _, sub := range toArray(cond) {
				f, _ := asDoc(sub)
				if matches(d, f) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
			continue
		}
		val, present := lookup(d, key)
		if ops, ok := asDoc(cond); ok && isOperatorDoc(ops) {
			if !matchOperators(val, present, ops) {
				return false
			}
			continue
		}
		if !present || !equalOrContains(val, normalize(cond)) {
			return false
		}
	}
	return true
}

func lookup(d bson.M, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = d
	for _, p := range parts {
		m, ok := asDoc(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func isOperatorDoc(m bson.M) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func matchOperators(val interface{}, present bool, ops bson.M) bool {
	for op, arg := range ops {
		switch op {
		case "$exists":
			want, _ := arg.(bool)
			if present != want {
				return false
			}
		case "$eq":
			if !present || !equalOrContains(val, normalize(arg)) {
				return false
			}
		case "$ne":
			if present && equalOrContains(val, normalize(arg)) {
				return false
			}
		case "$in":
			hit := false
			for _, candidate := range toArray(normalize(arg)) {
				if present && equalOrContains(val, candidate) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !present {
				return false
			}
			want := normalize(arg)
			switch op {
			case "$gt":
				if !less(want, val) {
					return false
				}
			case "$gte":
				if less(val, want) {
					return false
				}
			case "$lt":
				if !less(val, want) {
					return false
				}
			case "$lte":
				if less(want, val) {
					return false
				}
			}
		default:
			return false
		}
	}
	return true
}

func equalOrContains(val, want interface{}) bool {
	if reflect.DeepEqual(val, want) {
		return true
	}
	if arr, ok := val.(primitive.A); ok {
		for _, item := range arr {
			if reflect.DeepEqual(item, want) {
				return true
			}
		}
	}
	return false
}

func toArray(v interface{}) []interface{} {
	switch t := v.(type) {
	case primitive.A:
		return t
	case []interface{}:
		return t
	case []bson.M:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return nil
}

func less(a, b interface{}) bool {
	switch x := a.(type) {
	case primitive.DateTime:
		if y, ok := b.(primitive.DateTime); ok {
			return x < y
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y
		}
	}
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	return aok && bok && fa < fb
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func apply(d bson.M, update interface{}) (bson.M, error) {
	next := clone(d)
	if u, ok := asDoc(update); ok {
		return next, applyOperators(next, u)
	}
	for _, stage := range toArray(update) {
		st, ok := asDoc(stage)
		if !ok {
			return nil, fmt.Errorf("unsupported pipeline stage %T", stage)
		}
		if err := applyStage(next, st); err != nil {
			return nil, err
		}
	}
	return next, nil
}

func applyOperators(d bson.M, u bson.M) error {
	for op, arg := range u {
		fields, ok := asDoc(arg)
		if !ok {
			return fmt.Errorf("operator %s needs a document", op)
		}
		switch op {
		case "$set":
			for k, v := range fields {
				d[k] = normalize(v)
			}
		case "$unset":
			for k := range fields {
				delete(d, k)
			}
		case "$inc":
			for k, v := range fields {
				d[k] = add(d[k], normalize(v))
			}
		case "$push":
			for k, v := range fields {
				arr, _ := d[k].(primitive.A)
				d[k] = append(append(primitive.A{}, arr...), normalize(v))
			}
		case "$pull":
			for k, v := range fields {
				arr, _ := d[k].(primitive.A)
				kept := primitive.A{}
				want := normalize(v)
				for _, item := range arr {
					if !reflect.DeepEqual(item, want) {
						kept = append(kept, item)
					}
				}
				d[k] = kept
			}
		default:
			return fmt.Errorf("unsupported update operator %s", op)
		}
	}
	return nil
}

func applyStage(d bson.M, stage bson.M) error {
	for op, arg := range stage {
		switch op {
		case "$set", "$addFields":
			fields, ok := asDoc(arg)
			if !ok {
				return fmt.Errorf("%s stage needs a document", op)
			}
			computed := bson.M{}
			for k, expr := range fields {
				computed[k] = eval(d, expr)
			}
			for k, v := range computed {
				d[k] = v
			}
		case "$unset":
			if name, ok := arg.(string); ok {
				delete(d, name)
				continue
			}
			for _, name := range toArray(arg) {
				if s, ok := name.(string); ok {
					delete(d, s)
				}
			}
		default:
			return fmt.Errorf("unsupported pipeline stage %s", op)
		}
	}
	return nil
}

func eval(d bson.M, expr interface{}) interface{} {
	if s, ok := expr.(string); ok && strings.HasPrefix(s, "$") {
		v, _ := lookup(d, strings.TrimPrefix(s, "$"))
		return v
	}
	if m, ok := asDoc(expr); ok {
		if args, ok := m["$add"]; ok {
			var sum interface{} = int32(0)
			for _, a := range toArray(args) {
				sum = add(sum, eval(d, a))
			}
			return sum
		}
	}
	if t, ok := expr.(time.Time); ok {
		return primitive.NewDateTimeFromTime(t)
	}
	return normalize(expr)
}

func add(a, b interface{}) interface{} {
	switch x := a.(type) {
	case nil:
		return b
	case int32:
		switch y := b.(type) {
		case int32:
			return x + y
		case int64:
			return int64(x) + y
		case float64:
			return float64(x) + y
		}
	case int64:
		switch y := b.(type) {
		case int32:
			return x + int64(y)
		case int64:
			return x + y
		case float64:
			return float64(x) + y
		}
	case float64:
		if f, ok := toFloat(b); ok {
			return x + f
		}
	}
	return b
}
