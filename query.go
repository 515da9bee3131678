// Copyright 2024 The FirestORM Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package firestorm

import (
	"context"
	"reflect"
	"time"

	"github.com/nelsondiego/FirestORM/driver"
	"github.com/nelsondiego/FirestORM/internal/fserr"
)

// Query represents an unexecuted read (or bulk delete) plan over one
// collection path. Constraints accumulate through chaining; the terminal
// methods (Get, First, Count, the paginators, Listen, DeleteAll) render and
// execute them. A Query is not safe for concurrent use; use Clone to branch.
type Query struct {
	coll *Collection
	dq   *driver.Query
	err  error
}

// Query creates a new, unconstrained Query over the collection.
func (c *Collection) Query() *Query {
	return &Query{coll: c, dq: &driver.Query{Path: c.path}}
}

// Where starts a Query with one condition. See Query.Where.
func (c *Collection) Where(field, op string, value interface{}) *Query {
	return c.Query().Where(field, op, value)
}

// WhereIn starts a Query constrained to documents whose field is one of
// values.
func (c *Collection) WhereIn(field string, values []interface{}) *Query {
	return c.Query().WhereIn(field, values)
}

// WhereNotIn starts a Query constrained to documents whose field is none of
// values.
func (c *Collection) WhereNotIn(field string, values []interface{}) *Query {
	return c.Query().WhereNotIn(field, values)
}

// OrderBy starts a Query sorted by field. See Query.OrderBy.
func (c *Collection) OrderBy(field, direction string) *Query {
	return c.Query().OrderBy(field, direction)
}

// Where expresses a condition on the query.
// Valid ops are: "==", "!=", ">", "<", ">=", "<=", "in", "not-in",
// "array-contains" and "array-contains-any".
// For "in", "not-in" and "array-contains-any" the value must be a slice;
// for the others it must be a string, number, bool or time.Time.
func (q *Query) Where(field, op string, value interface{}) *Query {
	if q.err != nil {
		return q
	}
	if field == "" {
		return q.invalidf("Where: empty field")
	}
	if !validOp[op] {
		return q.invalidf("invalid filter operator: %q. Use one of: ==, !=, >, <, >=, <=, in, not-in, array-contains, array-contains-any", op)
	}
	if !validFilterValue(op, value) {
		return q.invalidf("invalid filter value for %q: %v", op, value)
	}
	q.dq.Filters = append(q.dq.Filters, driver.Filter{
		Field: field,
		Op:    op,
		Value: value,
	})
	return q
}

// WhereIn adds an "in" condition: the field's value must equal one of
// values.
func (q *Query) WhereIn(field string, values []interface{}) *Query {
	return q.Where(field, "in", values)
}

// WhereNotIn adds a "not-in" condition: the field's value must equal none of
// values.
func (q *Query) WhereNotIn(field string, values []interface{}) *Query {
	return q.Where(field, "not-in", values)
}

var validOp = map[string]bool{
	driver.EqualOp:       true,
	"!=":                 true,
	">":                  true,
	"<":                  true,
	">=":                 true,
	"<=":                 true,
	"in":                 true,
	"not-in":             true,
	"array-contains":     true,
	"array-contains-any": true,
}

// Ops whose filter value is a list of candidates rather than a scalar.
var sliceValueOp = map[string]bool{
	"in":                 true,
	"not-in":             true,
	"array-contains-any": true,
}

func validFilterValue(op string, v interface{}) bool {
	if v == nil {
		return false
	}
	if sliceValueOp[op] {
		return reflect.TypeOf(v).Kind() == reflect.Slice
	}
	if _, ok := v.(time.Time); ok {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.String, reflect.Bool:
		return true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	case reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// Ascending and Descending are constants for use in the OrderBy method.
const (
	Ascending  = "asc"
	Descending = "desc"
)

// OrderBy appends a sort key. direction is Ascending or Descending. A query
// may have several sort keys; they apply in the order given.
func (q *Query) OrderBy(field, direction string) *Query {
	if q.err != nil {
		return q
	}
	if field == "" {
		return q.invalidf("OrderBy: empty field")
	}
	if direction != Ascending && direction != Descending {
		return q.invalidf("OrderBy: direction must be one of %q or %q", Ascending, Descending)
	}
	q.dq.Orders = append(q.dq.Orders, driver.Order{
		Field:      field,
		Descending: direction == Descending,
	})
	return q
}

// Limit will limit the results to at most n documents.
// n must be positive.
// It is an error to specify Limit more than once.
func (q *Query) Limit(n int) *Query {
	if q.err != nil {
		return q
	}
	if n <= 0 {
		return q.invalidf("limit value of %d must be greater than zero", n)
	}
	if q.dq.Limit > 0 {
		return q.invalidf("query can have at most one limit clause")
	}
	q.dq.Limit = n
	return q
}

// Clone returns an independent copy of the query. Constraint lists are
// copied by value; constraining the clone never changes the original.
func (q *Query) Clone() *Query {
	dq := &driver.Query{
		Path:       q.dq.Path,
		Filters:    append([]driver.Filter(nil), q.dq.Filters...),
		Orders:     append([]driver.Order(nil), q.dq.Orders...),
		Limit:      q.dq.Limit,
		StartAfter: q.dq.StartAfter,
	}
	return &Query{coll: q.coll, dq: dq, err: q.err}
}

func (q *Query) invalidf(format string, args ...interface{}) *Query {
	q.err = fserr.Newf(fserr.InvalidArgument, nil, format, args...)
	return q
}

func (q *Query) init() error {
	if q.err != nil {
		return q.err
	}
	return q.coll.client.checkClosed()
}

// Get renders the accumulated constraints into one read and returns the
// matching documents, each with its id merged in.
func (q *Query) Get(ctx context.Context) (docs []Doc, err error) {
	if err := q.init(); err != nil {
		return nil, err
	}
	c := q.coll
	ctx, span := c.client.tracer.Start(ctx, "Query.Get")
	defer func() { c.client.tracer.End(span, err) }()

	ds, err := c.client.conn.RunQuery(ctx, q.dq)
	if err != nil {
		return nil, wrapError(c.client.conn, err)
	}
	return mergeIDs(ds), nil
}

// First returns the first matching document, or nil when there is none.
// It injects a limit of 1 regardless of any accumulated limit.
func (q *Query) First(ctx context.Context) (Doc, error) {
	q1 := q.Clone()
	q1.dq.Limit = 1
	docs, err := q1.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// FirstOrFail is First, except that an empty result is an error with code
// NotFound.
func (q *Query) FirstOrFail(ctx context.Context) (Doc, error) {
	doc, err := q.First(ctx)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fserr.Newf(fserr.NotFound, nil, "firestorm: no document matches query on %q", q.coll.path)
	}
	return doc, nil
}

// Find looks up a single document by id directly under the query's
// collection path. The accumulated filters do not apply; they constrain only
// Get and the paginators.
func (q *Query) Find(ctx context.Context, id interface{}) (Doc, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.coll.Find(ctx, id)
}

// Count returns the number of documents matching the accumulated filters,
// using the service's server-side aggregation. Limit and cursors are
// ignored.
func (q *Query) Count(ctx context.Context) (n int, err error) {
	if err := q.init(); err != nil {
		return 0, err
	}
	c := q.coll
	ctx, span := c.client.tracer.Start(ctx, "Query.Count")
	defer func() { c.client.tracer.End(span, err) }()

	total, err := c.client.conn.Count(ctx, q.dq)
	if err != nil {
		return 0, wrapError(c.client.conn, err)
	}
	return int(total), nil
}

// Exists reports whether at least one document matches the accumulated
// filters.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	n, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create persists a new document in the query's collection. It is a
// convenience equal to calling Create on the collection; the accumulated
// filters do not apply.
func (q *Query) Create(ctx context.Context, data Doc, customID ...interface{}) (*Record, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.coll.Create(ctx, data, customID...)
}

// Update writes data onto the document with the given id in the query's
// collection. The accumulated filters do not apply.
func (q *Query) Update(ctx context.Context, id interface{}, data Doc) error {
	if q.err != nil {
		return q.err
	}
	return q.coll.Update(ctx, id, data)
}

// Destroy removes the document with the given id in the query's collection.
// The accumulated filters do not apply.
func (q *Query) Destroy(ctx context.Context, id interface{}) error {
	if q.err != nil {
		return q.err
	}
	return q.coll.Destroy(ctx, id)
}

// DeleteAll re-fetches every document matching the accumulated filters and
// deletes them in sequential batches of at most driver.MaxBatchWrites. It
// returns the number of documents deleted. The batches are independent
// commits: a failure partway through leaves the earlier batches deleted, and
// the returned count covers only the documents deleted before the failure.
func (q *Query) DeleteAll(ctx context.Context) (deleted int, err error) {
	if err := q.init(); err != nil {
		return 0, err
	}
	c := q.coll
	ctx, span := c.client.tracer.Start(ctx, "Query.DeleteAll")
	defer func() { c.client.tracer.End(span, err) }()

	all := q.Clone()
	all.dq.Limit = 0
	all.dq.StartAfter = ""
	ds, err := c.client.conn.RunQuery(ctx, all.dq)
	if err != nil {
		return 0, wrapError(c.client.conn, err)
	}
	writes := make([]driver.Write, len(ds))
	for i, d := range ds {
		writes[i] = driver.Write{Kind: driver.Delete, Path: c.path, ID: d.ID}
	}
	for _, chunk := range driver.SplitWrites(writes, driver.MaxBatchWrites) {
		if err := c.client.conn.CommitBatch(ctx, chunk); err != nil {
			return deleted, wrapError(c.client.conn, err)
		}
		deleted += len(chunk)
	}
	return deleted, nil
}

func mergeIDs(ds []driver.Doc) []Doc {
	docs := make([]Doc, len(ds))
	for i, d := range ds {
		docs[i] = mergeID(d)
	}
	return docs
}
