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

// Package driver defines interfaces to be implemented by firestorm drivers,
// which will be used by the firestorm package to interact with the underlying
// document-database services. Application code should use package firestorm.
package driver // import "github.com/nelsondiego/FirestORM/driver"

import (
	"context"

	"github.com/nelsondiego/FirestORM/fserrors"
)

// MaxBatchWrites is the maximum number of writes the underlying service
// accepts in a single batch commit. Callers that need to commit more writes
// must split them into multiple batches.
const MaxBatchWrites = 500

// A Doc is one document returned by a driver: its path id plus its stored
// fields. The id is never a member of Fields; it is positional in the
// document's storage path.
type Doc struct {
	ID     string
	Fields map[string]interface{}
}

// A Conn is a connection to one document database. Implementations must be
// safe for concurrent use by multiple goroutines.
type Conn interface {
	// Get returns the document with the given id directly under path.
	// It returns an error with code NotFound if the document does not exist.
	Get(ctx context.Context, path, id string) (Doc, error)

	// Create writes a new document. If id is empty, the driver mints one and
	// returns it. If id is non-empty the write overwrites any existing
	// document with that id (set semantics, so re-running is idempotent).
	Create(ctx context.Context, path, id string, fields map[string]interface{}) (string, error)

	// Put unconditionally replaces the document with the given id.
	Put(ctx context.Context, path, id string, fields map[string]interface{}) error

	// Update merges fields into the document with the given id. The values may
	// include sentinel ops (IncOp, ArrayUnionOp, ArrayRemoveOp, DeleteOp,
	// ServerTimestampOp), which the driver translates into the service's
	// atomic field transforms. It returns an error with code NotFound or
	// FailedPrecondition, per the service, if the document does not exist.
	Update(ctx context.Context, path, id string, fields map[string]interface{}) error

	// Delete removes the document with the given id. Deleting a missing
	// document is not an error.
	Delete(ctx context.Context, path, id string) error

	// RunQuery executes q and returns the matching documents in order.
	RunQuery(ctx context.Context, q *Query) ([]Doc, error)

	// Count returns the number of documents matching q, using the service's
	// server-side aggregation when it has one. Limit and cursors on q are
	// ignored.
	Count(ctx context.Context, q *Query) (int64, error)

	// RunTransaction atomically applies writes inside the service's
	// transaction primitive. Either every write commits or none does.
	// Writes are applied in slice order.
	RunTransaction(ctx context.Context, writes []Write) error

	// CommitBatch applies writes as a single batch commit. len(writes) must
	// not exceed MaxBatchWrites. Atomicity is whatever the service's batch
	// primitive provides.
	CommitBatch(ctx context.Context, writes []Write) error

	// ListenDoc subscribes to the document with the given id. notify is called
	// with the document's fields on every change, and with nil when the
	// document does not exist or the underlying stream fails. The returned
	// function detaches the subscription.
	ListenDoc(ctx context.Context, path, id string, notify func(fields map[string]interface{})) (func(), error)

	// ListenQuery subscribes to q. notify is called with the full current
	// result set on every change, and with an empty slice when the underlying
	// stream fails. The returned function detaches the subscription.
	ListenQuery(ctx context.Context, q *Query, notify func(docs []Doc)) (func(), error)

	// ErrorCode should return a code that describes the error, which was
	// returned by one of the other methods in this interface.
	ErrorCode(error) fserrors.ErrorCode

	// Close cleans up any resources used by the Conn.
	Close() error
}

// A Query defines a read over one collection path.
type Query struct {
	// Path is the slash-separated collection path, e.g. "users" or
	// "users/42/posts".
	Path string

	// Filters contain the predicates for the query. Multiple filters are
	// combined with AND.
	Filters []Filter

	// Orders contain the sort keys, applied in order.
	Orders []Order

	// Limit sets the maximum number of results. When Limit <= 0 the driver
	// returns all matching documents.
	Limit int

	// StartAfter, when non-empty, is the id of the document after which
	// results begin. The driver resolves the id to the service's native
	// cursor representation, which may cost an extra read.
	StartAfter string
}

// A Filter is a single predicate.
type Filter struct {
	Field string
	Op    string // one of the operators in firestorm.Query.Where
	Value interface{}
}

// An Order is a single sort key.
type Order struct {
	Field      string
	Descending bool
}

// WriteKind describes the type of a queued write.
type WriteKind int

// Values for WriteKind.
const (
	Create WriteKind = iota
	Put
	Update
	Delete
)

//go:generate stringer -type=WriteKind

// A Write describes a single pending write on a single document. Transaction
// and batch contexts queue Writes and replay them through RunTransaction or
// CommitBatch.
type Write struct {
	Kind   WriteKind
	Path   string
	ID     string
	Fields map[string]interface{} // nil for Delete
}

// Sentinel field values. Each is an instruction the driver translates into
// the service's atomic transform at write time, never a literal value.
type (
	// IncOp adds Amount (an integer or floating-point value) to the field.
	IncOp struct{ Amount interface{} }

	// ArrayUnionOp appends each value in Values to the array field unless it
	// is already present.
	ArrayUnionOp struct{ Values []interface{} }

	// ArrayRemoveOp removes every occurrence of each value in Values from the
	// array field.
	ArrayRemoveOp struct{ Values []interface{} }

	// DeleteOp removes the field.
	DeleteOp struct{}

	// ServerTimestampOp sets the field to the service's commit time.
	ServerTimestampOp struct{}
)

// EqualOp is the name of the equality operator.
// It is defined here to avoid confusion between "=" and "==".
const EqualOp = "=="

// DocumentID is the special Order field that sorts by document id. Drivers
// translate it into the service's document-name ordering. Queries with no
// explicit Orders are implicitly sorted by DocumentID ascending.
const DocumentID = "__name__"
