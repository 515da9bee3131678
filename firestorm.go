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
	"strconv"
	"strings"
	"sync"

	"github.com/nelsondiego/FirestORM/driver"
	"github.com/nelsondiego/FirestORM/fserrors"
	"github.com/nelsondiego/FirestORM/internal/fserr"
	"github.com/nelsondiego/FirestORM/internal/otel"
)

// A Doc is one document payload: a map from field names to values. Read
// results always carry the document's id under the "id" key; write payloads
// never do (the id is positional in the storage path, and any "id" field in
// a payload is stripped before the write).
type Doc = map[string]interface{}

// Field names injected by this package.
const (
	// IDField is the key under which read results report the document id.
	IDField = "id"
	// CreatedAtField is stamped on create when Config.Timestamps is set.
	CreatedAtField = "createdAt"
	// UpdatedAtField is stamped on create and update when Config.Timestamps
	// is set.
	UpdatedAtField = "updatedAt"
	// DeletedAtField is stamped instead of deleting when Config.SoftDeletes
	// is set.
	DeletedAtField = "deletedAt"
)

// Config holds the global behavior toggles for a Client.
type Config struct {
	// Timestamps injects CreatedAtField/UpdatedAtField server timestamps on
	// writes.
	Timestamps bool
	// SoftDeletes makes Destroy and Record.Delete stamp DeletedAtField
	// instead of removing the document.
	SoftDeletes bool
}

// A Client is a handle on one document database connection plus the global
// configuration. It is safe for concurrent use by multiple goroutines and is
// intended to be passed explicitly to the code that needs it; there is no
// process-wide registry.
type Client struct {
	conn   driver.Conn
	cfg    Config
	tracer *otel.Tracer
	mu     sync.Mutex
	closed bool
}

const pkgName = "github.com/nelsondiego/FirestORM"

// NewClient is intended for use by drivers only. Do not use in application
// code; open a Client through a driver package or OpenClient.
var NewClient = newClient

// newClient makes a Client.
func newClient(conn driver.Conn, cfg Config) *Client {
	return &Client{
		conn:   conn,
		cfg:    cfg,
		tracer: otel.NewTracer(pkgName, otel.ProviderName(conn)),
	}
}

// Config returns the configuration the Client was opened with.
func (c *Client) Config() Config { return c.cfg }

// Collection returns a handle on the named top-level collection.
func (c *Client) Collection(name string) *Collection {
	return &Collection{client: c, path: name}
}

var errClosed = fserr.Newf(fserr.FailedPrecondition, nil, "firestorm: Client has been closed")

// Close releases any resources used by the Client.
func (c *Client) Close() error {
	c.mu.Lock()
	prev := c.closed
	c.closed = true
	c.mu.Unlock()
	if prev {
		return errClosed
	}
	return wrapError(c.conn, c.conn.Close())
}

func (c *Client) checkClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	return nil
}

// A Collection is a handle on one collection or subcollection path. Create
// one with Client.Collection or with the Subcollection methods.
type Collection struct {
	client *Client
	path   string
}

// Path returns the slash-separated collection path, e.g. "users" or
// "users/42/posts".
func (c *Collection) Path() string { return c.path }

// Client returns the Client the collection was created from.
func (c *Collection) Client() *Client { return c.client }

// Subcollection returns a handle on the subcollection name under the
// document with the given parent id.
func (c *Collection) Subcollection(parentID interface{}, name string) (*Collection, error) {
	sid, err := idString(parentID)
	if err != nil {
		return nil, err
	}
	if name == "" || strings.Contains(name, "/") {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "firestorm: bad subcollection name %q", name)
	}
	return &Collection{client: c.client, path: c.path + "/" + sid + "/" + name}, nil
}

// NewRecord returns an unsaved Record holding data. An "id" field in data,
// if any, becomes the record's pre-assigned id and is removed from the
// payload.
func (c *Collection) NewRecord(data Doc) *Record {
	rec := &Record{coll: c, current: Doc{}, original: Doc{}}
	if id, ok := data[IDField]; ok {
		rec.id = id
	}
	rec.Fill(data)
	return rec
}

// Create persists a new document built from data and returns it as a Record
// with exists set. If customID is given (or data carries an "id" field), the
// write uses set semantics so re-running it is idempotent; otherwise the
// service mints a new id. One customID at most may be passed.
func (c *Collection) Create(ctx context.Context, data Doc, customID ...interface{}) (rec *Record, err error) {
	if err := c.client.checkClosed(); err != nil {
		return nil, err
	}
	if len(customID) > 1 {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "firestorm: Create accepts at most one custom id")
	}
	ctx, span := c.client.tracer.Start(ctx, "Collection.Create")
	defer func() { c.client.tracer.End(span, err) }()

	rec = c.NewRecord(data)
	if len(customID) == 1 && customID[0] != nil {
		rec.id = customID[0]
	}
	if err := rec.create(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// Find returns the document with the given id, with the id merged into the
// payload, or nil if it does not exist. The id may be a string or an
// integer; numeric ids address the same document as their string form.
func (c *Collection) Find(ctx context.Context, id interface{}) (doc Doc, err error) {
	if err := c.client.checkClosed(); err != nil {
		return nil, err
	}
	sid, err := idString(id)
	if err != nil {
		return nil, err
	}
	ctx, span := c.client.tracer.Start(ctx, "Collection.Find")
	defer func() { c.client.tracer.End(span, err) }()

	d, err := c.client.conn.Get(ctx, c.path, sid)
	if err != nil {
		if c.client.conn.ErrorCode(err) == fserrors.NotFound {
			return nil, nil
		}
		return nil, wrapError(c.client.conn, err)
	}
	return mergeID(d), nil
}

// FindOrFail is Find, except that a missing document is an error with code
// NotFound.
func (c *Collection) FindOrFail(ctx context.Context, id interface{}) (Doc, error) {
	doc, err := c.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fserr.Newf(fserr.NotFound, nil, "firestorm: no document %v in %q", id, c.path)
	}
	return doc, nil
}

// Load returns the document with the given id wrapped in a Record with
// exists set, ready for instance-level Update, Delete and Refresh. It
// returns nil if the document does not exist.
func (c *Collection) Load(ctx context.Context, id interface{}) (rec *Record, err error) {
	if err := c.client.checkClosed(); err != nil {
		return nil, err
	}
	sid, err := idString(id)
	if err != nil {
		return nil, err
	}
	ctx, span := c.client.tracer.Start(ctx, "Collection.Load")
	defer func() { c.client.tracer.End(span, err) }()

	d, err := c.client.conn.Get(ctx, c.path, sid)
	if err != nil {
		if c.client.conn.ErrorCode(err) == fserrors.NotFound {
			return nil, nil
		}
		return nil, wrapError(c.client.conn, err)
	}
	return &Record{
		coll:     c,
		id:       id,
		exists:   true,
		current:  copyFields(d.Fields),
		original: copyFields(d.Fields),
	}, nil
}

// All returns every document in the collection. There is no implicit limit;
// the caller is responsible for scale.
func (c *Collection) All(ctx context.Context) ([]Doc, error) {
	return c.Query().Get(ctx)
}

// Update writes data onto the document with the given id without reading it
// first. Any "id" field in data is stripped. The write fails with a
// FailedPrecondition or NotFound coded error, surfaced from the service, if
// the document does not exist.
func (c *Collection) Update(ctx context.Context, id interface{}, data Doc) (err error) {
	if err := c.client.checkClosed(); err != nil {
		return err
	}
	sid, err := idString(id)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fserr.Newf(fserr.InvalidArgument, nil, "firestorm: empty update payload")
	}
	ctx, span := c.client.tracer.Start(ctx, "Collection.Update")
	defer func() { c.client.tracer.End(span, err) }()

	return wrapError(c.client.conn, c.client.conn.Update(ctx, c.path, sid, c.updatePayload(data)))
}

// Destroy removes the document with the given id, or stamps DeletedAtField
// when Config.SoftDeletes is set. It reads the document first and silently
// does nothing if it does not exist.
func (c *Collection) Destroy(ctx context.Context, id interface{}) (err error) {
	if err := c.client.checkClosed(); err != nil {
		return err
	}
	sid, err := idString(id)
	if err != nil {
		return err
	}
	ctx, span := c.client.tracer.Start(ctx, "Collection.Destroy")
	defer func() { c.client.tracer.End(span, err) }()

	if _, err := c.client.conn.Get(ctx, c.path, sid); err != nil {
		if c.client.conn.ErrorCode(err) == fserrors.NotFound {
			return nil
		}
		return wrapError(c.client.conn, err)
	}
	return wrapError(c.client.conn, c.deleteOrSoftDelete(ctx, sid))
}

// deleteOrSoftDelete is the shared delete path for Destroy and
// Record.Delete. The caller has established that the document exists.
func (c *Collection) deleteOrSoftDelete(ctx context.Context, sid string) error {
	if c.client.cfg.SoftDeletes {
		return c.client.conn.Update(ctx, c.path, sid, Doc{DeletedAtField: ServerTimestamp()})
	}
	return c.client.conn.Delete(ctx, c.path, sid)
}

// writePayload returns data prepared for a create or set: copied, with any
// "id" field stripped, and with timestamp fields injected per the
// configuration.
func (c *Collection) writePayload(data Doc, creating bool) Doc {
	out := make(Doc, len(data)+2)
	for k, v := range data {
		if k == IDField {
			continue
		}
		out[k] = v
	}
	if c.client.cfg.Timestamps {
		if creating {
			out[CreatedAtField] = ServerTimestamp()
		}
		out[UpdatedAtField] = ServerTimestamp()
	}
	return out
}

// updatePayload is writePayload for blind updates: no createdAt stamp.
func (c *Collection) updatePayload(data Doc) Doc {
	return c.writePayload(data, false)
}

// idString normalizes a document id to its storage-path form. Strings pass
// through; integer kinds are rendered base 10, so Find(42) and Find("42")
// address the same document.
func idString(id interface{}) (string, error) {
	switch v := id.(type) {
	case string:
		if v == "" {
			return "", fserr.Newf(fserr.InvalidArgument, nil, "firestorm: empty document id")
		}
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case nil:
		return "", fserr.Newf(fserr.InvalidArgument, nil, "firestorm: nil document id")
	default:
		return "", fserr.Newf(fserr.InvalidArgument, nil, "firestorm: document id %v of type %[1]T is not a string or integer", id)
	}
}

// mergeID returns d's fields with the document id merged in.
func mergeID(d driver.Doc) Doc {
	out := make(Doc, len(d.Fields)+1)
	for k, v := range d.Fields {
		out[k] = v
	}
	out[IDField] = d.ID
	return out
}

// copyFields makes a shallow copy of fields. Nested mutable values are
// shared; drivers hand out fresh maps per read, so the copy only needs to
// decouple the top level.
func copyFields(fields map[string]interface{}) Doc {
	out := make(Doc, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func wrapError(conn driver.Conn, err error) error {
	if err == nil {
		return nil
	}
	if fserr.DoNotWrap(err) {
		return err
	}
	if _, ok := err.(*fserr.Error); ok {
		return err
	}
	return fserr.New(conn.ErrorCode(err), err, "firestorm")
}
