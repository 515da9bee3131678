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

	"github.com/nelsondiego/FirestORM/fserrors"
	"github.com/nelsondiego/FirestORM/internal/fserr"
)

// A Record is one addressable document held in memory: its current field
// values, a snapshot of the values as of the last load or save, and whether
// the document has been persisted. Records come from Collection.Load,
// Collection.Create, Collection.NewRecord, or a transaction context.
//
// A Record is not safe for concurrent use.
type Record struct {
	coll     *Collection
	id       interface{} // string or integer; nil until assigned
	exists   bool
	current  Doc
	original Doc
}

// Collection returns the collection the record belongs to.
func (r *Record) Collection() *Collection { return r.coll }

// ID returns the record's id as it was assigned: a pre-assigned numeric id
// stays numeric in memory even though it is normalized to a string at the
// storage boundary. It returns nil for an unsaved record with no id.
func (r *Record) ID() interface{} { return r.id }

// Exists reports whether the record has been persisted and not deleted.
func (r *Record) Exists() bool { return r.exists }

// Fill merges data into the record's current state, last write wins per
// field. Fields not named in data are untouched. Any "id" field is ignored;
// the id is not part of the payload.
func (r *Record) Fill(data Doc) *Record {
	for k, v := range data {
		if k == IDField {
			continue
		}
		r.current[k] = v
	}
	return r
}

// Set assigns one field in the record's current state.
func (r *Record) Set(field string, value interface{}) *Record {
	if field != IDField {
		r.current[field] = value
	}
	return r
}

// Get returns the current value of one field.
func (r *Record) Get(field string) (interface{}, bool) {
	v, ok := r.current[field]
	return v, ok
}

// IsDirty reports whether the current state differs structurally from the
// state as of the last load or save.
func (r *Record) IsDirty() bool {
	return !reflect.DeepEqual(r.current, r.original)
}

// ToMap returns a copy of the record's current state with its id merged in
// under "id", when the record has one.
func (r *Record) ToMap() Doc {
	out := copyFields(r.current)
	if r.id != nil {
		out[IDField] = r.id
	}
	return out
}

// Save persists the record: a create when it has never been persisted, an
// update otherwise. On success the original-state snapshot is reset, so
// IsDirty reports false.
func (r *Record) Save(ctx context.Context) error {
	if r.exists {
		return r.update(ctx)
	}
	return r.create(ctx)
}

// Update merges data into the record and persists it. The record must have
// been persisted and have an id.
func (r *Record) Update(ctx context.Context, data Doc) error {
	if err := r.requirePersisted("Update"); err != nil {
		return err
	}
	r.Fill(data)
	return r.update(ctx)
}

// Delete removes the record's document (or soft-deletes it when
// Config.SoftDeletes is set). The record must have been persisted and have
// an id. On success the record reports Exists() == false; it holds its last
// known field state but can no longer be saved as an update.
func (r *Record) Delete(ctx context.Context) (err error) {
	if err := r.requirePersisted("Delete"); err != nil {
		return err
	}
	c := r.coll
	if err := c.client.checkClosed(); err != nil {
		return err
	}
	sid, err := idString(r.id)
	if err != nil {
		return err
	}
	ctx, span := c.client.tracer.Start(ctx, "Record.Delete")
	defer func() { c.client.tracer.End(span, err) }()

	if err := wrapError(c.client.conn, c.deleteOrSoftDelete(ctx, sid)); err != nil {
		return err
	}
	r.exists = false
	return nil
}

// Refresh re-reads the document by id and replaces the record's state. The
// record must have an id. It returns an error with code NotFound if the
// document no longer exists.
func (r *Record) Refresh(ctx context.Context) (err error) {
	if r.id == nil {
		return fserr.Newf(fserr.FailedPrecondition, nil, "firestorm: Refresh on a record with no id")
	}
	c := r.coll
	if err := c.client.checkClosed(); err != nil {
		return err
	}
	sid, err := idString(r.id)
	if err != nil {
		return err
	}
	ctx, span := c.client.tracer.Start(ctx, "Record.Refresh")
	defer func() { c.client.tracer.End(span, err) }()

	d, err := c.client.conn.Get(ctx, c.path, sid)
	if err != nil {
		if c.client.conn.ErrorCode(err) == fserrors.NotFound {
			r.exists = false
			return fserr.Newf(fserr.NotFound, nil, "firestorm: no document %v in %q", r.id, c.path)
		}
		return wrapError(c.client.conn, err)
	}
	r.current = copyFields(d.Fields)
	r.original = copyFields(d.Fields)
	r.exists = true
	return nil
}

// Subcollection returns a handle on the named subcollection under this
// record. The record must have an id.
func (r *Record) Subcollection(name string) (*Collection, error) {
	if r.id == nil {
		return nil, fserr.Newf(fserr.FailedPrecondition, nil, "firestorm: Subcollection on a record with no id")
	}
	return r.coll.Subcollection(r.id, name)
}

func (r *Record) requirePersisted(op string) error {
	if !r.exists || r.id == nil {
		return fserr.Newf(fserr.FailedPrecondition, nil, "firestorm: %s on a record that has not been persisted", op)
	}
	return nil
}

// create persists the record as a new document. A pre-assigned id makes the
// write a set, so re-running it is idempotent; with no id the service mints
// one.
func (r *Record) create(ctx context.Context) (err error) {
	c := r.coll
	if err := c.client.checkClosed(); err != nil {
		return err
	}
	var sid string
	if r.id != nil {
		if sid, err = idString(r.id); err != nil {
			return err
		}
	}
	ctx, span := c.client.tracer.Start(ctx, "Record.create")
	defer func() { c.client.tracer.End(span, err) }()

	newID, err := c.client.conn.Create(ctx, c.path, sid, c.writePayload(r.current, true))
	if err != nil {
		return wrapError(c.client.conn, err)
	}
	if r.id == nil {
		r.id = newID
	}
	r.markSaved()
	return nil
}

// update persists the record's full current state onto its document.
func (r *Record) update(ctx context.Context) (err error) {
	if err := r.requirePersisted("Save"); err != nil {
		return err
	}
	c := r.coll
	if err := c.client.checkClosed(); err != nil {
		return err
	}
	sid, err := idString(r.id)
	if err != nil {
		return err
	}
	ctx, span := c.client.tracer.Start(ctx, "Record.update")
	defer func() { c.client.tracer.End(span, err) }()

	if err := wrapError(c.client.conn, c.client.conn.Update(ctx, c.path, sid, c.updatePayload(r.current))); err != nil {
		return err
	}
	r.markSaved()
	return nil
}

// markSaved resets the original-state snapshot after a successful write.
func (r *Record) markSaved() {
	r.exists = true
	r.original = copyFields(r.current)
}
