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

	"github.com/nelsondiego/FirestORM/driver"
	"github.com/nelsondiego/FirestORM/internal/fserr"
)

// opQueue is the shared core of Tx and Batch: an ordered list of pending
// writes plus the records whose in-memory state must be finalized after a
// successful replay. Queuing never performs write I/O. An opQueue is owned by
// one callback invocation and is not safe for concurrent use.
type opQueue struct {
	client  *Client
	writes  []driver.Write
	pending []pendingRecord
	err     error // first queue-time error; replay is skipped when set
}

// pendingRecord defers a Record's state transition until replay succeeds.
type pendingRecord struct {
	rec     *Record
	deleted bool
}

func (o *opQueue) fail(err error) error {
	if o.err == nil {
		o.err = err
	}
	return err
}

// enqueue appends one write. fields pass through the collection's payload
// preparation, so timestamps and id stripping behave as in direct calls.
func (o *opQueue) enqueue(c *Collection, kind driver.WriteKind, sid string, fields Doc) {
	var prepared map[string]interface{}
	switch kind {
	case driver.Create, driver.Put:
		prepared = c.writePayload(fields, true)
	case driver.Update:
		prepared = c.updatePayload(fields)
	}
	o.writes = append(o.writes, driver.Write{
		Kind:   kind,
		Path:   c.path,
		ID:     sid,
		Fields: prepared,
	})
}

// Create queues a create with a minted id on the collection and returns an
// unsaved Record carrying that id. The Record reports Exists() == true only
// after the surrounding transaction or batch commits.
func (o *opQueue) Create(c *Collection, data Doc) (*Record, error) {
	if o.err != nil {
		return nil, o.err
	}
	rec := c.NewRecord(data)
	if rec.id == nil {
		rec.id = driver.UniqueString()
	}
	sid, err := idString(rec.id)
	if err != nil {
		return nil, o.fail(err)
	}
	o.enqueue(c, driver.Create, sid, rec.current)
	o.pending = append(o.pending, pendingRecord{rec: rec})
	return rec, nil
}

// CreateWithID queues a create under the given id. The write uses set
// semantics: an existing document with that id is overwritten.
func (o *opQueue) CreateWithID(c *Collection, id interface{}, data Doc) (*Record, error) {
	if o.err != nil {
		return nil, o.err
	}
	sid, err := idString(id)
	if err != nil {
		return nil, o.fail(err)
	}
	rec := c.NewRecord(data)
	rec.id = id
	o.enqueue(c, driver.Create, sid, rec.current)
	o.pending = append(o.pending, pendingRecord{rec: rec})
	return rec, nil
}

// Update queues a field merge onto the document with the given id.
func (o *opQueue) Update(c *Collection, id interface{}, data Doc) error {
	if o.err != nil {
		return o.err
	}
	sid, err := idString(id)
	if err != nil {
		return o.fail(err)
	}
	if len(data) == 0 {
		return o.fail(fserr.Newf(fserr.InvalidArgument, nil, "firestorm: empty update payload"))
	}
	o.enqueue(c, driver.Update, sid, data)
	return nil
}

// Delete queues removal of the document with the given id. Soft-delete
// configuration applies: with Config.SoftDeletes set, a deletedAt stamp is
// queued instead.
func (o *opQueue) Delete(c *Collection, id interface{}) error {
	if o.err != nil {
		return o.err
	}
	sid, err := idString(id)
	if err != nil {
		return o.fail(err)
	}
	o.enqueueDelete(c, sid)
	return nil
}

func (o *opQueue) enqueueDelete(c *Collection, sid string) {
	if o.client.cfg.SoftDeletes {
		o.writes = append(o.writes, driver.Write{
			Kind:   driver.Update,
			Path:   c.path,
			ID:     sid,
			Fields: map[string]interface{}{DeletedAtField: ServerTimestamp()},
		})
		return
	}
	o.writes = append(o.writes, driver.Write{Kind: driver.Delete, Path: c.path, ID: sid})
}

// Save queues the record's pending write: a create when it has never been
// persisted, a full-state update otherwise. The record's snapshot is
// finalized only after a successful replay.
func (o *opQueue) Save(rec *Record) error {
	if o.err != nil {
		return o.err
	}
	if rec.exists {
		sid, err := idString(rec.id)
		if err != nil {
			return o.fail(err)
		}
		o.enqueue(rec.coll, driver.Update, sid, rec.current)
		o.pending = append(o.pending, pendingRecord{rec: rec})
		return nil
	}
	if rec.id == nil {
		rec.id = driver.UniqueString()
	}
	sid, err := idString(rec.id)
	if err != nil {
		return o.fail(err)
	}
	o.enqueue(rec.coll, driver.Create, sid, rec.current)
	o.pending = append(o.pending, pendingRecord{rec: rec})
	return nil
}

// DeleteRecord queues removal of the record's document. The record must have
// been persisted. After a successful replay the record reports
// Exists() == false.
func (o *opQueue) DeleteRecord(rec *Record) error {
	if o.err != nil {
		return o.err
	}
	if err := rec.requirePersisted("DeleteRecord"); err != nil {
		return o.fail(err)
	}
	sid, err := idString(rec.id)
	if err != nil {
		return o.fail(err)
	}
	o.enqueueDelete(rec.coll, sid)
	o.pending = append(o.pending, pendingRecord{rec: rec, deleted: true})
	return nil
}

// DeleteSubcollection reads the named subcollection under the document with
// the given parent id and queues a delete for every child found. The child
// list is a snapshot as of this call: children created between now and the
// replay are not deleted.
func (o *opQueue) DeleteSubcollection(ctx context.Context, c *Collection, parentID interface{}, name string) error {
	if o.err != nil {
		return o.err
	}
	sub, err := c.Subcollection(parentID, name)
	if err != nil {
		return o.fail(err)
	}
	ds, err := o.client.conn.RunQuery(ctx, &driver.Query{Path: sub.path})
	if err != nil {
		return o.fail(wrapError(o.client.conn, err))
	}
	for _, d := range ds {
		o.enqueueDelete(sub, d.ID)
	}
	return nil
}

// CascadeOptions configure DeleteCascade.
type CascadeOptions struct {
	// Subcollections names the record's subcollections whose documents are
	// deleted before the record itself.
	Subcollections []string

	// OnBeforeDelete, when non-nil, runs before anything is queued. It may
	// perform its own reads and queue its own operations.
	OnBeforeDelete func() error
}

// DeleteCascade queues removal of the record's named subcollections followed
// by the record itself. Subcollections go first so that, in a batch replay,
// no committed prefix leaves orphaned children behind a deleted parent.
func (o *opQueue) DeleteCascade(ctx context.Context, rec *Record, opts CascadeOptions) error {
	if o.err != nil {
		return o.err
	}
	if err := rec.requirePersisted("DeleteCascade"); err != nil {
		return o.fail(err)
	}
	if opts.OnBeforeDelete != nil {
		if err := opts.OnBeforeDelete(); err != nil {
			return o.fail(err)
		}
	}
	for _, name := range opts.Subcollections {
		if err := o.DeleteSubcollection(ctx, rec.coll, rec.id, name); err != nil {
			return err
		}
	}
	return o.DeleteRecord(rec)
}

// finalize applies the deferred Record state transitions after a successful
// replay.
func (o *opQueue) finalize() {
	for _, p := range o.pending {
		if p.deleted {
			p.rec.exists = false
			continue
		}
		p.rec.markSaved()
	}
}

// A Tx queues writes for atomic replay. See Client.RunTransaction.
type Tx struct {
	opQueue
}

// A Batch queues writes for replay in batch commits. See Client.RunBatch.
type Batch struct {
	opQueue
}

// RunTransaction calls fn with a fresh transaction context, then atomically
// replays the queued writes inside the service's transaction primitive.
// Either every queued write commits or none does.
//
// fn performs no write I/O; it only queues. Reads made inside fn therefore
// happen before the transaction opens: a document read through Load and then
// written through tx is not protected against a concurrent modification
// between the read and the commit. Callers needing read-write conflict
// detection must arrange their own retries.
//
// If fn returns an error, nothing is committed and the error is returned.
// Results are returned by capturing variables in fn's closure.
func (c *Client) RunTransaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	if err := c.checkClosed(); err != nil {
		return err
	}
	ctx, span := c.tracer.Start(ctx, "Client.RunTransaction")
	defer func() { c.tracer.End(span, err) }()

	tx := &Tx{opQueue{client: c}}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.err != nil {
		return tx.err
	}
	if len(tx.writes) == 0 {
		return nil
	}
	if err := c.conn.RunTransaction(ctx, tx.writes); err != nil {
		return wrapError(c.conn, err)
	}
	tx.finalize()
	return nil
}

// RunBatch calls fn with a fresh batch context, then replays the queued
// writes in sequential commits of at most driver.MaxBatchWrites each. Each
// commit is one network round trip with the atomicity of the service's batch
// primitive; across commits there is no atomicity. A failure partway through
// leaves the earlier commits applied.
//
// If fn returns an error, nothing is committed and the error is returned.
func (c *Client) RunBatch(ctx context.Context, fn func(b *Batch) error) (err error) {
	if err := c.checkClosed(); err != nil {
		return err
	}
	ctx, span := c.tracer.Start(ctx, "Client.RunBatch")
	defer func() { c.tracer.End(span, err) }()

	b := &Batch{opQueue{client: c}}
	if err := fn(b); err != nil {
		return err
	}
	if b.err != nil {
		return b.err
	}
	for _, chunk := range driver.SplitWrites(b.writes, driver.MaxBatchWrites) {
		if err := c.conn.CommitBatch(ctx, chunk); err != nil {
			return wrapError(c.conn, err)
		}
	}
	b.finalize()
	return nil
}
