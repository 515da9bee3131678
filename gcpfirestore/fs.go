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

// Package gcpfirestore provides a firestorm driver backed by Google Cloud
// Firestore. Use OpenClient to construct a *firestorm.Client.
//
// Document ids are Firestore document names; collection paths are
// slash-separated Firestore collection paths, so subcollections work
// unchanged.
//
// # URLs
//
// For firestorm.OpenClient, gcpfirestore registers for the scheme
// "firestore". The default URL opener dials with application default
// credentials; set FIRESTORE_EMULATOR_HOST to target the emulator instead.
// To customize the URL opener, or for more details on the URL format, see
// URLOpener.
package gcpfirestore // import "github.com/nelsondiego/FirestORM/gcpfirestore"

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/google/wire"
	firestorm "github.com/nelsondiego/FirestORM"
	"github.com/nelsondiego/FirestORM/driver"
	"github.com/nelsondiego/FirestORM/fserrors"
	"github.com/nelsondiego/FirestORM/internal/fserr"
	"github.com/nelsondiego/FirestORM/internal/useragent"
	"google.golang.org/api/option"
)

// Set is a Wire provider set that provides a *firestore.Client using default
// credentials.
var Set = wire.NewSet(Dial)

// Dial returns a Firestore client for use with OpenClient, and a function to
// close it. It appends this package's user agent to any supplied options.
// FIRESTORE_EMULATOR_HOST is honored by the underlying SDK.
func Dial(ctx context.Context, projectID string, opts ...option.ClientOption) (*firestore.Client, func(), error) {
	opts = append(opts, useragent.ClientOption("gcpfirestore"))
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { client.Close() }, nil
}

// OpenClient creates a *firestorm.Client backed by client.
func OpenClient(client *firestore.Client, cfg firestorm.Config) (*firestorm.Client, error) {
	if client == nil {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: client is required")
	}
	return firestorm.NewClient(&conn{client: client}, cfg), nil
}

type conn struct {
	client *firestore.Client
}

// Get implements driver.Conn.Get.
func (c *conn) Get(ctx context.Context, path, id string) (driver.Doc, error) {
	snap, err := c.client.Collection(path).Doc(id).Get(ctx)
	if err != nil {
		return driver.Doc{}, err
	}
	return driver.Doc{ID: id, Fields: snap.Data()}, nil
}

// Create implements driver.Conn.Create. With a pre-assigned id the write is a
// set, overwriting any existing document.
func (c *conn) Create(ctx context.Context, path, id string, fields map[string]interface{}) (string, error) {
	data := setData(fields)
	coll := c.client.Collection(path)
	if id == "" {
		ref, _, err := coll.Add(ctx, data)
		if err != nil {
			return "", err
		}
		return ref.ID, nil
	}
	if _, err := coll.Doc(id).Set(ctx, data); err != nil {
		return "", err
	}
	return id, nil
}

// Put implements driver.Conn.Put.
func (c *conn) Put(ctx context.Context, path, id string, fields map[string]interface{}) error {
	_, err := c.client.Collection(path).Doc(id).Set(ctx, setData(fields))
	return err
}

// Update implements driver.Conn.Update. The service reports NotFound when
// the document does not exist.
func (c *conn) Update(ctx context.Context, path, id string, fields map[string]interface{}) error {
	_, err := c.client.Collection(path).Doc(id).Update(ctx, updateData(fields))
	return err
}

// Delete implements driver.Conn.Delete. Deleting a missing document is not
// an error.
func (c *conn) Delete(ctx context.Context, path, id string) error {
	_, err := c.client.Collection(path).Doc(id).Delete(ctx)
	return err
}

// RunTransaction implements driver.Conn.RunTransaction. The queued writes
// replay inside one Firestore transaction.
func (c *conn) RunTransaction(ctx context.Context, writes []driver.Write) error {
	return c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, w := range writes {
			if err := c.applyTxWrite(tx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *conn) applyTxWrite(tx *firestore.Transaction, w driver.Write) error {
	ref, err := c.writeRef(w)
	if err != nil {
		return err
	}
	switch w.Kind {
	case driver.Create, driver.Put:
		return tx.Set(ref, setData(w.Fields))
	case driver.Update:
		return tx.Update(ref, updateData(w.Fields))
	case driver.Delete:
		return tx.Delete(ref)
	default:
		return fserr.Newf(fserr.Internal, nil, "gcpfirestore: unknown write kind %v", w.Kind)
	}
}

// CommitBatch implements driver.Conn.CommitBatch. A Firestore batch commit
// is atomic; either every write in the chunk applies or none does.
func (c *conn) CommitBatch(ctx context.Context, writes []driver.Write) error {
	if len(writes) > driver.MaxBatchWrites {
		return fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: batch of %d writes exceeds the limit of %d", len(writes), driver.MaxBatchWrites)
	}
	b := c.client.Batch()
	for _, w := range writes {
		ref, err := c.writeRef(w)
		if err != nil {
			return err
		}
		switch w.Kind {
		case driver.Create, driver.Put:
			b.Set(ref, setData(w.Fields))
		case driver.Update:
			b.Update(ref, updateData(w.Fields))
		case driver.Delete:
			b.Delete(ref)
		default:
			return fserr.Newf(fserr.Internal, nil, "gcpfirestore: unknown write kind %v", w.Kind)
		}
	}
	_, err := b.Commit(ctx)
	return err
}

func (c *conn) writeRef(w driver.Write) (*firestore.DocumentRef, error) {
	coll := c.client.Collection(w.Path)
	if w.ID == "" {
		if w.Kind != driver.Create {
			return nil, fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: empty document id in %v write", w.Kind)
		}
		return coll.NewDoc(), nil
	}
	return coll.Doc(w.ID), nil
}

// setData translates sentinel ops in a create or put payload into the SDK's
// field transforms.
func setData(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = fieldValue(v)
	}
	return out
}

// updateData translates an update payload into the SDK's update list.
func updateData(fields map[string]interface{}) []firestore.Update {
	ups := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		ups = append(ups, firestore.Update{Path: k, Value: fieldValue(v)})
	}
	return ups
}

func fieldValue(v interface{}) interface{} {
	switch op := v.(type) {
	case driver.IncOp:
		return firestore.Increment(op.Amount)
	case driver.ArrayUnionOp:
		return firestore.ArrayUnion(op.Values...)
	case driver.ArrayRemoveOp:
		return firestore.ArrayRemove(op.Values...)
	case driver.DeleteOp:
		return firestore.Delete
	case driver.ServerTimestampOp:
		return firestore.ServerTimestamp
	default:
		return v
	}
}

// ErrorCode implements driver.Conn.ErrorCode.
func (c *conn) ErrorCode(err error) fserrors.ErrorCode {
	if e, ok := err.(*fserr.Error); ok {
		return e.Code
	}
	return fserr.GRPCCode(err)
}

// Close implements driver.Conn.Close.
func (c *conn) Close() error {
	return c.client.Close()
}

var _ driver.Conn = (*conn)(nil)
