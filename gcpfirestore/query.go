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

package gcpfirestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/nelsondiego/FirestORM/driver"
	"github.com/nelsondiego/FirestORM/internal/fserr"
	"google.golang.org/api/iterator"
)

const countAlias = "all"

// RunQuery implements driver.Conn.RunQuery.
func (c *conn) RunQuery(ctx context.Context, q *driver.Query) ([]driver.Doc, error) {
	fq, err := c.buildQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	iter := fq.Documents(ctx)
	defer iter.Stop()
	var docs []driver.Doc
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, driver.Doc{ID: snap.Ref.ID, Fields: snap.Data()})
	}
}

// Count implements driver.Conn.Count with a server-side count aggregation.
// Limit and cursors on q are ignored.
func (c *conn) Count(ctx context.Context, q *driver.Query) (int64, error) {
	base := &driver.Query{Path: q.Path, Filters: q.Filters}
	fq, err := c.buildQuery(ctx, base)
	if err != nil {
		return 0, err
	}
	res, err := fq.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, err
	}
	v, ok := res[countAlias]
	if !ok {
		return 0, fserr.Newf(fserr.Internal, nil, "gcpfirestore: count aggregation result missing alias %q", countAlias)
	}
	pv, ok := v.(*firestorepb.Value)
	if !ok {
		return 0, fserr.Newf(fserr.Internal, nil, "gcpfirestore: count aggregation result of type %T is not a *firestorepb.Value", v)
	}
	return pv.GetIntegerValue(), nil
}

// ListenDoc implements driver.Conn.ListenDoc over the SDK's snapshot stream.
func (c *conn) ListenDoc(ctx context.Context, path, id string, notify func(fields map[string]interface{})) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	iter := c.client.Collection(path).Doc(id).Snapshots(ctx)
	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				// Transport failures collapse to an absent-document callback.
				if ctx.Err() == nil {
					notify(nil)
				}
				return
			}
			if !snap.Exists() {
				notify(nil)
				continue
			}
			notify(snap.Data())
		}
	}()
	return cancel, nil
}

// ListenQuery implements driver.Conn.ListenQuery over the SDK's snapshot
// stream.
func (c *conn) ListenQuery(ctx context.Context, q *driver.Query, notify func(docs []driver.Doc)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	fq, err := c.buildQuery(ctx, q)
	if err != nil {
		cancel()
		return nil, err
	}
	iter := fq.Snapshots(ctx)
	go func() {
		defer iter.Stop()
		for {
			qsnap, err := iter.Next()
			if err != nil {
				// Transport failures collapse to an empty result set.
				if ctx.Err() == nil {
					notify([]driver.Doc{})
				}
				return
			}
			docs := []driver.Doc{}
			for {
				snap, err := qsnap.Documents.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					docs = []driver.Doc{}
					break
				}
				docs = append(docs, driver.Doc{ID: snap.Ref.ID, Fields: snap.Data()})
			}
			notify(docs)
		}
	}()
	return cancel, nil
}

// buildQuery renders a driver query into the SDK's query type. A document id
// cursor is resolved with an extra read so the SDK can position on the
// snapshot.
func (c *conn) buildQuery(ctx context.Context, q *driver.Query) (firestore.Query, error) {
	coll := c.client.Collection(q.Path)
	fq := coll.Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, f.Op, f.Value)
	}
	lastDesc := false
	for _, o := range q.Orders {
		fq = fq.OrderBy(o.Field, direction(o.Descending))
		lastDesc = o.Descending
	}
	// An id tiebreak keeps the order total, which cursors require.
	if n := len(q.Orders); n == 0 || q.Orders[n-1].Field != firestore.DocumentID {
		fq = fq.OrderBy(firestore.DocumentID, direction(lastDesc))
	}
	if q.StartAfter != "" {
		snap, err := coll.Doc(q.StartAfter).Get(ctx)
		if err != nil {
			return firestore.Query{}, err
		}
		fq = fq.StartAfter(snap)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq, nil
}

func direction(descending bool) firestore.Direction {
	if descending {
		return firestore.Desc
	}
	return firestore.Asc
}
