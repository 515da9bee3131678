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
)

// Listen subscribes to the document with the given id. cb is invoked with
// the document's current payload (id merged in) on every change, with nil
// when the document does not exist or is deleted, and with nil again if the
// underlying stream fails; stream errors are not otherwise surfaced. The
// returned stop function detaches the subscription. Callbacks for one
// subscription are delivered sequentially.
func (c *Collection) Listen(ctx context.Context, id interface{}, cb func(Doc)) (stop func(), err error) {
	if err := c.client.checkClosed(); err != nil {
		return nil, err
	}
	sid, err := idString(id)
	if err != nil {
		return nil, err
	}
	stop, err = c.client.conn.ListenDoc(ctx, c.path, sid, func(fields map[string]interface{}) {
		if fields == nil {
			cb(nil)
			return
		}
		doc := copyFields(fields)
		doc[IDField] = sid
		cb(doc)
	})
	if err != nil {
		return nil, wrapError(c.client.conn, err)
	}
	return stop, nil
}

// Listen subscribes to the query. cb is invoked with the full current result
// set on every change, and with an empty slice if the underlying stream
// fails; stream errors are not otherwise surfaced. The returned stop function
// detaches the subscription.
func (q *Query) Listen(ctx context.Context, cb func([]Doc)) (stop func(), err error) {
	if err := q.init(); err != nil {
		return nil, err
	}
	c := q.coll
	stop, err = c.client.conn.ListenQuery(ctx, q.Clone().dq, func(ds []driver.Doc) {
		cb(mergeIDs(ds))
	})
	if err != nil {
		return nil, wrapError(c.client.conn, err)
	}
	return stop, nil
}
