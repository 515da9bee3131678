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

package memfirestore

import (
	"context"

	"github.com/nelsondiego/FirestORM/driver"
)

// A subscription is one attached listener. Deliveries for a subscription are
// serialized by its delivery goroutine; deliveries for different
// subscriptions run concurrently, bounded by the connection's notification
// throttle.
type subscription struct {
	path string

	// Exactly one of the two is set.
	docID     string                             // with notifyDoc
	notifyDoc func(fields map[string]interface{}) // nil fields: document absent

	q           *driver.Query // with notifyQuery
	notifyQuery func(docs []driver.Doc)

	deliver chan func() // buffered queue of pending deliveries, closed on stop
}

// ListenDoc implements driver.Conn.ListenDoc. The current state is delivered
// once on attach.
func (c *conn) ListenDoc(ctx context.Context, path, id string, notify func(fields map[string]interface{})) (func(), error) {
	sub := &subscription{path: path, docID: id, notifyDoc: notify}
	return c.attach(ctx, sub)
}

// ListenQuery implements driver.Conn.ListenQuery. The current result set is
// delivered once on attach.
func (c *conn) ListenQuery(ctx context.Context, q *driver.Query, notify func(docs []driver.Doc)) (func(), error) {
	sub := &subscription{path: q.Path, q: q, notifyQuery: notify}
	return c.attach(ctx, sub)
}

func (c *conn) attach(ctx context.Context, sub *subscription) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, c.errClosed()
	}
	sub.deliver = make(chan func(), 16)
	key := c.nextSub
	c.nextSub++
	c.subs[key] = sub

	// One delivery goroutine per subscription keeps callbacks sequential.
	// The throttle bounds deliveries, not subscriptions: a token is held
	// only while a callback runs, so any number of idle listeners can be
	// attached.
	c.subWG.Add(1)
	go func() {
		defer c.subWG.Done()
		for f := range sub.deliver {
			c.notifyT.Acquire()
			f()
			c.notifyT.Release()
		}
	}()

	c.queueDeliveryLocked(sub)
	c.mu.Unlock()

	stop := func() {
		c.mu.Lock()
		if s, ok := c.subs[key]; ok {
			delete(c.subs, key)
			close(s.deliver)
		}
		c.mu.Unlock()
	}
	return stop, nil
}

// notifyLocked queues a fresh snapshot to every subscription watching path.
// Must be called with the lock held.
func (c *conn) notifyLocked(path string) {
	for _, sub := range c.subs {
		if sub.path == path {
			c.queueDeliveryLocked(sub)
		}
	}
}

// queueDeliveryLocked snapshots the subscription's current view and queues
// its delivery. Stream-level failures collapse to a nil or empty callback
// argument rather than an error. If the subscription's queue is full the
// oldest pending snapshot is superseded by draining one entry; only the
// freshest state matters to a listener.
// Must be called with the lock held.
func (c *conn) queueDeliveryLocked(sub *subscription) {
	var f func()
	if sub.notifyDoc != nil {
		var fields map[string]interface{}
		if d, ok := c.colls[sub.path][sub.docID]; ok {
			fields = copyDoc(d)
		}
		f = func() { sub.notifyDoc(fields) }
	} else {
		docs, err := c.runQueryLocked(sub.q)
		if err != nil {
			docs = []driver.Doc{}
		}
		if docs == nil {
			docs = []driver.Doc{}
		}
		f = func() { sub.notifyQuery(docs) }
	}
	for {
		select {
		case sub.deliver <- f:
			return
		default:
			select {
			case <-sub.deliver:
			default:
			}
		}
	}
}
