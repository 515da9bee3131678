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

// Package memfirestore provides an in-process in-memory implementation of
// the firestorm API. It is suitable for local development and testing.
//
// Documents live in collections addressed by slash-separated paths, exactly
// as with the hosted service; subcollection paths like "users/42/posts" are
// independent collections keyed by the full path.
//
// # URLs
//
// For firestorm.OpenClient, memfirestore registers for the scheme "mem".
// To customize the URL opener, or for more details on the URL format, see
// URLOpener.
package memfirestore // import "github.com/nelsondiego/FirestORM/memfirestore"

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sync"
	"time"

	firestorm "github.com/nelsondiego/FirestORM"
	"github.com/nelsondiego/FirestORM/driver"
	"github.com/nelsondiego/FirestORM/fserrors"
	"github.com/nelsondiego/FirestORM/internal/fserr"
)

// Options are optional arguments to OpenClient.
type Options struct {
	// The filename associated with this client's data.
	// When a client is opened with a non-empty filename, its documents are
	// loaded from the file if it exists. Otherwise, an empty store is created.
	// When the client is closed, its contents are saved to the file.
	Filename string

	// The maximum number of concurrent listener notification deliveries.
	// If less than 1, there is no limit.
	MaxOutstandingNotifications int

	// Call this function when the client is closed.
	// For internal use only.
	onClose func()
}

// OpenClient creates a *firestorm.Client backed by memory.
func OpenClient(cfg firestorm.Config, opts *Options) (*firestorm.Client, error) {
	c, err := newConn(opts)
	if err != nil {
		return nil, err
	}
	return firestorm.NewClient(c, cfg), nil
}

func newConn(opts *Options) (*conn, error) {
	if opts == nil {
		opts = &Options{}
	}
	colls, err := loadDocs(opts.Filename)
	if err != nil {
		return nil, err
	}
	return &conn{
		opts:    opts,
		colls:   colls,
		subs:    map[int]*subscription{},
		notifyT: driver.NewThrottle(opts.MaxOutstandingNotifications),
	}, nil
}

// A storedDoc is a document's fields as stored. The id is not a member; it is
// the key of the enclosing collection map.
//
// Using a separate type helps distinguish documents coming from a caller from
// those stored in a collection.
type storedDoc map[string]interface{}

// mapOfColls maps a collection path to its documents by id.
type mapOfColls = map[string]map[string]storedDoc

type conn struct {
	opts    *Options
	mu      sync.Mutex
	colls   mapOfColls
	subs    map[int]*subscription
	nextSub int
	notifyT *driver.Throttle
	subWG   sync.WaitGroup
	closed  bool
}

func (c *conn) errClosed() error {
	return fserr.Newf(fserr.FailedPrecondition, nil, "memfirestore: connection has been closed")
}

// Get implements driver.Conn.Get.
func (c *conn) Get(_ context.Context, path, id string) (driver.Doc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return driver.Doc{}, c.errClosed()
	}
	d, ok := c.colls[path][id]
	if !ok {
		return driver.Doc{}, fserr.Newf(fserr.NotFound, nil, "memfirestore: document %q/%q does not exist", path, id)
	}
	return driver.Doc{ID: id, Fields: copyDoc(d)}, nil
}

// Create implements driver.Conn.Create. A pre-assigned id overwrites any
// existing document with that id.
func (c *conn) Create(_ context.Context, path, id string, fields map[string]interface{}) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", c.errClosed()
	}
	if id == "" {
		id = driver.UniqueString()
	}
	doc, err := buildDoc(fields)
	if err != nil {
		return "", err
	}
	c.setDocLocked(path, id, doc)
	c.notifyLocked(path)
	return id, nil
}

// Put implements driver.Conn.Put.
func (c *conn) Put(_ context.Context, path, id string, fields map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.errClosed()
	}
	doc, err := buildDoc(fields)
	if err != nil {
		return err
	}
	c.setDocLocked(path, id, doc)
	c.notifyLocked(path)
	return nil
}

// Update implements driver.Conn.Update.
func (c *conn) Update(_ context.Context, path, id string, fields map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.errClosed()
	}
	doc, ok := c.colls[path][id]
	if !ok {
		return fserr.Newf(fserr.NotFound, nil, "memfirestore: document %q/%q does not exist", path, id)
	}
	if err := applyMods(doc, fields); err != nil {
		return err
	}
	c.notifyLocked(path)
	return nil
}

// Delete implements driver.Conn.Delete. Deleting a missing document is not an
// error.
func (c *conn) Delete(_ context.Context, path, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.errClosed()
	}
	if m := c.colls[path]; m != nil {
		if _, ok := m[id]; ok {
			delete(m, id)
			c.notifyLocked(path)
		}
	}
	return nil
}

// RunTransaction implements driver.Conn.RunTransaction. The writes are staged
// against copies of the touched collections and installed only if every write
// succeeds, so a failure leaves the store unchanged.
func (c *conn) RunTransaction(_ context.Context, writes []driver.Write) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.errClosed()
	}
	staged := map[string]map[string]storedDoc{}
	collFor := func(path string) map[string]storedDoc {
		if m, ok := staged[path]; ok {
			return m
		}
		m := make(map[string]storedDoc, len(c.colls[path]))
		for id, d := range c.colls[path] {
			m[id] = copyDoc(d)
		}
		staged[path] = m
		return m
	}
	for _, w := range writes {
		if err := applyWrite(collFor(w.Path), w); err != nil {
			return err
		}
	}
	for path, m := range staged {
		if c.colls == nil {
			c.colls = mapOfColls{}
		}
		c.colls[path] = m
		c.notifyLocked(path)
	}
	return nil
}

// CommitBatch implements driver.Conn.CommitBatch. Writes apply in order; a
// failure stops the batch and leaves the earlier writes applied.
func (c *conn) CommitBatch(_ context.Context, writes []driver.Write) error {
	if len(writes) > driver.MaxBatchWrites {
		return fserr.Newf(fserr.InvalidArgument, nil, "memfirestore: batch of %d writes exceeds the limit of %d", len(writes), driver.MaxBatchWrites)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.errClosed()
	}
	touched := map[string]bool{}
	for _, w := range writes {
		m := c.colls[w.Path]
		if m == nil {
			m = map[string]storedDoc{}
			if c.colls == nil {
				c.colls = mapOfColls{}
			}
			c.colls[w.Path] = m
		}
		if err := applyWrite(m, w); err != nil {
			for path := range touched {
				c.notifyLocked(path)
			}
			return err
		}
		touched[w.Path] = true
	}
	for path := range touched {
		c.notifyLocked(path)
	}
	return nil
}

// applyWrite applies one queued write to a collection map.
func applyWrite(m map[string]storedDoc, w driver.Write) error {
	switch w.Kind {
	case driver.Create, driver.Put:
		id := w.ID
		if id == "" {
			id = driver.UniqueString()
		}
		doc, err := buildDoc(w.Fields)
		if err != nil {
			return err
		}
		m[id] = doc
		return nil
	case driver.Update:
		doc, ok := m[w.ID]
		if !ok {
			return fserr.Newf(fserr.NotFound, nil, "memfirestore: document %q/%q does not exist", w.Path, w.ID)
		}
		return applyMods(doc, w.Fields)
	case driver.Delete:
		delete(m, w.ID)
		return nil
	default:
		return fserr.Newf(fserr.Internal, nil, "memfirestore: unknown write kind %v", w.Kind)
	}
}

// setDocLocked stores doc, creating the collection map on first use.
// Must be called with the lock held.
func (c *conn) setDocLocked(path, id string, doc storedDoc) {
	m := c.colls[path]
	if m == nil {
		m = map[string]storedDoc{}
		if c.colls == nil {
			c.colls = mapOfColls{}
		}
		c.colls[path] = m
	}
	m[id] = doc
}

// buildDoc resolves the sentinel ops in a create or put payload against an
// empty document.
func buildDoc(fields map[string]interface{}) (storedDoc, error) {
	doc := storedDoc{}
	if err := applyMods(doc, fields); err != nil {
		return nil, err
	}
	return doc, nil
}

// applyMods merges fields into doc, translating sentinel ops. To make the
// merge atomic, every value is first resolved into a form that cannot fail,
// and only then written.
func applyMods(doc storedDoc, fields map[string]interface{}) error {
	type guaranteedMod struct {
		key    string
		value  interface{}
		remove bool
	}
	gmods := make([]guaranteedMod, 0, len(fields))
	for k, v := range fields {
		gmod := guaranteedMod{key: k}
		switch op := v.(type) {
		case driver.IncOp:
			sum, err := add(doc[k], op.Amount)
			if err != nil {
				return err
			}
			gmod.value = sum
		case driver.ArrayUnionOp:
			arr, err := arrayUnion(doc[k], op.Values)
			if err != nil {
				return err
			}
			gmod.value = arr
		case driver.ArrayRemoveOp:
			arr, err := arrayRemove(doc[k], op.Values)
			if err != nil {
				return err
			}
			gmod.value = arr
		case driver.DeleteOp:
			gmod.remove = true
		case driver.ServerTimestampOp:
			gmod.value = time.Now()
		default:
			gmod.value = v
		}
		gmods = append(gmods, gmod)
	}
	for _, m := range gmods {
		if m.remove {
			delete(doc, m.key)
		} else {
			doc[m.key] = m.value
		}
	}
	return nil
}

// add sums a stored value and an increment amount. A missing stored value
// counts as zero. Mixing an integer with a floating-point value produces a
// floating-point result.
func add(x, y interface{}) (interface{}, error) {
	yi, yf, yIsInt, err := asNumber(y)
	if err != nil {
		return nil, err
	}
	if x == nil {
		if yIsInt {
			return yi, nil
		}
		return yf, nil
	}
	xi, xf, xIsInt, err := asNumber(x)
	if err != nil {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "memfirestore: value %v being incremented is not a number", x)
	}
	if xIsInt && yIsInt {
		return xi + yi, nil
	}
	if xIsInt {
		xf = float64(xi)
	}
	if yIsInt {
		yf = float64(yi)
	}
	return xf + yf, nil
}

func asNumber(v interface{}) (i int64, f float64, isInt bool, err error) {
	switch n := v.(type) {
	case int:
		return int64(n), 0, true, nil
	case int8:
		return int64(n), 0, true, nil
	case int16:
		return int64(n), 0, true, nil
	case int32:
		return int64(n), 0, true, nil
	case int64:
		return n, 0, true, nil
	case uint:
		return int64(n), 0, true, nil
	case uint8:
		return int64(n), 0, true, nil
	case uint16:
		return int64(n), 0, true, nil
	case uint32:
		return int64(n), 0, true, nil
	case float32:
		return 0, float64(n), false, nil
	case float64:
		return 0, n, false, nil
	default:
		return 0, 0, false, fserr.Newf(fserr.InvalidArgument, nil, "memfirestore: %v of type %[1]T is not a number", v)
	}
}

// arrayUnion appends each of values to the stored array unless an equal
// element is already present. A missing stored value counts as an empty
// array.
func arrayUnion(x interface{}, values []interface{}) ([]interface{}, error) {
	arr, err := asArray(x)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		found := false
		for _, e := range arr {
			if equalElem(e, v) {
				found = true
				break
			}
		}
		if !found {
			arr = append(arr, v)
		}
	}
	return arr, nil
}

// arrayRemove removes every occurrence of each of values from the stored
// array.
func arrayRemove(x interface{}, values []interface{}) ([]interface{}, error) {
	arr, err := asArray(x)
	if err != nil {
		return nil, err
	}
	out := arr[:0:0]
	for _, e := range arr {
		keep := true
		for _, v := range values {
			if equalElem(e, v) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, e)
		}
	}
	if out == nil {
		out = []interface{}{}
	}
	return out, nil
}

func asArray(x interface{}) ([]interface{}, error) {
	switch a := x.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return append([]interface{}(nil), a...), nil
	default:
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "memfirestore: value %v of type %[1]T is not an array", x)
	}
}

// equalElem compares array elements the way the service does: numbers by
// mathematical value, everything else structurally.
func equalElem(x, y interface{}) bool {
	if c, err := driver.CompareNumbers(x, y); err == nil {
		return c == 0
	}
	if t1, ok := x.(time.Time); ok {
		if t2, ok := y.(time.Time); ok {
			return t1.Equal(t2)
		}
		return false
	}
	return x == y
}

// copyDoc makes a deep enough copy to hand to a caller: the top-level map and
// any stored arrays are fresh; other values are immutable.
func copyDoc(d storedDoc) map[string]interface{} {
	out := make(map[string]interface{}, len(d))
	for k, v := range d {
		if a, ok := v.([]interface{}); ok {
			out[k] = append([]interface{}(nil), a...)
			continue
		}
		out[k] = v
	}
	return out
}

// ErrorCode implements driver.Conn.ErrorCode.
func (c *conn) ErrorCode(err error) fserrors.ErrorCode {
	return fserrors.Code(err)
}

// Close implements driver.Conn.Close. If the client was opened with a
// Filename option, Close writes the store's documents to the file. Close
// waits for in-flight listener notifications to drain.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for key, sub := range c.subs {
		delete(c.subs, key)
		close(sub.deliver)
	}
	colls := c.colls
	c.mu.Unlock()

	// Delivery goroutines exit once their queues are closed and drained.
	c.subWG.Wait()
	if c.opts.onClose != nil {
		c.opts.onClose()
	}
	return saveDocs(c.opts.Filename, colls)
}

func init() {
	// Concrete types that may appear behind interface values in persisted
	// documents.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register(time.Time{})
}

// loadDocs reads a store from filename if it is not empty and the file
// exists. Otherwise it returns an empty (not nil) store.
func loadDocs(filename string) (mapOfColls, error) {
	if filename == "" {
		return mapOfColls{}, nil
	}
	f, err := os.Open(filename)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// If the file doesn't exist, return an empty store without error.
		return mapOfColls{}, nil
	}
	defer f.Close()
	var m mapOfColls
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode from %q: %v", filename, err)
	}
	return m, nil
}

// saveDocs saves m to filename if filename is not empty.
func saveDocs(filename string, m mapOfColls) error {
	if filename == "" {
		return nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(m); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode to %q: %v", filename, err)
	}
	return f.Close()
}
