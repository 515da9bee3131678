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
	"sort"
	"strings"
	"time"

	"github.com/nelsondiego/FirestORM/driver"
	"github.com/nelsondiego/FirestORM/internal/fserr"
)

// RunQuery implements driver.Conn.RunQuery.
func (c *conn) RunQuery(_ context.Context, q *driver.Query) ([]driver.Doc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, c.errClosed()
	}
	return c.runQueryLocked(q)
}

// Must be called with the lock held.
func (c *conn) runQueryLocked(q *driver.Query) ([]driver.Doc, error) {
	docs := c.collectLocked(q)
	sortDocs(docs, q.Orders)
	if q.StartAfter != "" {
		i := indexOfID(docs, q.StartAfter)
		if i < 0 {
			return nil, fserr.Newf(fserr.NotFound, nil, "memfirestore: cursor document %q does not exist in query results on %q", q.StartAfter, q.Path)
		}
		docs = docs[i+1:]
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	out := make([]driver.Doc, len(docs))
	for i, d := range docs {
		out[i] = driver.Doc{ID: d.ID, Fields: copyDoc(d.Fields)}
	}
	return out, nil
}

// Count implements driver.Conn.Count. Limit and cursors on q are ignored.
func (c *conn) Count(_ context.Context, q *driver.Query) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, c.errClosed()
	}
	return int64(len(c.collectLocked(q))), nil
}

// collectLocked returns the documents matching q's filters, unordered.
// Documents missing a sort field are excluded, as with the hosted service.
// Must be called with the lock held.
func (c *conn) collectLocked(q *driver.Query) []driver.Doc {
	var docs []driver.Doc
	for id, doc := range c.colls[q.Path] {
		if !filtersMatch(q.Filters, id, doc) {
			continue
		}
		if missingOrderField(q.Orders, doc) {
			continue
		}
		docs = append(docs, driver.Doc{ID: id, Fields: doc})
	}
	return docs
}

func missingOrderField(orders []driver.Order, doc storedDoc) bool {
	for _, o := range orders {
		if o.Field == driver.DocumentID {
			continue
		}
		if _, ok := doc[o.Field]; !ok {
			return true
		}
	}
	return false
}

func filtersMatch(fs []driver.Filter, id string, doc storedDoc) bool {
	for _, f := range fs {
		if !filterMatches(f, id, doc) {
			return false
		}
	}
	return true
}

func filterMatches(f driver.Filter, id string, doc storedDoc) bool {
	var docval interface{}
	if f.Field == driver.DocumentID {
		docval = id
	} else {
		v, ok := doc[f.Field]
		// A document missing the field matches no filter on it.
		if !ok {
			return false
		}
		docval = v
	}
	switch f.Op {
	case "in":
		return containsEqual(f.Value, docval)
	case "not-in":
		return !containsEqual(f.Value, docval)
	case "array-contains":
		arr, ok := docval.([]interface{})
		if !ok {
			return false
		}
		for _, e := range arr {
			if equalElem(e, f.Value) {
				return true
			}
		}
		return false
	case "array-contains-any":
		arr, ok := docval.([]interface{})
		if !ok {
			return false
		}
		for _, e := range arr {
			if containsEqual(f.Value, e) {
				return true
			}
		}
		return false
	}
	cmp, ok := compare(docval, f.Value)
	if !ok {
		// Values of different types are never equal.
		return f.Op == "!="
	}
	return applyComparison(f.Op, cmp)
}

// containsEqual reports whether the slice value candidates has an element
// equal to v.
func containsEqual(candidates, v interface{}) bool {
	arr, ok := candidates.([]interface{})
	if !ok {
		return false
	}
	for _, e := range arr {
		if equalElem(v, e) {
			return true
		}
	}
	return false
}

// op is one of the permitted scalar operators ("==", "<", etc.).
// c is the result of strings.Compare or the like.
func applyComparison(op string, c int) bool {
	switch op {
	case driver.EqualOp:
		return c == 0
	case "!=":
		return c != 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	default:
		return false
	}
}

func compare(x1, x2 interface{}) (int, bool) {
	if s1, ok := x1.(string); ok {
		if s2, ok := x2.(string); ok {
			return strings.Compare(s1, s2), true
		}
		return 0, false
	}
	if c, err := driver.CompareNumbers(x1, x2); err == nil {
		return c, true
	}
	if t1, ok := x1.(time.Time); ok {
		if t2, ok := x2.(time.Time); ok {
			return driver.CompareTimes(t1, t2), true
		}
		return 0, false
	}
	if b1, ok := x1.(bool); ok {
		if b2, ok := x2.(bool); ok {
			switch {
			case b1 == b2:
				return 0, true
			case b1:
				return 1, true
			default:
				return -1, true
			}
		}
	}
	return 0, false
}

// sortDocs sorts docs by the given sort keys, breaking remaining ties by
// document id. With no sort keys the order is document id ascending; the
// id tiebreak otherwise follows the direction of the last sort key.
func sortDocs(docs []driver.Doc, orders []driver.Order) {
	idDescending := len(orders) > 0 && orders[len(orders)-1].Descending
	sort.Slice(docs, func(i, j int) bool {
		for _, o := range orders {
			var c int
			if o.Field == driver.DocumentID {
				c = strings.Compare(docs[i].ID, docs[j].ID)
			} else {
				var ok bool
				c, ok = compare(docs[i].Fields[o.Field], docs[j].Fields[o.Field])
				if !ok {
					continue
				}
			}
			if c == 0 {
				continue
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		if idDescending {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].ID < docs[j].ID
	})
}

func indexOfID(docs []driver.Doc, id string) int {
	for i, d := range docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}
