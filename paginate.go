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

// DefaultPerPage is the page size used when a pagination option leaves
// PerPage unset.
const DefaultPerPage = 10

// PaginateOptions configure Query.Paginate.
type PaginateOptions struct {
	PerPage int // defaults to DefaultPerPage
	Page    int // 1-based; defaults to 1
}

// PageMeta describes one page of a numbered pagination.
type PageMeta struct {
	Total        int
	PerPage      int
	CurrentPage  int
	LastPage     int
	From         int // 1-based index of the first row on the page; 0 when empty
	To           int // 1-based index of the last row on the page; 0 when empty
	HasMorePages bool
}

// A Page is the result of Query.Paginate.
type Page struct {
	Data []Doc
	Meta PageMeta
	// FirstID and LastID are the ids of the first and last documents on the
	// page, usable as cursors. Empty when the page is empty.
	FirstID string
	LastID  string
}

// Paginate returns page Page of the filtered result set with a full total.
//
// The total comes from a server-side count of the filtered set. The
// underlying store only supports cursor pagination, so reaching page N > 1
// re-reads and discards the (N-1)*PerPage preceding documents to discover
// the page's start cursor before issuing the real page read. Cost grows with
// the page number; for deep traversal prefer SimplePaginate or
// CursorPaginate.
func (q *Query) Paginate(ctx context.Context, opts PaginateOptions) (page *Page, err error) {
	if err := q.init(); err != nil {
		return nil, err
	}
	perPage, err := normPerPage(opts.PerPage)
	if err != nil {
		return nil, err
	}
	pageNum := opts.Page
	if pageNum == 0 {
		pageNum = 1
	}
	if pageNum < 1 {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "firestorm: page %d must be at least 1", pageNum)
	}
	c := q.coll
	ctx, span := c.client.tracer.Start(ctx, "Query.Paginate")
	defer func() { c.client.tracer.End(span, err) }()

	total, err := c.client.conn.Count(ctx, q.dq)
	if err != nil {
		return nil, wrapError(c.client.conn, err)
	}
	lastPage := int((total + int64(perPage) - 1) / int64(perPage))

	// Discover the start cursor by reading and discarding the preceding
	// pages.
	cursor := ""
	if pageNum > 1 {
		skip := (pageNum - 1) * perPage
		pre := q.Clone()
		pre.dq.Limit = skip
		pre.dq.StartAfter = ""
		skipped, err := c.client.conn.RunQuery(ctx, pre.dq)
		if err != nil {
			return nil, wrapError(c.client.conn, err)
		}
		if len(skipped) < skip {
			// Past the end: an empty page with intact meta.
			return &Page{
				Data: []Doc{},
				Meta: PageMeta{
					Total:        int(total),
					PerPage:      perPage,
					CurrentPage:  pageNum,
					LastPage:     lastPage,
					HasMorePages: false,
				},
			}, nil
		}
		cursor = skipped[len(skipped)-1].ID
	}

	rq := q.Clone()
	rq.dq.Limit = perPage
	rq.dq.StartAfter = cursor
	ds, err := c.client.conn.RunQuery(ctx, rq.dq)
	if err != nil {
		return nil, wrapError(c.client.conn, err)
	}

	page = &Page{
		Data: mergeIDs(ds),
		Meta: PageMeta{
			Total:        int(total),
			PerPage:      perPage,
			CurrentPage:  pageNum,
			LastPage:     lastPage,
			HasMorePages: pageNum < lastPage,
		},
	}
	if len(ds) > 0 {
		page.Meta.From = (pageNum-1)*perPage + 1
		page.Meta.To = page.Meta.From + len(ds) - 1
		page.FirstID = ds[0].ID
		page.LastID = ds[len(ds)-1].ID
	}
	return page, nil
}

// SimplePaginateOptions configure Query.SimplePaginate.
type SimplePaginateOptions struct {
	PerPage int    // defaults to DefaultPerPage
	Cursor  string // id of the last document of the previous page; empty for the first page
}

// A SimplePage is the result of Query.SimplePaginate.
type SimplePage struct {
	Data         []Doc
	PerPage      int
	NextCursor   string // id of the last row; pass as Cursor to continue
	HasMorePages bool
}

// SimplePaginate returns the next page after Cursor. It fetches PerPage+1
// rows and trims the extra one to learn whether more pages exist, so each
// call costs O(PerPage) regardless of depth. There is no total count.
func (q *Query) SimplePaginate(ctx context.Context, opts SimplePaginateOptions) (page *SimplePage, err error) {
	if err := q.init(); err != nil {
		return nil, err
	}
	perPage, err := normPerPage(opts.PerPage)
	if err != nil {
		return nil, err
	}
	c := q.coll
	ctx, span := c.client.tracer.Start(ctx, "Query.SimplePaginate")
	defer func() { c.client.tracer.End(span, err) }()

	rq := q.Clone()
	rq.dq.Limit = perPage + 1
	rq.dq.StartAfter = opts.Cursor
	ds, err := c.client.conn.RunQuery(ctx, rq.dq)
	if err != nil {
		return nil, wrapError(c.client.conn, err)
	}
	more := len(ds) > perPage
	if more {
		ds = ds[:perPage]
	}
	page = &SimplePage{
		Data:         mergeIDs(ds),
		PerPage:      perPage,
		HasMorePages: more,
	}
	if len(ds) > 0 {
		page.NextCursor = ds[len(ds)-1].ID
	}
	return page, nil
}

// CursorPaginateOptions configure Query.CursorPaginate. At most one of
// AfterCursor and BeforeCursor may be set.
type CursorPaginateOptions struct {
	PerPage      int    // defaults to DefaultPerPage
	AfterCursor  string // id to page forward from
	BeforeCursor string // id to page backward from
}

// A CursorPage is the result of Query.CursorPaginate.
type CursorPage struct {
	Data        []Doc
	PerPage     int
	StartCursor string // id of the first row
	EndCursor   string // id of the last row
	HasNextPage bool
	HasPrevPage bool
}

// CursorPaginate pages bidirectionally. Cursors are document ids; the driver
// resolves them back to native cursors, which may cost an extra read.
//
// In the travel direction, the PerPage+1 over-fetch gives an exact
// more-pages answer. In the opposite direction the answer is approximated
// from "a cursor argument was supplied": the page that handed out the cursor
// existed when it did so, but no existence probe is re-run.
func (q *Query) CursorPaginate(ctx context.Context, opts CursorPaginateOptions) (page *CursorPage, err error) {
	if err := q.init(); err != nil {
		return nil, err
	}
	if opts.AfterCursor != "" && opts.BeforeCursor != "" {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "firestorm: at most one of AfterCursor and BeforeCursor may be set")
	}
	perPage, err := normPerPage(opts.PerPage)
	if err != nil {
		return nil, err
	}
	c := q.coll
	ctx, span := c.client.tracer.Start(ctx, "Query.CursorPaginate")
	defer func() { c.client.tracer.End(span, err) }()

	var (
		ds       []driver.Doc
		hasNext  bool
		hasPrev  bool
		backward = opts.BeforeCursor != ""
	)
	if backward {
		// Walk away from the cursor in reverse order, then flip the rows
		// back.
		rq := q.Clone()
		rq.dq.Orders = reverseOrders(q.dq.Orders)
		rq.dq.Limit = perPage + 1
		rq.dq.StartAfter = opts.BeforeCursor
		ds, err = c.client.conn.RunQuery(ctx, rq.dq)
		if err != nil {
			return nil, wrapError(c.client.conn, err)
		}
		hasPrev = len(ds) > perPage
		if hasPrev {
			ds = ds[:perPage]
		}
		for i, j := 0, len(ds)-1; i < j; i, j = i+1, j-1 {
			ds[i], ds[j] = ds[j], ds[i]
		}
		hasNext = true // a BeforeCursor was supplied
	} else {
		rq := q.Clone()
		rq.dq.Limit = perPage + 1
		rq.dq.StartAfter = opts.AfterCursor
		ds, err = c.client.conn.RunQuery(ctx, rq.dq)
		if err != nil {
			return nil, wrapError(c.client.conn, err)
		}
		hasNext = len(ds) > perPage
		if hasNext {
			ds = ds[:perPage]
		}
		hasPrev = opts.AfterCursor != ""
	}

	page = &CursorPage{
		Data:        mergeIDs(ds),
		PerPage:     perPage,
		HasNextPage: hasNext,
		HasPrevPage: hasPrev,
	}
	if len(ds) > 0 {
		page.StartCursor = ds[0].ID
		page.EndCursor = ds[len(ds)-1].ID
	}
	return page, nil
}

func normPerPage(n int) (int, error) {
	if n == 0 {
		return DefaultPerPage, nil
	}
	if n < 0 {
		return 0, fserr.Newf(fserr.InvalidArgument, nil, "firestorm: per-page value %d must be greater than zero", n)
	}
	return n, nil
}

// reverseOrders flips every sort direction. A query with no explicit sort is
// implicitly ordered by document id ascending, so its reverse is document id
// descending.
func reverseOrders(orders []driver.Order) []driver.Order {
	if len(orders) == 0 {
		return []driver.Order{{Field: driver.DocumentID, Descending: true}}
	}
	out := make([]driver.Order, len(orders))
	for i, o := range orders {
		out[i] = driver.Order{Field: o.Field, Descending: !o.Descending}
	}
	return out
}
