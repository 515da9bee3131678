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

// Package drivertest provides a conformance test for implementations of
// driver.Conn.
package drivertest // import "github.com/nelsondiego/FirestORM/drivertest"

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nelsondiego/FirestORM/driver"
	"github.com/nelsondiego/FirestORM/fserrors"
)

// Harness describes the functionality test harnesses must provide to run
// conformance tests.
type Harness interface {
	// MakeConn makes a driver.Conn to test. Each call returns a connection to
	// an empty, independent store.
	MakeConn(ctx context.Context) (driver.Conn, error)

	// Close closes resources used by the harness.
	Close()
}

// HarnessMaker describes functions that construct a harness for running
// tests. It is called exactly once per test; Harness.Close() will be called
// when the test is complete.
type HarnessMaker func(ctx context.Context, t *testing.T) (Harness, error)

// RunConformanceTests runs conformance tests for driver implementations of
// driver.Conn.
func RunConformanceTests(t *testing.T, newHarness HarnessMaker) {
	t.Run("Get", func(t *testing.T) { withConn(t, newHarness, testGet) })
	t.Run("Create", func(t *testing.T) { withConn(t, newHarness, testCreate) })
	t.Run("PutDelete", func(t *testing.T) { withConn(t, newHarness, testPutDelete) })
	t.Run("Update", func(t *testing.T) { withConn(t, newHarness, testUpdate) })
	t.Run("Sentinels", func(t *testing.T) { withConn(t, newHarness, testSentinels) })
	t.Run("Query", func(t *testing.T) { withConn(t, newHarness, testQuery) })
	t.Run("QueryCursor", func(t *testing.T) { withConn(t, newHarness, testQueryCursor) })
	t.Run("Count", func(t *testing.T) { withConn(t, newHarness, testCount) })
	t.Run("Transaction", func(t *testing.T) { withConn(t, newHarness, testTransaction) })
	t.Run("Batch", func(t *testing.T) { withConn(t, newHarness, testBatch) })
	t.Run("ListenDoc", func(t *testing.T) { withConn(t, newHarness, testListenDoc) })
	t.Run("ListenQuery", func(t *testing.T) { withConn(t, newHarness, testListenQuery) })
}

func withConn(t *testing.T, newHarness HarnessMaker, f func(*testing.T, context.Context, driver.Conn)) {
	ctx := context.Background()
	h, err := newHarness(ctx, t)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	conn, err := h.MakeConn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	f(t, ctx, conn)
}

const collPath = "players"

// seed writes n documents p0..p<n-1> with fields i (int64) and grp
// ("even"/"odd").
func seed(t *testing.T, ctx context.Context, conn driver.Conn, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		grp := "odd"
		if i%2 == 0 {
			grp = "even"
		}
		id := fmt.Sprintf("p%03d", i)
		if _, err := conn.Create(ctx, collPath, id, map[string]interface{}{"i": int64(i), "grp": grp}); err != nil {
			t.Fatal(err)
		}
	}
}

func testGet(t *testing.T, ctx context.Context, conn driver.Conn) {
	if _, err := conn.Create(ctx, collPath, "a", map[string]interface{}{"name": "Ana"}); err != nil {
		t.Fatal(err)
	}
	got, err := conn.Get(ctx, collPath, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "a" {
		t.Errorf("got id %q, want %q", got.ID, "a")
	}
	if diff := cmp.Diff(map[string]interface{}{"name": "Ana"}, got.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	_, err = conn.Get(ctx, collPath, "missing")
	if conn.ErrorCode(err) != fserrors.NotFound {
		t.Errorf("got error %v, want NotFound", err)
	}
}

func testCreate(t *testing.T, ctx context.Context, conn driver.Conn) {
	// Minted ids are unique.
	id1, err := conn.Create(ctx, collPath, "", map[string]interface{}{"n": int64(1)})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := conn.Create(ctx, collPath, "", map[string]interface{}{"n": int64(2)})
	if err != nil {
		t.Fatal(err)
	}
	if id1 == "" || id2 == "" || id1 == id2 {
		t.Errorf("got ids %q, %q; want distinct non-empty", id1, id2)
	}

	// A pre-assigned id makes the write a set: re-running overwrites.
	for i := 0; i < 2; i++ {
		if _, err := conn.Create(ctx, collPath, "fixed", map[string]interface{}{"run": int64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := conn.Get(ctx, collPath, "fixed")
	if err != nil {
		t.Fatal(err)
	}
	if got.Fields["run"] != int64(1) {
		t.Errorf("got run %v, want 1", got.Fields["run"])
	}
}

func testPutDelete(t *testing.T, ctx context.Context, conn driver.Conn) {
	if err := conn.Put(ctx, collPath, "a", map[string]interface{}{"x": int64(1), "y": int64(2)}); err != nil {
		t.Fatal(err)
	}
	// Put replaces the whole document.
	if err := conn.Put(ctx, collPath, "a", map[string]interface{}{"x": int64(3)}); err != nil {
		t.Fatal(err)
	}
	got, err := conn.Get(ctx, collPath, "a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]interface{}{"x": int64(3)}, got.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	if err := conn.Delete(ctx, collPath, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Get(ctx, collPath, "a"); conn.ErrorCode(err) != fserrors.NotFound {
		t.Errorf("got error %v after delete, want NotFound", err)
	}
	// Deleting a missing document is not an error.
	if err := conn.Delete(ctx, collPath, "a"); err != nil {
		t.Errorf("second delete: got %v, want nil", err)
	}
}

func testUpdate(t *testing.T, ctx context.Context, conn driver.Conn) {
	if _, err := conn.Create(ctx, collPath, "a", map[string]interface{}{"x": int64(1), "y": int64(2)}); err != nil {
		t.Fatal(err)
	}
	// Update merges.
	if err := conn.Update(ctx, collPath, "a", map[string]interface{}{"y": int64(3), "z": int64(4)}); err != nil {
		t.Fatal(err)
	}
	got, err := conn.Get(ctx, collPath, "a")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{"x": int64(1), "y": int64(3), "z": int64(4)}
	if diff := cmp.Diff(want, got.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	// Update of a missing document fails.
	err = conn.Update(ctx, collPath, "missing", map[string]interface{}{"x": int64(1)})
	if c := conn.ErrorCode(err); c != fserrors.NotFound && c != fserrors.FailedPrecondition {
		t.Errorf("got error %v, want NotFound or FailedPrecondition", err)
	}
}

func testSentinels(t *testing.T, ctx context.Context, conn driver.Conn) {
	if _, err := conn.Create(ctx, collPath, "a", map[string]interface{}{
		"n":    int64(1),
		"tags": []interface{}{"x"},
		"gone": "soon",
	}); err != nil {
		t.Fatal(err)
	}
	if err := conn.Update(ctx, collPath, "a", map[string]interface{}{
		"n":    driver.IncOp{Amount: int64(2)},
		"tags": driver.ArrayUnionOp{Values: []interface{}{"x", "y"}},
		"gone": driver.DeleteOp{},
		"at":   driver.ServerTimestampOp{},
	}); err != nil {
		t.Fatal(err)
	}
	got, err := conn.Get(ctx, collPath, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Fields["n"] != int64(3) {
		t.Errorf("got n = %v, want 3", got.Fields["n"])
	}
	if diff := cmp.Diff([]interface{}{"x", "y"}, got.Fields["tags"]); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if _, ok := got.Fields["gone"]; ok {
		t.Error("field gone still present after DeleteOp")
	}
	if _, ok := got.Fields["at"].(time.Time); !ok {
		t.Errorf("got at of type %T, want time.Time", got.Fields["at"])
	}

	if err := conn.Update(ctx, collPath, "a", map[string]interface{}{
		"tags": driver.ArrayRemoveOp{Values: []interface{}{"x"}},
	}); err != nil {
		t.Fatal(err)
	}
	got, err = conn.Get(ctx, collPath, "a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]interface{}{"y"}, got.Fields["tags"]); diff != "" {
		t.Errorf("tags after remove mismatch (-want +got):\n%s", diff)
	}
}

func ids(docs []driver.Doc) []string {
	var out []string
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func testQuery(t *testing.T, ctx context.Context, conn driver.Conn) {
	seed(t, ctx, conn, 6)

	for _, test := range []struct {
		name string
		q    *driver.Query
		want []string
	}{
		{
			name: "All",
			q:    &driver.Query{Path: collPath},
			want: []string{"p000", "p001", "p002", "p003", "p004", "p005"},
		},
		{
			name: "Equal",
			q: &driver.Query{Path: collPath, Filters: []driver.Filter{
				{Field: "grp", Op: driver.EqualOp, Value: "even"},
			}},
			want: []string{"p000", "p002", "p004"},
		},
		{
			name: "NotEqual",
			q: &driver.Query{Path: collPath, Filters: []driver.Filter{
				{Field: "grp", Op: "!=", Value: "even"},
			}},
			want: []string{"p001", "p003", "p005"},
		},
		{
			name: "Range",
			q: &driver.Query{Path: collPath, Filters: []driver.Filter{
				{Field: "i", Op: ">=", Value: int64(2)},
				{Field: "i", Op: "<", Value: int64(5)},
			}},
			want: []string{"p002", "p003", "p004"},
		},
		{
			name: "In",
			q: &driver.Query{Path: collPath, Filters: []driver.Filter{
				{Field: "i", Op: "in", Value: []interface{}{int64(1), int64(4)}},
			}},
			want: []string{"p001", "p004"},
		},
		{
			name: "OrderDescLimit",
			q: &driver.Query{
				Path:   collPath,
				Orders: []driver.Order{{Field: "i", Descending: true}},
				Limit:  2,
			},
			want: []string{"p005", "p004"},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := conn.RunQuery(ctx, test.q)
			if err != nil {
				t.Fatal(err)
			}
			gotIDs := ids(got)
			if len(test.q.Orders) == 0 {
				sort.Strings(gotIDs)
			}
			if diff := cmp.Diff(test.want, gotIDs); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func testQueryCursor(t *testing.T, ctx context.Context, conn driver.Conn) {
	seed(t, ctx, conn, 6)
	q := &driver.Query{
		Path:       collPath,
		Orders:     []driver.Order{{Field: "i"}},
		Limit:      2,
		StartAfter: "p001",
	}
	got, err := conn.RunQuery(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"p002", "p003"}, ids(got)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func testCount(t *testing.T, ctx context.Context, conn driver.Conn) {
	seed(t, ctx, conn, 6)
	// Limit and cursor are ignored by Count.
	q := &driver.Query{
		Path:    collPath,
		Filters: []driver.Filter{{Field: "grp", Op: driver.EqualOp, Value: "even"}},
		Limit:   1,
	}
	n, err := conn.Count(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("got count %d, want 3", n)
	}
}

func testTransaction(t *testing.T, ctx context.Context, conn driver.Conn) {
	if _, err := conn.Create(ctx, collPath, "a", map[string]interface{}{"x": int64(0)}); err != nil {
		t.Fatal(err)
	}

	// All writes commit together.
	err := conn.RunTransaction(ctx, []driver.Write{
		{Kind: driver.Update, Path: collPath, ID: "a", Fields: map[string]interface{}{"x": int64(1)}},
		{Kind: driver.Create, Path: collPath, ID: "b", Fields: map[string]interface{}{"x": int64(2)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := conn.Get(ctx, collPath, "b")
	if err != nil {
		t.Fatal(err)
	}
	if got.Fields["x"] != int64(2) {
		t.Errorf("got x = %v, want 2", got.Fields["x"])
	}

	// A failing write aborts the whole transaction.
	err = conn.RunTransaction(ctx, []driver.Write{
		{Kind: driver.Update, Path: collPath, ID: "a", Fields: map[string]interface{}{"x": int64(9)}},
		{Kind: driver.Update, Path: collPath, ID: "missing", Fields: map[string]interface{}{"x": int64(9)}},
	})
	if err == nil {
		t.Fatal("transaction with failing write: got nil error")
	}
	got, err = conn.Get(ctx, collPath, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Fields["x"] != int64(1) {
		t.Errorf("after aborted transaction, got x = %v, want 1", got.Fields["x"])
	}
}

func testBatch(t *testing.T, ctx context.Context, conn driver.Conn) {
	writes := make([]driver.Write, 10)
	for i := range writes {
		writes[i] = driver.Write{
			Kind:   driver.Create,
			Path:   collPath,
			ID:     fmt.Sprintf("b%02d", i),
			Fields: map[string]interface{}{"i": int64(i)},
		}
	}
	if err := conn.CommitBatch(ctx, writes); err != nil {
		t.Fatal(err)
	}
	n, err := conn.Count(ctx, &driver.Query{Path: collPath})
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("got count %d, want 10", n)
	}

	// Oversized batches are rejected.
	big := make([]driver.Write, driver.MaxBatchWrites+1)
	for i := range big {
		big[i] = driver.Write{Kind: driver.Delete, Path: collPath, ID: fmt.Sprintf("b%02d", i)}
	}
	if err := conn.CommitBatch(ctx, big); err == nil {
		t.Error("oversized batch: got nil error")
	}
}

// collectDocs returns a callback and a channel that receives each callback
// argument.
func collectDocs() (func([]driver.Doc), chan []driver.Doc) {
	ch := make(chan []driver.Doc, 16)
	return func(docs []driver.Doc) { ch <- docs }, ch
}

func waitFor[T any](t *testing.T, ch chan T, pred func(T) bool) T {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v := <-ch:
			if pred(v) {
				return v
			}
		case <-timeout:
			t.Fatal("timed out waiting for notification")
		}
	}
}

func testListenDoc(t *testing.T, ctx context.Context, conn driver.Conn) {
	ch := make(chan map[string]interface{}, 16)
	stop, err := conn.ListenDoc(ctx, collPath, "a", func(fields map[string]interface{}) {
		ch <- fields
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	// Initial state: absent.
	waitFor(t, ch, func(f map[string]interface{}) bool { return f == nil })

	if _, err := conn.Create(ctx, collPath, "a", map[string]interface{}{"x": int64(1)}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, ch, func(f map[string]interface{}) bool { return f != nil && f["x"] == int64(1) })

	if err := conn.Delete(ctx, collPath, "a"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, ch, func(f map[string]interface{}) bool { return f == nil })
}

func testListenQuery(t *testing.T, ctx context.Context, conn driver.Conn) {
	seed(t, ctx, conn, 2)
	cb, ch := collectDocs()
	q := &driver.Query{Path: collPath, Filters: []driver.Filter{
		{Field: "grp", Op: driver.EqualOp, Value: "even"},
	}}
	stop, err := conn.ListenQuery(ctx, q, cb)
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	waitFor(t, ch, func(docs []driver.Doc) bool { return len(docs) == 1 })

	if _, err := conn.Create(ctx, collPath, "p002", map[string]interface{}{"i": int64(2), "grp": "even"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, ch, func(docs []driver.Doc) bool { return len(docs) == 2 })
}
