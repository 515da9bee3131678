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

package firestorm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	firestorm "github.com/nelsondiego/FirestORM"
	"github.com/nelsondiego/FirestORM/fserrors"
	"github.com/nelsondiego/FirestORM/memfirestore"
)

func newTestClient(t *testing.T, cfg firestorm.Config) *firestorm.Client {
	t.Helper()
	client, err := memfirestore.OpenClient(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func seedPlayers(t *testing.T, coll *firestorm.Collection, n int) {
	t.Helper()
	ctx := context.Background()
	err := coll.Client().RunBatch(ctx, func(b *firestorm.Batch) error {
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("p%04d", i)
			if _, err := b.CreateWithID(coll, id, firestorm.Doc{"i": i, "grp": i % 3}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{Timestamps: true})
	users := client.Collection("users")

	rec, err := users.Create(ctx, firestorm.Doc{"name": "Ana", "score": 10})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID() == nil || !rec.Exists() {
		t.Fatalf("created record: id %v, exists %v", rec.ID(), rec.Exists())
	}

	got, err := users.Find(ctx, rec.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("Find returned nil for a created document")
	}
	if got["name"] != "Ana" {
		t.Errorf(`got name %v, want "Ana"`, got["name"])
	}
	if got["id"] != rec.ID() {
		t.Errorf("got id %v, want %v", got["id"], rec.ID())
	}
	if _, ok := got["createdAt"].(time.Time); !ok {
		t.Errorf("got createdAt of type %T, want time.Time", got["createdAt"])
	}

	// A missing document is nil, nil from Find and NotFound from FindOrFail.
	got, err = users.Find(ctx, "missing")
	if got != nil || err != nil {
		t.Errorf("Find(missing) = %v, %v; want nil, nil", got, err)
	}
	if _, err := users.FindOrFail(ctx, "missing"); fserrors.Code(err) != fserrors.NotFound {
		t.Errorf("FindOrFail(missing): got %v, want NotFound", err)
	}
}

// Numeric and string ids address the same document.
func TestNumericIDEquivalence(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	users := client.Collection("users")

	if _, err := users.Create(ctx, firestorm.Doc{"name": "Ana"}, 42); err != nil {
		t.Fatal(err)
	}
	byNum, err := users.Find(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	byStr, err := users.Find(ctx, "42")
	if err != nil {
		t.Fatal(err)
	}
	if byNum == nil || byStr == nil || byNum["id"] != byStr["id"] {
		t.Errorf("Find(42) = %v, Find(%q) = %v; want the same document", byNum, "42", byStr)
	}
}

// An id field inside an update payload is discarded, never written.
func TestUpdateStripsID(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	users := client.Collection("users")

	if _, err := users.Create(ctx, firestorm.Doc{"x": 0}, "a"); err != nil {
		t.Fatal(err)
	}
	if err := users.Update(ctx, "a", firestorm.Doc{"id": "evil", "x": 1}); err != nil {
		t.Fatal(err)
	}
	got, err := users.Find(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got["id"] != "a" {
		t.Errorf("got id %v, want %q", got["id"], "a")
	}
	if got["x"] != 1 {
		t.Errorf("got x = %v, want 1", got["x"])
	}
	// The original document is still absent under the smuggled id.
	if d, _ := users.Find(ctx, "evil"); d != nil {
		t.Errorf("document created under smuggled id: %v", d)
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	err := client.Collection("users").Update(ctx, "missing", firestorm.Doc{"x": 1})
	if c := fserrors.Code(err); c != fserrors.NotFound && c != fserrors.FailedPrecondition {
		t.Errorf("got %v, want NotFound or FailedPrecondition", err)
	}
}

func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	users := client.Collection("users")

	if _, err := users.Create(ctx, firestorm.Doc{"name": "Ana", "score": 1}, "a"); err != nil {
		t.Fatal(err)
	}
	rec, err := users.Load(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || !rec.Exists() {
		t.Fatal("Load returned no record for an existing document")
	}
	if rec.IsDirty() {
		t.Error("freshly loaded record is dirty")
	}

	rec.Set("score", 2)
	if !rec.IsDirty() {
		t.Error("record not dirty after Set")
	}
	if err := rec.Save(ctx); err != nil {
		t.Fatal(err)
	}
	if rec.IsDirty() {
		t.Error("record dirty after Save")
	}

	got, err := users.Find(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got["score"] != 2 {
		t.Errorf("got score %v, want 2", got["score"])
	}

	if err := rec.Delete(ctx); err != nil {
		t.Fatal(err)
	}
	if rec.Exists() {
		t.Error("record exists after Delete")
	}
	if err := rec.Refresh(ctx); fserrors.Code(err) != fserrors.NotFound {
		t.Errorf("Refresh after delete: got %v, want NotFound", err)
	}

	// Loading a missing document yields nil, nil.
	rec, err = users.Load(ctx, "missing")
	if rec != nil || err != nil {
		t.Errorf("Load(missing) = %v, %v; want nil, nil", rec, err)
	}
}

func TestUnsavedRecordGuards(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	rec := client.Collection("users").NewRecord(firestorm.Doc{"name": "Ana"})
	if err := rec.Delete(ctx); fserrors.Code(err) != fserrors.FailedPrecondition {
		t.Errorf("Delete unsaved: got %v, want FailedPrecondition", err)
	}
	if err := rec.Update(ctx, firestorm.Doc{"x": 1}); fserrors.Code(err) != fserrors.FailedPrecondition {
		t.Errorf("Update unsaved: got %v, want FailedPrecondition", err)
	}
	// Save on an unsaved record creates it.
	if err := rec.Save(ctx); err != nil {
		t.Fatal(err)
	}
	if !rec.Exists() || rec.ID() == nil {
		t.Errorf("after Save: exists %v, id %v", rec.Exists(), rec.ID())
	}
}

func TestSoftDeletes(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{SoftDeletes: true})
	users := client.Collection("users")

	if _, err := users.Create(ctx, firestorm.Doc{"name": "Ana"}, "a"); err != nil {
		t.Fatal(err)
	}
	if err := users.Destroy(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	got, err := users.Find(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("soft-deleted document was removed")
	}
	if _, ok := got["deletedAt"].(time.Time); !ok {
		t.Errorf("got deletedAt of type %T, want time.Time", got["deletedAt"])
	}
}

func TestDestroyMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	if err := client.Collection("users").Destroy(ctx, "missing"); err != nil {
		t.Errorf("Destroy(missing): got %v, want nil", err)
	}
}

func TestQueryGetAndCount(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	players := client.Collection("players")
	seedPlayers(t, players, 9)

	docs, err := players.Where("grp", "==", 0).OrderBy("i", firestorm.Ascending).Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}
	for i, d := range docs {
		if d["i"] != i*3 {
			t.Errorf("docs[%d]: got i = %v, want %d", i, d["i"], i*3)
		}
	}

	n, err := players.Where("i", ">=", 5).Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("got count %d, want 4", n)
	}

	ok, err := players.Where("i", ">", 100).Exists(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Exists reported true for an empty result")
	}

	first, err := players.OrderBy("i", firestorm.Descending).First(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first == nil || first["i"] != 8 {
		t.Errorf("got first %v, want i = 8", first)
	}

	if _, err := players.Where("i", ">", 100).FirstOrFail(ctx); fserrors.Code(err) != fserrors.NotFound {
		t.Errorf("FirstOrFail: got %v, want NotFound", err)
	}
}

func TestPaginate(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	players := client.Collection("players")
	seedPlayers(t, players, 25)

	q := players.OrderBy("i", firestorm.Ascending)

	// 25 rows at 10 per page: page 3 has the last 5.
	page, err := q.Paginate(ctx, firestorm.PaginateOptions{PerPage: 10, Page: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 5 {
		t.Errorf("page 3: got %d rows, want 5", len(page.Data))
	}
	wantMeta := firestorm.PageMeta{Total: 25, PerPage: 10, CurrentPage: 3, LastPage: 3, From: 21, To: 25}
	if page.Meta != wantMeta {
		t.Errorf("page 3 meta: got %+v, want %+v", page.Meta, wantMeta)
	}
	if page.Data[0]["i"] != 20 {
		t.Errorf("page 3 first row: got i = %v, want 20", page.Data[0]["i"])
	}

	page, err = q.Paginate(ctx, firestorm.PaginateOptions{PerPage: 10, Page: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 10 || !page.Meta.HasMorePages {
		t.Errorf("page 2: got %d rows, more=%v; want 10, true", len(page.Data), page.Meta.HasMorePages)
	}

	// Past the end: empty page, meta intact.
	page, err = q.Paginate(ctx, firestorm.PaginateOptions{PerPage: 10, Page: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 0 || page.Meta.Total != 25 {
		t.Errorf("page 5: got %d rows, total %d; want 0, 25", len(page.Data), page.Meta.Total)
	}
}

func TestSimplePaginateWalk(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	players := client.Collection("players")
	seedPlayers(t, players, 25)

	q := players.OrderBy("i", firestorm.Ascending)
	var seen int
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("walk did not terminate")
		}
		page, err := q.SimplePaginate(ctx, firestorm.SimplePaginateOptions{PerPage: 10, Cursor: cursor})
		if err != nil {
			t.Fatal(err)
		}
		seen += len(page.Data)
		if !page.HasMorePages {
			break
		}
		cursor = page.NextCursor
	}
	if seen != 25 {
		t.Errorf("walked %d rows, want 25", seen)
	}
}

func TestCursorPaginate(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	players := client.Collection("players")
	seedPlayers(t, players, 12)

	q := players.OrderBy("i", firestorm.Ascending)

	p1, err := q.CursorPaginate(ctx, firestorm.CursorPaginateOptions{PerPage: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(p1.Data) != 5 || !p1.HasNextPage || p1.HasPrevPage {
		t.Fatalf("first page: %d rows, next=%v, prev=%v", len(p1.Data), p1.HasNextPage, p1.HasPrevPage)
	}

	p2, err := q.CursorPaginate(ctx, firestorm.CursorPaginateOptions{PerPage: 5, AfterCursor: p1.EndCursor})
	if err != nil {
		t.Fatal(err)
	}
	if len(p2.Data) != 5 || !p2.HasNextPage || !p2.HasPrevPage {
		t.Fatalf("second page: %d rows, next=%v, prev=%v", len(p2.Data), p2.HasNextPage, p2.HasPrevPage)
	}
	if p2.Data[0]["i"] != 5 {
		t.Errorf("second page first row: got i = %v, want 5", p2.Data[0]["i"])
	}

	// Paging back from the second page reproduces the first.
	back, err := q.CursorPaginate(ctx, firestorm.CursorPaginateOptions{PerPage: 5, BeforeCursor: p2.StartCursor})
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Data) != 5 || !back.HasNextPage {
		t.Fatalf("back page: %d rows, next=%v", len(back.Data), back.HasNextPage)
	}
	if back.StartCursor != p1.StartCursor || back.EndCursor != p1.EndCursor {
		t.Errorf("back page cursors [%s, %s] do not match first page [%s, %s]",
			back.StartCursor, back.EndCursor, p1.StartCursor, p1.EndCursor)
	}
	if back.HasPrevPage {
		t.Error("back page reports a previous page before the beginning")
	}
}

// deleteAll removes everything matching, splitting into batches of at most
// 500 writes.
func TestDeleteAllSplitsBatches(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	players := client.Collection("players")
	seedPlayers(t, players, 1200)

	deleted, err := players.Query().DeleteAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1200 {
		t.Errorf("got %d deleted, want 1200", deleted)
	}
	n, err := players.Query().Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("got %d remaining, want 0", n)
	}
}

func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	users := client.Collection("users")
	if _, err := users.Create(ctx, firestorm.Doc{"x": 0}, "a"); err != nil {
		t.Fatal(err)
	}

	var rec *firestorm.Record
	err := client.RunTransaction(ctx, func(tx *firestorm.Tx) error {
		if err := tx.Update(users, "a", firestorm.Doc{"x": 1}); err != nil {
			return err
		}
		var err error
		rec, err = tx.Create(users, firestorm.Doc{"x": 2})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Exists() {
		t.Error("record created in transaction does not report exists")
	}
	got, err := users.Find(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got["x"] != 1 {
		t.Errorf("got x = %v, want 1", got["x"])
	}
	got, err = users.Find(ctx, rec.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got["x"] != 2 {
		t.Errorf("transaction-created document: got %v, want x = 2", got)
	}
}

// A callback error aborts the transaction with nothing committed.
func TestTransactionAbortOnError(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	users := client.Collection("users")
	if _, err := users.Create(ctx, firestorm.Doc{"x": 0}, "a"); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	var rec *firestorm.Record
	err := client.RunTransaction(ctx, func(tx *firestorm.Tx) error {
		if err := tx.Update(users, "a", firestorm.Doc{"x": 1}); err != nil {
			return err
		}
		r, err := tx.Create(users, firestorm.Doc{"x": 2})
		if err != nil {
			return err
		}
		rec = r
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	got, err := users.Find(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got["x"] != 0 {
		t.Errorf("after aborted transaction, got x = %v, want 0", got["x"])
	}
	if d, _ := users.Find(ctx, rec.ID()); d != nil {
		t.Errorf("document created in aborted transaction: %v", d)
	}
	if rec.Exists() {
		t.Error("record from aborted transaction reports exists")
	}
}

// A failing write inside the replay aborts the whole transaction.
func TestTransactionAbortOnFailedWrite(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	users := client.Collection("users")
	if _, err := users.Create(ctx, firestorm.Doc{"x": 0}, "a"); err != nil {
		t.Fatal(err)
	}

	err := client.RunTransaction(ctx, func(tx *firestorm.Tx) error {
		if err := tx.Update(users, "a", firestorm.Doc{"x": 1}); err != nil {
			return err
		}
		return tx.Update(users, "missing", firestorm.Doc{"x": 1})
	})
	if err == nil {
		t.Fatal("got nil error from transaction with failing write")
	}
	got, err := users.Find(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got["x"] != 0 {
		t.Errorf("after aborted transaction, got x = %v, want 0", got["x"])
	}
}

func TestDeleteCascade(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	users := client.Collection("users")

	rec, err := users.Create(ctx, firestorm.Doc{"name": "Ana"}, "a")
	if err != nil {
		t.Fatal(err)
	}
	posts, err := rec.Subcollection("posts")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := posts.Create(ctx, firestorm.Doc{"n": i}); err != nil {
			t.Fatal(err)
		}
	}

	hookRan := false
	err = client.RunBatch(ctx, func(b *firestorm.Batch) error {
		return b.DeleteCascade(ctx, rec, firestorm.CascadeOptions{
			Subcollections: []string{"posts"},
			OnBeforeDelete: func() error { hookRan = true; return nil },
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if !hookRan {
		t.Error("OnBeforeDelete did not run")
	}
	if d, _ := users.Find(ctx, "a"); d != nil {
		t.Errorf("parent still present: %v", d)
	}
	n, err := posts.Query().Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("got %d posts remaining, want 0", n)
	}
	if rec.Exists() {
		t.Error("record reports exists after cascade delete")
	}
}

func TestFieldSentinels(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	users := client.Collection("users")

	if _, err := users.Create(ctx, firestorm.Doc{
		"score": 1,
		"tags":  []interface{}{"a"},
		"tmp":   true,
	}, "a"); err != nil {
		t.Fatal(err)
	}
	if err := users.Update(ctx, "a", firestorm.Doc{
		"score": firestorm.Increment(4),
		"tags":  firestorm.ArrayUnion("a", "b"),
		"tmp":   firestorm.DeleteField(),
		"seen":  firestorm.ServerTimestamp(),
	}); err != nil {
		t.Fatal(err)
	}
	got, err := users.Find(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got["score"] != int64(5) {
		t.Errorf("got score %v, want 5", got["score"])
	}
	tags, _ := got["tags"].([]interface{})
	if len(tags) != 2 {
		t.Errorf("got tags %v, want [a b]", got["tags"])
	}
	if _, ok := got["tmp"]; ok {
		t.Error("tmp still present after DeleteField")
	}
	if _, ok := got["seen"].(time.Time); !ok {
		t.Errorf("got seen of type %T, want time.Time", got["seen"])
	}
}

func TestCollectionListen(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	users := client.Collection("users")

	ch := make(chan firestorm.Doc, 16)
	stop, err := users.Listen(ctx, "a", func(d firestorm.Doc) { ch <- d })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	waitDoc(t, ch, func(d firestorm.Doc) bool { return d == nil })

	if _, err := users.Create(ctx, firestorm.Doc{"x": 1}, "a"); err != nil {
		t.Fatal(err)
	}
	got := waitDoc(t, ch, func(d firestorm.Doc) bool { return d != nil })
	if got["id"] != "a" || got["x"] != 1 {
		t.Errorf("got %v, want id=a x=1", got)
	}

	if err := users.Destroy(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	waitDoc(t, ch, func(d firestorm.Doc) bool { return d == nil })
}

func TestQueryListen(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, firestorm.Config{})
	players := client.Collection("players")
	seedPlayers(t, players, 2)

	ch := make(chan []firestorm.Doc, 16)
	stop, err := players.Where("i", ">=", 0).Listen(ctx, func(docs []firestorm.Doc) { ch <- docs })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	waitDocs(t, ch, func(docs []firestorm.Doc) bool { return len(docs) == 2 })

	if _, err := players.Create(ctx, firestorm.Doc{"i": 2, "grp": 2}); err != nil {
		t.Fatal(err)
	}
	waitDocs(t, ch, func(docs []firestorm.Doc) bool { return len(docs) == 3 })
}

func waitDoc(t *testing.T, ch chan firestorm.Doc, pred func(firestorm.Doc) bool) firestorm.Doc {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case d := <-ch:
			if pred(d) {
				return d
			}
		case <-timeout:
			t.Fatal("timed out waiting for listener callback")
		}
	}
}

func waitDocs(t *testing.T, ch chan []firestorm.Doc, pred func([]firestorm.Doc) bool) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case docs := <-ch:
			if pred(docs) {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for listener callback")
		}
	}
}

func TestOpenClientByURL(t *testing.T) {
	ctx := context.Background()
	client, err := firestorm.OpenClient(ctx, "mem://?timestamps=true")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if !client.Config().Timestamps {
		t.Error("timestamps toggle not set from URL")
	}
	if _, err := firestorm.OpenClient(ctx, "nosuchscheme://"); err == nil {
		t.Error("unknown scheme: got nil error")
	}
}
