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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nelsondiego/FirestORM/driver"
	"github.com/nelsondiego/FirestORM/fserrors"
	"github.com/nelsondiego/FirestORM/internal/fserr"
)

func TestIDString(t *testing.T) {
	for _, test := range []struct {
		in      interface{}
		want    string
		wantErr bool
	}{
		{"abc", "abc", false},
		{42, "42", false},
		{int64(42), "42", false},
		{uint8(7), "7", false},
		{int32(-3), "-3", false},
		{"", "", true},
		{nil, "", true},
		{3.14, "", true},
		{true, "", true},
	} {
		got, err := idString(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("idString(%#v): got error %v, want error %v", test.in, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("idString(%#v) = %q, want %q", test.in, got, test.want)
		}
	}
}

// Numeric and string ids address the same document.
func TestIDStringEquivalence(t *testing.T) {
	s1, err := idString(42)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := idString("42")
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Errorf("idString(42) = %q, idString(%q) = %q; want equal", s1, "42", s2)
	}
}

func TestWritePayload(t *testing.T) {
	c := &Collection{client: newClient(fakeConn{}, Config{Timestamps: true}), path: "users"}
	got := c.writePayload(Doc{"id": "x", "name": "Ana"}, true)
	if _, ok := got[IDField]; ok {
		t.Error("id field not stripped from write payload")
	}
	if got["name"] != "Ana" {
		t.Errorf(`got name %v, want "Ana"`, got["name"])
	}
	if _, ok := got[CreatedAtField].(driver.ServerTimestampOp); !ok {
		t.Errorf("got createdAt %v, want server timestamp sentinel", got[CreatedAtField])
	}
	if _, ok := got[UpdatedAtField].(driver.ServerTimestampOp); !ok {
		t.Errorf("got updatedAt %v, want server timestamp sentinel", got[UpdatedAtField])
	}

	got = c.updatePayload(Doc{"name": "Bo"})
	if _, ok := got[CreatedAtField]; ok {
		t.Error("createdAt stamped on update")
	}
	if _, ok := got[UpdatedAtField].(driver.ServerTimestampOp); !ok {
		t.Errorf("got updatedAt %v, want server timestamp sentinel", got[UpdatedAtField])
	}

	// Without the Timestamps toggle no stamps are injected.
	c2 := &Collection{client: newClient(fakeConn{}, Config{}), path: "users"}
	got = c2.writePayload(Doc{"name": "Cy"}, true)
	want := Doc{"name": "Cy"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeID(t *testing.T) {
	got := mergeID(driver.Doc{ID: "a", Fields: map[string]interface{}{"x": 1}})
	want := Doc{"id": "a", "x": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeID mismatch (-want +got):\n%s", diff)
	}
}

func TestSubcollectionPath(t *testing.T) {
	c := newClient(fakeConn{}, Config{}).Collection("users")
	sub, err := c.Subcollection(42, "posts")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Path() != "users/42/posts" {
		t.Errorf("got path %q, want %q", sub.Path(), "users/42/posts")
	}
	for _, name := range []string{"", "a/b"} {
		if _, err := c.Subcollection(1, name); err == nil {
			t.Errorf("Subcollection(1, %q): got nil error", name)
		}
	}
}

func TestClientClose(t *testing.T) {
	ctx := context.Background()
	client := newClient(fakeConn{}, Config{})
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
	if err := client.Close(); fserrors.Code(err) != fserrors.FailedPrecondition {
		t.Errorf("second Close: got %v, want FailedPrecondition", err)
	}
	if _, err := client.Collection("users").Find(ctx, "a"); fserrors.Code(err) != fserrors.FailedPrecondition {
		t.Errorf("Find after Close: got %v, want FailedPrecondition", err)
	}
}

// fakeConn is a driver.Conn for tests that never reach the driver.
type fakeConn struct{}

func (fakeConn) Get(context.Context, string, string) (driver.Doc, error) {
	return driver.Doc{}, errUnreached
}
func (fakeConn) Create(context.Context, string, string, map[string]interface{}) (string, error) {
	return "", errUnreached
}
func (fakeConn) Put(context.Context, string, string, map[string]interface{}) error {
	return errUnreached
}
func (fakeConn) Update(context.Context, string, string, map[string]interface{}) error {
	return errUnreached
}
func (fakeConn) Delete(context.Context, string, string) error { return errUnreached }
func (fakeConn) RunQuery(context.Context, *driver.Query) ([]driver.Doc, error) {
	return nil, errUnreached
}
func (fakeConn) Count(context.Context, *driver.Query) (int64, error) { return 0, errUnreached }
func (fakeConn) RunTransaction(context.Context, []driver.Write) error {
	return errUnreached
}
func (fakeConn) CommitBatch(context.Context, []driver.Write) error { return errUnreached }
func (fakeConn) ListenDoc(context.Context, string, string, func(map[string]interface{})) (func(), error) {
	return nil, errUnreached
}
func (fakeConn) ListenQuery(context.Context, *driver.Query, func([]driver.Doc)) (func(), error) {
	return nil, errUnreached
}
func (fakeConn) ErrorCode(error) fserrors.ErrorCode { return fserrors.Unknown }
func (fakeConn) Close() error                       { return nil }

var errUnreached = fserr.Newf(fserr.Internal, nil, "fake conn should not be reached")
