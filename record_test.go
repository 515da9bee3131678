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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewRecordExtractsID(t *testing.T) {
	c := testCollection()
	rec := c.NewRecord(Doc{"id": 42, "name": "Ana"})
	if rec.ID() != 42 {
		t.Errorf("got id %v, want 42", rec.ID())
	}
	if rec.Exists() {
		t.Error("unsaved record reports exists")
	}
	if _, ok := rec.Get("id"); ok {
		t.Error("id kept as a payload field")
	}
	if v, _ := rec.Get("name"); v != "Ana" {
		t.Errorf(`got name %v, want "Ana"`, v)
	}
}

func TestRecordFillAndSet(t *testing.T) {
	rec := testCollection().NewRecord(Doc{"a": 1, "b": 2})
	rec.Fill(Doc{"b": 3, "c": 4, "id": "evil"})
	rec.Set("d", 5)
	rec.Set("id", "evil")

	want := Doc{"a": 1, "b": 3, "c": 4, "d": 5}
	if diff := cmp.Diff(want, rec.current); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	if rec.ID() != nil {
		t.Errorf("got id %v from payload writes, want nil", rec.ID())
	}
}

func TestRecordDirtyTracking(t *testing.T) {
	rec := &Record{
		coll:     testCollection(),
		id:       "a",
		exists:   true,
		current:  Doc{"x": 1},
		original: Doc{"x": 1},
	}
	if rec.IsDirty() {
		t.Error("clean record reports dirty")
	}
	rec.Set("x", 2)
	if !rec.IsDirty() {
		t.Error("modified record reports clean")
	}
	rec.Set("x", 1)
	if rec.IsDirty() {
		t.Error("reverted record reports dirty")
	}
}

func TestRecordToMap(t *testing.T) {
	rec := testCollection().NewRecord(Doc{"id": "a", "x": 1})
	got := rec.ToMap()
	want := Doc{"id": "a", "x": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ToMap mismatch (-want +got):\n%s", diff)
	}
	// The returned map is a copy.
	got["x"] = 99
	if v, _ := rec.Get("x"); v != 1 {
		t.Errorf("mutating ToMap result changed the record: x = %v", v)
	}
}
