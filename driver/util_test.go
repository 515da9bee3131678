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

package driver

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitWrites(t *testing.T) {
	mk := func(n int) []Write {
		ws := make([]Write, n)
		for i := range ws {
			ws[i] = Write{Kind: Delete, Path: "c", ID: string(rune('a' + i))}
		}
		return ws
	}

	for _, test := range []struct {
		n, max    int
		wantSizes []int
	}{
		{0, 500, nil},
		{1, 500, []int{1}},
		{500, 500, []int{500}},
		{501, 500, []int{500, 1}},
		{1200, 500, []int{500, 500, 200}},
		{5, 2, []int{2, 2, 1}},
	} {
		got := SplitWrites(mk(test.n), test.max)
		var gotSizes []int
		for _, chunk := range got {
			gotSizes = append(gotSizes, len(chunk))
		}
		if diff := cmp.Diff(gotSizes, test.wantSizes); diff != "" {
			t.Errorf("n=%d max=%d: %s", test.n, test.max, diff)
		}
	}
}

func TestSplitWritesPreservesOrder(t *testing.T) {
	ws := []Write{
		{Kind: Create, ID: "1"},
		{Kind: Update, ID: "2"},
		{Kind: Delete, ID: "3"},
	}
	var flat []Write
	for _, chunk := range SplitWrites(ws, 2) {
		flat = append(flat, chunk...)
	}
	if diff := cmp.Diff(flat, ws); diff != "" {
		t.Error(diff)
	}
}

func TestCompareNumbers(t *testing.T) {
	for _, test := range []struct {
		n1, n2 interface{}
		want   int
	}{
		{1, 1, 0},
		{1, 2, -1},
		{2.5, 2, 1},
		{int64(3), 3.0, 0},
		{uint(7), int8(-1), 1},
	} {
		got, err := CompareNumbers(test.n1, test.n2)
		if err != nil {
			t.Fatalf("%v vs %v: %v", test.n1, test.n2, err)
		}
		if got != test.want {
			t.Errorf("%v vs %v: got %d, want %d", test.n1, test.n2, got, test.want)
		}
	}
	if _, err := CompareNumbers("x", 1); err == nil {
		t.Error("comparing a string: got nil, want error")
	}
	if _, err := CompareNumbers(nil, 1); err == nil {
		t.Error("comparing nil: got nil, want error")
	}
}

func TestUniqueString(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s := UniqueString()
		if s == "" {
			t.Fatal("empty unique string")
		}
		if seen[s] {
			t.Fatalf("duplicate unique string %q", s)
		}
		seen[s] = true
	}
}
