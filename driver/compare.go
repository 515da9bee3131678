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

// Comparison helpers shared by driver implementations.

package driver

import (
	"fmt"
	"math/big"
	"reflect"
	"time"
)

// CompareTimes returns -1, 1 or 0 depending on whether t1 is before, after or
// equal to t2.
func CompareTimes(t1, t2 time.Time) int {
	switch {
	case t1.Before(t2):
		return -1
	case t1.After(t2):
		return 1
	default:
		return 0
	}
}

// CompareNumbers returns -1, 1 or 0 depending on whether n1 is less than,
// greater than or equal to n2. n1 and n2 must be signed integer, unsigned
// integer or floating-point values, but they need not be the same type.
// Mixed integer and floating-point operands are compared by mathematical
// value, without loss of precision.
func CompareNumbers(n1, n2 interface{}) (int, error) {
	f1, err := toBigFloat(n1)
	if err != nil {
		return 0, err
	}
	f2, err := toBigFloat(n2)
	if err != nil {
		return 0, err
	}
	return f1.Cmp(f2), nil
}

func toBigFloat(x interface{}) (*big.Float, error) {
	var f big.Float
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f.SetInt64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f.SetUint64(v.Uint())
	case reflect.Float32, reflect.Float64:
		f.SetFloat64(v.Float())
	default:
		if x == nil {
			return nil, fmt.Errorf("nil is not a number")
		}
		return nil, fmt.Errorf("%v of type %T is not a number", x, x)
	}
	return &f, nil
}
