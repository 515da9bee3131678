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

import "github.com/nelsondiego/FirestORM/driver"

// Field sentinels. Each returns an instruction resolved by the service at
// write time instead of a literal value. They are valid anywhere a field
// value goes: payloads for Create, Update, Record.Set and the transaction
// and batch write methods.

// Increment returns a sentinel that atomically adds n to the field's current
// numeric value. n must be an integer or floating-point value. On a missing
// field or document the field is set to n.
func Increment(n interface{}) interface{} {
	return driver.IncOp{Amount: n}
}

// ArrayUnion returns a sentinel that appends each of values to the array
// field, skipping values already present.
func ArrayUnion(values ...interface{}) interface{} {
	return driver.ArrayUnionOp{Values: values}
}

// ArrayRemove returns a sentinel that removes every occurrence of each of
// values from the array field.
func ArrayRemove(values ...interface{}) interface{} {
	return driver.ArrayRemoveOp{Values: values}
}

// DeleteField returns a sentinel that removes the field from the document.
// It is meaningful only in update payloads.
func DeleteField() interface{} {
	return driver.DeleteOp{}
}

// ServerTimestamp returns a sentinel that sets the field to the service's
// commit time. The automatic createdAt/updatedAt stamps use it.
func ServerTimestamp() interface{} {
	return driver.ServerTimestampOp{}
}
