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

// Package firestorm provides a convenience layer over document databases:
// collection handles with active-record style instances, a chainable query
// builder with three pagination shapes, queued transaction and batch
// contexts, and real-time listeners.
//
// All storage, indexing, consistency and network behavior is delegated to
// the underlying service through a driver. The production driver,
// gcpfirestore, wraps the Google Cloud Firestore client SDK; memfirestore
// provides an in-process implementation for local development and testing.
//
// # Opening a Client
//
// Construct a Client through a driver package, or by URL:
//
//	client, err := firestorm.OpenClient(ctx, "mem://?timestamps=true")
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// # Collections and Records
//
// A Collection is a handle on one collection path. Collection methods cover
// id-addressed CRUD; Load returns a Record, which tracks its original and
// current field state and routes Save to a create or an update:
//
//	users := client.Collection("users")
//	rec, err := users.Load(ctx, "alice")
//	if err != nil {
//		return err
//	}
//	rec.Set("visits", firestorm.Increment(1))
//	if err := rec.Save(ctx); err != nil {
//		return err
//	}
//
// Document payloads are maps. A stored document never contains its own "id"
// field: the id lives in the storage path, and read results merge it back in.
//
// # Queries
//
// Where, OrderBy and Limit accumulate constraints; Get, First, Count,
// Paginate, SimplePaginate and CursorPaginate execute them:
//
//	page, err := users.
//		Where("status", "==", "active").
//		OrderBy("name", firestorm.Ascending).
//		Paginate(ctx, firestorm.PaginateOptions{PerPage: 20, Page: 2})
//
// # Transactions and Batches
//
// RunTransaction and RunBatch hand the callback a context that queues
// writes. No I/O happens while the callback runs; the queue is replayed
// through the service's transaction or batch primitive after the callback
// returns. Reads performed inside the callback therefore happen outside the
// atomic region; see RunTransaction for the exact contract.
//
// # Errors
//
// Errors returned by this package can be inspected with fserrors.Code.
// Plain reads report a missing document with a nil result, not an error;
// only the *OrFail variants return NotFound.
package firestorm // import "github.com/nelsondiego/FirestORM"
