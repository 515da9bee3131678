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

// Package fserrors provides support for getting error codes from
// errors returned by FirestORM APIs.
package fserrors

import (
	"errors"

	"github.com/nelsondiego/FirestORM/internal/fserr"
)

// An ErrorCode describes the error's category. Programs should act upon an
// error's code, not its message.
type ErrorCode = fserr.ErrorCode

const (
	// OK is returned by the Code function on a nil error. It is not a valid
	// code for an error.
	OK ErrorCode = fserr.OK

	// Unknown means the error could not be categorized.
	Unknown ErrorCode = fserr.Unknown

	// NotFound means the document was not found. Only the *OrFail read
	// variants return it; plain reads report absence with a nil result.
	NotFound ErrorCode = fserr.NotFound

	// AlreadyExists means the document exists, but it should not.
	AlreadyExists ErrorCode = fserr.AlreadyExists

	// InvalidArgument means a value given to a FirestORM API is incorrect.
	InvalidArgument ErrorCode = fserr.InvalidArgument

	// Internal means something unexpected happened. Internal errors always
	// indicate bugs in FirestORM (or possibly the underlying service).
	Internal ErrorCode = fserr.Internal

	// Unimplemented means the feature is not implemented.
	Unimplemented ErrorCode = fserr.Unimplemented

	// FailedPrecondition means the system was in the wrong state for the
	// operation. Instance-level writes on records that were never persisted
	// report this code, as do blind updates of missing documents.
	FailedPrecondition ErrorCode = fserr.FailedPrecondition

	// PermissionDenied means the caller does not have permission to execute
	// the operation.
	PermissionDenied ErrorCode = fserr.PermissionDenied

	// ResourceExhausted means a quota was exhausted or the service is
	// rate-limiting the caller.
	ResourceExhausted ErrorCode = fserr.ResourceExhausted

	// Canceled means the operation was canceled.
	Canceled ErrorCode = fserr.Canceled

	// DeadlineExceeded means the operation timed out.
	DeadlineExceeded ErrorCode = fserr.DeadlineExceeded

	// Unavailable means the service is currently unavailable.
	Unavailable ErrorCode = fserr.Unavailable
)

// Code returns the ErrorCode of err if it, or some error it wraps, is an
// *Error. It returns Unknown if err is a non-nil error of a different type.
// If err is nil, it returns the special code OK.
func Code(err error) ErrorCode {
	if err == nil {
		return OK
	}
	var e *fserr.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}
