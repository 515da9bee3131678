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

// Package fserr provides an error type for FirestORM APIs.
package fserr

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// An ErrorCode describes the error's category.
type ErrorCode int

const (
	// OK is returned by the Code function on a nil error. It is not a valid
	// code for an error.
	OK ErrorCode = 0

	// Unknown means the error could not be categorized.
	Unknown ErrorCode = 1

	// NotFound means the resource was not found.
	NotFound ErrorCode = 2

	// AlreadyExists means the resource exists, but it should not.
	AlreadyExists ErrorCode = 3

	// InvalidArgument means a value given to a FirestORM API is incorrect.
	InvalidArgument ErrorCode = 4

	// Internal means something unexpected happened. Internal errors always
	// indicate bugs in FirestORM (or possibly the underlying service).
	Internal ErrorCode = 5

	// Unimplemented means the feature is not implemented.
	Unimplemented ErrorCode = 6

	// FailedPrecondition means the system was in the wrong state for the
	// operation: an instance write without a persisted id, or a blind update
	// of a document that does not exist.
	FailedPrecondition ErrorCode = 7

	// PermissionDenied means the caller does not have permission to execute
	// the operation.
	PermissionDenied ErrorCode = 8

	// ResourceExhausted means a quota was exhausted or the service is
	// rate-limiting the caller.
	ResourceExhausted ErrorCode = 9

	// Canceled means the operation was canceled.
	Canceled ErrorCode = 10

	// DeadlineExceeded means the operation timed out.
	DeadlineExceeded ErrorCode = 11

	// Unavailable means the service is currently unavailable.
	Unavailable ErrorCode = 12
)

//go:generate stringer -type=ErrorCode

// An Error describes a FirestORM error.
type Error struct {
	// Code is the error code.
	Code ErrorCode
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("code=%v", e.Code)
	}
	return fmt.Sprintf("%s (code=%v)", e.msg, e.Code)
}

// Unwrap returns the error underlying the receiver, which may be nil.
func (e *Error) Unwrap() error {
	return e.err
}

// New returns a new error with the given code, underlying error and message.
func New(c ErrorCode, err error, msg string) *Error {
	return &Error{
		Code: c,
		msg:  msg,
		err:  err,
	}
}

// Newf uses format and args to format a message, then calls New.
func Newf(c ErrorCode, err error, format string, args ...interface{}) *Error {
	return New(c, err, fmt.Sprintf(format, args...))
}

// DoNotWrap reports whether an error should not be wrapped in the Error
// type from this package.
// It returns true if err is a sentinel error used by the Go standard library
// or by context: io.EOF, context.Canceled and context.DeadlineExceeded.
// Wrapping those confuses code that compares against them.
func DoNotWrap(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// GRPCCode extracts the gRPC status code and converts it into an ErrorCode.
// It returns Unknown if the error isn't from gRPC.
func GRPCCode(err error) ErrorCode {
	switch status.Code(err) {
	case codes.NotFound:
		return NotFound
	case codes.AlreadyExists:
		return AlreadyExists
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.Internal:
		return Internal
	case codes.Unimplemented:
		return Unimplemented
	case codes.FailedPrecondition:
		return FailedPrecondition
	case codes.PermissionDenied:
		return PermissionDenied
	case codes.ResourceExhausted:
		return ResourceExhausted
	case codes.Canceled:
		return Canceled
	case codes.DeadlineExceeded:
		return DeadlineExceeded
	case codes.Unavailable:
		return Unavailable
	default:
		return Unknown
	}
}
