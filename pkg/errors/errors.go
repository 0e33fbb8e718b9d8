// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package errors

import (
	stdliberrors "errors"
)

var (
	ErrUnsupported = stdliberrors.ErrUnsupported

	As     = stdliberrors.As
	Is     = stdliberrors.Is
	Join   = stdliberrors.Join
	New    = stdliberrors.New
	Unwrap = stdliberrors.Unwrap
)

// History buffer failures. Read paths that find no data return empty results
// instead of one of these.
var (
	// ErrIndexOutOfRange is returned by single element lookups outside the
	// retained window.
	ErrIndexOutOfRange = New("index out of range")

	// ErrDuplicateSubscription is returned when a change callback is registered
	// under a key that is already in use.
	ErrDuplicateSubscription = New("duplicate subscription")

	ErrInvalidCapacity = New("invalid capacity")
	ErrInvalidWidth    = New("invalid width")
	ErrUnknownKind     = New("unknown buffer kind")

	ErrSnapshotNotFound = New("snapshot not found")
	ErrInvalidSnapshot  = New("invalid snapshot")
)

func NewRetryable(text string) RetryableError {
	return &retryableError{text}
}

// WrapRetryable marks err as retryable while keeping it inspectable with Is/As.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableWrap{err}
}

func Retryable(err error) bool {
	var rerr RetryableError
	return As(err, &rerr)
}

type RetryableError interface {
	error
	Retryable()
}

type retryableError struct {
	text string
}

func (r *retryableError) Error() string {
	return r.text
}

func (r *retryableError) Retryable() {}

type retryableWrap struct {
	err error
}

func (r *retryableWrap) Error() string {
	return r.err.Error()
}

func (r *retryableWrap) Unwrap() error {
	return r.err
}

func (r *retryableWrap) Retryable() {}
