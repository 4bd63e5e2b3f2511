// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"github.com/gogama/httpflow/header"
)

// State is the lifecycle state of a request. A request moves from
// Ready to Active when an execution starts and from Active to Done when
// it ends, whatever the outcome. It never moves back.
type State int32

const (
	// Ready is the initial state.
	Ready State = iota
	// Active means an execution is in flight.
	Active
	// Done means the execution is over.
	Done
)

var stateNames = []string{"Ready", "Active", "Done"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "State(?)"
	}
	return stateNames[s]
}

// Transfer is the progress of one transfer direction, in bytes. Total
// is zero or negative while the size is unknown.
type Transfer struct {
	Current float64
	Total   float64
}

// Progress is a snapshot of both transfer directions.
type Progress struct {
	Download Transfer
	Upload   Transfer
}

// Next is a progress handler's decision.
type Next int

const (
	// Continue lets the transfer go on.
	Continue Next = iota
	// Abort stops the transfer. The execution fails with a transport
	// error.
	Abort
)

// A ProgressHandler is called on each progress tick.
type ProgressHandler func(Progress) Next

// A DataHandler receives response body bytes as they arrive. The slice
// is only valid during the call.
type DataHandler func([]byte)

// A ResponseHandler receives the response of a successful execution.
type ResponseHandler func(*Response)

// An ErrorHandler receives the error of a failed execution.
type ErrorHandler func(error)

// Handler holds the callbacks of an asynchronous execution. Every
// callback is optional. For one execution at most one of the response
// and error callbacks fires, exactly once, after every progress
// callback.
//
// A Handler is a value. The With methods return a modified copy and
// leave the receiver unchanged.
type Handler struct {
	onResponse ResponseHandler
	onError    ErrorHandler
	onProgress ProgressHandler
}

// WithResponse returns a copy of h with the response callback set.
func (h Handler) WithResponse(fn ResponseHandler) Handler {
	h.onResponse = fn
	return h
}

// WithError returns a copy of h with the error callback set.
func (h Handler) WithError(fn ErrorHandler) Handler {
	h.onError = fn
	return h
}

// WithProgress returns a copy of h with the progress callback set.
func (h Handler) WithProgress(fn ProgressHandler) Handler {
	h.onProgress = fn
	return h
}

// OnResponse returns the response callback, or nil.
func (h Handler) OnResponse() ResponseHandler { return h.onResponse }

// OnError returns the error callback, or nil.
func (h Handler) OnError() ErrorHandler { return h.onError }

// OnProgress returns the progress callback, or nil.
func (h Handler) OnProgress() ProgressHandler { return h.onProgress }

// Silent reports whether h has neither a response nor an error
// callback. The outcome of an execution with a silent handler is lost.
func (h Handler) Silent() bool {
	return h.onResponse == nil && h.onError == nil
}

// Response is the result of a successful execution. It is immutable.
type Response struct {
	// Status is the HTTP status code.
	Status int
	// Header holds the response header fields. Names are in sorted
	// canonical order, since the transport does not expose wire order;
	// the values of each name are in receipt order.
	Header *header.Header
	// Body is the complete response body.
	Body []byte
}
