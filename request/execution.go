// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gogama/httpflow/header"
	"github.com/gogama/httpflow/timings"
	"github.com/gogama/httpflow/transient"
)

// An Execution records one execution of a request. The client fills
// it in as the execution progresses and passes it to event handlers.
//
// Event handlers may attach their own data with SetValue and read it
// back with Value, but should treat the exported fields as read-only.
type Execution struct {
	// ID uniquely identifies the execution.
	ID uuid.UUID

	// Method is the HTTP method.
	Method string

	// URI is the requested URI.
	URI string

	// Header holds the header fields sent with the request. It may be
	// nil and must not be modified.
	Header *header.Header

	// Async is true for executions started with AsyncExecute.
	Async bool

	// Context is the context of the request's configuration. Event
	// handlers use it as the parent of anything they start, such as a
	// trace span.
	Context context.Context

	// Timeout is the bound on the execution's wall time handed to the
	// transport, after saturation. Zero means none.
	Timeout time.Duration

	// Start is set when the execution starts and End when it ends.
	Start time.Time
	End   time.Time

	// Response is set when the execution ends successfully.
	Response *Response

	// Err is set when the execution ends in failure.
	Err error

	// Timings holds the transfer phase offsets once the execution has
	// ended.
	Timings timings.Sample

	data context.Context
}

// NewExecution returns an execution record with a fresh ID.
func NewExecution(method, uri string, h *header.Header, async bool) *Execution {
	return &Execution{
		ID:     uuid.New(),
		Method: method,
		URI:    uri,
		Header: h,
		Async:  async,
	}
}

// StatusCode returns the response status, or 0 if there is no
// response.
func (e *Execution) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.Status
}

// Duration returns End minus Start for an ended execution, the time
// since Start for one in flight, and zero before it starts.
func (e *Execution) Duration() time.Duration {
	if !e.Started() {
		return 0
	} else if !e.Ended() {
		return time.Since(e.Start)
	}
	return e.End.Sub(e.Start)
}

// Started indicates whether the execution has started.
func (e *Execution) Started() bool {
	return !e.Start.IsZero()
}

// Ended indicates whether the execution has ended.
func (e *Execution) Ended() bool {
	return !e.End.IsZero()
}

// TimedOut indicates whether Err is a timeout.
func (e *Execution) TimedOut() bool {
	return transient.Categorize(e.Err) == transient.Timeout
}

// SetValue stores data in the execution for event handlers. The key
// follows the rules of context.WithValue: it must be comparable, not
// nil, and should be of an unexported type to avoid collisions.
func (e *Execution) SetValue(key, value interface{}) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}
	e.data = context.WithValue(ctx, key, value)
}

// Value returns the data stored for key, or nil.
func (e *Execution) Value(key interface{}) interface{} {
	if e.data == nil {
		return nil
	}
	return e.data.Value(key)
}
