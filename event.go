// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpflow

// An Event identifies the event type when installing or running a
// Handler. Install event handlers in a Client to extend it with custom
// functionality such as logging, tracing or metrics.
type Event int

const (
	// BeforeExecutionStart identifies the event that occurs after a
	// request has entered the Active state and before its transfer
	// starts.
	//
	// When Client fires BeforeExecutionStart, the execution's ID,
	// method, URI, header, async flag and timeout are set. Start is
	// still zero.
	BeforeExecutionStart Event = iota
	// AfterTimeout identifies the event that occurs when an execution
	// failed because its timeout elapsed or its low-speed limit
	// tripped. It always fires just before AfterExecutionEnd.
	AfterTimeout
	// AfterExecutionEnd identifies the event that occurs after the
	// execution ends, successfully or not.
	//
	// When Client fires AfterExecutionEnd, End and Timings are set and
	// exactly one of Response and Err is non-nil. For an asynchronous
	// execution the event fires on the loop goroutine, before the
	// response or error callback.
	AfterExecutionEnd
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"BeforeExecutionStart",
	"AfterTimeout",
	"AfterExecutionEnd",
}

// Events returns a slice containing all events which can occur in an
// execution, in the order in which they would occur.
func Events() []Event {
	return []Event{
		BeforeExecutionStart,
		AfterTimeout,
		AfterExecutionEnd,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
