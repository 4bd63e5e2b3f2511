// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpflow

import (
	"fmt"
	"testing"

	"github.com/gogama/httpflow/request"
	"github.com/stretchr/testify/assert"
)

func TestHandlerGroup(t *testing.T) {
	var evts []string
	var execs []*request.Execution
	h1 := &testHandler{seq: 1, evts: &evts, execs: &execs}
	h2 := &testHandler{seq: 2, evts: &evts, execs: &execs}
	g := &HandlerGroup{}
	t.Run("PushBack", func(t *testing.T) {
		assert.Panics(t, func() { g.PushBack(BeforeExecutionStart, nil) })
		assert.Panics(t, func() { g.PushBack(Event(123), h1) })
		assert.Panics(t, func() { g.PushBack(Event(-1), h1) })
		g.PushBack(BeforeExecutionStart, h1)
		g.PushBack(BeforeExecutionStart, h2)
		g.PushBack(AfterExecutionEnd, h1)
		assert.Equal(t, 2, g.Len(BeforeExecutionStart))
		assert.Equal(t, 0, g.Len(AfterTimeout))
	})
	t.Run("run", func(t *testing.T) {
		e1 := &request.Execution{Method: "GET"}
		e2 := &request.Execution{Method: "PUT"}
		g.run(AfterTimeout, e1)
		assert.Empty(t, evts)
		g.run(BeforeExecutionStart, e1)
		assert.Equal(t, []string{"1.BeforeExecutionStart", "2.BeforeExecutionStart"}, evts)
		assert.Equal(t, []*request.Execution{e1, e1}, execs)
		evts = evts[:0]
		execs = execs[:0]
		g.run(AfterExecutionEnd, e2)
		assert.Equal(t, []string{"1.AfterExecutionEnd"}, evts)
		assert.Equal(t, []*request.Execution{e2}, execs)
	})
	t.Run("nil group", func(t *testing.T) {
		var nilGroup *HandlerGroup
		assert.Equal(t, 0, nilGroup.Len(AfterExecutionEnd))
		assert.NotPanics(t, func() { nilGroup.run(AfterExecutionEnd, &request.Execution{}) })
	})
}

type testHandler struct {
	seq   int
	evts  *[]string
	execs *[]*request.Execution
}

func (h *testHandler) Handle(evt Event, e *request.Execution) {
	*h.evts = append(*h.evts, fmt.Sprintf("%d.%s", h.seq, evt))
	*h.execs = append(*h.execs, e)
}

func TestHandlerFunc(t *testing.T) {
	var _evt Event
	var _e *request.Execution
	h := HandlerFunc(func(evt Event, e *request.Execution) {
		_evt = evt
		_e = e
	})
	e := &request.Execution{}
	h.Handle(AfterTimeout, e)

	assert.Equal(t, AfterTimeout, _evt)
	assert.Same(t, e, _e)
}
