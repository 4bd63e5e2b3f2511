// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpflow

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gogama/httpflow/header"
	"github.com/gogama/httpflow/request"
	"github.com/gogama/httpflow/timeout"
	"github.com/gogama/httpflow/transport"
)

// flow is the Request implementation returned by Client. It owns one
// transport session from creation until the execution ends.
type flow struct {
	client  *Client
	engine  *transport.Engine
	session *transport.Session
	method  string
	cfg     request.Configuration

	mu      sync.Mutex // serializes configuration against enter
	state   atomic.Int32
	timeout time.Duration
}

func (f *flow) State() request.State {
	return request.State(f.state.Load())
}

func (f *flow) SetTimeout(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.State() != request.Ready {
		return ErrAlreadyActive
	}
	f.timeout = timeout.Saturate(d)
	f.session.SetTimeout(f.timeout)
	return nil
}

func (f *flow) AbortRequestIf(limit int64, window time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.State() != request.Ready {
		return ErrAlreadyActive
	}
	f.session.SetLowSpeed(limit, window)
	return nil
}

func (f *flow) enter() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.CompareAndSwap(int32(request.Ready), int32(request.Active)) {
		return ErrAlreadyActive
	}
	return nil
}

func (f *flow) Execute(progress request.ProgressHandler, data request.DataHandler) (*request.Response, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	defer f.state.Store(int32(request.Done))

	// A panicking callback unwinds through here; the session is still
	// released and the closing events still fire.
	var c *completion
	defer func() {
		if c == nil {
			f.engine.Release(f.session)
		} else if !c.finished {
			c.complete(errCallbackPanicked)
		}
	}()

	c = f.begin(false, progress, data)
	return c.complete(f.session.Perform(f.cfg.Context()))
}

func (f *flow) AsyncExecute(h request.Handler, data request.DataHandler) error {
	if err := f.enter(); err != nil {
		return err
	}

	c := f.begin(true, h.OnProgress(), data)
	f.session.OnFinished(func(err error) {
		resp, err := c.complete(err)
		f.state.Store(int32(request.Done))
		if err != nil {
			if fn := h.OnError(); fn != nil {
				fn(err)
				return
			}
			c.dropped("error", err)
			return
		}
		if fn := h.OnResponse(); fn != nil {
			fn(resp)
			return
		}
		c.dropped("response", nil)
	})

	if err := f.client.loop().Add(f.cfg.Context(), f.session); err != nil {
		_, err = c.complete(err)
		f.state.Store(int32(request.Done))
		return err
	}
	return nil
}

func (f *flow) Pause() error {
	return f.control(f.session.Pause)
}

func (f *flow) Resume() error {
	return f.control(f.session.Resume)
}

func (f *flow) control(fn func() error) error {
	if f.State() != request.Active {
		return ErrNotActive
	}
	if err := fn(); err != nil {
		if errors.Is(err, transport.ErrReleased) {
			return ErrNotActive
		}
		return err
	}
	return nil
}

func (f *flow) URLEscape(s string) string {
	return f.engine.Escape(s)
}

func (f *flow) URLUnescape(s string) (string, error) {
	return f.engine.Unescape(s)
}

// begin installs the session sinks of one execution and fires
// BeforeExecutionStart.
func (f *flow) begin(async bool, progress request.ProgressHandler, data request.DataHandler) *completion {
	e := request.NewExecution(f.method, f.cfg.URI, f.cfg.Header, async)
	e.Timeout = f.timeout
	e.Context = f.cfg.Context()
	c := &completion{
		flow:   f,
		exec:   e,
		header: header.New(),
		data:   data,
	}

	s := f.session
	s.OnHeader(c.onHeader)
	s.OnBody(c.onBody)
	if progress != nil {
		s.OnProgress(func(dlTotal, dlNow, ulTotal, ulNow float64) int {
			next := progress(request.Progress{
				Download: request.Transfer{Current: dlNow, Total: dlTotal},
				Upload:   request.Transfer{Current: ulNow, Total: ulTotal},
			})
			if next == request.Abort {
				return 1
			}
			return 0
		})
	}

	f.client.Handlers.run(BeforeExecutionStart, e)
	e.Start = time.Now()
	f.client.logger().Debug("execution started",
		zap.Stringer("id", e.ID),
		zap.String("method", e.Method),
		zap.String("uri", e.URI),
		zap.Bool("async", async))
	return c
}

// completion collects the response of one execution. The session
// sinks hold it until the transfer is over.
type completion struct {
	flow   *flow
	exec   *request.Execution
	header *header.Header
	body   bytes.Buffer
	data   request.DataHandler

	finished bool
}

func (c *completion) onHeader(line []byte) int {
	if bytes.HasPrefix(line, []byte("HTTP/")) {
		c.header = header.New()
	} else {
		c.header.AddLine(line)
	}
	return len(line)
}

func (c *completion) onBody(p []byte) int {
	c.body.Write(p)
	if c.data != nil {
		c.data(p)
	}
	return len(p)
}

// complete records the outcome of the transfer, releases the session
// and fires the closing events.
func (c *completion) complete(err error) (*request.Response, error) {
	f, e := c.flow, c.exec
	c.finished = true
	e.End = time.Now()
	e.Timings = f.session.Timings()
	if err == nil {
		body := c.body.Bytes()
		if body == nil {
			body = []byte{}
		}
		e.Response = &request.Response{
			Status: f.session.Status(),
			Header: c.header,
			Body:   body,
		}
		f.client.agg.Update(e.Timings)
	} else {
		e.Err = wrapTransportError(f.method, f.cfg.URI, err)
	}
	f.engine.Release(f.session)

	if e.TimedOut() {
		f.client.Handlers.run(AfterTimeout, e)
	}
	f.client.Handlers.run(AfterExecutionEnd, e)

	f.client.logger().Debug("execution ended",
		zap.Stringer("id", e.ID),
		zap.String("method", e.Method),
		zap.String("uri", e.URI),
		zap.Int("status", e.StatusCode()),
		zap.Duration("duration", e.Duration()),
		zap.Error(e.Err))
	return e.Response, e.Err
}

func (c *completion) dropped(kind string, err error) {
	c.flow.client.logger().Warn("asynchronous "+kind+" dropped: handler has no callback for it",
		zap.Stringer("id", c.exec.ID),
		zap.String("method", c.exec.Method),
		zap.String("uri", c.exec.URI),
		zap.Error(err))
}
