// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpflow

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gogama/httpflow/request"
	"github.com/gogama/httpflow/timeout"
	"github.com/gogama/httpflow/timings"
	"github.com/gogama/httpflow/transport"
)

// A Client creates requests on top of a transport engine and owns the
// event loop on which asynchronous executions report back. Its zero
// value is a valid configuration.
//
// The zero value client uses transport.DefaultEngine() as the engine,
// timeout.DefaultPolicy as the timeout policy, a no-op logger, no
// concurrency bound on asynchronous transfers, and no event handlers.
//
// The engine caches connections, so Client instances should be reused
// instead of created as needed. Client is safe for concurrent use by
// multiple goroutines, but must not be copied after first use.
//
// On top of the engine, Client adds the following features:
//
// • every request follows the Ready, Active, Done lifecycle and can be
// executed exactly once, synchronously or asynchronously;
//
// • response headers and body are collected into a request.Response;
//
// • every execution has a timeout chosen by a customizable timeout
// policy;
//
// • failures are reported as *TransportError, *AuthenticationError or
// *MethodNotSupportedError; and
//
// • user-provided event handlers run at designated points of every
// execution, allowing logging, tracing and metrics to be mixed in from
// outside packages.
type Client struct {
	// Engine performs the transfers.
	//
	// If Engine is nil, transport.DefaultEngine() is used.
	Engine *transport.Engine
	// TimeoutPolicy chooses the timeout of each new request. The value
	// it returns is saturated with timeout.Saturate.
	//
	// If TimeoutPolicy is nil, timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy
	// Handlers allows custom handler chains to be invoked when
	// designated events occur during an execution.
	//
	// If Handlers is nil, no custom handlers will be run.
	Handlers *HandlerGroup
	// Logger receives debug records of execution outcomes and warnings
	// about dropped notifications.
	//
	// If Logger is nil, nothing is logged.
	Logger *zap.Logger
	// MaxConcurrent bounds the number of asynchronous transfers that
	// may be on the wire at once. It is read when the loop is first
	// used.
	//
	// If MaxConcurrent is zero or less, there is no bound.
	MaxConcurrent int64

	loopOnce sync.Once
	lp       *transport.Loop
	agg      timings.Aggregator
}

// Request creates a request for method. The body may be nil or any
// type accepted by request.BodyBytes.
//
// An error is returned if the configuration is invalid, if the body
// type is not supported, or, as a *MethodNotSupportedError, if the
// engine cannot perform method.
func (c *Client) Request(method string, cfg request.Configuration, body interface{}) (Request, error) {
	b, err := request.BodyBytes(body)
	if err != nil {
		return nil, err
	}
	return c.newFlow(method, cfg, func(s *transport.Session) {
		if b != nil {
			s.SetBody(b)
		}
	})
}

// Get creates a GET request.
func (c *Client) Get(cfg request.Configuration) (Request, error) {
	return c.Request(http.MethodGet, cfg, nil)
}

// Head creates a HEAD request.
func (c *Client) Head(cfg request.Configuration) (Request, error) {
	return c.Request(http.MethodHead, cfg, nil)
}

// Delete creates a DELETE request.
func (c *Client) Delete(cfg request.Configuration) (Request, error) {
	return c.Request(http.MethodDelete, cfg, nil)
}

// Put creates a PUT request whose body is streamed from body while the
// transfer runs. The size is the number of bytes body produces, or -1
// if unknown. A nil body sends no content.
func (c *Client) Put(cfg request.Configuration, body io.Reader, size int64) (Request, error) {
	return c.newFlow(http.MethodPut, cfg, func(s *transport.Session) {
		if body != nil {
			s.SetBodyReader(body, size)
		} else {
			s.SetBody([]byte{})
		}
	})
}

// Post creates a POST request. Unless cfg already carries one, the
// Content-Type header is set to contentType.
func (c *Client) Post(cfg request.Configuration, contentType string, body interface{}) (Request, error) {
	return c.Request(http.MethodPost, withContentType(cfg, contentType), body)
}

// PostForm creates a POST request with data as a URL-encoded form body.
// Keys are sorted, and keys and values are escaped with URLEscape.
func (c *Client) PostForm(cfg request.Configuration, data url.Values) (Request, error) {
	return c.Post(cfg, "application/x-www-form-urlencoded", encodeForm(data, c.URLEscape))
}

// Run dispatches the callbacks of asynchronous executions on the
// calling goroutine until Stop is called. It returns an error if the
// loop is already running on another goroutine.
func (c *Client) Run() error {
	return c.loop().Run()
}

// Stop makes the current or next Run return. Executions in flight keep
// running, and their callbacks are dispatched by a later Run.
func (c *Client) Stop() {
	c.loop().Stop()
}

// Pending returns the number of asynchronous executions not yet
// finished.
func (c *Client) Pending() int64 {
	return c.loop().Pending()
}

// Timings returns statistics over the transfer phases of every
// execution of the client that completed successfully.
func (c *Client) Timings() timings.Timings {
	return c.agg.Snapshot()
}

// URLEscape percent-encodes every character of s except the URL
// unreserved ones.
func (c *Client) URLEscape(s string) string {
	return c.engine().Escape(s)
}

// URLUnescape decodes percent-escapes in s.
func (c *Client) URLUnescape(s string) (string, error) {
	return c.engine().Unescape(s)
}

func (c *Client) newFlow(method string, cfg request.Configuration, body func(*transport.Session)) (*flow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	method = strings.ToUpper(method)
	e := c.engine()
	if !e.Supports(method) {
		return nil, &MethodNotSupportedError{Method: method}
	}

	s := e.NewSession()
	s.SetMethod(method)
	s.SetURL(cfg.URI)
	if cfg.Header.Len() > 0 {
		s.SetHeader(cfg.Header.HTTP())
	}
	s.SetSSLVerify(!cfg.SSL.SkipVerifyPeer, !cfg.SSL.SkipVerifyHost)
	s.SetHTTPAuth(authFunc(cfg.Auth.ForHTTP))
	s.SetProxyAuth(authFunc(cfg.Auth.ForProxy))
	body(s)

	f := &flow{
		client:  c,
		engine:  e,
		session: s,
		method:  method,
		cfg:     cfg,
	}
	f.timeout = timeout.Saturate(c.timeoutPolicy().Timeout(method, &cfg))
	s.SetTimeout(f.timeout)
	return f, nil
}

func (c *Client) engine() *transport.Engine {
	if c.Engine != nil {
		return c.Engine
	}
	return transport.DefaultEngine()
}

func (c *Client) timeoutPolicy() timeout.Policy {
	if c.TimeoutPolicy != nil {
		return c.TimeoutPolicy
	}
	return timeout.DefaultPolicy
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *Client) loop() *transport.Loop {
	c.loopOnce.Do(func() {
		opts := []transport.LoopOption{transport.WithLoopLogger(c.logger())}
		if c.MaxConcurrent > 0 {
			opts = append(opts, transport.WithMaxConcurrent(c.MaxConcurrent))
		}
		c.lp = transport.NewLoop(opts...)
	})
	return c.lp
}

func authFunc(h request.AuthenticationHandler) transport.AuthFunc {
	if h == nil {
		return nil
	}
	return func(realm string) (string, string) {
		cred := h(realm)
		return cred.Username, cred.Password
	}
}
