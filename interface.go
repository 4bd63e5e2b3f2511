// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpflow

import (
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gogama/httpflow/request"
	"github.com/gogama/httpflow/timings"
)

// A Request is one HTTP request bound to one transport session. It is
// executed at most once, either synchronously with Execute or
// asynchronously with AsyncExecute.
//
// State moves from Ready to Active when an execution starts and from
// Active to Done when it ends, on every path. All methods are safe for
// concurrent use; of two concurrent executions only one proceeds and
// the other fails with ErrAlreadyActive.
type Request interface {
	// State returns the current lifecycle state.
	State() request.State

	// SetTimeout bounds the total wall time of the execution. The
	// value is saturated to the range the transport can represent;
	// zero or less means no bound. It fails with ErrAlreadyActive
	// unless the request is Ready.
	SetTimeout(d time.Duration) error

	// AbortRequestIf makes the execution fail with a timeout when the
	// transfer runs slower than limit bytes per second for window. It
	// fails with ErrAlreadyActive unless the request is Ready.
	AbortRequestIf(limit int64, window time.Duration) error

	// Execute runs the request on the calling goroutine and returns
	// the response. Both handlers are optional. The data handler
	// receives body bytes as they arrive, in addition to the body
	// collected in the response.
	Execute(progress request.ProgressHandler, data request.DataHandler) (*request.Response, error)

	// AsyncExecute registers the request with the client's loop and
	// returns at once. Every callback of h, and the data handler, is
	// then invoked on the goroutine running the loop. Failures of the
	// transfer are only reported through h.
	AsyncExecute(h request.Handler, data request.DataHandler) error

	// Pause suspends an Active transfer. It fails with ErrNotActive
	// otherwise.
	Pause() error

	// Resume continues a paused transfer. It fails with ErrNotActive
	// unless the request is Active.
	Resume() error

	// URLEscape percent-encodes s.
	URLEscape(s string) string

	// URLUnescape decodes percent-escapes in s.
	URLUnescape(s string) (string, error)
}

// Requester is the interface that wraps the basic Request method.
//
// Request creates a request for an arbitrary supported method. The body
// parameter may be nil or any type accepted by request.BodyBytes.
// Client implements Requester, and any Requester can be converted into
// a Factory with Inflate.
type Requester interface {
	Request(method string, cfg request.Configuration, body interface{}) (Request, error)
}

// Getter is the interface that wraps the basic Get method.
type Getter interface {
	Get(cfg request.Configuration) (Request, error)
}

// Header is the interface that wraps the basic Head method.
type Header interface {
	Head(cfg request.Configuration) (Request, error)
}

// Deleter is the interface that wraps the basic Delete method.
type Deleter interface {
	Delete(cfg request.Configuration) (Request, error)
}

// Putter is the interface that wraps the basic Put method.
//
// Put creates a PUT request whose body is streamed from body. The size
// is the number of bytes body will produce, or -1 if unknown.
type Putter interface {
	Put(cfg request.Configuration, body io.Reader, size int64) (Request, error)
}

// Poster is the interface that wraps the basic Post method.
type Poster interface {
	Post(cfg request.Configuration, contentType string, body interface{}) (Request, error)
}

// FormPoster is the interface that wraps the basic PostForm method.
//
// The body is the percent-encoded keys and values of data in key
// order, and the content type is application/x-www-form-urlencoded.
type FormPoster interface {
	PostForm(cfg request.Configuration, data url.Values) (Request, error)
}

// Runner is the interface that wraps the event loop lifecycle.
//
// Run dispatches asynchronous callbacks on the calling goroutine until
// Stop is called. Stop called before Run makes the next Run return at
// once.
type Runner interface {
	Run() error
	Stop()
}

// Timer is the interface that wraps the basic Timings method.
type Timer interface {
	Timings() timings.Timings
}

// Escaper is the interface that wraps URL escaping.
type Escaper interface {
	URLEscape(s string) string
	URLUnescape(s string) (string, error)
}

// Factory is the interface that groups every request creating method
// with the loop lifecycle, timings and escaping. Client implements
// Factory, and so does the mock in package httpflowtest.
type Factory interface {
	Requester
	Getter
	Header
	Deleter
	Putter
	Poster
	FormPoster
	Runner
	Timer
	Escaper
}

// Get uses r to create a GET request.
func Get(r Requester, cfg request.Configuration) (Request, error) {
	return r.Request("GET", cfg, nil)
}

// Head uses r to create a HEAD request.
func Head(r Requester, cfg request.Configuration) (Request, error) {
	return r.Request("HEAD", cfg, nil)
}

// Delete uses r to create a DELETE request.
func Delete(r Requester, cfg request.Configuration) (Request, error) {
	return r.Request("DELETE", cfg, nil)
}

// Put uses r to create a PUT request. Since a Requester takes buffered
// bodies, body is read to the end first; size is ignored.
func Put(r Requester, cfg request.Configuration, body io.Reader, _ int64) (Request, error) {
	var b interface{}
	if body != nil {
		b = body
	}
	return r.Request("PUT", cfg, b)
}

// Post uses r to create a POST request with the given content type.
func Post(r Requester, cfg request.Configuration, contentType string, body interface{}) (Request, error) {
	return r.Request("POST", withContentType(cfg, contentType), body)
}

// PostForm uses r to create a form POST request. Keys and values are
// escaped with r's URLEscape when r is an Escaper, and with
// url.QueryEscape otherwise.
func PostForm(r Requester, cfg request.Configuration, data url.Values) (Request, error) {
	escape := url.QueryEscape
	if e, ok := r.(Escaper); ok {
		escape = e.URLEscape
	}
	return Post(r, cfg, "application/x-www-form-urlencoded", encodeForm(data, escape))
}

func withContentType(cfg request.Configuration, contentType string) request.Configuration {
	if contentType == "" || cfg.Header.Has("Content-Type") {
		return cfg
	}
	h := cfg.Header.Clone()
	h.Set("Content-Type", contentType)
	cfg.Header = h
	return cfg
}

func encodeForm(data url.Values, escape func(string) string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range data[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escape(k))
			b.WriteByte('=')
			b.WriteString(escape(v))
		}
	}
	return b.String()
}

// Inflate converts any non-nil Requester into a Factory. Methods the
// Requester lacks are emulated: Run returns at once, Timings reports
// nothing and escaping uses package net/url.
func Inflate(r Requester) Factory {
	if r == nil {
		panic("httpflow: nil requester")
	}

	if f, ok := r.(Factory); ok {
		return f
	}

	return inflated{r}
}

type inflated struct {
	r Requester
}

func (i inflated) Request(method string, cfg request.Configuration, body interface{}) (Request, error) {
	return i.r.Request(method, cfg, body)
}

func (i inflated) Get(cfg request.Configuration) (Request, error) {
	return Get(i.r, cfg)
}

func (i inflated) Head(cfg request.Configuration) (Request, error) {
	return Head(i.r, cfg)
}

func (i inflated) Delete(cfg request.Configuration) (Request, error) {
	return Delete(i.r, cfg)
}

func (i inflated) Put(cfg request.Configuration, body io.Reader, size int64) (Request, error) {
	if p, ok := i.r.(Putter); ok {
		return p.Put(cfg, body, size)
	}
	return Put(i.r, cfg, body, size)
}

func (i inflated) Post(cfg request.Configuration, contentType string, body interface{}) (Request, error) {
	return Post(i.r, cfg, contentType, body)
}

func (i inflated) PostForm(cfg request.Configuration, data url.Values) (Request, error) {
	return PostForm(i, cfg, data)
}

func (i inflated) Run() error {
	if r, ok := i.r.(Runner); ok {
		return r.Run()
	}
	return nil
}

func (i inflated) Stop() {
	if r, ok := i.r.(Runner); ok {
		r.Stop()
	}
}

func (i inflated) Timings() timings.Timings {
	if t, ok := i.r.(Timer); ok {
		return t.Timings()
	}
	return timings.Timings{}
}

func (i inflated) URLEscape(s string) string {
	if e, ok := i.r.(Escaper); ok {
		return e.URLEscape(s)
	}
	return url.QueryEscape(s)
}

func (i inflated) URLUnescape(s string) (string, error) {
	if e, ok := i.r.(Escaper); ok {
		return e.URLUnescape(s)
	}
	return url.QueryUnescape(s)
}
