// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpflowtest

import (
	"io"
	"net/url"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/gogama/httpflow"
	"github.com/gogama/httpflow/request"
	"github.com/gogama/httpflow/timings"
)

// MockFactory is a testify mock implementing httpflow.Factory.
type MockFactory struct {
	mock.Mock
}

// NewMockFactory returns a mock factory reporting failures to t.
func NewMockFactory(t mock.TestingT) *MockFactory {
	m := &MockFactory{}
	m.Test(t)
	return m
}

func (m *MockFactory) Request(method string, cfg request.Configuration, body interface{}) (httpflow.Request, error) {
	return requestResult(m.Called(method, cfg, body))
}

func (m *MockFactory) Get(cfg request.Configuration) (httpflow.Request, error) {
	return requestResult(m.Called(cfg))
}

func (m *MockFactory) Head(cfg request.Configuration) (httpflow.Request, error) {
	return requestResult(m.Called(cfg))
}

func (m *MockFactory) Delete(cfg request.Configuration) (httpflow.Request, error) {
	return requestResult(m.Called(cfg))
}

func (m *MockFactory) Put(cfg request.Configuration, body io.Reader, size int64) (httpflow.Request, error) {
	return requestResult(m.Called(cfg, body, size))
}

func (m *MockFactory) Post(cfg request.Configuration, contentType string, body interface{}) (httpflow.Request, error) {
	return requestResult(m.Called(cfg, contentType, body))
}

func (m *MockFactory) PostForm(cfg request.Configuration, data url.Values) (httpflow.Request, error) {
	return requestResult(m.Called(cfg, data))
}

func (m *MockFactory) Run() error {
	return m.Called().Error(0)
}

func (m *MockFactory) Stop() {
	m.Called()
}

func (m *MockFactory) Timings() timings.Timings {
	args := m.Called()
	if t, ok := args.Get(0).(timings.Timings); ok {
		return t
	}
	return timings.Timings{}
}

func (m *MockFactory) URLEscape(s string) string {
	return m.Called(s).String(0)
}

func (m *MockFactory) URLUnescape(s string) (string, error) {
	args := m.Called(s)
	return args.String(0), args.Error(1)
}

func requestResult(args mock.Arguments) (httpflow.Request, error) {
	err := args.Error(1)
	if r, ok := args.Get(0).(httpflow.Request); ok {
		return r, err
	}
	return nil, err
}

// MockRequest is a testify mock implementing httpflow.Request.
type MockRequest struct {
	mock.Mock
}

// NewMockRequest returns a mock request reporting failures to t.
func NewMockRequest(t mock.TestingT) *MockRequest {
	m := &MockRequest{}
	m.Test(t)
	return m
}

func (m *MockRequest) State() request.State {
	args := m.Called()
	if s, ok := args.Get(0).(request.State); ok {
		return s
	}
	return request.Ready
}

func (m *MockRequest) SetTimeout(d time.Duration) error {
	return m.Called(d).Error(0)
}

func (m *MockRequest) AbortRequestIf(limit int64, window time.Duration) error {
	return m.Called(limit, window).Error(0)
}

func (m *MockRequest) Execute(progress request.ProgressHandler, data request.DataHandler) (*request.Response, error) {
	args := m.Called(progress, data)
	err := args.Error(1)
	if r, ok := args.Get(0).(*request.Response); ok {
		return r, err
	}
	return nil, err
}

// AsyncExecute records the call. When the recorded return values
// include a *request.Response or an error at index 1, the matching
// callback of h is invoked before returning, so code under test sees
// a completed execution.
func (m *MockRequest) AsyncExecute(h request.Handler, data request.DataHandler) error {
	args := m.Called(h, data)
	if len(args) > 1 {
		switch v := args.Get(1).(type) {
		case *request.Response:
			if fn := h.OnResponse(); fn != nil {
				fn(v)
			}
		case error:
			if fn := h.OnError(); fn != nil {
				fn(v)
			}
		}
	}
	return args.Error(0)
}

func (m *MockRequest) Pause() error {
	return m.Called().Error(0)
}

func (m *MockRequest) Resume() error {
	return m.Called().Error(0)
}

func (m *MockRequest) URLEscape(s string) string {
	return m.Called(s).String(0)
}

func (m *MockRequest) URLUnescape(s string) (string, error) {
	args := m.Called(s)
	return args.String(0), args.Error(1)
}

var (
	_ httpflow.Factory = (*MockFactory)(nil)
	_ httpflow.Request = (*MockRequest)(nil)
)
