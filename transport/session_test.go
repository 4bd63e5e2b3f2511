// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gogama/httpflow/timings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu       sync.Mutex
	body     bytes.Buffer
	lines    []string
	progress int
}

func (c *capture) attach(s *Session) {
	s.OnBody(func(p []byte) int {
		c.mu.Lock()
		defer c.mu.Unlock()
		n, _ := c.body.Write(p)
		return n
	})
	s.OnHeader(func(line []byte) int {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.lines = append(c.lines, string(line))
		return len(line)
	})
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	return e
}

func TestSession_Perform(t *testing.T) {
	t.Run("get", testSessionGet)
	t.Run("post body", testSessionPostBody)
	t.Run("stream body", testSessionStreamBody)
	t.Run("user agent", testSessionUserAgent)
	t.Run("short write", testSessionShortWrite)
	t.Run("progress", testSessionProgress)
	t.Run("progress abort", testSessionProgressAbort)
	t.Run("timeout", testSessionTimeout)
	t.Run("bad url", testSessionBadURL)
	t.Run("connect refused", testSessionConnectRefused)
	t.Run("busy", testSessionBusy)
	t.Run("released", testSessionReleased)
	t.Run("cancelled", testSessionCancelled)
}

func testSessionGet(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	defer e.Release(s)
	var c capture
	c.attach(s)
	s.SetURL(testServer.URL + "/hello")

	err := s.Perform(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 200, s.Status())
	assert.Equal(t, "hello, world", c.body.String())
	require.NotEmpty(t, c.lines)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", c.lines[0])
	assert.Equal(t, "\r\n", c.lines[len(c.lines)-1])
	assert.Contains(t, c.lines, "Content-Type: text/plain\r\n")
	assert.Contains(t, c.lines, "X-Multi: 1\r\n")
	assert.Contains(t, c.lines, "X-Multi: 2\r\n")
	sample := s.Timings()
	assert.Greater(t, sample.Get(timings.Total), time.Duration(0))
	var prev time.Duration
	for _, p := range timings.Phases() {
		assert.GreaterOrEqual(t, sample.Get(p), prev, p.Name())
		prev = sample.Get(p)
	}
}

func testSessionPostBody(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	defer e.Release(s)
	var c capture
	c.attach(s)
	s.SetMethod("POST")
	s.SetURL(testServer.URL + "/echo")
	s.SetHeader(http.Header{"Content-Type": {"application/json"}})
	s.SetBody([]byte("{ 'test': 'test' }"))

	require.NoError(t, s.Perform(context.Background()))
	assert.Equal(t, "{ 'test': 'test' }", c.body.String())
	assert.Contains(t, c.lines, "X-Method: POST\r\n")
}

func testSessionStreamBody(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	defer e.Release(s)
	var c capture
	c.attach(s)
	var lastUp, upTotal float64
	s.OnProgress(func(_, _, ulTotal, ulNow float64) int {
		upTotal, lastUp = ulTotal, ulNow
		return 0
	})
	payload := strings.Repeat("x", 5000)
	s.SetMethod("PUT")
	s.SetURL(testServer.URL + "/echo")
	s.SetBodyReader(strings.NewReader(payload), int64(len(payload)))

	require.NoError(t, s.Perform(context.Background()))
	assert.Equal(t, payload, c.body.String())
	assert.Equal(t, float64(len(payload)), upTotal)
	assert.Equal(t, float64(len(payload)), lastUp)
}

func testSessionUserAgent(t *testing.T) {
	e := newTestEngine(t, WithUserAgent("flow-test/1.0"))
	s := e.NewSession()
	defer e.Release(s)
	var c capture
	c.attach(s)
	s.SetURL(testServer.URL + "/echo")
	require.NoError(t, s.Perform(context.Background()))
	assert.Contains(t, c.lines, "X-Agent: flow-test/1.0\r\n")
}

func testSessionShortWrite(t *testing.T) {
	t.Run("body", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		s.OnBody(func(p []byte) int { return len(p) - 1 })
		s.SetURL(testServer.URL + "/hello")
		err := s.Perform(context.Background())
		var te *Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, WriteError, te.Code)
	})
	t.Run("header", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		s.OnHeader(func([]byte) int { return 0 })
		s.SetURL(testServer.URL + "/hello")
		err := s.Perform(context.Background())
		var te *Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, WriteError, te.Code)
	})
}

func testSessionProgress(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	defer e.Release(s)
	var ticks int
	var lastTotal, lastNow float64
	s.OnProgress(func(dlTotal, dlNow, _, _ float64) int {
		ticks++
		lastTotal, lastNow = dlTotal, dlNow
		return 0
	})
	s.SetURL(testServer.URL + "/chunks?n=4&size=1000")
	require.NoError(t, s.Perform(context.Background()))
	assert.GreaterOrEqual(t, ticks, 2)
	assert.Equal(t, 4000.0, lastTotal)
	assert.Equal(t, 4000.0, lastNow)
}

func testSessionProgressAbort(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	defer e.Release(s)
	s.OnProgress(func(_, dlNow, _, _ float64) int {
		if dlNow > 0 {
			return 1
		}
		return 0
	})
	s.SetURL(testServer.URL + "/chunks?n=10&size=100&pause=10ms")
	err := s.Perform(context.Background())
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, AbortedByCallback, te.Code)
	assert.True(t, te.Aborted())
}

func testSessionTimeout(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	defer e.Release(s)
	s.SetURL(testServer.URL + "/delay?d=2s")
	s.SetTimeout(50 * time.Millisecond)
	start := time.Now()
	err := s.Perform(context.Background())
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OperationTimedout, te.Code)
	assert.True(t, te.Timeout())
	assert.Less(t, time.Since(start), time.Second)
}

func testSessionBadURL(t *testing.T) {
	testCases := []struct {
		url  string
		code Code
	}{
		{"ftp://example.com/", UnsupportedProtocol},
		{"http://", URLMalformat},
		{"http://[::1", URLMalformat},
	}
	for _, testCase := range testCases {
		t.Run(testCase.url, func(t *testing.T) {
			e := newTestEngine(t)
			s := e.NewSession()
			defer e.Release(s)
			s.SetURL(testCase.url)
			err := s.Perform(context.Background())
			var te *Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, testCase.code, te.Code)
		})
	}
}

func testSessionConnectRefused(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	defer e.Release(s)
	s.SetURL("http://127.0.0.1:1/")
	err := s.Perform(context.Background())
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CouldNotConnect, te.Code)
}

func testSessionBusy(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	defer e.Release(s)
	s.SetURL(testServer.URL + "/delay?d=200ms")
	done := make(chan error)
	go func() { done <- s.Perform(context.Background()) }()
	require.Eventually(t, func() bool { return s.busy.Load() }, time.Second, time.Millisecond)
	err := s.Perform(context.Background())
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, BadFunctionArgument, te.Code)
	assert.ErrorIs(t, err, ErrBusy)
	assert.NoError(t, <-done)
}

func testSessionReleased(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	e.Release(s)
	err := s.Perform(context.Background())
	assert.ErrorIs(t, err, ErrReleased)
}

func testSessionCancelled(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	defer e.Release(s)
	s.SetURL(testServer.URL + "/delay?d=2s")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err := s.Perform(ctx)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, AbortedByCallback, te.Code)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSession_PauseResume(t *testing.T) {
	t.Run("without limits", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		var c capture
		c.attach(s)
		var once sync.Once
		s.OnProgress(func(_, dlNow, _, _ float64) int {
			if dlNow > 0 {
				once.Do(func() {
					require.NoError(t, s.Pause())
					time.AfterFunc(100*time.Millisecond, func() { _ = s.Resume() })
				})
			}
			return 0
		})
		s.SetURL(testServer.URL + "/chunks?n=3&size=100")
		start := time.Now()
		require.NoError(t, s.Perform(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
		assert.Equal(t, 300, c.body.Len())
		assert.False(t, s.Paused())
	})
	t.Run("timeout while paused", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		s.OnBody(func(p []byte) int {
			_ = s.Pause()
			return len(p)
		})
		s.SetURL(testServer.URL + "/chunks?n=3&size=100&pause=10ms")
		s.SetTimeout(100 * time.Millisecond)
		err := s.Perform(context.Background())
		var te *Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, OperationTimedout, te.Code)
	})
	t.Run("pause before start", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		require.NoError(t, s.Pause())
		assert.True(t, s.Paused())
		require.NoError(t, s.Resume())
		require.NoError(t, s.Resume())
		assert.False(t, s.Paused())
	})
}

func TestSession_LowSpeed(t *testing.T) {
	t.Run("trips", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		s.SetURL(testServer.URL + "/chunks?n=50&size=10&pause=100ms")
		s.SetLowSpeed(1_000_000, 300*time.Millisecond)
		err := s.Perform(context.Background())
		var te *Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, OperationTimedout, te.Code)
		assert.ErrorIs(t, err, ErrLowSpeed)
	})
	t.Run("fast enough", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		s.SetURL(testServer.URL + "/chunks?n=5&size=100")
		s.SetLowSpeed(1, time.Second)
		assert.NoError(t, s.Perform(context.Background()))
	})
}

func TestSession_MaxRecvSpeed(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession()
	defer e.Release(s)
	var c capture
	c.attach(s)
	s.SetURL(testServer.URL + "/chunks?n=3&size=1000")
	s.SetMaxRecvSpeed(10_000)
	start := time.Now()
	require.NoError(t, s.Perform(context.Background()))
	assert.Equal(t, 3000, c.body.Len())
	// 3000 bytes at 10 kB/s with a 10 kB burst completes without waiting.
	assert.Less(t, time.Since(start), time.Second)

	s2 := e.NewSession()
	defer e.Release(s2)
	s2.SetURL(testServer.URL + "/chunks?n=3&size=1000")
	s2.SetMaxRecvSpeed(1000)
	start = time.Now()
	require.NoError(t, s2.Perform(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 1500*time.Millisecond)
}

func TestSession_Auth(t *testing.T) {
	creds := func(user, pass string) AuthFunc {
		return func(realm string) (string, string) { return user, pass }
	}
	t.Run("basic", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		var c capture
		c.attach(s)
		var gotRealm string
		s.SetHTTPAuth(func(realm string) (string, string) {
			gotRealm = realm
			return "user", "pass"
		})
		s.SetURL(testServer.URL + "/basic")
		require.NoError(t, s.Perform(context.Background()))
		assert.Equal(t, 200, s.Status())
		assert.Equal(t, "basic-realm", gotRealm)
		assert.Equal(t, "welcome user", c.body.String())
	})
	t.Run("digest with body", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		var c capture
		c.attach(s)
		s.SetHTTPAuth(creds("user", "pass"))
		s.SetMethod("POST")
		s.SetBody([]byte("payload"))
		s.SetURL(testServer.URL + "/digest?x=1")
		require.NoError(t, s.Perform(context.Background()))
		assert.Equal(t, 200, s.Status())
		assert.Equal(t, "digest ok payload", c.body.String())
	})
	t.Run("wrong password", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		s.SetHTTPAuth(creds("user", "nope"))
		s.SetURL(testServer.URL + "/basic")
		require.NoError(t, s.Perform(context.Background()))
		assert.Equal(t, 401, s.Status())
	})
	t.Run("no credentials", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		s.SetHTTPAuth(creds("", ""))
		s.SetURL(testServer.URL + "/digest")
		err := s.Perform(context.Background())
		var te *Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, LoginDenied, te.Code)
		var ae *AuthError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "digest-realm", ae.Realm)
		assert.False(t, ae.Proxy)
	})
	t.Run("no callback", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		s.SetURL(testServer.URL + "/basic")
		require.NoError(t, s.Perform(context.Background()))
		assert.Equal(t, 401, s.Status())
	})
}

func TestSession_TLS(t *testing.T) {
	t.Run("untrusted", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		s.SetURL(testTLSServer.URL + "/hello")
		err := s.Perform(context.Background())
		var te *Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, PeerFailedVerification, te.Code)
	})
	t.Run("skip peer", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		var c capture
		c.attach(s)
		s.SetSSLVerify(false, false)
		s.SetURL(testTLSServer.URL + "/hello")
		require.NoError(t, s.Perform(context.Background()))
		assert.Equal(t, "hello, world", c.body.String())
		assert.Greater(t, s.Timings().Get(timings.AppConnect), time.Duration(0))
	})
	t.Run("skip host only", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.NewSession()
		defer e.Release(s)
		s.SetSSLVerify(true, false)
		s.SetURL(testTLSServer.URL + "/hello")
		err := s.Perform(context.Background())
		var te *Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, PeerFailedVerification, te.Code)
	})
}
