// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gogama/httpflow/timings"
)

const (
	readSize         = 16 * 1024
	progressInterval = 250 * time.Millisecond
)

// A Session is the transport state of one request: its options, its
// sinks and, once performed, its status and timings.
//
// Options and sinks must be set before Perform or Loop.Add. Pause,
// Resume, Paused, Status and Timings may be called from any goroutine.
type Session struct {
	engine *Engine

	method        string
	url           string
	header        http.Header
	body          []byte
	stream        io.Reader
	size          int64
	timeout       time.Duration
	skipPeer      bool
	skipHost      bool
	httpAuth      AuthFunc
	proxyAuth     AuthFunc
	lowSpeedLimit int64
	lowSpeedTime  time.Duration
	maxRecvSpeed  int64

	bodySink     func([]byte) int
	headerSink   func([]byte) int
	progressSink func(dlTotal, dlNow, ulTotal, ulNow float64) int
	finishedSink func(error)

	// set by Loop.Add
	dispatch func(ctx context.Context, fn func()) error
	acquire  func(ctx context.Context) (func(), error)

	sinkMu   sync.Mutex
	watch    *watchdog
	busy     atomic.Bool
	released atomic.Bool
	status   atomic.Int32
	gate     gate
	rec      recorder

	mu      sync.Mutex
	dlTotal float64
	dlNow   float64
	ulTotal float64
	ulNow   atomic.Int64
}

func newSession(e *Engine) *Session {
	return &Session{engine: e, method: http.MethodGet, size: -1}
}

// SetMethod sets the request method. The default is GET.
func (s *Session) SetMethod(method string) { s.method = method }

// SetURL sets the request URL.
func (s *Session) SetURL(u string) { s.url = u }

// SetHeader sets the outgoing header fields.
func (s *Session) SetHeader(h http.Header) { s.header = h }

// SetBody sets a pre-buffered request body.
func (s *Session) SetBody(b []byte) {
	s.body, s.stream, s.size = b, nil, int64(len(b))
}

// SetBodyReader sets a streamed request body of the given size, or -1
// when the size is unknown. A streamed body cannot be re-sent, so a
// session with one does not answer authentication challenges.
func (s *Session) SetBodyReader(r io.Reader, size int64) {
	s.body, s.stream, s.size = nil, r, size
}

// SetTimeout bounds the total wall time of the transfer, including any
// time spent paused or waiting for dispatch. Zero means no bound.
func (s *Session) SetTimeout(d time.Duration) { s.timeout = d }

// SetSSLVerify controls TLS verification of the server certificate
// chain (peer) and of the host name it was issued for (host).
func (s *Session) SetSSLVerify(peer, host bool) {
	s.skipPeer, s.skipHost = !peer, !host
}

// SetHTTPAuth sets the callback answering 401 challenges.
func (s *Session) SetHTTPAuth(fn AuthFunc) { s.httpAuth = fn }

// SetProxyAuth sets the callback answering 407 challenges.
func (s *Session) SetProxyAuth(fn AuthFunc) { s.proxyAuth = fn }

// SetLowSpeed aborts the transfer with OperationTimedout when it runs
// slower than limit bytes per second for window. A zero limit or
// window disables the check.
func (s *Session) SetLowSpeed(limit int64, window time.Duration) {
	s.lowSpeedLimit, s.lowSpeedTime = limit, window
}

// SetMaxRecvSpeed caps the download speed in bytes per second. Zero
// means no cap.
func (s *Session) SetMaxRecvSpeed(bps int64) { s.maxRecvSpeed = bps }

// OnBody registers the body sink.
func (s *Session) OnBody(fn func(p []byte) int) { s.bodySink = fn }

// OnHeader registers the header sink.
func (s *Session) OnHeader(fn func(line []byte) int) { s.headerSink = fn }

// OnProgress registers the progress sink.
func (s *Session) OnProgress(fn func(dlTotal, dlNow, ulTotal, ulNow float64) int) {
	s.progressSink = fn
}

// OnFinished registers the sink called once when the transfer ends,
// with nil or an *Error.
func (s *Session) OnFinished(fn func(err error)) { s.finishedSink = fn }

// Status returns the HTTP status of the final response, or zero.
func (s *Session) Status() int { return int(s.status.Load()) }

// Timings returns the phase offsets of the most recent transfer.
func (s *Session) Timings() timings.Sample { return s.rec.snapshot() }

// Pause suspends the transfer before its next read. Pausing a session
// that is not transferring takes effect when it starts.
func (s *Session) Pause() error {
	if s.released.Load() {
		return ErrReleased
	}
	s.gate.pause()
	return nil
}

// Resume lets a paused transfer continue.
func (s *Session) Resume() error {
	if s.released.Load() {
		return ErrReleased
	}
	s.gate.resume()
	return nil
}

// Paused reports whether the session is paused.
func (s *Session) Paused() bool { return s.gate.isPaused() }

func (s *Session) release() bool {
	if !s.released.CompareAndSwap(false, true) {
		return false
	}
	s.gate.resume()
	return true
}

// Perform runs the transfer on the calling goroutine and returns when
// it is over. The returned error is nil or an *Error.
func (s *Session) Perform(ctx context.Context) error {
	if s.released.Load() {
		return &Error{Code: BadFunctionArgument, Err: ErrReleased}
	}
	if !s.busy.CompareAndSwap(false, true) {
		return &Error{Code: BadFunctionArgument, Err: ErrBusy}
	}
	return s.run(ctx)
}

func (s *Session) run(ctx context.Context) (err error) {
	defer s.busy.Store(false)
	defer func() {
		if err != nil {
			s.engine.logger.Debug("transfer failed",
				zap.String("method", s.method), zap.String("url", s.url), zap.Error(err))
		}
		if fn := s.finishedSink; fn != nil {
			_ = s.call(context.Background(), func() { fn(err) })
		}
	}()
	if e := s.perform(ctx); e != nil {
		return e
	}
	return nil
}

// call invokes fn directly, or on the loop goroutine when the session
// was registered with a Loop. Either way no two sinks of a session run
// at the same time.
func (s *Session) call(ctx context.Context, fn func()) error {
	if s.dispatch == nil {
		s.sinkMu.Lock()
		defer s.sinkMu.Unlock()
		fn()
		return nil
	}
	return s.dispatch(ctx, fn)
}

func (s *Session) perform(parent context.Context) *Error {
	s.status.Store(0)
	s.rec.reset()
	s.setProgress(0, 0, 0)
	s.ulNow.Store(0)

	u, err := url.Parse(s.url)
	if err != nil {
		return &Error{Code: URLMalformat, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &Error{Code: UnsupportedProtocol, Err: fmt.Errorf("transport: unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return &Error{Code: URLMalformat, Err: fmt.Errorf("transport: no host in %q", s.url)}
	}
	client, err := s.engine.clientFor(s.skipPeer, s.skipHost)
	if err != nil {
		return &Error{Code: BadFunctionArgument, Err: err}
	}

	ctx := parent
	if s.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeoutCause(ctx, s.timeout, errTimedOut)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if s.acquire != nil {
		done, err := s.acquire(ctx)
		if err != nil {
			return classify(ctx, sending, err)
		}
		defer done()
	}
	if l := s.engine.limiter; l != nil {
		if err := l.Wait(ctx); err != nil {
			return classify(ctx, sending, err)
		}
	}
	if s.lowSpeedLimit > 0 && s.lowSpeedTime > 0 {
		w := newWatchdog(s.lowSpeedLimit, s.lowSpeedTime, &s.gate)
		s.watch = w
		go w.run(ctx, cancel)
	} else {
		s.watch = nil
	}

	req, err := s.newRequest(s.rec.attach(ctx), u)
	if err != nil {
		return &Error{Code: BadFunctionArgument, Err: err}
	}

	stop := s.tickWhileSending(ctx, cancel)
	resp, err := s.roundTrip(client, req)
	stop()
	if err != nil {
		return classify(ctx, sending, err)
	}
	defer resp.Body.Close()
	s.status.Store(int32(resp.StatusCode))
	s.setProgress(float64(resp.ContentLength), 0, float64(s.size))

	if err := s.deliverHeader(ctx, resp); err != nil {
		return classify(ctx, receiving, err)
	}
	if err := s.deliverBody(ctx, resp.Body); err != nil {
		return classify(ctx, receiving, err)
	}
	s.rec.finish()
	if err := s.tick(ctx); err != nil {
		return classify(ctx, receiving, err)
	}
	return nil
}

func (s *Session) newRequest(ctx context.Context, u *url.URL) (*http.Request, error) {
	var body io.Reader
	switch {
	case s.stream != nil:
		body = &countingReader{r: s.stream, n: &s.ulNow, w: &s.watch}
	case len(s.body) > 0:
		body = &countingReader{r: bytes.NewReader(s.body), n: &s.ulNow, w: &s.watch}
	}
	req, err := http.NewRequestWithContext(ctx, s.method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if s.header != nil {
		req.Header = s.header.Clone()
	}
	if req.Header.Get("User-Agent") == "" && s.engine.userAgent != "" {
		req.Header.Set("User-Agent", s.engine.userAgent)
	}
	if s.stream != nil {
		req.ContentLength = s.size
		if s.size == 0 {
			req.Body = http.NoBody
		}
	} else if len(s.body) > 0 {
		b := s.body
		req.ContentLength = int64(len(b))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(&countingReader{r: bytes.NewReader(b), n: &s.ulNow, w: &s.watch}), nil
		}
	}
	return req, nil
}

// roundTrip sends req and answers one authentication challenge when a
// callback for it is set.
func (s *Session) roundTrip(c *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	var fn AuthFunc
	var challengeHeader, authHeader string
	proxy := false
	switch {
	case resp.StatusCode == http.StatusUnauthorized && s.httpAuth != nil:
		fn, challengeHeader, authHeader = s.httpAuth, "Www-Authenticate", "Authorization"
	case resp.StatusCode == http.StatusProxyAuthRequired && s.proxyAuth != nil:
		fn, challengeHeader, authHeader, proxy = s.proxyAuth, "Proxy-Authenticate", "Proxy-Authorization", true
	default:
		return resp, nil
	}
	ch, ok := pickChallenge(parseChallenges(resp.Header.Values(challengeHeader)))
	if !ok || (req.Body != nil && req.Body != http.NoBody && req.GetBody == nil) {
		return resp, nil
	}

	var username, password string
	err = s.call(req.Context(), func() { username, password = fn(ch.realm()) })
	drain(resp)
	if err != nil {
		return nil, err
	}
	if username == "" && password == "" {
		return nil, &AuthError{Realm: ch.realm(), Proxy: proxy}
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		if retry.Body, err = req.GetBody(); err != nil {
			return nil, err
		}
	}
	s.ulNow.Store(0)
	if ch.scheme == "digest" {
		v, err := digestAuthorization(ch, retry, username, password)
		if err != nil {
			return nil, &AuthError{Realm: ch.realm(), Proxy: proxy}
		}
		retry.Header.Set(authHeader, v)
	} else {
		retry.Header.Set(authHeader, basicAuthorization(username, password))
	}
	return c.Do(retry)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()
}

// deliverHeader feeds the status line, one line per header field in
// name order, then the blank separator line to the header sink.
func (s *Session) deliverHeader(ctx context.Context, resp *http.Response) error {
	if s.headerSink == nil {
		return nil
	}
	lines := make([]string, 0, len(resp.Header)+2)
	lines = append(lines, resp.Proto+" "+resp.Status+"\r\n")
	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range resp.Header[name] {
			lines = append(lines, name+": "+v+"\r\n")
		}
	}
	lines = append(lines, "\r\n")

	for _, line := range lines {
		b := []byte(line)
		var n int
		if err := s.call(ctx, func() { n = s.headerSink(b) }); err != nil {
			return err
		}
		if n != len(b) {
			return errShortWrite
		}
	}
	return nil
}

func (s *Session) deliverBody(ctx context.Context, body io.Reader) error {
	size := readSize
	var limiter *rate.Limiter
	if s.maxRecvSpeed > 0 {
		if s.maxRecvSpeed < int64(size) {
			size = int(s.maxRecvSpeed)
		}
		limiter = rate.NewLimiter(rate.Limit(s.maxRecvSpeed), size)
	}
	buf := make([]byte, size)
	for {
		if err := s.gate.wait(ctx); err != nil {
			return err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return err
				}
			}
			if w := s.watch; w != nil {
				w.add(n)
			}
			s.mu.Lock()
			s.dlNow += float64(n)
			s.mu.Unlock()
			if s.bodySink != nil {
				chunk := buf[:n]
				var m int
				if err := s.call(ctx, func() { m = s.bodySink(chunk) }); err != nil {
					return err
				}
				if m != n {
					return errShortWrite
				}
			}
			if err := s.tick(ctx); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
			return rerr
		}
	}
}

func (s *Session) setProgress(dlTotal, dlNow, ulTotal float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlTotal, s.dlNow, s.ulTotal = dlTotal, dlNow, ulTotal
}

// tick reports progress to the progress sink.
func (s *Session) tick(ctx context.Context) error {
	if s.progressSink == nil {
		return nil
	}
	s.mu.Lock()
	dlTotal, dlNow, ulTotal := s.dlTotal, s.dlNow, s.ulTotal
	s.mu.Unlock()
	ulNow := float64(s.ulNow.Load())
	var r int
	if err := s.call(ctx, func() { r = s.progressSink(dlTotal, dlNow, ulTotal, ulNow) }); err != nil {
		return err
	}
	if r != 0 {
		return ErrAbortedByCallback
	}
	return nil
}

// tickWhileSending reports progress periodically while the request is
// being sent and the response header awaited. The returned func stops
// the ticker and waits for it, so no sink overlaps the ones that
// follow.
func (s *Session) tickWhileSending(ctx context.Context, cancel context.CancelCauseFunc) func() {
	if s.progressSink == nil {
		return func() {}
	}
	s.setProgress(-1, 0, float64(s.size))
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(progressInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := s.tick(ctx); err != nil {
					if errors.Is(err, ErrAbortedByCallback) {
						cancel(ErrAbortedByCallback)
					}
					return
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
	w **watchdog
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	if w := *c.w; w != nil {
		w.add(n)
	}
	return n, err
}
