// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// DefaultMethods is the set of methods an Engine supports unless
// WithMethods says otherwise.
var DefaultMethods = []string{"GET", "HEAD", "POST", "PUT", "DELETE"}

// An Engine creates sessions and holds everything they share: the
// net/http client, its connection pool, the request throttle and the
// set of supported methods. An Engine is safe for concurrent use and
// should be reused.
type Engine struct {
	client    *http.Client
	base      *http.Transport
	methods   map[string]bool
	userAgent string
	limiter   *rate.Limiter
	logger    *zap.Logger

	tlsOnce  sync.Once
	skipPeer *http.Client
	skipHost *http.Client

	live atomic.Int64
}

type engineOpts struct {
	client      *http.Client
	rt          http.RoundTripper
	http2       bool
	dialTimeout time.Duration
	rps         rate.Limit
	burst       int
	userAgent   string
	methods     []string
	logger      *zap.Logger
}

// An Option configures an Engine.
type Option func(*engineOpts) error

// WithHTTPClient makes the engine send requests through c. The
// client's Timeout should be zero; sessions apply their own timeouts.
func WithHTTPClient(c *http.Client) Option {
	return func(o *engineOpts) error {
		if c == nil {
			return errors.New("transport: nil http client")
		}
		o.client = c
		return nil
	}
}

// WithRoundTripper replaces the transport of the engine's client.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *engineOpts) error {
		if rt == nil {
			return errors.New("transport: nil round tripper")
		}
		o.rt = rt
		return nil
	}
}

// WithHTTP2 enables HTTP/2 over TLS on the engine's transport.
func WithHTTP2() Option {
	return func(o *engineOpts) error {
		o.http2 = true
		return nil
	}
}

// WithDialTimeout bounds the time spent establishing a connection.
func WithDialTimeout(d time.Duration) Option {
	return func(o *engineOpts) error {
		if d <= 0 {
			return fmt.Errorf("transport: dial timeout must be positive, got %s", d)
		}
		o.dialTimeout = d
		return nil
	}
}

// WithThrottle limits the engine to rps requests per second with the
// given burst. The limit is shared by every session of the engine.
func WithThrottle(rps float64, burst int) Option {
	return func(o *engineOpts) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("transport: invalid throttle %g/s burst %d", rps, burst)
		}
		o.rps = rate.Limit(rps)
		o.burst = burst
		return nil
	}
}

// WithUserAgent sets the User-Agent sent when a session does not set
// one itself.
func WithUserAgent(ua string) Option {
	return func(o *engineOpts) error {
		o.userAgent = ua
		return nil
	}
}

// WithMethods replaces the set of supported methods. Each method must
// be a valid HTTP token.
func WithMethods(methods ...string) Option {
	return func(o *engineOpts) error {
		for _, m := range methods {
			if !httpguts.ValidHeaderFieldName(m) {
				return fmt.Errorf("transport: invalid method %q", m)
			}
		}
		o.methods = methods
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *engineOpts) error {
		if l == nil {
			return errors.New("transport: nil logger")
		}
		o.logger = l
		return nil
	}
}

// NewEngine builds an engine from the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	o := engineOpts{
		methods: DefaultMethods,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	c := &http.Client{}
	if o.client != nil {
		cp := *o.client
		c = &cp
	}
	switch {
	case o.rt != nil:
		c.Transport = o.rt
	case c.Transport == nil:
		c.Transport = newTransport()
	}

	base, _ := c.Transport.(*http.Transport)
	if o.dialTimeout > 0 || o.http2 {
		if base == nil {
			return nil, errors.New("transport: dial timeout and HTTP/2 need an *http.Transport")
		}
	}
	if o.dialTimeout > 0 {
		base.DialContext = (&net.Dialer{Timeout: o.dialTimeout, KeepAlive: 30 * time.Second}).DialContext
	}
	if o.http2 {
		if err := http2.ConfigureTransport(base); err != nil {
			return nil, fmt.Errorf("transport: enabling HTTP/2: %w", err)
		}
	}

	e := &Engine{
		client:    c,
		base:      base,
		methods:   make(map[string]bool, len(o.methods)),
		userAgent: o.userAgent,
		logger:    o.logger,
	}
	for _, m := range o.methods {
		e.methods[m] = true
	}
	if o.rps > 0 {
		e.limiter = rate.NewLimiter(o.rps, o.burst)
	}
	return e, nil
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// DefaultEngine returns a process-wide engine built with no options.
func DefaultEngine() *Engine {
	defaultEngineOnce.Do(func() {
		var err error
		defaultEngine, err = NewEngine()
		if err != nil {
			panic(err)
		}
	})
	return defaultEngine
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Supports reports whether the engine can perform method.
func (e *Engine) Supports(method string) bool {
	return e.methods[method]
}

// Methods returns the supported methods.
func (e *Engine) Methods() []string {
	out := make([]string, 0, len(e.methods))
	for m := range e.methods {
		out = append(out, m)
	}
	return out
}

// NewSession returns a fresh session bound to e.
func (e *Engine) NewSession() *Session {
	e.live.Add(1)
	return newSession(e)
}

// Release returns s to the engine. A released session refuses every
// further operation. Releasing twice is harmless.
func (e *Engine) Release(s *Session) {
	if s == nil || s.engine != e {
		return
	}
	if s.release() {
		e.live.Add(-1)
	}
}

// Live returns the number of sessions created and not yet released.
func (e *Engine) Live() int64 {
	return e.live.Load()
}

// CloseIdleConnections closes idle pooled connections.
func (e *Engine) CloseIdleConnections() {
	e.client.CloseIdleConnections()
}

// Escape percent-encodes every byte of s except the unreserved
// characters A-Z a-z 0-9 - . _ ~. Spaces become %20.
func (e *Engine) Escape(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

// Unescape decodes percent-escapes in s. A plus sign is left as is.
func (e *Engine) Unescape(s string) (string, error) {
	return url.PathUnescape(s)
}

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// clientFor returns the http client matching the TLS verification
// flags of a session.
func (e *Engine) clientFor(skipPeer, skipHost bool) (*http.Client, error) {
	if !skipPeer && !skipHost {
		return e.client, nil
	}
	if e.base == nil {
		return nil, errors.New("transport: TLS verification options need an *http.Transport")
	}
	e.tlsOnce.Do(e.buildInsecure)
	if skipPeer {
		return e.skipPeer, nil
	}
	return e.skipHost, nil
}

func (e *Engine) buildInsecure() {
	derive := func(cfg *tls.Config) *http.Client {
		t := e.base.Clone()
		t.TLSClientConfig = cfg
		c := *e.client
		c.Transport = t
		return &c
	}
	base := e.base.TLSClientConfig
	var roots *x509.CertPool
	if base != nil {
		roots = base.RootCAs
	}

	peer := cloneTLS(base)
	peer.InsecureSkipVerify = true
	e.skipPeer = derive(peer)

	host := cloneTLS(base)
	host.InsecureSkipVerify = true
	host.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("transport: no peer certificates")
		}
		opts := x509.VerifyOptions{Roots: roots, Intermediates: x509.NewCertPool()}
		for _, cert := range cs.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := cs.PeerCertificates[0].Verify(opts)
		return err
	}
	e.skipHost = derive(host)
}

func cloneTLS(c *tls.Config) *tls.Config {
	if c == nil {
		return &tls.Config{}
	}
	return c.Clone()
}
