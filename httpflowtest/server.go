// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpflowtest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// DigestNonce is the fixed nonce the server uses in digest challenges.
const DigestNonce = "6a1c0e5d2b7f4c3a"

// Echo is the JSON document the echo routes answer with.
type Echo struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Args    map[string]string `json:"args"`
	Headers map[string]string `json:"headers"`
	Data    string            `json:"data"`
	Form    map[string]string `json:"form"`
	JSON    json.RawMessage   `json:"json"`
}

// DecodeEcho parses a response body produced by an echo route.
func DecodeEcho(body []byte) (*Echo, error) {
	var e Echo
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Server is an echo server for tests.
type Server struct {
	*httptest.Server

	requests atomic.Int64
}

// A ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	tls   bool
	http2 bool
}

// WithTLS makes the server speak HTTPS with a self-signed certificate.
// Use Certificate or Client from httptest.Server to trust it.
func WithTLS() ServerOption {
	return func(c *serverConfig) {
		c.tls = true
	}
}

// WithHTTP2 makes the server speak HTTPS with HTTP/2 enabled.
func WithHTTP2() ServerOption {
	return func(c *serverConfig) {
		c.tls = true
		c.http2 = true
	}
}

// NewServer starts and returns a new echo server. The caller should
// call Close when finished.
func NewServer(opts ...ServerOption) *Server {
	var cfg serverConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{}
	s.Server = httptest.NewUnstartedServer(s.mux())
	if cfg.tls {
		s.EnableHTTP2 = cfg.http2
		s.StartTLS()
	} else {
		s.Start()
	}
	return s
}

// RequestCount returns the number of requests the server has received.
func (s *Server) RequestCount() int64 {
	return s.requests.Load()
}

func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /get", echo)
	mux.HandleFunc("POST /post", echo)
	mux.HandleFunc("PUT /put", echo)
	mux.HandleFunc("DELETE /delete", echo)
	mux.HandleFunc("/anything", echo)
	mux.HandleFunc("/anything/", echo)
	mux.HandleFunc("/status/{code}", status)
	mux.HandleFunc("/delay/{delay}", delay)
	mux.HandleFunc("GET /stream-bytes/{n}", streamBytes)
	mux.HandleFunc("GET /headers", headers)
	mux.HandleFunc("GET /basic-auth/{user}/{passwd}", basicAuth)
	mux.HandleFunc("/digest-auth/{user}/{passwd}", digestAuth)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		mux.ServeHTTP(w, r)
	})
}

func echo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	e := Echo{
		Method:  r.Method,
		URL:     scheme + "://" + r.Host + r.URL.RequestURI(),
		Args:    flatten(r.URL.Query()),
		Headers: flatten(url.Values(r.Header)),
		Data:    string(body),
		Form:    map[string]string{},
		JSON:    json.RawMessage("null"),
	}
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/x-www-form-urlencoded" {
		if form, err := url.ParseQuery(string(body)); err == nil {
			e.Form = flatten(form)
			e.Data = ""
		}
	}
	if json.Valid(body) {
		e.JSON = body
	}
	writeJSON(w, http.StatusOK, e)
}

func flatten(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k, vs := range v {
		out[k] = strings.Join(vs, ",")
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func status(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.WriteHeader(code)
}

// delay waits for a duration such as "1.5" (seconds) or "250ms".
func delay(w http.ResponseWriter, r *http.Request) {
	d, err := parseDelay(r.PathValue("delay"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	select {
	case <-time.After(d):
	case <-r.Context().Done():
		return
	}
	echo(w, r)
}

func parseDelay(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// streamBytes writes n bytes in chunks of chunk_size, flushing after
// each chunk and sleeping pause between chunks.
func streamBytes(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		http.Error(w, "invalid byte count", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	size, _ := strconv.Atoi(q.Get("chunk_size"))
	if size <= 0 {
		size = 1024
	}
	pause, _ := time.ParseDuration(q.Get("pause"))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(n))
	chunk := make([]byte, size)
	for i := range chunk {
		chunk[i] = 'a' + byte(i%26)
	}
	for sent := 0; sent < n; {
		if sent > 0 && pause > 0 {
			select {
			case <-time.After(pause):
			case <-r.Context().Done():
				return
			}
		}
		m := min(size, n-sent)
		if _, err := w.Write(chunk[:m]); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		sent += m
	}
}

func headers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"headers": flatten(url.Values(r.Header)),
	})
}

type authResult struct {
	Authenticated bool   `json:"authenticated"`
	User          string `json:"user"`
}

func basicAuth(w http.ResponseWriter, r *http.Request) {
	user, passwd := r.PathValue("user"), r.PathValue("passwd")
	u, p, ok := r.BasicAuth()
	if !ok || u != user || p != passwd {
		w.Header().Set("WWW-Authenticate", `Basic realm="Fake Realm"`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, authResult{Authenticated: true, User: u})
}

func digestAuth(w http.ResponseWriter, r *http.Request) {
	const realm = "me@kennethreitz.com"
	user, passwd := r.PathValue("user"), r.PathValue("passwd")
	if !checkDigest(r, realm, user, passwd) {
		w.Header().Set("WWW-Authenticate",
			fmt.Sprintf(`Digest realm="%s", nonce="%s", qop="auth", opaque="%s"`, realm, DigestNonce, md5hex(realm)))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	_, _ = io.Copy(io.Discard, r.Body)
	writeJSON(w, http.StatusOK, authResult{Authenticated: true, User: user})
}

func checkDigest(r *http.Request, realm, user, passwd string) bool {
	const prefix = "Digest "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return false
	}
	p := digestParams(h[len(prefix):])
	if p["username"] != user || p["realm"] != realm || p["nonce"] != DigestNonce {
		return false
	}
	ha1 := md5hex(user + ":" + realm + ":" + passwd)
	ha2 := md5hex(r.Method + ":" + p["uri"])
	if p["qop"] == "" {
		return p["response"] == md5hex(ha1+":"+DigestNonce+":"+ha2)
	}
	return p["response"] == md5hex(ha1+":"+DigestNonce+":"+p["nc"]+":"+p["cnonce"]+":"+p["qop"]+":"+ha2)
}

// digestParams splits a digest credentials list. Quoted values may
// contain commas; escaped quotes are not supported.
func digestParams(s string) map[string]string {
	out := make(map[string]string)
	for s != "" {
		s = strings.TrimLeft(s, " ,")
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = s[eq+1:]
		var val string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				break
			}
			val, s = s[1:end+1], s[end+2:]
		} else if comma := strings.IndexByte(s, ','); comma >= 0 {
			val, s = strings.TrimSpace(s[:comma]), s[comma:]
		} else {
			val, s = strings.TrimSpace(s), ""
		}
		out[key] = val
	}
	return out
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
