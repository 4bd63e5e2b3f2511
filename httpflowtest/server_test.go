// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpflowtest

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer(t *testing.T) {
	srv := NewServer()
	defer srv.Close()

	get := func(t *testing.T, req *http.Request) (*http.Response, []byte) {
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, b
	}

	t.Run("get", func(t *testing.T) {
		req, _ := http.NewRequest("GET", srv.URL+"/get?a=1&a=2&b=x", nil)
		req.Header.Set("X-Test", "yes")
		resp, b := get(t, req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		e, err := DecodeEcho(b)
		require.NoError(t, err)
		assert.Equal(t, "GET", e.Method)
		assert.Equal(t, srv.URL+"/get?a=1&a=2&b=x", e.URL)
		assert.Equal(t, map[string]string{"a": "1,2", "b": "x"}, e.Args)
		assert.Equal(t, "yes", e.Headers["X-Test"])
		assert.JSONEq(t, "null", string(e.JSON))
	})
	t.Run("post", func(t *testing.T) {
		req, _ := http.NewRequest("POST", srv.URL+"/post", strings.NewReader(`{"k":"v"}`))
		_, b := get(t, req)
		e, err := DecodeEcho(b)
		require.NoError(t, err)
		assert.Equal(t, `{"k":"v"}`, e.Data)
		assert.JSONEq(t, `{"k":"v"}`, string(e.JSON))
	})
	t.Run("form", func(t *testing.T) {
		body := url.Values{"x": {"1"}, "y": {"a b"}}.Encode()
		req, _ := http.NewRequest("POST", srv.URL+"/post", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		_, b := get(t, req)
		e, err := DecodeEcho(b)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"x": "1", "y": "a b"}, e.Form)
		assert.Empty(t, e.Data)
	})
	t.Run("wrong method", func(t *testing.T) {
		req, _ := http.NewRequest("POST", srv.URL+"/get", nil)
		resp, _ := get(t, req)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
	t.Run("status", func(t *testing.T) {
		req, _ := http.NewRequest("GET", srv.URL+"/status/418", nil)
		resp, _ := get(t, req)
		assert.Equal(t, 418, resp.StatusCode)
		req, _ = http.NewRequest("GET", srv.URL+"/status/abc", nil)
		resp, _ = get(t, req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("delay", func(t *testing.T) {
		req, _ := http.NewRequest("GET", srv.URL+"/delay/10ms", nil)
		resp, _ := get(t, req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
	t.Run("stream", func(t *testing.T) {
		req, _ := http.NewRequest("GET", srv.URL+"/stream-bytes/100?chunk_size=30", nil)
		resp, b := get(t, req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, b, 100)
		assert.Equal(t, "abc", string(b[:3]))
	})
	t.Run("basic auth", func(t *testing.T) {
		req, _ := http.NewRequest("GET", srv.URL+"/basic-auth/u/p", nil)
		resp, _ := get(t, req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, `Basic realm="Fake Realm"`, resp.Header.Get("WWW-Authenticate"))
		req.SetBasicAuth("u", "p")
		resp, b := get(t, req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"authenticated":true,"user":"u"}`, string(b))
	})
	t.Run("digest auth", func(t *testing.T) {
		req, _ := http.NewRequest("GET", srv.URL+"/digest-auth/u/p", nil)
		resp, _ := get(t, req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `nonce="`+DigestNonce+`"`)

		const realm, cnonce, nc = "me@kennethreitz.com", "0a4f113b", "00000001"
		ha1 := md5hex("u:" + realm + ":p")
		ha2 := md5hex("GET:/digest-auth/u/p")
		response := md5hex(ha1 + ":" + DigestNonce + ":" + nc + ":" + cnonce + ":auth:" + ha2)
		req.Header.Set("Authorization", `Digest username="u", realm="`+realm+`", nonce="`+DigestNonce+
			`", uri="/digest-auth/u/p", qop=auth, nc=`+nc+`, cnonce="`+cnonce+`", response="`+response+`"`)
		resp, _ = get(t, req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
	assert.GreaterOrEqual(t, srv.RequestCount(), int64(12))
}

func TestServerTLS(t *testing.T) {
	srv := NewServer(WithHTTP2())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + "/get")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 2, resp.ProtoMajor)
	b, _ := io.ReadAll(resp.Body)
	e, err := DecodeEcho(b)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(e.URL, "https://"))
}

func TestDigestParams(t *testing.T) {
	p := digestParams(`username="a, b", realm="r", qop=auth, nc=00000001`)
	assert.Equal(t, map[string]string{
		"username": "a, b",
		"realm":    "r",
		"qop":      "auth",
		"nc":       "00000001",
	}, p)
	assert.Empty(t, digestParams(""))
}
