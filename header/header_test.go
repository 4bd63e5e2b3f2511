// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package header

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalKey(t *testing.T) {
	testCases := []struct {
		in, out string
	}{
		{"", ""},
		{"accept-encoding", "Accept-Encoding"},
		{"Accept-Encoding", "Accept-Encoding"},
		{"aCcEpT-eNcOdInG", "Accept-Encoding"},
		{"x-", "X-"},
		{"-x", "-X"},
		{"etag", "Etag"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.in, func(t *testing.T) {
			assert.Equal(t, testCase.out, CanonicalKey(testCase.in))
			assert.Equal(t, testCase.out, CanonicalKey(CanonicalKey(testCase.in)))
		})
	}
}

func TestHeader(t *testing.T) {
	t.Run("zero value", testHeaderZeroValue)
	t.Run("add", testHeaderAdd)
	t.Run("set", testHeaderSet)
	t.Run("remove", testHeaderRemove)
	t.Run("order", testHeaderOrder)
	t.Run("clone", testHeaderClone)
	t.Run("http", testHeaderHTTP)
}

func testHeaderZeroValue(t *testing.T) {
	var h Header
	assert.False(t, h.Has("Foo"))
	assert.Equal(t, "", h.Get("Foo"))
	assert.Nil(t, h.Values("Foo"))
	assert.Equal(t, 0, h.Len())
	h.Remove("Foo")
	h.RemoveValue("Foo", "bar")
	h.Add("Foo", "bar")
	assert.True(t, h.Has("foo"))

	var n *Header
	assert.False(t, n.Has("Foo"))
	assert.Equal(t, 0, n.Len())
	assert.Equal(t, 0, n.Clone().Len())
}

func testHeaderAdd(t *testing.T) {
	h := New()
	h.Add("Accept-Encoding", "utf8")
	assert.True(t, h.Has("Accept-Encoding"))
	assert.True(t, h.HasValue("Accept-Encoding", "utf8"))
	h.Add("accept-encoding", "utf16")
	assert.True(t, h.HasValue("Accept-Encoding", "utf8"))
	assert.True(t, h.HasValue("Accept-Encoding", "utf16"))
	assert.Equal(t, []string{"utf8", "utf16"}, h.Values("ACCEPT-ENCODING"))
	assert.Equal(t, "utf8", h.Get("Accept-Encoding"))
	assert.Equal(t, 1, h.Len())
}

func testHeaderSet(t *testing.T) {
	h := New()
	h.Add("Accept-Encoding", "utf8")
	h.Add("Accept-Encoding", "utf32")
	h.Set("Accept-Encoding", "utf16")
	assert.True(t, h.Has("Accept-Encoding"))
	assert.False(t, h.HasValue("Accept-Encoding", "utf8"))
	assert.True(t, h.HasValue("Accept-Encoding", "utf16"))
	assert.Equal(t, []string{"utf16"}, h.Values("Accept-Encoding"))
	h.Set("Host", "example.com")
	assert.Equal(t, []string{"Accept-Encoding", "Host"}, h.Names())
}

func testHeaderRemove(t *testing.T) {
	h := New()
	h.Add("Accept-Encoding", "utf8")
	h.Add("Accept-Encoding", "utf16")
	h.RemoveValue("Accept-Encoding", "utf8")
	assert.True(t, h.Has("Accept-Encoding"))
	assert.False(t, h.HasValue("Accept-Encoding", "utf8"))
	h.RemoveValue("Accept-Encoding", "utf16")
	assert.True(t, h.Has("Accept-Encoding"))
	assert.Empty(t, h.Values("Accept-Encoding"))
	h.Remove("accept-encoding")
	assert.False(t, h.Has("Accept-Encoding"))
	assert.Empty(t, h.Names())
	h.Remove("Not-There")
}

func testHeaderOrder(t *testing.T) {
	h := New()
	h.Add("Server", "a")
	h.Add("Date", "b")
	h.Add("Set-Cookie", "c=1")
	h.Add("server", "d")
	h.Add("Set-Cookie", "e=2")

	type field struct {
		Name   string
		Values []string
	}
	var got []field
	h.Enumerate(func(name string, values []string) {
		got = append(got, field{name, values})
	})
	want := []field{
		{"Server", []string{"a", "d"}},
		{"Date", []string{"b"}},
		{"Set-Cookie", []string{"c=1", "e=2"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Enumerate mismatch (-want +got):\n%s", diff)
	}
}

func testHeaderClone(t *testing.T) {
	h := New()
	h.Add("A", "1")
	h.Add("B", "2")
	c := h.Clone()
	c.Add("A", "3")
	c.Remove("B")
	assert.Equal(t, []string{"1"}, h.Values("A"))
	assert.True(t, h.Has("B"))
	assert.Equal(t, []string{"1", "3"}, c.Values("A"))
	assert.Equal(t, []string{"A"}, c.Names())
}

func testHeaderHTTP(t *testing.T) {
	h := New()
	h.Add("content-type", "text/plain")
	h.Add("X-Multi", "1")
	h.Add("X-Multi", "2")
	hh := h.HTTP()
	assert.Equal(t, http.Header{
		"Content-Type": {"text/plain"},
		"X-Multi":      {"1", "2"},
	}, hh)

	back := FromHTTP(hh)
	assert.Equal(t, []string{"Content-Type", "X-Multi"}, back.Names())
	assert.Equal(t, []string{"1", "2"}, back.Values("x-multi"))
}

func TestParseLine(t *testing.T) {
	testCases := []struct {
		name      string
		fragment  string
		wantName  string
		wantValue string
		wantOK    bool
	}{
		{"simple", "Name: value\r\n", "Name", "value", true},
		{"empty value", "Name:\r\n", "Name", "", true},
		{"no space", "Name:value\r\n", "Name", "value", true},
		{"extra whitespace", "Name: \t  value\r\n", "Name", "value", true},
		{"trailing whitespace kept", "Name: value \r\n", "Name", "value ", true},
		{"bare newline", "Name: value\n", "Name", "value", true},
		{"no terminator", "Name: value", "Name", "value", true},
		{"colon in value", "Location: http://x/y\r\n", "Location", "http://x/y", true},
		{"status line", "HTTP/1.1 200 OK\r\n", "", "", false},
		{"blank line", "\r\n", "", "", false},
		{"empty", "", "", "", false},
		{"leading colon", ":authority: x\r\n", "", "", false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			n, v, ok := ParseLine([]byte(testCase.fragment))
			assert.Equal(t, testCase.wantOK, ok)
			assert.Equal(t, testCase.wantName, n)
			assert.Equal(t, testCase.wantValue, v)
		})
	}
}

func TestHeader_AddLine(t *testing.T) {
	h := New()
	assert.False(t, h.AddLine([]byte("HTTP/1.1 200 OK\r\n")))
	assert.True(t, h.AddLine([]byte("Name: value\r\n")))
	assert.True(t, h.AddLine([]byte("Name:\r\n")))
	assert.True(t, h.AddLine([]byte("Other: x\r\n")))
	assert.False(t, h.AddLine([]byte("no colon here\r\n")))
	assert.False(t, h.AddLine([]byte("\r\n")))

	assert.Equal(t, []string{"value", ""}, h.Values("Name"))
	assert.Equal(t, []string{"Name", "Other"}, h.Names())
}
