// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package header provides an ordered, multi-valued HTTP header store and
the incremental line parser used to fill it while response headers
stream in from the transport.

Header names are canonicalized on every operation, so lookups are
case-insensitive:

	h := header.New()
	h.Add("accept-encoding", "gzip")
	h.Has("Accept-Encoding") // true

Unlike http.Header from package net/http, a Header remembers the order
in which names were first received, and Enumerate visits them in that
order.

Headers received from a transport arrive one raw line at a time. Use
AddLine to parse and store such a fragment; lines that are not headers
(the status line and the blank separator line) are ignored.
*/
package header
