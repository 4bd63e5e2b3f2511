// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package httpflowtest provides utilities for testing code built on
package httpflow.

Server is an in-process echo server in the style of httpbin.org. It
answers /get, /post, /put, /delete and /anything with a JSON document
describing the request it received, and provides routes for status
codes, delays, streamed bodies and basic or digest authentication:

	srv := httpflowtest.NewServer()
	defer srv.Close()
	req, _ := client.Get(request.FromURI(srv.URL + "/get?a=1"))
	resp, _ := req.Execute(nil, nil)
	echo, _ := httpflowtest.DecodeEcho(resp.Body)

MockFactory and MockRequest are testify mocks implementing
httpflow.Factory and httpflow.Request, for testing code that accepts
those interfaces without doing any network I/O.
*/
package httpflowtest
