// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the data model shared by httpflow clients,
requests and event handlers.

Configuration describes what to fetch: a URI, header overrides,
authentication callbacks, TLS verification switches and a context. It
is an immutable input to the client's factory methods:

	cfg := request.FromURI("https://example.com/items")
	cfg.Header = header.New()
	cfg.Header.Set("Accept", "application/json")
	r, err := client.Get(cfg)

Handler collects the optional callbacks of an asynchronous execution.
Handlers are values and their builder methods return modified copies:

	h := request.Handler{}.
		WithResponse(func(resp *request.Response) { ... }).
		WithError(func(err error) { ... })

Response is the immutable result of a successful execution, and
Execution is the record of one execution handed to event handlers.
*/
package request
