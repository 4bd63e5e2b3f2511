// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package httpflow provides an HTTP client engine in which every request
is an object with an explicit lifecycle that can be executed once,
either synchronously or asynchronously on an event loop.

Create a Client, then create and execute requests.

	client := &httpflow.Client{}
	req, err := client.Get(request.FromURI("https://www.example.com"))
	...
	resp, err := req.Execute(nil, nil)
	...
	req, err := client.Post(request.FromURI("https://www.example.com/upload"),
		"application/json", buf)
	...
	req, err := client.PostForm(request.FromURI("http://example.com/form"),
		url.Values{"key": {"Value"}, "id": {"123"}})

A request starts Ready, becomes Active when an execution starts, and
is Done once the execution ends, whatever the outcome. Executing it a
second time fails with ErrAlreadyActive. While it is Active, the
transfer can be paused and resumed from any goroutine.

Asynchronous executions report back through a request.Handler. Their
callbacks run on the goroutine that calls Client.Run:

	h := request.Handler{}.
		WithResponse(func(r *request.Response) { ... }).
		WithError(func(err error) { ... })
	err := req.AsyncExecute(h, nil)
	...
	go client.Run()
	...
	client.Stop()

For control over how the client performs transfers, use a custom
engine from package transport:

	engine, err := transport.NewEngine(
		transport.WithHTTP2(),
		transport.WithThrottle(50, 10),
	)
	client := &httpflow.Client{
		Engine: engine,
	}

For control over request timeouts, set a custom timeout policy using
package timeout:

	client := &httpflow.Client{
		TimeoutPolicy: timeout.Fixed(10*time.Second),
	}

To hook into the client's request execution logic, install a handler
into the appropriate handler chain. Package observability provides
ready-made logging, tracing and metrics handlers.

	handlers := &httpflow.HandlerGroup{}
	handlers.PushBack(httpflow.AfterExecutionEnd, httpflow.HandlerFunc(
		func(_ httpflow.Event, e *request.Execution) {
			log.Printf("%s %s took %s", e.Method, e.URI, e.Duration())
		}),
	)
	client := &httpflow.Client{
		Handlers: handlers,
	}

Package httpflow provides basic interfaces for each method of the
client (Requester, Getter, Header, Deleter, Putter, Poster, FormPoster,
Runner, Timer and Escaper); a combined interface that composes them all
(Factory); and utility functions for working with a Requester (Inflate,
Get, Head, Delete, Put, Post and PostForm).
*/
package httpflow
