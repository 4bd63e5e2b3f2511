// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package transport is the transfer engine underneath httpflow. It owns
everything that touches the network: building the net/http client,
sending one request per Session, streaming the response back through
registered sinks, and driving many sessions from a single Loop.

An Engine is long-lived and shared. It hands out sessions:

	eng, err := transport.NewEngine(transport.WithHTTP2(), transport.WithThrottle(50, 10))
	...
	s := eng.NewSession()
	defer eng.Release(s)
	s.SetMethod("GET")
	s.SetURL("https://example.com")
	s.OnBody(func(p []byte) int { buf.Write(p); return len(p) })
	err = s.Perform(ctx)

Sinks receive data incrementally. The header sink is called once per
raw header line, starting with the status line and ending with a blank
line. The body sink is called once per chunk read from the wire. A sink
that returns a count different from the length it was given stops the
transfer with WriteError. The progress sink returns zero to continue
and any other value to abort with AbortedByCallback.

A Loop runs sessions asynchronously. Add starts the transfer on its own
goroutine and returns at once; every sink of that session, including
the finished sink, is then invoked on the goroutine that called Run.
*/
package transport
