// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpflow

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gogama/httpflow/transient"
	"github.com/gogama/httpflow/transport"
)

var (
	// ErrAlreadyActive is returned by Execute, AsyncExecute, SetTimeout
	// and AbortRequestIf when the request has left the Ready state. The
	// failed call has no effect.
	ErrAlreadyActive = errors.New("httpflow: request already active")

	// ErrNotActive is returned by Pause and Resume when the request is
	// not Active.
	ErrNotActive = errors.New("httpflow: request not active")

	errCallbackPanicked = errors.New("httpflow: callback panicked")
)

// A MethodNotSupportedError is returned when the transport cannot
// perform the requested method. It is raised before any transport
// resource is used.
type MethodNotSupportedError struct {
	Method string
}

func (e *MethodNotSupportedError) Error() string {
	return fmt.Sprintf("httpflow: method %q not supported", e.Method)
}

// A TransportError reports a failed transfer: name resolution,
// connection, TLS, protocol, timeout, or an abort requested by a
// progress handler.
type TransportError struct {
	Method string
	URL    string
	Code   transport.Code
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %q: %s", urlErrorOp(e.Method), e.URL, causeText(e.Err))
}

// causeText formats err, eliding the method and URL of a wrapped
// *url.Error since TransportError already prints them.
func causeText(err error) string {
	var te *transport.Error
	if errors.As(err, &te) {
		var ue *url.Error
		if errors.As(te.Err, &ue) {
			return "transport: " + te.Code.String() + ": " + ue.Err.Error()
		}
		return te.Error()
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	return err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the transfer ran out of time.
func (e *TransportError) Timeout() bool {
	return e.Code == transport.OperationTimedout
}

// Category returns the transience category of the failure.
func (e *TransportError) Category() transient.Category {
	return transient.Categorize(e.Err)
}

// An AuthenticationError reports that the server or proxy demanded
// authentication and the configured handler produced no credentials.
type AuthenticationError struct {
	Realm string
	Proxy bool
	Err   error
}

func (e *AuthenticationError) Error() string {
	who := "server"
	if e.Proxy {
		who = "proxy"
	}
	return fmt.Sprintf("httpflow: no credentials for %s realm %q", who, e.Realm)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

func wrapTransportError(method, url string, err error) error {
	var te *transport.Error
	if !errors.As(err, &te) {
		te = &transport.Error{Code: transport.Unknown, Err: err}
	}
	var ae *transport.AuthError
	if errors.As(te, &ae) {
		return &AuthenticationError{Realm: ae.Realm, Proxy: ae.Proxy, Err: te}
	}
	return &TransportError{Method: method, URL: url, Code: te.Code, Err: te}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
