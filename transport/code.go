// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/gogama/httpflow/transient"
)

// A Code classifies the reason a transfer failed. The set of codes
// follows the result codes of classic C transfer libraries so that
// callers can make coarse decisions without inspecting error chains.
type Code int

const (
	// OK means the transfer completed.
	OK Code = iota
	// UnsupportedProtocol means the URL scheme is not http or https.
	UnsupportedProtocol
	// URLMalformat means the URL could not be parsed or has no host.
	URLMalformat
	// CouldNotResolveHost means name resolution failed.
	CouldNotResolveHost
	// CouldNotConnect means no connection to the host or proxy could
	// be established.
	CouldNotConnect
	// OperationTimedout means the session timeout elapsed or the
	// low-speed limit tripped.
	OperationTimedout
	// SSLConnectError means the TLS handshake failed.
	SSLConnectError
	// PeerFailedVerification means the server certificate or host
	// name could not be verified.
	PeerFailedVerification
	// SendError means sending the request failed.
	SendError
	// RecvError means receiving the response failed.
	RecvError
	// WriteError means a header or body sink did not consume all the
	// bytes it was given.
	WriteError
	// AbortedByCallback means the progress sink asked for an abort, or
	// the transfer context was cancelled.
	AbortedByCallback
	// LoginDenied means the server demanded authentication and no
	// usable credentials were available.
	LoginDenied
	// BadFunctionArgument means the session was misused, for example
	// performed twice concurrently or used after release.
	BadFunctionArgument
	// Unknown is any failure not covered above.
	Unknown
	codeSentinel
)

var codeNames = []string{
	"OK",
	"UnsupportedProtocol",
	"URLMalformat",
	"CouldNotResolveHost",
	"CouldNotConnect",
	"OperationTimedout",
	"SSLConnectError",
	"PeerFailedVerification",
	"SendError",
	"RecvError",
	"WriteError",
	"AbortedByCallback",
	"LoginDenied",
	"BadFunctionArgument",
	"Unknown",
}

// String returns the name of the code.
func (c Code) String() string {
	if c < 0 || c >= codeSentinel {
		return fmt.Sprintf("Code(%d)", int(c))
	}
	return codeNames[c]
}

// An Error is a failed transfer. Err is the underlying cause, which
// keeps the *url.Error chain produced by net/http when there is one.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return "transport: " + e.Code.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the transfer failed because it ran out of
// time.
func (e *Error) Timeout() bool {
	return e.Code == OperationTimedout
}

// Aborted reports whether the transfer was stopped on the client side.
func (e *Error) Aborted() bool {
	return e.Code == AbortedByCallback
}

var (
	// ErrAbortedByCallback is the cause recorded when a progress sink
	// returns non-zero.
	ErrAbortedByCallback = errors.New("transport: aborted by callback")
	// ErrBusy is returned when a session is performed while it is
	// already in flight.
	ErrBusy = errors.New("transport: session busy")
	// ErrReleased is returned when a released session is used.
	ErrReleased = errors.New("transport: session released")
	// ErrLowSpeed is the cause recorded when the low-speed limit
	// trips.
	ErrLowSpeed error = lowSpeedError{}

	errTimedOut   = timedOutError{}
	errShortWrite = errors.New("transport: sink consumed fewer bytes than delivered")
)

type lowSpeedError struct{}

func (lowSpeedError) Error() string { return "transport: transfer speed below limit" }
func (lowSpeedError) Timeout() bool { return true }

type timedOutError struct{}

func (timedOutError) Error() string { return "transport: session timeout elapsed" }
func (timedOutError) Timeout() bool { return true }

// An AuthError reports that the server demanded authentication and the
// credentials callback produced none.
type AuthError struct {
	Realm string
	Proxy bool
}

func (e *AuthError) Error() string {
	who := "server"
	if e.Proxy {
		who = "proxy"
	}
	return fmt.Sprintf("transport: no credentials for %s realm %q", who, e.Realm)
}

type phase int

const (
	sending phase = iota
	receiving
)

// classify converts a failure into an *Error. The cause of ctx, when
// set, takes precedence over err because cancelling the transfer
// context surfaces in net/http as a generic context error.
func classify(ctx context.Context, p phase, err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	cause := context.Cause(ctx)
	switch {
	case errors.Is(err, ErrAbortedByCallback) || errors.Is(cause, ErrAbortedByCallback):
		return &Error{Code: AbortedByCallback, Err: err}
	case errors.Is(err, ErrLowSpeed) || errors.Is(cause, ErrLowSpeed):
		return &Error{Code: OperationTimedout, Err: ErrLowSpeed}
	case errors.Is(err, errTimedOut) || errors.Is(cause, errTimedOut) || errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: OperationTimedout, Err: err}
	case errors.Is(err, errShortWrite):
		return &Error{Code: WriteError, Err: err}
	}

	var ae *AuthError
	if errors.As(err, &ae) {
		return &Error{Code: LoginDenied, Err: err}
	}
	var cve *tls.CertificateVerificationError
	var hostErr x509.HostnameError
	var authorityErr x509.UnknownAuthorityError
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &cve) || errors.As(err, &hostErr) || errors.As(err, &authorityErr) || errors.As(err, &invalidErr) {
		return &Error{Code: PeerFailedVerification, Err: err}
	}
	var rhe tls.RecordHeaderError
	var alert tls.AlertError
	if errors.As(err, &rhe) || errors.As(err, &alert) {
		return &Error{Code: SSLConnectError, Err: err}
	}

	switch transient.Categorize(err) {
	case transient.NameResolution:
		return &Error{Code: CouldNotResolveHost, Err: err}
	case transient.ConnRefused:
		return &Error{Code: CouldNotConnect, Err: err}
	case transient.Timeout:
		return &Error{Code: OperationTimedout, Err: err}
	case transient.Aborted:
		return &Error{Code: AbortedByCallback, Err: err}
	case transient.ConnReset:
		return &Error{Code: RecvError, Err: err}
	}

	var oe *net.OpError
	if errors.As(err, &oe) && oe.Op == "dial" {
		return &Error{Code: CouldNotConnect, Err: err}
	}
	var ue *url.Error
	if p == sending && errors.As(err, &ue) {
		return &Error{Code: SendError, Err: err}
	}
	if p == receiving {
		return &Error{Code: RecvError, Err: err}
	}
	return &Error{Code: Unknown, Err: err}
}
