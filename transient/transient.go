// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transient

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// A Category is the category of a particular transfer error, as
// reported by Categorize.
//
// The category Not means the error fits none of the other categories.
type Category int

const (
	// Not indicates an error that fits no other category.
	Not Category = iota
	// Timeout indicates a client-side timeout: the configured request
	// timeout elapsed, a low-speed limit tripped, or a network
	// operation timed out.
	//
	// Categorize returns Timeout if the error or any of its wrapped
	// causes has a Timeout() function that reports true.
	Timeout
	// ConnRefused indicates the remote host refused the connection,
	// corresponding to the POSIX error code ECONNREFUSED.
	ConnRefused
	// ConnReset indicates the remote host reset a previously active
	// TCP connection, corresponding to the POSIX error code ECONNRESET.
	ConnReset
	// NameResolution indicates the host name could not be resolved.
	//
	// Categorize returns NameResolution if the error or any of its
	// wrapped causes is a *net.DNSError that is not a timeout.
	NameResolution
	// Aborted indicates the transfer was deliberately stopped on the
	// client side, either by a callback asking for abort or by
	// cancellation of the transfer context.
	//
	// Categorize returns Aborted if the error or any of its wrapped
	// causes has an Aborted() function that reports true, or is
	// context.Canceled.
	Aborted
)

var categoryNames = []string{
	"Not",
	"Timeout",
	"ConnRefused",
	"ConnReset",
	"NameResolution",
	"Aborted",
}

// String returns the name of the category.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "Category(?)"
	}
	return categoryNames[c]
}

// Categorize returns the category of the given error. A nil error, and
// an error that fits no specific category, both produce Not.
//
// Categorize looks at wrapped cause errors contained within err, not
// just err itself. Timeout takes precedence over every other category.
func Categorize(err error) Category {
	if err == nil {
		return Not
	}

	var hasTimeout hasTimeout
	if errors.As(err, &hasTimeout) && hasTimeout.Timeout() {
		return Timeout
	}

	var hasAborted hasAborted
	if errors.As(err, &hasAborted) && hasAborted.Aborted() {
		return Aborted
	}
	if errors.Is(err, context.Canceled) {
		return Aborted
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NameResolution
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if errno == syscall.ECONNRESET {
			return ConnReset
		} else if errno == syscall.ECONNREFUSED {
			return ConnRefused
		}
	}

	return Not
}

type hasTimeout interface {
	Timeout() bool
}

type hasAborted interface {
	Aborted() bool
}
