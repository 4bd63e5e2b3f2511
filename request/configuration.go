// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/gogama/httpflow/header"
)

const nilCtxMsg = "httpflow/request: nil context"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Credentials is a username and password pair.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether both the username and the password are empty.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}

// An AuthenticationHandler produces credentials for the realm named in
// an authentication challenge. Returning empty credentials fails the
// execution with an authentication error.
type AuthenticationHandler func(realm string) Credentials

// Auth holds the authentication callbacks of a Configuration.
type Auth struct {
	// ForHTTP answers 401 challenges from the origin server.
	ForHTTP AuthenticationHandler
	// ForProxy answers 407 challenges from a plain HTTP proxy.
	ForProxy AuthenticationHandler
}

// SSL holds the TLS verification switches of a Configuration. The zero
// value verifies everything.
type SSL struct {
	// SkipVerifyPeer disables verification of the server certificate
	// chain, and with it the host name check.
	SkipVerifyPeer bool
	// SkipVerifyHost disables only the check that the certificate was
	// issued for the requested host.
	SkipVerifyHost bool
}

// A Configuration describes the target of a request. It is read when
// the request is created and never modified afterwards.
type Configuration struct {
	// URI is the absolute http or https URL to request.
	URI string `validate:"required,url"`

	// Header holds header fields sent with the request. It may be nil.
	Header *header.Header

	Auth Auth
	SSL  SSL

	ctx context.Context
}

// FromURI returns a configuration for uri with no header overrides.
func FromURI(uri string) Configuration {
	return Configuration{URI: uri}
}

// Context returns the configuration's context. It defaults to the
// background context.
func (c *Configuration) Context() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

// WithContext returns a copy of c whose context is ctx. Cancelling ctx
// aborts an execution of any request created from the copy.
func (c Configuration) WithContext(ctx context.Context) Configuration {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	c.ctx = ctx
	return c
}

// Validate checks that the URI is present and well formed.
func (c *Configuration) Validate() error {
	return validatorInstance().Struct(c)
}
