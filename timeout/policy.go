// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"math"
	"strings"
	"time"

	"github.com/gogama/httpflow/request"
)

// A Policy defines a timeout policy which may be plugged into the
// client (httpflow.Client) to choose the default upper bound on the
// total wall time of a request. A request whose timeout is set
// explicitly with SetTimeout does not consult the policy.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
type Policy interface {
	// Timeout returns the timeout for a request being created with the
	// given HTTP method and configuration. A return value of zero or
	// less means no timeout.
	Timeout(method string, c *request.Configuration) time.Duration
}

// MaxTimeout is the largest timeout the transport can represent, the
// maximum signed 32-bit count of milliseconds (roughly 24.8 days).
const MaxTimeout = time.Duration(math.MaxInt32) * time.Millisecond

// DefaultPolicy is the default timeout policy. Requests do not time out
// unless a timeout is configured.
var DefaultPolicy Policy = Infinite

// Infinite is a built-in timeout policy which never times out. After
// saturation its value becomes MaxTimeout.
var Infinite Policy = Fixed(math.MaxInt64)

// Fixed constructs a timeout policy that returns d for every request.
func Fixed(d time.Duration) Policy {
	return fixed(d)
}

type fixed time.Duration

func (f fixed) Timeout(_ string, _ *request.Configuration) time.Duration {
	return time.Duration(f)
}

// ByMethod constructs a timeout policy that looks up the request
// method, case-insensitively, in overrides and falls back to usual when
// the method has no override.
//
// For example, the following policy allows uploads more time than
// other requests:
//
//	p := timeout.ByMethod(10*time.Second, map[string]time.Duration{
//		"PUT":  5 * time.Minute,
//		"POST": time.Minute,
//	})
func ByMethod(usual time.Duration, overrides map[string]time.Duration) Policy {
	m := make(byMethod, len(overrides)+1)
	for k, v := range overrides {
		m[strings.ToUpper(k)] = v
	}
	m[""] = usual
	return m
}

type byMethod map[string]time.Duration

func (p byMethod) Timeout(method string, _ *request.Configuration) time.Duration {
	if d, ok := p[strings.ToUpper(method)]; ok && method != "" {
		return d
	}
	return p[""]
}

// Saturate clamps d into the range the transport can represent. Values
// of zero or less become zero, meaning no timeout; values above
// MaxTimeout become MaxTimeout rather than overflowing.
func Saturate(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}
