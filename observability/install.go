// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package observability

import (
	"net/url"

	"github.com/gogama/httpflow"
)

// Install adds h to the back of every event chain of g.
func Install(g *httpflow.HandlerGroup, h httpflow.Handler) {
	for _, evt := range httpflow.Events() {
		g.PushBack(evt, h)
	}
}

// host returns the host of uri, or the empty string.
func host(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Host
}
