// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies errors raised while performing an HTTP
// transfer into a small set of categories. The transport uses the
// category to pick a result code, and observability handlers use it to
// bucket error metrics.
//
// Package transient depends only on the standard library.
package transient
