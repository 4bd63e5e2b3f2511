// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package timeout defines policies for choosing the total execution
// timeout of a request when the caller has not set one explicitly, and
// the saturation rule applied before a timeout is handed to the
// transport.
package timeout
