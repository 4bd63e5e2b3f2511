// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/gogama/httpflow/timings"
)

// recorder collects phase offsets from the start of a transfer. Trace
// hooks may fire on net/http goroutines, hence the lock.
type recorder struct {
	mu     sync.Mutex
	start  time.Time
	sample timings.Sample
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = time.Now()
	r.sample = timings.Sample{}
}

func (r *recorder) mark(p timings.Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sample[p] = time.Since(r.start)
}

// finish records Total and fills phases a reused connection skipped so
// that the offsets never decrease from one phase to the next.
func (r *recorder) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sample[timings.Total] = time.Since(r.start)
	var prev time.Duration
	for _, p := range timings.Phases() {
		if r.sample[p] < prev {
			r.sample[p] = prev
		}
		prev = r.sample[p]
	}
}

func (r *recorder) snapshot() timings.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sample
}

func (r *recorder) attach(ctx context.Context) context.Context {
	return httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		DNSDone: func(httptrace.DNSDoneInfo) {
			r.mark(timings.NameLookup)
		},
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				r.mark(timings.Connect)
			}
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				r.mark(timings.AppConnect)
			}
		},
		GotConn: func(httptrace.GotConnInfo) {
			r.mark(timings.PreTransfer)
		},
		GotFirstResponseByte: func() {
			r.mark(timings.StartTransfer)
		},
	})
}
