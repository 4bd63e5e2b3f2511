// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package timings aggregates per-phase transfer timings over many
// completed requests using constant memory.
package timings

import (
	"math"
	"sync"
	"time"
)

// A Phase identifies one measured phase of a request transfer. Each
// phase is measured as the offset from the start of the transfer until
// the phase completed, so the offsets of a sample never decrease in
// phase order. Phases a reused connection skips take the value of the
// phase before them.
type Phase int

const (
	// NameLookup is the time until name resolution completed.
	NameLookup Phase = iota
	// Connect is the time until the TCP connection to the remote host
	// (or proxy) was established.
	Connect
	// AppConnect is the time until the TLS handshake completed. For
	// plain-text connections it equals Connect.
	AppConnect
	// PreTransfer is the time until the request was about to be sent.
	PreTransfer
	// StartTransfer is the time until the first response byte arrived.
	StartTransfer
	// Total is the total transfer time.
	Total
	phaseSentinel

	numPhases = int(phaseSentinel)
)

var phaseNames = []string{
	"NameLookup",
	"Connect",
	"AppConnect",
	"PreTransfer",
	"StartTransfer",
	"Total",
}

// Phases returns every phase in transfer order.
func Phases() []Phase {
	return []Phase{NameLookup, Connect, AppConnect, PreTransfer, StartTransfer, Total}
}

// Name returns the name of the phase.
func (p Phase) Name() string {
	return phaseNames[int(p)]
}

// String returns the name of the phase.
func (p Phase) String() string {
	return p.Name()
}

// A Sample holds the phase durations measured for one transfer.
type Sample [numPhases]time.Duration

// Get returns the duration recorded for phase p.
func (s Sample) Get(p Phase) time.Duration {
	return s[p]
}

// Statistics summarizes the durations observed for a single phase.
//
// Variance is the population variance, in seconds squared. When Count
// is zero every other field is zero.
type Statistics struct {
	Count    int64
	Max      time.Duration
	Min      time.Duration
	Mean     time.Duration
	Variance float64
}

// Timings is a snapshot of the statistics of every phase.
type Timings struct {
	NameLookup    Statistics
	Connect       Statistics
	AppConnect    Statistics
	PreTransfer   Statistics
	StartTransfer Statistics
	Total         Statistics
}

// Get returns the statistics for phase p.
func (t Timings) Get(p Phase) Statistics {
	switch p {
	case NameLookup:
		return t.NameLookup
	case Connect:
		return t.Connect
	case AppConnect:
		return t.AppConnect
	case PreTransfer:
		return t.PreTransfer
	case StartTransfer:
		return t.StartTransfer
	case Total:
		return t.Total
	default:
		panic("timings: invalid phase")
	}
}

// An Accumulator maintains running statistics over a stream of
// observations using Welford's algorithm. The zero value is ready to
// use. An Accumulator is not safe for concurrent use.
type Accumulator struct {
	n        int64
	mean, m2 float64
	min, max float64
}

// Add records one observation, in seconds.
func (a *Accumulator) Add(x float64) {
	a.n++
	if a.n == 1 {
		a.min, a.max = x, x
	} else {
		a.min = math.Min(a.min, x)
		a.max = math.Max(a.max, x)
	}
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

// Statistics returns the current summary.
func (a *Accumulator) Statistics() Statistics {
	if a.n == 0 {
		return Statistics{}
	}
	return Statistics{
		Count:    a.n,
		Max:      seconds(a.max),
		Min:      seconds(a.min),
		Mean:     seconds(a.mean),
		Variance: a.m2 / float64(a.n),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// An Aggregator accumulates samples from many transfers. It is safe for
// concurrent use; every Update is committed as a single step, so a
// concurrent Snapshot never observes a partially applied sample.
type Aggregator struct {
	mu  sync.RWMutex
	acc [numPhases]Accumulator
}

// Update folds one sample into the running statistics.
func (g *Aggregator) Update(s Sample) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.acc {
		g.acc[i].Add(s[i].Seconds())
	}
}

// Snapshot returns the current statistics of every phase.
func (g *Aggregator) Snapshot() Timings {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Timings{
		NameLookup:    g.acc[NameLookup].Statistics(),
		Connect:       g.acc[Connect].Statistics(),
		AppConnect:    g.acc[AppConnect].Statistics(),
		PreTransfer:   g.acc[PreTransfer].Statistics(),
		StartTransfer: g.acc[StartTransfer].Statistics(),
		Total:         g.acc[Total].Statistics(),
	}
}
