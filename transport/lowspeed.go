// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"sync/atomic"
	"time"
)

// watchdog cancels a transfer whose average speed stays below limit
// bytes per second for window. Time spent paused does not count.
type watchdog struct {
	limit  int64
	window time.Duration
	tick   time.Duration
	bytes  atomic.Int64
	gate   *gate
}

func newWatchdog(limit int64, window time.Duration, g *gate) *watchdog {
	tick := time.Second
	if window < tick {
		tick = window
	}
	return &watchdog{limit: limit, window: window, tick: tick, gate: g}
}

func (w *watchdog) add(n int) {
	w.bytes.Add(int64(n))
}

// run blocks until ctx is done or the limit trips, in which case it
// cancels the transfer with ErrLowSpeed.
func (w *watchdog) run(ctx context.Context, cancel context.CancelCauseFunc) {
	t := time.NewTicker(w.tick)
	defer t.Stop()
	var last int64
	below := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			cur := w.bytes.Load()
			delta := cur - last
			last = cur
			if w.gate.isPaused() {
				below = now
				continue
			}
			speed := float64(delta) / w.tick.Seconds()
			if speed >= float64(w.limit) {
				below = now
				continue
			}
			if now.Sub(below) >= w.window {
				cancel(ErrLowSpeed)
				return
			}
		}
	}
}
