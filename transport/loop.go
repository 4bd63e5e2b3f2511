// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrLoopRunning is returned by Run when another goroutine is already
// running the loop.
var ErrLoopRunning = errors.New("transport: loop already running")

// A Loop drives asynchronous sessions. Transfers run on their own
// goroutines but every sink call is handed to the goroutine inside Run,
// so user callbacks never run concurrently with each other.
//
// The zero value is not usable; create loops with NewLoop.
type Loop struct {
	logger *zap.Logger
	sem    *semaphore.Weighted

	mu     sync.Mutex
	queue  []*task
	notify chan struct{}
	stop   chan struct{}

	running atomic.Bool
	pending atomic.Int64
}

// A LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithMaxConcurrent bounds the number of transfers in flight at once.
// Further sessions wait for a slot; the wait counts against their
// timeout.
func WithMaxConcurrent(n int64) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithLoopLogger sets the logger used to report callback panics.
func WithLoopLogger(logger *zap.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop returns an idle loop.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		logger: zap.NewNop(),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add starts the transfer of s and returns immediately. The finished
// sink of s fires on the loop goroutine once the transfer is over.
// Every option and sink of s must be set before Add is called.
func (l *Loop) Add(ctx context.Context, s *Session) error {
	if s.released.Load() {
		return &Error{Code: BadFunctionArgument, Err: ErrReleased}
	}
	if !s.busy.CompareAndSwap(false, true) {
		return &Error{Code: BadFunctionArgument, Err: ErrBusy}
	}
	s.dispatch = l.dispatch
	if l.sem != nil {
		s.acquire = l.acquire
	}
	l.pending.Add(1)
	go func() {
		defer l.pending.Add(-1)
		_ = s.run(ctx)
	}()
	return nil
}

// Pending returns the number of transfers added and not yet finished.
func (l *Loop) Pending() int64 {
	return l.pending.Load()
}

// Run dispatches sink calls on the calling goroutine until Stop is
// called. A Stop that arrives before Run makes Run return immediately.
// Run may be called again after it returns.
func (l *Loop) Run() error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)
	for {
		select {
		case <-l.stop:
			return nil
		default:
		}
		select {
		case <-l.stop:
			return nil
		case <-l.notify:
			for t := l.next(); t != nil; t = l.next() {
				t.run(l.logger)
				select {
				case <-l.stop:
					return nil
				default:
				}
			}
		}
	}
}

// Stop makes the current or next Run return. Queued work stays queued
// for a later Run.
func (l *Loop) Stop() {
	select {
	case l.stop <- struct{}{}:
	default:
	}
}

func (l *Loop) acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}

func (l *Loop) enqueue(t *task) {
	l.mu.Lock()
	l.queue = append(l.queue, t)
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *Loop) next() *task {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	t := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	if len(l.queue) > 0 {
		// Keep a wakeup for the rest in case Run returns early.
		select {
		case l.notify <- struct{}{}:
		default:
		}
	}
	return t
}

// dispatch runs fn on the loop goroutine and waits for it. If ctx ends
// before fn has started, fn is skipped and the cause is returned.
func (l *Loop) dispatch(ctx context.Context, fn func()) error {
	t := &task{fn: fn, done: make(chan struct{})}
	l.enqueue(t)
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		if t.state.CompareAndSwap(taskPending, taskSkipped) {
			return context.Cause(ctx)
		}
		<-t.done
		return nil
	}
}

const (
	taskPending int32 = iota
	taskRunning
	taskSkipped
)

type task struct {
	fn    func()
	state atomic.Int32
	done  chan struct{}
}

func (t *task) run(logger *zap.Logger) {
	if !t.state.CompareAndSwap(taskPending, taskRunning) {
		return
	}
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in transfer callback", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	t.fn()
}
