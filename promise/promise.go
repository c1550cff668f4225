// Package promise implements a generic, thread-safe future with the
// ordering guarantees the asynchronous provider core relies on: completion
// callbacks fire in insertion order, one at a time, and never in the same
// call stack as the settling resolve/reject — always deferred to a main,
// UI-like executor one event-turn later.
package promise

import (
	"errors"
	"sync"
	"time"
)

// ErrGeneric is the error stored when Reject is called with a nil error.
var ErrGeneric = errors.New("promise: rejected with no specific error")

// Null is the sentinel value a Promise[any] stores when Resolve is called
// with a nil payload, distinguishing "resolved with nothing" from a
// zero-value result that happens to be nil for other reasons.
var Null = &struct{ name string }{name: "null"}

// Executor dispatches a callback outside the caller's current call stack.
// The default executor is a single-worker FIFO queue, which is sufficient
// to guarantee both ordering and non-reentrancy; a host program may supply
// its own (e.g. a real UI main-thread dispatcher) via WithExecutor.
type Executor interface {
	Post(fn func())
}

// queueExecutor runs every posted function on one background goroutine, in
// the order it was posted, which is exactly the ordering promises need
// across independent producers sharing the executor.
type queueExecutor struct {
	queue chan func()
}

// NewQueueExecutor starts a single-worker FIFO executor. Callers that never
// need a custom Executor can just use DefaultExecutor.
func NewQueueExecutor() Executor {
	e := &queueExecutor{queue: make(chan func(), 256)}
	go e.run()
	return e
}

func (e *queueExecutor) run() {
	for fn := range e.queue {
		fn()
	}
}

func (e *queueExecutor) Post(fn func()) {
	e.queue <- fn
}

// DefaultExecutor is used by every Promise constructed without an explicit
// Executor.
var DefaultExecutor = NewQueueExecutor()

type state int

const (
	pending state = iota
	resolvedState
	rejectedState
)

// Promise is exactly one of {pending, resolved(T), rejected(error)}, and
// transitions at most once, only pending->resolved or pending->rejected.
type Promise[T any] struct {
	mu        sync.Mutex
	st        state
	value     T
	err       error
	callbacks []func(T, error)
	executor  Executor
}

// New constructs a Promise, invoking setup synchronously on the caller's
// goroutine. setup must call resolve or reject exactly once; subsequent
// calls are ignored.
func New[T any](setup func(resolve func(T), reject func(error))) *Promise[T] {
	return NewWithExecutor[T](DefaultExecutor, setup)
}

// NewWithExecutor is New with an explicit completion-callback Executor.
func NewWithExecutor[T any](executor Executor, setup func(resolve func(T), reject func(error))) *Promise[T] {
	p := &Promise[T]{executor: executor}
	setup(p.resolve, p.reject)
	return p
}

// Resolved returns an already-settled, successful Promise.
func Resolved[T any](value T) *Promise[T] {
	return New(func(resolve func(T), _ func(error)) { resolve(value) })
}

// Rejected returns an already-settled, failed Promise.
func Rejected[T any](err error) *Promise[T] {
	return New(func(_ func(T), reject func(error)) { reject(err) })
}

func (p *Promise[T]) resolve(value T) {
	p.mu.Lock()
	if p.st != pending {
		p.mu.Unlock()
		return
	}
	p.st = resolvedState
	if null, ok := any(Null).(T); ok && any(value) == nil {
		value = null
	}
	p.value = value
	callbacks := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()

	for _, cb := range callbacks {
		p.dispatch(cb)
	}
}

func (p *Promise[T]) reject(err error) {
	if err == nil {
		err = ErrGeneric
	}
	p.mu.Lock()
	if p.st != pending {
		p.mu.Unlock()
		return
	}
	p.st = rejectedState
	p.err = err
	callbacks := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()

	for _, cb := range callbacks {
		p.dispatch(cb)
	}
}

func (p *Promise[T]) dispatch(cb func(T, error)) {
	p.mu.Lock()
	value, err := p.value, p.err
	p.mu.Unlock()
	p.executor.Post(func() { cb(value, err) })
}

// OnCompletion registers cb to run once this Promise settles. Callbacks
// added to a pending Promise are retained FIFO; callbacks added after
// settlement are still dispatched through the executor, never inline.
func (p *Promise[T]) OnCompletion(cb func(value T, err error)) {
	p.mu.Lock()
	if p.st == pending {
		p.callbacks = append(p.callbacks, cb)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.dispatch(cb)
}

// Complete reports whether the Promise has settled (resolved or rejected).
func (p *Promise[T]) Complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st != pending
}

// Result returns the current value and error. Both are zero/nil while
// pending.
func (p *Promise[T]) Result() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// All fulfills with the ordered results once every child Promise resolves;
// it rejects with the first rejection observed (not necessarily the first
// index).
func All[T any](promises []*Promise[T]) *Promise[[]T] {
	return New(func(resolve func([]T), reject func(error)) {
		if len(promises) == 0 {
			resolve(nil)
			return
		}

		var mu sync.Mutex
		results := make([]T, len(promises))
		remaining := len(promises)
		settled := false

		for i, child := range promises {
			i := i
			child.OnCompletion(func(value T, err error) {
				mu.Lock()
				defer mu.Unlock()
				if settled {
					return
				}
				if err != nil {
					settled = true
					reject(err)
					return
				}
				results[i] = value
				remaining--
				if remaining == 0 {
					settled = true
					resolve(results)
				}
			})
		}
	})
}

// Timer resolves with Null after d elapses.
func Timer(d time.Duration) *Promise[any] {
	return New(func(resolve func(any), _ func(error)) {
		go func() {
			time.Sleep(d)
			resolve(Null)
		}()
	})
}
