// Package batch drains a list of work items through a capped number of
// concurrent operations. Items are admitted in waves: at most MaxParallel
// operations are launched together and the whole wave is joined before the
// next one starts. A failing item never cancels its siblings.
package batch

import (
	"fmt"
	"sync"
)

// Launcher runs the operation for a single item.
type Launcher[T any] func(item T) error

// Scheduler runs items in waves of at most MaxParallel operations.
type Scheduler[T any] struct {
	MaxParallel int

	// OnLaunch is called on the scheduling goroutine right before an item is
	// started. Optional.
	OnLaunch func(index int, item T)

	// OnOutcome is called as soon as an item reaches its terminal state, from
	// the goroutine that ran it. It must be safe for concurrent use. Optional.
	OnOutcome func(Outcome[T])
}

// New returns a Scheduler bounded to maxParallel concurrent operations.
// Values below 1 are treated as 1.
func New[T any](maxParallel int) *Scheduler[T] {
	return &Scheduler[T]{MaxParallel: maxParallel}
}

// Run launches every item in input order and returns once all of them have
// reached a terminal outcome. The returned slice is in input order.
func (s *Scheduler[T]) Run(items []T, launch Launcher[T]) []Outcome[T] {
	limit := s.MaxParallel
	if limit < 1 {
		limit = 1
	}

	outcomes := make([]Outcome[T], len(items))
	w := &wave{}

	for i, item := range items {
		i, item := i, item
		if w.size() >= limit {
			w.join()
		}

		if s.OnLaunch != nil {
			s.OnLaunch(i, item)
		}
		w.add(func() {
			outcomes[i] = s.settle(i, item, launch)
		})
	}
	w.join()

	return outcomes
}

// settle runs one item and converts any failure, including a panic, into an
// Outcome before it can reach the wave join.
func (s *Scheduler[T]) settle(index int, item T, launch Launcher[T]) (o Outcome[T]) {
	o = Outcome[T]{Index: index, Item: item}

	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		if s.OnOutcome != nil {
			s.OnOutcome(o)
		}
	}()

	o.Err = launch(item)
	return o
}

// wave is the set of operations currently in flight.
type wave struct {
	wg      sync.WaitGroup
	pending int
}

func (w *wave) size() int {
	return w.pending
}

func (w *wave) add(fn func()) {
	w.pending++
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// join blocks until every operation of the wave is done and empties it.
func (w *wave) join() {
	w.wg.Wait()
	w.pending = 0
}
