package batch

import "errors"

// ErrPanic wraps a panic raised while running an item.
var ErrPanic = errors.New("batch: launcher panicked")

// Outcome is the terminal result of one item. A nil Err means success.
type Outcome[T any] struct {
	Index int
	Item  T
	Err   error
}

// Failed reports whether the item failed.
func (o Outcome[T]) Failed() bool {
	return o.Err != nil
}

// Failures returns the failed outcomes, preserving order.
func Failures[T any](outcomes []Outcome[T]) []Outcome[T] {
	var failed []Outcome[T]
	for _, o := range outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}
