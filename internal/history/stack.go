package history

import "slices"

// Stack is a LIFO backed by a growable slice. The zero value is ready to use.
type Stack[T any] struct {
	items []T
}

func (s *Stack[T]) Push(v T) {
	s.items = append(s.items, v)
}

func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	last := len(s.items) - 1
	v := s.items[last]
	s.items[last] = zero
	s.items = s.items[:last]
	return v, true
}

func (s *Stack[T]) Peek() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

func (s *Stack[T]) Len() int {
	return len(s.items)
}

func (s *Stack[T]) Clear() {
	clear(s.items)
	s.items = s.items[:0]
}

// DeleteFunc removes every item for which del returns true, keeping order.
func (s *Stack[T]) DeleteFunc(del func(T) bool) {
	s.items = slices.DeleteFunc(s.items, del)
}

// Compact collapses runs of equal neighbours into one item.
func (s *Stack[T]) Compact(eq func(a, b T) bool) {
	s.items = slices.CompactFunc(s.items, eq)
}
