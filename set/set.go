// Package set provides a minimal generic set used for step id and path
// bookkeeping.
package set

import "sort"

type Set[T comparable] struct {
	set map[T]struct{}
}

// Of returns a set holding items.
func Of[T comparable](items ...T) *Set[T] {
	s := &Set[T]{}
	for _, item := range items {
		s.Insert(item)
	}
	return s
}

// Insert adds k and reports whether it was newly added.
func (s *Set[T]) Insert(k T) bool {
	if s.set == nil {
		s.set = make(map[T]struct{})
	}
	if _, ok := s.set[k]; ok {
		return false
	}
	s.set[k] = struct{}{}
	return true
}

func (s *Set[T]) Contains(k T) bool {
	_, ok := s.set[k]
	return ok
}

func (s *Set[T]) Remove(k T) {
	delete(s.set, k)
}

func (s *Set[T]) Len() int {
	return len(s.set)
}

// Sorted returns the members ordered by less.
func (s *Set[T]) Sorted(less func(a, b T) bool) []T {
	out := make([]T, 0, len(s.set))
	for k := range s.set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
