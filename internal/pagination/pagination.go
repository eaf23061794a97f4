// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package pagination slices, filters and searches in-memory result sets for
// the admin tables.
package pagination

import (
	"strings"

	"github.com/samber/lo"
)

// DefaultSize is the number of rows per page in admin tables.
const DefaultSize = 10

// Page is one page of items plus the numbers needed to render navigation.
// Number is 1-based.
type Page[T any] struct {
	Items      []T
	Number     int
	Size       int
	TotalItems int
	TotalPages int
}

// Paginate returns page number (1-based) of items. Out of range pages are
// clamped to the nearest valid page.
func Paginate[T any](items []T, number, size int) Page[T] {
	if size <= 0 {
		size = DefaultSize
	}
	total := len(items)
	pages := max((total+size-1)/size, 1)
	number = min(max(number, 1), pages)

	start := (number - 1) * size
	return Page[T]{
		Items:      lo.Subset(items, start, uint(size)),
		Number:     number,
		Size:       size,
		TotalItems: total,
		TotalPages: pages,
	}
}

// Remote wraps a page that was already cut by the backend. number is the
// 1-based page number and total the number of items across all pages.
func Remote[T any](items []T, number, size, total int) Page[T] {
	if size <= 0 {
		size = DefaultSize
	}
	return Page[T]{
		Items:      items,
		Number:     max(number, 1),
		Size:       size,
		TotalItems: total,
		TotalPages: max((total+size-1)/size, 1),
	}
}

// HasPrev reports whether a previous page exists.
func (p Page[T]) HasPrev() bool { return p.Number > 1 }

// HasNext reports whether a next page exists.
func (p Page[T]) HasNext() bool { return p.Number < p.TotalPages }

// Prev returns the previous page number.
func (p Page[T]) Prev() int { return max(p.Number-1, 1) }

// Next returns the next page number.
func (p Page[T]) Next() int { return min(p.Number+1, p.TotalPages) }

// First returns the 1-based index of the first item shown, or 0 when empty.
func (p Page[T]) First() int {
	if p.TotalItems == 0 {
		return 0
	}
	return (p.Number-1)*p.Size + 1
}

// Last returns the 1-based index of the last item shown.
func (p Page[T]) Last() int {
	return min(p.Number*p.Size, p.TotalItems)
}

// Numbers returns all page numbers for rendering page links.
func (p Page[T]) Numbers() []int {
	return lo.RangeFrom(1, p.TotalPages)
}

// Search keeps the items for which any field returned by fields contains
// query, compared case-insensitively. An empty query keeps everything.
func Search[T any](items []T, query string, fields func(T) []string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}
	return lo.Filter(items, func(item T, _ int) bool {
		return lo.SomeBy(fields(item), func(f string) bool {
			return strings.Contains(strings.ToLower(f), q)
		})
	})
}

// Filter keeps the items matching keep.
func Filter[T any](items []T, keep func(T) bool) []T {
	return lo.Filter(items, func(item T, _ int) bool { return keep(item) })
}
