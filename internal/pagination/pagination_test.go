// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package pagination_test

import (
	"testing"

	"codeberg.org/smsresearch/studyportal/internal/pagination"
	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	tests := []struct {
		name      string
		number    int
		size      int
		wantItems []int
		wantPage  int
	}{
		{"first page", 1, 3, []int{1, 2, 3}, 1},
		{"last partial page", 3, 3, []int{7}, 3},
		{"clamped high", 9, 3, []int{7}, 3},
		{"clamped low", 0, 3, []int{1, 2, 3}, 1},
		{"default size", 1, 0, items, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pagination.Paginate(items, tt.number, tt.size)
			assert.Equal(t, tt.wantItems, p.Items)
			assert.Equal(t, tt.wantPage, p.Number)
			assert.Equal(t, 7, p.TotalItems)
		})
	}
}

func TestPaginate_Navigation(t *testing.T) {
	p := pagination.Paginate([]string{"a", "b", "c", "d", "e"}, 2, 2)

	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())
	assert.Equal(t, 1, p.Prev())
	assert.Equal(t, 3, p.Next())
	assert.Equal(t, 3, p.First())
	assert.Equal(t, 4, p.Last())
	assert.Equal(t, []int{1, 2, 3}, p.Numbers())
}

func TestPaginate_Empty(t *testing.T) {
	p := pagination.Paginate([]string{}, 1, 10)

	assert.Empty(t, p.Items)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, 0, p.First())
	assert.Equal(t, 0, p.Last())
	assert.False(t, p.HasNext())
}

func TestSearch(t *testing.T) {
	type row struct{ phone, email string }
	rows := []row{{"+15551234567", "a@x.co"}, {"+15559876543", "B@Y.co"}}
	fields := func(r row) []string { return []string{r.phone, r.email} }

	assert.Len(t, pagination.Search(rows, "", fields), 2)
	assert.Equal(t, []row{rows[1]}, pagination.Search(rows, "b@y", fields))
	assert.Equal(t, []row{rows[0]}, pagination.Search(rows, " 1234 ", fields))
	assert.Empty(t, pagination.Search(rows, "zzz", fields))
}

func TestFilter(t *testing.T) {
	even := pagination.Filter([]int{1, 2, 3, 4}, func(i int) bool { return i%2 == 0 })
	assert.Equal(t, []int{2, 4}, even)
}

func TestRemote(t *testing.T) {
	p := pagination.Remote([]string{"k", "l"}, 2, 10, 12)

	assert.Equal(t, 2, p.TotalPages)
	assert.Equal(t, 11, p.First())
	assert.Equal(t, 12, p.Last())
	assert.False(t, p.HasNext())
	assert.True(t, p.HasPrev())
}
