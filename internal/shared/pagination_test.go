package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 500, 250)
	assert.Equal(t, MaxPerPage, p.PerPage)
	assert.Equal(t, 200, p.Offset())
}

func TestPageFromQuery(t *testing.T) {
	page, perPage := PageFromQuery(url.Values{"page": {"2"}, "perPage": {"x"}})
	assert.Equal(t, 2, page)
	assert.Equal(t, 0, perPage)
}
