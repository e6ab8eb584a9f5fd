package shared

import (
	"math"
	"net/url"
	"strconv"
)

// DefaultPerPage matches the admin listings.
const DefaultPerPage = 10

// Page describes the requested slice of a listing.
type Page struct {
	Number  int
	PerPage int
}

// NewPage normalises page inputs.
func NewPage(number, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if number <= 0 {
		number = 1
	}
	return Page{Number: number, PerPage: perPage}
}

// PageFromQuery reads ?page= from a query string.
func PageFromQuery(q url.Values, perPage int) Page {
	n, _ := strconv.Atoi(q.Get("page"))
	return NewPage(n, perPage)
}

// Offset returns the row offset for the page, capped at the largest
// OFFSET Postgres accepts so absurd page numbers yield an empty page.
func (p Page) Offset() uint64 {
	if p.Number <= 1 || p.PerPage <= 0 {
		return 0
	}
	skipped, per := uint64(p.Number-1), uint64(p.PerPage)
	if skipped > math.MaxInt64/per {
		return math.MaxInt64
	}
	return skipped * per
}

// Limit returns the row limit for the page.
func (p Page) Limit() uint64 {
	return uint64(p.PerPage)
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page Page, total int) Pagination {
	page = NewPage(page.Number, page.PerPage)
	totalPages := (total + page.PerPage - 1) / page.PerPage
	return Pagination{Page: page.Number, PerPage: page.PerPage, Total: total, TotalPages: totalPages}
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a next page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// PrevPage returns the previous page number.
func (p Pagination) PrevPage() int { return p.Page - 1 }

// NextPage returns the next page number.
func (p Pagination) NextPage() int { return p.Page + 1 }
