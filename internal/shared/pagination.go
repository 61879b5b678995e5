package shared

import "math"

const (
	// DefaultPerPage applies when the caller does not pick a page size.
	DefaultPerPage = 20
	// MaxPerPage caps every listing.
	MaxPerPage = 100
)

// Page is a normalised page request.
type Page struct {
	Page    int
	PerPage int
}

// NewPage clamps page and per-page values into range.
func NewPage(page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page <= 0 {
		page = 1
	}
	return Page{Page: page, PerPage: perPage}
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Window slices [0,total) down to the page bounds.
func (p Page) Window(total int) (start, end int) {
	start = p.Offset()
	if start > total {
		start = total
	}
	end = start + p.PerPage
	if end > total {
		end = total
	}
	return start, end
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page Page, total int) Pagination {
	totalPages := int(math.Ceil(float64(total) / float64(page.PerPage)))
	return Pagination{Page: page.Page, PerPage: page.PerPage, Total: total, TotalPages: totalPages}
}
