package query

import (
	"math"

	"roster/internal/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 100
)

// Pagination describes one page of a list result.
type Pagination struct {
	Page          int  `json:"page"`
	Limit         int  `json:"limit"`
	NumberOfPages int  `json:"numberOfPages"`
	Total         int  `json:"total"`
	NextPage      *int `json:"nextPage,omitempty"`
	PrevPage      *int `json:"prevPage,omitempty"`
}

// ComputePagination expects page >= 1, limit >= 1 and total >= 0.
func ComputePagination(page, limit, total int) Pagination {
	p := Pagination{
		Page:          page,
		Limit:         limit,
		NumberOfPages: (total + limit - 1) / limit,
		Total:         total,
	}
	if page*limit < total {
		next := page + 1
		p.NextPage = &next
	}
	if page > 1 {
		prev := page - 1
		p.PrevPage = &prev
	}
	return p
}

// Window is the skip/take pair for FindMany.
type Window struct {
	Skip int
	Take int
}

func (p Pagination) Window() Window {
	return Window{Skip: (p.Page - 1) * p.Limit, Take: p.Limit}
}

// pageParams reads page and limit from raw params. Missing or unparseable
// values fall back to the defaults; fractional values are floored.
func pageParams(p Params) (page, limit int, err error) {
	page, limit = DefaultPage, DefaultLimit

	if raw, ok := p[KeyPage]; ok {
		if n, ok := number(raw); ok {
			n = math.Floor(n)
			if n < 1 || n > math.MaxInt32 {
				return 0, 0, apperr.InvalidPage(raw)
			}
			page = int(n)
		}
	}
	if raw, ok := p[KeyLimit]; ok {
		if n, ok := number(raw); ok {
			n = math.Floor(n)
			if n < 1 || n > MaxLimit {
				return 0, 0, apperr.InvalidLimit(raw, MaxLimit)
			}
			limit = int(n)
		}
	}
	return page, limit, nil
}
