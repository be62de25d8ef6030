package api

import (
	"net/http"
	"strconv"
)

// pageParams are the parsed ?page= and ?limit= values.
type pageParams struct {
	Page   int
	Limit  int
	Offset int
}

// Page is one slice of a listing plus the metadata to fetch the next.
type Page[T any] struct {
	Data       []T      `json:"data"`
	Pagination PageMeta `json:"pagination"`
}

type PageMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// parsePage reads page and limit, clamping limit to [1, maxLimit].
func parsePage(r *http.Request, defaultLimit, maxLimit int) pageParams {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	return pageParams{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

func newPage[T any](data []T, p pageParams, total int) Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := max((total+p.Limit-1)/p.Limit, 1)
	return Page[T]{
		Data: data,
		Pagination: PageMeta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: pages,
			HasMore:    p.Page < pages,
		},
	}
}
