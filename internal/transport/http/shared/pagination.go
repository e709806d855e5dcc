package shared

import (
	"net/http"
	"strconv"
)

type Pagination struct {
	Limit  int
	Offset int
}

// Page is a list response with the offset of the following page, if any.
type Page[T any] struct {
	Items      []T  `json:"items"`
	NextOffset *int `json:"nextOffset,omitempty"`
}

// ParsePagination reads limit and offset, ignoring malformed values and
// clamping limit to maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	p := Pagination{
		Limit:  queryInt(r, "limit", defaultLimit, 1),
		Offset: queryInt(r, "offset", 0, 0),
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Wrap builds the page for items fetched with p. A full page is assumed to
// have a successor.
func Wrap[T any](p Pagination, items []T) Page[T] {
	page := Page[T]{Items: items}
	if page.Items == nil {
		page.Items = []T{}
	}
	if len(items) >= p.Limit {
		next := p.Offset + len(items)
		page.NextOffset = &next
	}
	return page
}

func queryInt(r *http.Request, key string, fallback, minimum int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < minimum {
		return fallback
	}
	return v
}
