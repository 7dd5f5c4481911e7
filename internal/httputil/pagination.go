package httputil

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page request from list endpoints.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page and per_page from q. A page below 1 is clamped to 1;
// a per_page outside 1..MaxPageSize is an error.
func ParsePage(q url.Values) (Page, error) {
	p := Page{Number: 1, Size: DefaultPageSize}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Page{}, fmt.Errorf("invalid page parameter: must be an integer")
		}
		p.Number = max(n, 1)
	}

	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Page{}, fmt.Errorf("invalid per_page parameter: must be an integer")
		}
		if n < 1 || n > MaxPageSize {
			return Page{}, fmt.Errorf("per_page must be between 1 and %d", MaxPageSize)
		}
		p.Size = n
	}

	return p, nil
}
