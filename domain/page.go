package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PageSize is the number of posts shown per feed page.
const PageSize = 10

// Page is one page of a feed. Number is 1-based and always valid: a request for a
// page that doesn't exist is answered with the last page, a request that isn't a
// number with the first one. An empty feed has exactly one (empty) page.
type Page struct {
	Posts    []Post
	Number   int
	NumPages int
	Total    int
}

// NewPage computes the page geometry for a feed of total posts and the raw page
// parameter of a request. Posts are left empty for the caller to fill in.
func NewPage(total int, requested string, size int) *Page {
	numPages := 1
	if total > size {
		numPages = (total + size - 1) / size
	}
	return &Page{
		Number:   ClampPageNumber(ParsePageNumber(requested), numPages),
		NumPages: numPages,
		Total:    total,
	}
}

// ParsePageNumber reads a page query parameter. Absent or non-numeric values mean page 1.
// Integers too large for an int are still integers: they come back as the largest
// or smallest int, which ClampPageNumber maps to the last page.
func ParsePageNumber(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err == nil {
		return n
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) && numErr.Err == strconv.ErrRange {
		if strings.HasPrefix(strings.TrimSpace(raw), "-") {
			return math.MinInt
		}
		return math.MaxInt
	}
	return 1
}

// ClampPageNumber maps out-of-range page numbers, including zero and negative ones,
// to the last page.
func ClampPageNumber(n, numPages int) int {
	if n < 1 || n > numPages {
		return numPages
	}
	return n
}

// Offset returns the index of the page's first post within the whole feed.
func (p *Page) Offset(size int) int {
	return (p.Number - 1) * size
}

func (p *Page) HasPrevious() bool {
	return p.Number > 1
}

func (p *Page) HasNext() bool {
	return p.Number < p.NumPages
}

// PreviousPageNumber returns 0 on the first page.
func (p *Page) PreviousPageNumber() int {
	if !p.HasPrevious() {
		return 0
	}
	return p.Number - 1
}

// NextPageNumber returns 0 on the last page.
func (p *Page) NextPageNumber() int {
	if !p.HasNext() {
		return 0
	}
	return p.Number + 1
}

// MarshalJSON includes the navigation flags used by pagination controls.
func (p *Page) MarshalJSON() ([]byte, error) {
	posts := p.Posts
	if posts == nil {
		posts = []Post{}
	}
	return json.Marshal(struct {
		Posts        []Post `json:"posts"`
		Number       int    `json:"number"`
		NumPages     int    `json:"num_pages"`
		Total        int    `json:"total"`
		HasPrevious  bool   `json:"has_previous"`
		HasNext      bool   `json:"has_next"`
		PreviousPage int    `json:"previous_page,omitempty"`
		NextPage     int    `json:"next_page,omitempty"`
	}{
		Posts:        posts,
		Number:       p.Number,
		NumPages:     p.NumPages,
		Total:        p.Total,
		HasPrevious:  p.HasPrevious(),
		HasNext:      p.HasNext(),
		PreviousPage: p.PreviousPageNumber(),
		NextPage:     p.NextPageNumber(),
	})
}
