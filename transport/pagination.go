package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	headerRange        = "Range"
	headerRangeUnit    = "Range-Unit"
	headerPrefer       = "Prefer"
	headerContentRange = "Content-Range"
)

// Page is a 1-based page window.
type Page struct {
	Number int
	Size   int
}

// Offset is the zero-based index of the first row on the page.
func (p Page) Offset() int {
	n := p.Number
	if n < 1 {
		n = 1
	}
	return (n - 1) * p.Size
}

// RangeEnd is the inclusive index of the last row on the page.
func (p Page) RangeEnd() int {
	return p.Offset() + p.Size - 1
}

// RangeHeader renders the window as a Range header value, e.g. "10-19".
func (p Page) RangeHeader() string {
	return fmt.Sprintf("%d-%d", p.Offset(), p.RangeEnd())
}

// Paginated is one page of rows plus the total row count.
type Paginated[T any] struct {
	Data       []T
	TotalCount int
}

// GetPaginated fetches one page of path, asking the backend for an exact count.
// When the response has no usable Content-Range, TotalCount is the number of
// rows received.
func GetPaginated[T any](ctx context.Context, c *Client, path string, page Page, opts ...RequestOption) (Paginated[T], error) {
	if page.Size < 1 {
		return Paginated[T]{}, errors.Errorf("[transport.GetPaginated] page size must be positive, got %d", page.Size)
	}

	opts = append(append([]RequestOption(nil), opts...),
		WithHeader(headerRangeUnit, "items"),
		WithHeader(headerRange, page.RangeHeader()),
		WithHeader(headerPrefer, "count=exact"),
	)
	resp, err := c.Do(ctx, http.MethodGet, path, nil, opts...)
	if err != nil {
		return Paginated[T]{}, err
	}

	// A page holding exactly one row comes back unwrapped from the normalizer.
	data := bytes.TrimSpace(resp.Data)
	if len(data) > 0 && data[0] == '{' {
		resp.Data = json.RawMessage("[" + string(data) + "]")
	}

	var rows []T
	if err := decodeInto(resp, path, &rows); err != nil {
		return Paginated[T]{}, err
	}
	if rows == nil {
		rows = []T{}
	}

	total, ok := ParseContentRange(resp.Header.Get(headerContentRange))
	if !ok {
		total = len(rows)
	}
	return Paginated[T]{Data: rows, TotalCount: total}, nil
}

// ParseContentRange extracts the total from "start-end/total" (optionally
// prefixed with a unit, e.g. "items 0-9/45"). It reports false when the header
// is missing, malformed or the total is unknown ("*").
func ParseContentRange(header string) (int, bool) {
	header = strings.TrimSpace(header)
	if i := strings.LastIndexByte(header, ' '); i >= 0 {
		header = header[i+1:]
	}
	_, totalPart, found := strings.Cut(header, "/")
	if !found {
		return 0, false
	}
	total, err := strconv.Atoi(totalPart)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
