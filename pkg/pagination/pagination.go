// Package pagination parses page/pageSize query parameters and builds the
// paged list envelope shared by the server and the client.
package pagination

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ErrInvalid is wrapped by every parameter error.
var ErrInvalid = errors.New("invalid pagination")

// Params holds 1-based page parameters.
type Params struct {
	Page     int
	PageSize int
}

// Default returns the first page with the default size.
func Default() Params {
	return Params{Page: DefaultPage, PageSize: DefaultPageSize}
}

// FromContext reads page and pageSize from the query string. Missing values
// take defaults; malformed or out-of-range values are errors.
func FromContext(c echo.Context) (Params, error) {
	p := Default()

	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("%w: page must be an integer", ErrInvalid)
		}
		p.Page = n
	}
	if raw := c.QueryParam("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("%w: pageSize must be an integer", ErrInvalid)
		}
		p.PageSize = n
	}

	return p, p.Validate()
}

func (p Params) Validate() error {
	if p.Page < 1 {
		return fmt.Errorf("%w: page must be at least 1", ErrInvalid)
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return fmt.Errorf("%w: pageSize must be between 1 and %d", ErrInvalid, MaxPageSize)
	}
	return nil
}

// Offset is the number of rows skipped before this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func (p Params) Limit() int {
	return p.PageSize
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.PageSize < total
}

// Response wraps one page of a list result.
type Response[T any] struct {
	Items    []T  `json:"items"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasMore  bool `json:"hasMore"`
}

func NewResponse[T any](items []T, total int, p Params) *Response[T] {
	if items == nil {
		items = []T{}
	}
	return &Response[T]{
		Items:    items,
		Total:    total,
		Page:     p.Page,
		PageSize: p.PageSize,
		HasMore:  p.HasNext(total),
	}
}
