// Package pagination normalises every list-returning integration into one
// 1-based page envelope, whatever indexing the upstream system uses.
package pagination

import (
	"errors"
	"fmt"
)

const (
	DefaultSize = 20
	MaxSize     = 100
)

var ErrInvalidPage = errors.New("invalid page request")

// Request is a 1-based page request as received from portal callers.
type Request struct {
	Page int
	Size int
}

// Normalize fills defaults and bounds the size. Page 0 is treated as "not
// given"; negative pages and sizes are rejected.
func (r Request) Normalize(defaultSize, maxSize int) (Request, error) {
	if defaultSize <= 0 {
		defaultSize = DefaultSize
	}
	if maxSize <= 0 {
		maxSize = MaxSize
	}
	if r.Page < 0 {
		return Request{}, fmt.Errorf("%w: page must be >= 1", ErrInvalidPage)
	}
	if r.Size < 0 {
		return Request{}, fmt.Errorf("%w: size must be >= 1", ErrInvalidPage)
	}
	if r.Page == 0 {
		r.Page = 1
	}
	if r.Size == 0 {
		r.Size = defaultSize
	}
	if r.Size > maxSize {
		return Request{}, fmt.Errorf("%w: size must be <= %d", ErrInvalidPage, maxSize)
	}
	return r, nil
}

// ZeroBased is the page index for upstreams counting from 0.
func (r Request) ZeroBased() int {
	if r.Page < 1 {
		return 0
	}
	return r.Page - 1
}

// Offset is the item offset for upstreams using offset/limit.
func (r Request) Offset() int {
	return r.ZeroBased() * r.Size
}

// Page is the pagination envelope returned to portal callers.
type Page struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
}

// Result is a page of items plus its envelope.
type Result[T any] struct {
	Items      []T  `json:"items"`
	Pagination Page `json:"pagination"`
}

// New builds a Result for req. Items beyond req.Size are dropped and the
// page count is derived from total, never copied from the upstream.
func New[T any](items []T, req Request, total int64) Result[T] {
	if req.Size > 0 && len(items) > req.Size {
		items = items[:req.Size]
	}
	if items == nil {
		items = []T{}
	}
	if total < 0 {
		total = 0
	}
	return Result[T]{
		Items: items,
		Pagination: Page{
			Page:          req.Page,
			Size:          req.Size,
			TotalElements: total,
			TotalPages:    TotalPages(total, req.Size),
		},
	}
}

// TotalPages is ceil(total/size), 0 when there is nothing to page.
func TotalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// Map converts the items of a result keeping its envelope.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	out := make([]U, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, fn(it))
	}
	return Result[U]{Items: out, Pagination: r.Pagination}
}
