package common

import (
	"time"

	"github.com/google/uuid"
)

// ID is a string alias for UUID v4.
type ID string

// Pagination defines parameters for paginated requests.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// HealthStatus indicates the health of a component or service.
type HealthStatus string

const (
	HealthUp   HealthStatus = "up"
	HealthDown HealthStatus = "down"
)

// ComponentHealth is the result of probing one dependency.
type ComponentHealth struct {
	Name    string        `json:"name"`
	Status  HealthStatus  `json:"status"`
	Latency time.Duration `json:"latency"`
	Message string        `json:"message,omitempty"`
}

// PaginationResult holds the pagination metadata for a response.
type PaginationResult struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResult is a generic wrapper for paginated data with pagination metadata.
type PaginatedResult[T any] struct {
	Items      []T              `json:"items"`
	Pagination PaginationResult `json:"pagination"`
}

// NewPaginatedResult assembles a page of items with computed page counts.
func NewPaginatedResult[T any](items []T, p Pagination, total int64) *PaginatedResult[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.PageSize > 0 {
		pages = int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	}
	return &PaginatedResult[T]{
		Items: items,
		Pagination: PaginationResult{
			Page:       p.Page,
			PageSize:   p.PageSize,
			Total:      total,
			TotalPages: pages,
		},
	}
}

func (id ID) String() string { return string(id) }

// Normalize fills a zero page with 1, a zero page size with def, and caps the
// page size at max.
func (p Pagination) Normalize(def, max int) Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = def
	}
	if max > 0 && p.PageSize > max {
		p.PageSize = max
	}
	return p
}

// Offset returns the SQL OFFSET value.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// NewID generates a new UUID v4.
func NewID() ID {
	return ID(uuid.New().String())
}

//Personal.AI order the ending
