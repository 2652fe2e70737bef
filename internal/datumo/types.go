// Package datumo integrates the Datumo evaluation service: evaluation task
// listing and detail, called with the portal caller's own token.
package datumo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"aiportal.dev/internal/upstream"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// Category is an evaluation task category.
type Category string

const (
	CategoryJudge      Category = "JUDGE"
	CategoryGeneration Category = "GENERATION"
	CategoryQA         Category = "QA"
	CategoryRAG        Category = "RAG"
)

// Categories lists every category the upstream accepts.
func Categories() []Category {
	return []Category{CategoryJudge, CategoryGeneration, CategoryQA, CategoryRAG}
}

// ParseCategory accepts any casing; the empty string means "all".
func ParseCategory(s string) (Category, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Task is an evaluation task as returned to portal callers.
type Task struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Category    Category              `json:"category"`
	Status      string                `json:"status"`
	Description string                `json:"description,omitempty"`
	Model       string                `json:"model,omitempty"`
	Dataset     string                `json:"dataset,omitempty"`
	CreatedAt   *time.Time            `json:"created_at,omitempty"`
	Config      upstream.EmbeddedJSON `json:"config"`
}

// TaskQuery selects a page of tasks. Page is 1-based.
type TaskQuery struct {
	Page     int
	Size     int
	Category Category
	Keyword  string
}

func (q TaskQuery) withDefaults() TaskQuery {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Size == 0 {
		q.Size = DefaultPageSize
	}
	q.Keyword = strings.TrimSpace(q.Keyword)
	if c, err := ParseCategory(string(q.Category)); err == nil {
		q.Category = c
	}
	return q
}

func (q TaskQuery) Validate() error {
	if q.Page < 1 {
		return errors.New("page must be >= 1")
	}
	if q.Size < 1 || q.Size > MaxPageSize {
		return fmt.Errorf("size must be between 1 and %d", MaxPageSize)
	}
	if q.Category != "" {
		if _, err := ParseCategory(string(q.Category)); err != nil {
			return err
		}
	}
	if len(q.Keyword) > 200 {
		return errors.New("keyword must be at most 200 characters")
	}
	return nil
}

type taskDTO struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Category    string                `json:"category"`
	Status      string                `json:"status"`
	Description string                `json:"description"`
	ModelName   string                `json:"model_name"`
	DatasetName string                `json:"dataset_name"`
	CreatedAt   string                `json:"created_at"`
	Config      upstream.EmbeddedJSON `json:"config"`
}

type taskListDTO struct {
	TotalDataCount int64     `json:"total_data_count"`
	TotalPageCount int       `json:"total_page_count"`
	Tasks          []taskDTO `json:"tasks"`
}

func (d taskDTO) toTask() Task {
	t := Task{
		ID:          d.ID,
		Name:        d.Name,
		Category:    Category(strings.ToUpper(d.Category)),
		Status:      d.Status,
		Description: d.Description,
		Model:       d.ModelName,
		Dataset:     d.DatasetName,
		Config:      d.Config,
	}
	if ts, ok := parseTime(d.CreatedAt); ok {
		t.CreatedAt = &ts
	}
	return t
}

// parseTime accepts RFC 3339 and the zone-less form the service emits.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
