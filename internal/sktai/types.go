// Package sktai integrates the SKT.AI platform model garden: model listing
// and model import jobs, authenticated with cached client credentials.
package sktai

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Model is a model garden entry.
type Model struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	DisplayName   string     `json:"display_name,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	Task          string     `json:"task,omitempty"`
	ParameterSize string     `json:"parameter_size,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// ModelQuery selects a page of models. Page is 1-based.
type ModelQuery struct {
	Page    int
	Size    int
	Keyword string
}

func (q ModelQuery) withDefaults() ModelQuery {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Size == 0 {
		q.Size = DefaultPageSize
	}
	q.Keyword = strings.TrimSpace(q.Keyword)
	return q
}

func (q ModelQuery) Validate() error {
	if q.Page < 1 {
		return errors.New("page must be >= 1")
	}
	if q.Size < 1 || q.Size > MaxPageSize {
		return fmt.Errorf("size must be between 1 and %d", MaxPageSize)
	}
	return nil
}

// Source is where an imported model is fetched from.
type Source string

const (
	SourceHuggingFace Source = "HUGGINGFACE"
	SourceS3          Source = "S3"
	SourceURL         Source = "URL"
)

var (
	modelName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	hfRepo    = regexp.MustCompile(`^[a-zA-Z0-9][\w.-]*/[\w.-]+$`)
)

// ImportRequest asks the platform to import a model.
type ImportRequest struct {
	Name     string `json:"name"`
	Source   Source `json:"source"`
	URI      string `json:"uri"`
	Revision string `json:"revision,omitempty"`
}

func (r ImportRequest) Validate() error {
	if !modelName.MatchString(r.Name) {
		return errors.New("name must be 1-128 characters of letters, digits, '.', '_' or '-'")
	}
	uri := strings.TrimSpace(r.URI)
	if uri == "" {
		return errors.New("uri is required")
	}
	switch r.Source {
	case SourceHuggingFace:
		if !hfRepo.MatchString(uri) {
			return errors.New("huggingface uri must look like owner/repository")
		}
	case SourceS3:
		u, err := url.Parse(uri)
		if err != nil || u.Scheme != "s3" || u.Host == "" {
			return errors.New("s3 uri must look like s3://bucket/key")
		}
	case SourceURL:
		u, err := url.Parse(uri)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return errors.New("url source must be an http(s) url")
		}
	default:
		return fmt.Errorf("unknown source %q", r.Source)
	}
	if len(r.Revision) > 64 {
		return errors.New("revision must be at most 64 characters")
	}
	return nil
}

// JobStatus is the state of an import job.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the job will not change any more.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// ImportJob tracks a model import.
type ImportJob struct {
	ID        string     `json:"id"`
	ModelName string     `json:"model_name"`
	Source    Source     `json:"source"`
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type modelDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DisplayName   string `json:"displayName"`
	Provider      string `json:"provider"`
	TaskType      string `json:"taskType"`
	ParameterSize string `json:"parameterSize"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
}

func (d modelDTO) toModel() Model {
	return Model{
		ID:            d.ID,
		Name:          d.Name,
		DisplayName:   d.DisplayName,
		Provider:      d.Provider,
		Task:          d.TaskType,
		ParameterSize: d.ParameterSize,
		Status:        d.Status,
		CreatedAt:     parseTime(d.CreatedAt),
	}
}

// springPage is the Spring Data page shape the platform returns.
type springPage[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
}

type importJobDTO struct {
	JobID     string `json:"jobId"`
	ModelName string `json:"modelName"`
	Source    string `json:"source"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func (d importJobDTO) toJob() ImportJob {
	return ImportJob{
		ID:        d.JobID,
		ModelName: d.ModelName,
		Source:    Source(strings.ToUpper(d.Source)),
		Status:    JobStatus(strings.ToUpper(d.Status)),
		Progress:  d.Progress,
		Message:   d.Message,
		CreatedAt: parseTime(d.CreatedAt),
		UpdatedAt: parseTime(d.UpdatedAt),
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if ts, err := time.Parse(layout, s); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}
