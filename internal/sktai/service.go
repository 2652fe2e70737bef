package sktai

import (
	"context"
	"net/http"
	"strings"

	"aiportal.dev/internal/pagination"
	"aiportal.dev/internal/upstream"
)

// Service is the façade for the model garden.
type Service struct {
	client *Client
	tokens *Tokens
	facade upstream.Facade
}

func NewService(client *Client, tokens *Tokens) *Service {
	return &Service{client: client, tokens: tokens, facade: upstream.Facade{System: System}}
}

// ListModels returns one page of models; the platform counts pages from 0.
func (s *Service) ListModels(ctx context.Context, q ModelQuery) (pagination.Result[Model], error) {
	q = q.withDefaults()
	op := upstream.Op{Name: "ListModels", Fields: map[string]any{"page": q.Page, "size": q.Size}}
	return upstream.Run(ctx, s.facade, op, func(ctx context.Context) (pagination.Result[Model], error) {
		page, err := s.client.ListModels(ctx, q)
		if err != nil {
			s.onError(ctx, err)
			return pagination.Result[Model]{}, err
		}
		models := make([]Model, 0, len(page.Content))
		for _, d := range page.Content {
			models = append(models, d.toModel())
		}
		return pagination.New(models, pagination.Request{Page: q.Page, Size: q.Size}, page.TotalElements), nil
	}, func(r pagination.Result[Model]) map[string]any {
		return map[string]any{"count": len(r.Items), "total": r.Pagination.TotalElements}
	})
}

// ImportModel starts an import job.
func (s *Service) ImportModel(ctx context.Context, r ImportRequest) (ImportJob, error) {
	r.URI = strings.TrimSpace(r.URI)
	op := upstream.Op{Name: "ImportModel", Fields: map[string]any{"model_name": r.Name, "source": string(r.Source)}}
	return upstream.Run(ctx, s.facade, op, func(ctx context.Context) (ImportJob, error) {
		d, err := s.client.ImportModel(ctx, r)
		if err != nil {
			s.onError(ctx, err)
			return ImportJob{}, err
		}
		return d.toJob(), nil
	}, func(j ImportJob) map[string]any {
		return map[string]any{"job_id": j.ID, "status": string(j.Status)}
	})
}

// GetImportJob returns the current state of an import job.
func (s *Service) GetImportJob(ctx context.Context, id string) (ImportJob, error) {
	id = strings.TrimSpace(id)
	op := upstream.Op{Name: "GetImportJob", Fields: map[string]any{"job_id": id}}
	return upstream.Run(ctx, s.facade, op, func(ctx context.Context) (ImportJob, error) {
		if id == "" {
			e := upstream.Invalid(System, "job id is required")
			e.Operation = "GetImportJob"
			return ImportJob{}, e
		}
		d, err := s.client.GetImportJob(ctx, id)
		if err != nil {
			s.onError(ctx, err)
			return ImportJob{}, err
		}
		return d.toJob(), nil
	}, func(j ImportJob) map[string]any {
		return map[string]any{"status": string(j.Status), "progress": j.Progress}
	})
}

// onError drops the cached token when the platform rejected it. The call
// itself is not retried.
func (s *Service) onError(ctx context.Context, err error) {
	ue, ok := upstream.AsError(err)
	if !ok || s.tokens == nil {
		return
	}
	if ue.Kind == upstream.KindAuth && ue.Status == http.StatusUnauthorized {
		s.tokens.Invalidate(ctx)
	}
}
