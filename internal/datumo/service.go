package datumo

import (
	"context"
	"strings"

	"aiportal.dev/internal/obs"
	"aiportal.dev/internal/pagination"
	"aiportal.dev/internal/upstream"
)

// Service is the façade portal handlers use for evaluation tasks.
type Service struct {
	client *Client
	facade upstream.Facade
}

func NewService(client *Client) *Service {
	return &Service{client: client, facade: upstream.Facade{System: System}}
}

// ListTasks returns one page of tasks using the caller's token.
func (s *Service) ListTasks(ctx context.Context, token string, q TaskQuery) (pagination.Result[Task], error) {
	q = q.withDefaults()
	op := upstream.Op{
		Name:  "ListTasks",
		Token: token,
		Fields: map[string]any{
			"page":     q.Page,
			"size":     q.Size,
			"category": string(q.Category),
		},
	}
	return upstream.Run(ctx, s.facade, op, func(ctx context.Context) (pagination.Result[Task], error) {
		resp, err := s.client.ListTasks(ctx, q)
		if err != nil {
			return pagination.Result[Task]{}, err
		}
		tasks := make([]Task, 0, len(resp.Tasks))
		for _, d := range resp.Tasks {
			tasks = append(tasks, d.toTask())
		}
		res := pagination.New(tasks, pagination.Request{Page: q.Page, Size: q.Size}, resp.TotalDataCount)
		if resp.TotalPageCount != res.Pagination.TotalPages {
			obs.Logger().Debug().
				Str("system", System).
				Int("upstream_total_pages", resp.TotalPageCount).
				Int("total_pages", res.Pagination.TotalPages).
				Msg("page count differs from upstream")
		}
		return res, nil
	}, func(r pagination.Result[Task]) map[string]any {
		return map[string]any{"count": len(r.Items), "total": r.Pagination.TotalElements}
	})
}

// GetTask returns one task using the caller's token.
func (s *Service) GetTask(ctx context.Context, token, id string) (Task, error) {
	id = strings.TrimSpace(id)
	op := upstream.Op{Name: "GetTask", Token: token, Fields: map[string]any{"task_id": id}}
	return upstream.Run(ctx, s.facade, op, func(ctx context.Context) (Task, error) {
		if id == "" {
			e := upstream.Invalid(System, "task id is required")
			e.Operation = "GetTask"
			return Task{}, e
		}
		d, err := s.client.GetTask(ctx, id)
		if err != nil {
			return Task{}, err
		}
		return d.toTask(), nil
	}, nil)
}
