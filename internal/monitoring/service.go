package monitoring

import (
	"context"
	"time"

	"aiportal.dev/internal/upstream"
)

// Service is the façade for monitoring queries.
type Service struct {
	client *Client
	facade upstream.Facade
}

func NewService(client *Client) *Service {
	return &Service{client: client, facade: upstream.Facade{System: System}}
}

// Query runs an instant query.
func (s *Service) Query(ctx context.Context, expr string, at time.Time) ([]Sample, error) {
	op := upstream.Op{Name: "Query", Fields: map[string]any{"query": expr}}
	return upstream.Run(ctx, s.facade, op, func(ctx context.Context) ([]Sample, error) {
		return s.client.Query(ctx, expr, at)
	}, func(out []Sample) map[string]any {
		return map[string]any{"count": len(out)}
	})
}

// QueryRange runs a range query.
func (s *Service) QueryRange(ctx context.Context, q RangeQuery) ([]Series, error) {
	op := upstream.Op{Name: "QueryRange", Fields: map[string]any{"query": q.Expr, "step": q.Step.String()}}
	return upstream.Run(ctx, s.facade, op, func(ctx context.Context) ([]Series, error) {
		return s.client.QueryRange(ctx, q)
	}, func(out []Series) map[string]any {
		return map[string]any{"count": len(out)}
	})
}
