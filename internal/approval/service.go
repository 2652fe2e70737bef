package approval

import (
	"context"
	"strings"

	"aiportal.dev/internal/pagination"
	"aiportal.dev/internal/upstream"
)

// Service is the façade for the approval gateway.
type Service struct {
	client *Client
	facade upstream.Facade
}

func NewService(client *Client) *Service {
	return &Service{client: client, facade: upstream.Facade{System: System}}
}

// Submit files a new approval request.
func (s *Service) Submit(ctx context.Context, r SubmitRequest) (Approval, error) {
	r.Title = strings.TrimSpace(r.Title)
	op := upstream.Op{Name: "Submit", Fields: map[string]any{"approval_type": r.Type, "requester_id": r.RequesterID}}
	return upstream.Run(ctx, s.facade, op, func(ctx context.Context) (Approval, error) {
		d, err := s.client.Submit(ctx, r)
		if err != nil {
			return Approval{}, err
		}
		return d.toApproval(), nil
	}, func(a Approval) map[string]any {
		return map[string]any{"approval_id": a.ID, "status": string(a.Status)}
	})
}

// Get returns one approval.
func (s *Service) Get(ctx context.Context, id string) (Approval, error) {
	id = strings.TrimSpace(id)
	op := upstream.Op{Name: "Get", Fields: map[string]any{"approval_id": id}}
	return upstream.Run(ctx, s.facade, op, func(ctx context.Context) (Approval, error) {
		if id == "" {
			e := upstream.Invalid(System, "approval id is required")
			e.Operation = "Get"
			return Approval{}, e
		}
		d, err := s.client.Get(ctx, id)
		if err != nil {
			return Approval{}, err
		}
		return d.toApproval(), nil
	}, nil)
}

// List returns one page of approvals.
func (s *Service) List(ctx context.Context, q ListQuery) (pagination.Result[Approval], error) {
	q = q.withDefaults()
	op := upstream.Op{Name: "List", Fields: map[string]any{"page": q.Page, "size": q.Size, "status": string(q.Status)}}
	return upstream.Run(ctx, s.facade, op, func(ctx context.Context) (pagination.Result[Approval], error) {
		resp, err := s.client.List(ctx, q)
		if err != nil {
			return pagination.Result[Approval]{}, err
		}
		items := make([]Approval, 0, len(resp.Items))
		for _, d := range resp.Items {
			items = append(items, d.toApproval())
		}
		return pagination.New(items, pagination.Request{Page: q.Page, Size: q.Size}, resp.Total), nil
	}, func(r pagination.Result[Approval]) map[string]any {
		return map[string]any{"count": len(r.Items), "total": r.Pagination.TotalElements}
	})
}
