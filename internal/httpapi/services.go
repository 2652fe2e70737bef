package httpapi

import (
	"context"
	"time"

	"aiportal.dev/internal/approval"
	"aiportal.dev/internal/datumo"
	"aiportal.dev/internal/monitoring"
	"aiportal.dev/internal/pagination"
	"aiportal.dev/internal/sktai"
)

// Evaluations is served by datumo.Service.
type Evaluations interface {
	ListTasks(ctx context.Context, token string, q datumo.TaskQuery) (pagination.Result[datumo.Task], error)
	GetTask(ctx context.Context, token, id string) (datumo.Task, error)
}

// Models is served by sktai.Service.
type Models interface {
	ListModels(ctx context.Context, q sktai.ModelQuery) (pagination.Result[sktai.Model], error)
	ImportModel(ctx context.Context, r sktai.ImportRequest) (sktai.ImportJob, error)
	GetImportJob(ctx context.Context, id string) (sktai.ImportJob, error)
}

// ImportJobs is served by sktai.JobWatcher.
type ImportJobs interface {
	Watch(ctx context.Context, id string) <-chan sktai.JobUpdate
}

// Approvals is served by approval.Service.
type Approvals interface {
	Submit(ctx context.Context, r approval.SubmitRequest) (approval.Approval, error)
	Get(ctx context.Context, id string) (approval.Approval, error)
	List(ctx context.Context, q approval.ListQuery) (pagination.Result[approval.Approval], error)
}

// Monitoring is served by monitoring.Service.
type Monitoring interface {
	Query(ctx context.Context, expr string, at time.Time) ([]monitoring.Sample, error)
	QueryRange(ctx context.Context, q monitoring.RangeQuery) ([]monitoring.Series, error)
}

// Services are the integrations the API exposes. A nil entry means the
// integration is disabled and its routes answer 503.
type Services struct {
	Evaluations Evaluations
	Models      Models
	ImportJobs  ImportJobs
	Approvals   Approvals
	Monitoring  Monitoring
}
