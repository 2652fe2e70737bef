package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"aiportal.dev/internal/approval"
	"aiportal.dev/internal/datumo"
	"aiportal.dev/internal/monitoring"
	"aiportal.dev/internal/pagination"
	"aiportal.dev/internal/sktai"
	"aiportal.dev/internal/upstream"
)

type fakeModels struct {
	listQuery sktai.ModelQuery
	imported  sktai.ImportRequest
	err       error
}

func (f *fakeModels) ListModels(_ context.Context, q sktai.ModelQuery) (pagination.Result[sktai.Model], error) {
	f.listQuery = q
	if f.err != nil {
		return pagination.Result[sktai.Model]{}, f.err
	}
	items := []sktai.Model{{ID: "m-1", Name: "llama", Status: "READY"}}
	return pagination.New(items, pagination.Request{Page: 1, Size: 20}, 1), nil
}

func (f *fakeModels) ImportModel(_ context.Context, r sktai.ImportRequest) (sktai.ImportJob, error) {
	f.imported = r
	if f.err != nil {
		return sktai.ImportJob{}, f.err
	}
	return sktai.ImportJob{ID: "job-7", ModelName: r.Name, Source: r.Source, Status: sktai.JobPending}, nil
}

func (f *fakeModels) GetImportJob(_ context.Context, id string) (sktai.ImportJob, error) {
	if f.err != nil {
		return sktai.ImportJob{}, f.err
	}
	return sktai.ImportJob{ID: id, Status: sktai.JobRunning, Progress: 40}, nil
}

type fakeApprovals struct {
	submitted approval.SubmitRequest
	query     approval.ListQuery
}

func (f *fakeApprovals) Submit(_ context.Context, r approval.SubmitRequest) (approval.Approval, error) {
	f.submitted = r
	return approval.Approval{ID: "ap-1", Type: r.Type, Title: r.Title, Status: approval.StatusPending, RequesterID: r.RequesterID}, nil
}

func (f *fakeApprovals) Get(_ context.Context, id string) (approval.Approval, error) {
	return approval.Approval{ID: id, Status: approval.StatusApproved}, nil
}

func (f *fakeApprovals) List(_ context.Context, q approval.ListQuery) (pagination.Result[approval.Approval], error) {
	f.query = q
	return pagination.New[approval.Approval](nil, pagination.Request{Page: 2, Size: 10}, 0), nil
}

type fakeMonitoring struct {
	rangeQuery monitoring.RangeQuery
	at         time.Time
}

func (f *fakeMonitoring) Query(_ context.Context, expr string, at time.Time) ([]monitoring.Sample, error) {
	f.at = at
	return []monitoring.Sample{{Metric: map[string]string{"job": "api"}, Value: 1}}, nil
}

func (f *fakeMonitoring) QueryRange(_ context.Context, q monitoring.RangeQuery) ([]monitoring.Series, error) {
	f.rangeQuery = q
	return []monitoring.Series{}, nil
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
}

func do(t *testing.T, h http.Handler, method, target string, body any, headers map[string]string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env response
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an envelope: %v: %s", err, rr.Body.String())
	}
	return rr, env
}

func TestHealthAndInfo(t *testing.T) {
	h := New(Services{}, Options{Version: "1.2.3"}).Handler()

	rr, env := do(t, h, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusOK || !env.Success || env.Error != nil {
		t.Fatalf("unexpected healthz: %d %+v", rr.Code, env)
	}
	rr, env = do(t, h, http.MethodGet, "/v1/info", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected info status: %d", rr.Code)
	}
	var info map[string]any
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info["version"] != "1.2.3" || info["name"] != ServiceName {
		t.Fatalf("unexpected info: %v", info)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}
}

func TestReadyReportsFailingChecks(t *testing.T) {
	probe := ReadyProbe{Checks: []Check{
		{Name: "database", Fn: func(context.Context) error { return nil }},
		{Name: "approval", Fn: func(context.Context) error { return errors.New("dial tcp: refused") }},
	}}
	h := New(Services{}, Options{Ready: probe}).Handler()

	rr, env := do(t, h, http.MethodGet, "/readyz", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if env.Success || env.Error == nil || *env.Error != string(upstream.KindUnavailable) {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var data struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Checks["database"] != "ok" || data.Checks["approval"] != "dial tcp: refused" {
		t.Fatalf("unexpected checks: %v", data.Checks)
	}
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	h := New(Services{}, Options{}).Handler()
	rr, env := do(t, h, http.MethodGet, "/nope", nil, nil)
	if rr.Code != http.StatusNotFound || env.Success || env.Error == nil {
		t.Fatalf("unexpected response: %d %+v", rr.Code, env)
	}
}

func TestDisabledIntegration(t *testing.T) {
	h := New(Services{}, Options{}).Handler()
	rr, env := do(t, h, http.MethodGet, "/v1/models", nil, nil)
	if rr.Code != http.StatusServiceUnavailable || *env.Error != string(upstream.KindUnavailable) {
		t.Fatalf("unexpected response: %d %+v", rr.Code, env)
	}
}

func TestListModelsPassesQuery(t *testing.T) {
	models := &fakeModels{}
	h := New(Services{Models: models}, Options{}).Handler()

	rr, env := do(t, h, http.MethodGet, "/v1/models?page=2&size=5&keyword=llm", nil, nil)
	if rr.Code != http.StatusOK || !env.Success {
		t.Fatalf("unexpected response: %d %+v", rr.Code, env)
	}
	if models.listQuery != (sktai.ModelQuery{Page: 2, Size: 5, Keyword: "llm"}) {
		t.Fatalf("unexpected query: %+v", models.listQuery)
	}
	var page pagination.Result[sktai.Model]
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Items) != 1 || page.Pagination.TotalPages != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestInvalidPageParameter(t *testing.T) {
	models := &fakeModels{}
	h := New(Services{Models: models}, Options{}).Handler()
	rr, env := do(t, h, http.MethodGet, "/v1/models?page=abc", nil, nil)
	if rr.Code != http.StatusBadRequest || *env.Error != string(upstream.KindClient) || env.Message != "page must be an integer" {
		t.Fatalf("unexpected response: %d %+v", rr.Code, env)
	}
}

func TestUpstreamErrorsKeepKindAndMessage(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
		msg    string
	}{
		{&upstream.Error{Kind: upstream.KindClient, Message: "name already exists", Status: 409}, http.StatusConflict, "client-error", "name already exists"},
		{&upstream.Error{Kind: upstream.KindClient, Message: "task not found", Status: 404}, http.StatusNotFound, "client-error", "task not found"},
		{&upstream.Error{Kind: upstream.KindClient, Message: "page out of range", Status: 400}, http.StatusBadRequest, "client-error", "page out of range"},
		{&upstream.Error{Kind: upstream.KindAuth, Message: "token expired", Status: 401}, http.StatusUnauthorized, "auth-error", "token expired"},
		{&upstream.Error{Kind: upstream.KindAuth, Message: "forbidden", Status: 403}, http.StatusForbidden, "auth-error", "forbidden"},
		{&upstream.Error{Kind: upstream.KindRateLimited, Message: "slow down", Status: 429}, http.StatusTooManyRequests, "rate-limited", "slow down"},
		{&upstream.Error{Kind: upstream.KindUnavailable, Message: "bad gateway", Status: 502}, http.StatusBadGateway, "upstream-unavailable", "bad gateway"},
		{&upstream.Error{Kind: upstream.KindDecode, Message: "unexpected body"}, http.StatusBadGateway, "decode-error", "unexpected body"},
		{&upstream.Error{Kind: upstream.KindInternal, Message: "nil pointer dereference"}, http.StatusInternalServerError, "internal-unexpected", upstream.UnexpectedMessage},
		{errors.New("sql: connection refused at 10.0.0.3"), http.StatusInternalServerError, "internal-unexpected", upstream.UnexpectedMessage},
	}
	for _, tc := range cases {
		h := New(Services{Models: &fakeModels{err: tc.err}}, Options{}).Handler()
		rr, env := do(t, h, http.MethodGet, "/v1/models/import/job-1", nil, nil)
		if rr.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rr.Code)
		}
		if env.Success || env.Error == nil || *env.Error != tc.kind || env.Message != tc.msg {
			t.Fatalf("%v: unexpected envelope %+v", tc.err, env)
		}
		if string(env.Data) != "null" {
			t.Fatalf("%v: expected null data, got %s", tc.err, env.Data)
		}
	}
}

func TestImportModel(t *testing.T) {
	models := &fakeModels{}
	h := New(Services{Models: models}, Options{}).Handler()

	body := map[string]any{"name": "llama-3-8b", "source": "HUGGINGFACE", "uri": "meta-llama/Meta-Llama-3-8B"}
	rr, env := do(t, h, http.MethodPost, "/v1/models/import", body, nil)
	if rr.Code != http.StatusAccepted || !env.Success {
		t.Fatalf("unexpected response: %d %+v", rr.Code, env)
	}
	if rr.Header().Get("Location") != "/v1/models/import/job-7" {
		t.Fatalf("unexpected location: %q", rr.Header().Get("Location"))
	}
	if models.imported.Source != sktai.SourceHuggingFace || models.imported.URI != "meta-llama/Meta-Llama-3-8B" {
		t.Fatalf("unexpected import request: %+v", models.imported)
	}

	rr, env = do(t, h, http.MethodPost, "/v1/models/import", map[string]any{"name": "x", "bogus": true}, nil)
	if rr.Code != http.StatusBadRequest || *env.Error != "client-error" {
		t.Fatalf("unknown fields must be rejected: %d %+v", rr.Code, env)
	}

	rr, _ = do(t, h, http.MethodGet, "/v1/models/import", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestBodyTooLarge(t *testing.T) {
	h := New(Services{Models: &fakeModels{}}, Options{MaxBodyBytes: 32}).Handler()
	body := map[string]any{"name": "a-very-long-model-name-that-exceeds-the-limit", "source": "URL", "uri": "https://example.com/m.bin"}
	rr, env := do(t, h, http.MethodPost, "/v1/models/import", body, nil)
	if rr.Code != http.StatusRequestEntityTooLarge || *env.Error != "client-error" {
		t.Fatalf("unexpected response: %d %+v", rr.Code, env)
	}
}

func TestApprovalsRoutes(t *testing.T) {
	approvals := &fakeApprovals{}
	h := New(Services{Approvals: approvals}, Options{}).Handler()

	body := map[string]any{
		"approval_type": "MODEL_DEPLOY",
		"title":         "Deploy llama",
		"requester_id":  "u-1",
		"approver_ids":  []string{"u-2"},
	}
	rr, env := do(t, h, http.MethodPost, "/v1/approvals", body, nil)
	if rr.Code != http.StatusCreated || !env.Success {
		t.Fatalf("unexpected submit response: %d %+v", rr.Code, env)
	}
	if approvals.submitted.Title != "Deploy llama" || approvals.submitted.Approvers[0] != "u-2" {
		t.Fatalf("unexpected submitted: %+v", approvals.submitted)
	}

	rr, env = do(t, h, http.MethodGet, "/v1/approvals?page=2&size=10&status=APPROVED", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected list status: %d", rr.Code)
	}
	if approvals.query != (approval.ListQuery{Page: 2, Size: 10, Status: approval.StatusApproved}) {
		t.Fatalf("unexpected list query: %+v", approvals.query)
	}
	if string(env.Data) == "" || !json.Valid(env.Data) {
		t.Fatalf("invalid data: %s", env.Data)
	}

	rr, env = do(t, h, http.MethodGet, "/v1/approvals/ap-9", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected get status: %d", rr.Code)
	}
	var got approval.Approval
	if err := json.Unmarshal(env.Data, &got); err != nil || got.ID != "ap-9" {
		t.Fatalf("unexpected approval: %+v %v", got, err)
	}

	rr, _ = do(t, h, http.MethodGet, "/v1/approvals/ap-9/extra", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for nested path, got %d", rr.Code)
	}
}

func TestMonitoringParameters(t *testing.T) {
	mon := &fakeMonitoring{}
	h := New(Services{Monitoring: mon}, Options{}).Handler()

	q := url.Values{}
	q.Set("query", "up")
	q.Set("time", "1700000000")
	rr, _ := do(t, h, http.MethodGet, "/v1/monitoring/query?"+q.Encode(), nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if !mon.at.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected time: %v", mon.at)
	}

	q = url.Values{}
	q.Set("query", "rate(http_requests_total[5m])")
	q.Set("start", "2026-01-01T00:00:00Z")
	q.Set("end", "2026-01-01T01:00:00Z")
	q.Set("step", "30s")
	rr, _ = do(t, h, http.MethodGet, "/v1/monitoring/query_range?"+q.Encode(), nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if mon.rangeQuery.Step != 30*time.Second || mon.rangeQuery.End.Sub(mon.rangeQuery.Start) != time.Hour {
		t.Fatalf("unexpected range query: %+v", mon.rangeQuery)
	}

	rr, env := do(t, h, http.MethodGet, "/v1/monitoring/query_range?start=yesterday", nil, nil)
	if rr.Code != http.StatusBadRequest || env.Message != "start: must be RFC3339 or unix seconds" {
		t.Fatalf("unexpected response: %d %+v", rr.Code, env)
	}
}

func TestEvaluationsForwardCallerTokenAndRequestID(t *testing.T) {
	var gotAuth, gotCorrelation string
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCorrelation = r.Header.Get(upstream.CorrelationHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_data_count":1,"total_page_count":1,"tasks":[{"id":"t-1","name":"judge","category":"JUDGE","status":"DONE"}]}`))
	}))
	defer upstreamSrv.Close()

	client, err := datumo.NewClient(upstream.Config{BaseURL: upstreamSrv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	h := New(Services{Evaluations: datumo.NewService(client)}, Options{}).Handler()

	rr, env := do(t, h, http.MethodGet, "/v1/evaluations/tasks?category=JUDGE", nil, map[string]string{
		"Authorization": "Bearer user-token",
		requestIDHeader: "req-42",
	})
	if rr.Code != http.StatusOK || !env.Success {
		t.Fatalf("unexpected response: %d %+v", rr.Code, env)
	}
	if gotAuth != "Bearer user-token" {
		t.Fatalf("caller token not forwarded: %q", gotAuth)
	}
	if gotCorrelation != "req-42" {
		t.Fatalf("request id not propagated: %q", gotCorrelation)
	}

	rr, env = do(t, h, http.MethodGet, "/v1/evaluations/tasks", nil, nil)
	if rr.Code != http.StatusUnauthorized || *env.Error != "auth-error" {
		t.Fatalf("expected auth-error without caller token: %d %+v", rr.Code, env)
	}
}
