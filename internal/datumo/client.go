package datumo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"aiportal.dev/internal/upstream"
)

// System names Datumo in errors, logs and metrics.
const System = "datumo"

var (
	listTasks = upstream.Binding[TaskQuery, taskListDTO]{
		Name:   "ListTasks",
		Method: http.MethodGet,
		Path:   func(TaskQuery) string { return "api/v1/tasks" },
		Query: func(q TaskQuery) url.Values {
			v := url.Values{}
			v.Set("page", strconv.Itoa(q.Page))
			v.Set("page_size", strconv.Itoa(q.Size))
			if q.Category != "" {
				v.Set("category", string(q.Category))
			}
			if q.Keyword != "" {
				v.Set("keyword", q.Keyword)
			}
			return v
		},
	}
	getTask = upstream.Binding[string, taskDTO]{
		Name:   "GetTask",
		Method: http.MethodGet,
		Path:   func(id string) string { return "api/v1/tasks/" + upstream.PathEscape(id) },
	}
)

// Client is the transport binding for the Datumo API.
type Client struct {
	http *upstream.Client
}

// NewClient forces the caller-token authorizer unless cfg.Auth is set.
func NewClient(cfg upstream.Config) (*Client, error) {
	cfg.System = System
	if cfg.Auth == nil {
		cfg.Auth = upstream.CallerToken{System: System}
	}
	if cfg.Extract == nil {
		cfg.Extract = extractMessage
	}
	c, err := upstream.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{http: c}, nil
}

func (c *Client) ListTasks(ctx context.Context, q TaskQuery) (taskListDTO, error) {
	return listTasks.Call(ctx, c.http, q)
}

func (c *Client) GetTask(ctx context.Context, id string) (taskDTO, error) {
	return getTask.Call(ctx, c.http, id)
}

// extractMessage understands FastAPI validation bodies,
// {"detail":[{"loc":["query","page"],"msg":"..."}]}, and falls back to the
// generic JSON lookup for everything else.
func extractMessage(body []byte) (string, bool) {
	var v struct {
		Detail []struct {
			Loc []any  `json:"loc"`
			Msg string `json:"msg"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &v); err == nil && len(v.Detail) > 0 {
		parts := make([]string, 0, len(v.Detail))
		for _, d := range v.Detail {
			if d.Msg == "" {
				continue
			}
			if n := len(d.Loc); n > 0 {
				if field, ok := d.Loc[n-1].(string); ok {
					parts = append(parts, field+": "+d.Msg)
					continue
				}
			}
			parts = append(parts, d.Msg)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; "), true
		}
	}
	return upstream.ExtractJSONMessage(body)
}
